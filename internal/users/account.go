package users

import (
	"strings"
	"time"
)

// Account stores one registered user and their hashed credential.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_accounts_email"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	DisplayName  string    `gorm:"column:display_name;size:320"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "accounts"
}

// normalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
