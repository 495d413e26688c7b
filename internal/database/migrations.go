package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationLowercaseTagNames  = "2026-07-28_lowercase_tag_names"
	migrationNormalizeBlankNote = "2026-08-10_normalize_blank_notes"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationLowercaseTagNames, apply: lowercaseTagNames},
		{name: migrationNormalizeBlankNote, apply: normalizeBlankNotes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// lowercaseTagNames repairs rows written before tag names were normalized at
// the service boundary.
func lowercaseTagNames(db *gorm.DB) error {
	return db.Exec("UPDATE tags SET name = lower(name) WHERE name <> lower(name);").Error
}

// normalizeBlankNotes collapses whitespace-only notes to NULL, matching the
// write-path normalization.
func normalizeBlankNotes(db *gorm.DB) error {
	return db.Exec("UPDATE media_entries SET notes = NULL WHERE notes IS NOT NULL AND trim(notes) = '';").Error
}
