package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type seqIDProvider struct {
	next int
}

func (g *seqIDProvider) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("account-%d", g.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:users_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &seqIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestRegisterNormalizesEmail(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "  Viewer@Example.COM ", "correct horse", "Viewer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Email != "viewer@example.com" {
		t.Fatalf("expected lowercased email, got %q", account.Email)
	}
	if account.PasswordHash == "correct horse" {
		t.Fatalf("password must never be stored in clear text")
	}
	if account.ID == "" {
		t.Fatalf("expected generated account id")
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	service := newTestService(t)

	testCases := []struct {
		name     string
		email    string
		password string
		expected error
	}{
		{name: "empty email", email: "   ", password: "correct horse", expected: ErrInvalidEmail},
		{name: "missing at sign", email: "viewer.example.com", password: "correct horse", expected: ErrInvalidEmail},
		{name: "short password", email: "viewer@example.com", password: "short", expected: ErrWeakPassword},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), testCase.email, testCase.password, "")
			if !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "viewer@example.com", "correct horse", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Case variance does not dodge uniqueness.
	_, err := service.Register(context.Background(), "VIEWER@example.com", "another pass", "")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticateMatchesRegisteredCredentials(t *testing.T) {
	service := newTestService(t)

	registered, err := service.Register(context.Background(), "viewer@example.com", "correct horse", "Viewer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	account, err := service.Authenticate(context.Background(), "Viewer@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != registered.ID {
		t.Fatalf("expected account %q, got %q", registered.ID, account.ID)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "viewer@example.com", "correct horse", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "stranger@example.com", password: "correct horse"},
		{name: "wrong password", email: "viewer@example.com", password: "wrong horse"},
		{name: "empty password", email: "viewer@example.com", password: ""},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.Authenticate(context.Background(), testCase.email, testCase.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}
