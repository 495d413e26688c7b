package entries

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type seqIDProvider struct {
	prefix string
	next   int
}

func (g *seqIDProvider) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:watchlog_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&MediaEntry{}, &Tag{}, &EntryTag{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &seqIDProvider{prefix: "id"},
	})
	if err != nil {
		t.Fatalf("failed to construct entries service: %v", err)
	}

	return service, db, clock
}

func mustCreate(t *testing.T, service *Service, userID string, draft EntryDraft) EntryView {
	t.Helper()
	view, err := service.CreateEntry(context.Background(), userID, draft)
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	return view
}

func floatPtr(value float64) *float64 {
	return &value
}

func stringPtr(value string) *string {
	return &value
}
