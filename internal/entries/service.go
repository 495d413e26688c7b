package entries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps infrastructure faults with a stable operation code.
// Domain outcomes (validation, not found, conflict) are returned as *Error
// instead and never wear a ServiceError.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "entries.service.new"
	opListEntries = "entries.list_entries"
	opGetEntry    = "entries.get_entry"
	opCreateEntry = "entries.create_entry"
	opUpdateEntry = "entries.update_entry"
	opDeleteEntry = "entries.delete_entry"
	opSyncTags    = "entries.sync_tags"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the entries service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns every read and write against media entries, tags, and their
// joins. All timestamp and version stamping happens here, at the commit
// boundary, never in callers.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the entries service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ListEntries returns one page of the user's entries matching the query plus
// the total match count before paging. Each item carries its materialized
// live tag names.
func (s *Service) ListEntries(ctx context.Context, userID string, query ListQuery) ([]EntryView, int64, error) {
	if s.db == nil {
		return nil, 0, newServiceError(opListEntries, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return nil, 0, newServiceError(opListEntries, "missing_user_id", errMissingUserID)
	}

	tx := s.db.WithContext(ctx).Model(&MediaEntry{}).Scopes(scopeOwner(userID))
	if !query.IncludeDeleted {
		tx = tx.Scopes(scopeLive)
	}
	tx = query.applyFilters(tx, userID)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		s.logError(opListEntries, "count_failed", err, zap.String("user_id", userID))
		return nil, 0, newServiceError(opListEntries, "count_failed", err)
	}

	var rows []MediaEntry
	if err := tx.
		Order(query.orderClause()).
		Offset((query.Page - 1) * query.PageSize).
		Limit(query.PageSize).
		Find(&rows).Error; err != nil {
		s.logError(opListEntries, "query_failed", err, zap.String("user_id", userID))
		return nil, 0, newServiceError(opListEntries, "query_failed", err)
	}

	views := make([]EntryView, 0, len(rows))
	for _, entry := range rows {
		names, err := loadJoinedTagNames(s.db.WithContext(ctx), entry.ID, userID)
		if err != nil {
			s.logError(opListEntries, "tag_load_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entry.ID))
			return nil, 0, newServiceError(opListEntries, "tag_load_failed", err)
		}
		views = append(views, projectEntry(entry, names))
	}

	return views, total, nil
}

// GetEntry returns one live entry owned by the user, or a not-found outcome.
// Rows belonging to other tenants and soft-deleted rows are indistinguishable
// from absent ones.
func (s *Service) GetEntry(ctx context.Context, userID, entryID string) (EntryView, error) {
	if s.db == nil {
		return EntryView{}, newServiceError(opGetEntry, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return EntryView{}, newServiceError(opGetEntry, "missing_user_id", errMissingUserID)
	}

	var entry MediaEntry
	err := s.db.WithContext(ctx).
		Scopes(scopeOwner(userID), scopeLive).
		Where("id = ?", entryID).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EntryView{}, newNotFoundError("entry")
	}
	if err != nil {
		s.logError(opGetEntry, "query_failed", err,
			zap.String("user_id", userID),
			zap.String("entry_id", entryID))
		return EntryView{}, newServiceError(opGetEntry, "query_failed", err)
	}

	names, err := loadJoinedTagNames(s.db.WithContext(ctx), entry.ID, userID)
	if err != nil {
		s.logError(opGetEntry, "tag_load_failed", err,
			zap.String("user_id", userID),
			zap.String("entry_id", entryID))
		return EntryView{}, newServiceError(opGetEntry, "tag_load_failed", err)
	}

	return projectEntry(entry, names), nil
}

// GetEntryIncludeDeleted bypasses the standing soft-delete filter for
// administrative and debug reads. It returns the raw stored row.
func (s *Service) GetEntryIncludeDeleted(ctx context.Context, userID, entryID string) (MediaEntry, error) {
	if s.db == nil {
		return MediaEntry{}, newServiceError(opGetEntry, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return MediaEntry{}, newServiceError(opGetEntry, "missing_user_id", errMissingUserID)
	}

	var entry MediaEntry
	err := s.db.WithContext(ctx).
		Scopes(scopeOwner(userID)).
		Where("id = ?", entryID).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MediaEntry{}, newNotFoundError("entry")
	}
	if err != nil {
		s.logError(opGetEntry, "query_failed", err,
			zap.String("user_id", userID),
			zap.String("entry_id", entryID))
		return MediaEntry{}, newServiceError(opGetEntry, "query_failed", err)
	}
	return entry, nil
}

// CreateEntry validates the draft, persists the base entity, and reconciles
// its tag set, all inside one transaction so a cancelled request leaves no
// half-written join set behind.
func (s *Service) CreateEntry(ctx context.Context, userID string, draft EntryDraft) (EntryView, error) {
	if s.db == nil {
		return EntryView{}, newServiceError(opCreateEntry, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return EntryView{}, newServiceError(opCreateEntry, "missing_user_id", errMissingUserID)
	}

	normalized, err := draft.normalized()
	if err != nil {
		return EntryView{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateEntry, "id_generation_failed", err, zap.String("user_id", userID))
		return EntryView{}, newServiceError(opCreateEntry, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	entry := MediaEntry{
		ID:        id,
		UserID:    userID,
		Title:     normalized.Title,
		MediaType: normalized.MediaType,
		SubType:   normalized.SubType,
		Status:    normalized.Status,
		Rating:    normalized.Rating,
		CreatedAt: now,
		UpdatedAt: now,
		IsDeleted: false,
		Version:   1,
	}
	if normalized.Notes != "" {
		notes := normalized.Notes
		entry.Notes = &notes
	}

	var view EntryView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			s.logError(opCreateEntry, "insert_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entry.ID))
			return newServiceError(opCreateEntry, "insert_failed", err)
		}
		if err := s.reconcileTags(tx, userID, entry.ID, normalized.Tags, now); err != nil {
			s.logError(opCreateEntry, "tag_sync_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entry.ID))
			return newServiceError(opCreateEntry, "tag_sync_failed", err)
		}
		names, err := loadJoinedTagNames(tx, entry.ID, userID)
		if err != nil {
			return newServiceError(opCreateEntry, "tag_load_failed", err)
		}
		view = projectEntry(entry, names)
		return nil
	})
	if txErr != nil {
		return EntryView{}, txErr
	}

	return view, nil
}

// UpdateEntry applies a partial patch to one live entry. Nothing is written
// until every patched field validates, and a patch that sets nothing reads
// the current state back without touching the stamps. A stale version stamp,
// either supplied by the caller or discovered at write time, fails with a
// conflict outcome; the caller is expected to reload and retry.
func (s *Service) UpdateEntry(ctx context.Context, userID, entryID string, patch EntryPatch) (EntryView, error) {
	if s.db == nil {
		return EntryView{}, newServiceError(opUpdateEntry, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return EntryView{}, newServiceError(opUpdateEntry, "missing_user_id", errMissingUserID)
	}

	var view EntryView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry MediaEntry
		err := tx.Scopes(scopeOwner(userID), scopeLive).
			Where("id = ?", entryID).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newNotFoundError("entry")
		}
		if err != nil {
			s.logError(opUpdateEntry, "select_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entryID))
			return newServiceError(opUpdateEntry, "select_failed", err)
		}

		if patch.Version != nil && *patch.Version != entry.Version {
			return newConflictError("entry was modified concurrently, reload and retry")
		}

		// A patch that sets nothing is a no-op: no write, no stamp bump.
		if patch.isEmpty() {
			names, err := loadJoinedTagNames(tx, entryID, userID)
			if err != nil {
				return newServiceError(opUpdateEntry, "tag_load_failed", err)
			}
			view = projectEntry(entry, names)
			return nil
		}

		updated, err := patch.apply(entry)
		if err != nil {
			return err
		}

		var desiredTags []string
		if patch.Tags != nil {
			desiredTags, err = normalizeTagNames(*patch.Tags)
			if err != nil {
				return err
			}
		}

		now := s.clock().UTC()
		updated.UpdatedAt = now
		updated.Version = entry.Version + 1

		result := tx.Model(&MediaEntry{}).
			Where("id = ? AND user_id = ? AND version = ?", entryID, userID, entry.Version).
			Updates(map[string]interface{}{
				"title":      updated.Title,
				"media_type": updated.MediaType,
				"sub_type":   updated.SubType,
				"status":     updated.Status,
				"rating":     updated.Rating,
				"notes":      updated.Notes,
				"updated_at": updated.UpdatedAt,
				"version":    updated.Version,
			})
		if result.Error != nil {
			s.logError(opUpdateEntry, "update_failed", result.Error,
				zap.String("user_id", userID),
				zap.String("entry_id", entryID))
			return newServiceError(opUpdateEntry, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newConflictError("entry was modified concurrently, reload and retry")
		}

		if patch.Tags != nil {
			if err := s.reconcileTags(tx, userID, entryID, desiredTags, now); err != nil {
				s.logError(opUpdateEntry, "tag_sync_failed", err,
					zap.String("user_id", userID),
					zap.String("entry_id", entryID))
				return newServiceError(opUpdateEntry, "tag_sync_failed", err)
			}
		}

		names, err := loadJoinedTagNames(tx, entryID, userID)
		if err != nil {
			return newServiceError(opUpdateEntry, "tag_load_failed", err)
		}
		view = projectEntry(updated, names)
		return nil
	})
	if txErr != nil {
		return EntryView{}, txErr
	}

	return view, nil
}

// DeleteEntry soft-deletes one live entry. The row is never physically
// removed: the delete is rewritten into an update stamping is_deleted,
// deleted_at, and updated_at. There is no resurrection path.
func (s *Service) DeleteEntry(ctx context.Context, userID, entryID string) error {
	if s.db == nil {
		return newServiceError(opDeleteEntry, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return newServiceError(opDeleteEntry, "missing_user_id", errMissingUserID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry MediaEntry
		err := tx.Scopes(scopeOwner(userID), scopeLive).
			Where("id = ?", entryID).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newNotFoundError("entry")
		}
		if err != nil {
			s.logError(opDeleteEntry, "select_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entryID))
			return newServiceError(opDeleteEntry, "select_failed", err)
		}

		now := s.clock().UTC()
		result := tx.Model(&MediaEntry{}).
			Where("id = ? AND user_id = ? AND version = ?", entryID, userID, entry.Version).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
				"updated_at": now,
				"version":    entry.Version + 1,
			})
		if result.Error != nil {
			s.logError(opDeleteEntry, "update_failed", result.Error,
				zap.String("user_id", userID),
				zap.String("entry_id", entryID))
			return newServiceError(opDeleteEntry, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newConflictError("entry was modified concurrently, reload and retry")
		}
		return nil
	})
}

// SyncTags converges the entry's tag set to exactly the desired names,
// case-insensitively. The last caller's desired set wins when two requests
// race; only the base entry carries a version stamp.
func (s *Service) SyncTags(ctx context.Context, userID, entryID string, names []string) error {
	if s.db == nil {
		return newServiceError(opSyncTags, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return newServiceError(opSyncTags, "missing_user_id", errMissingUserID)
	}

	desired, err := normalizeTagNames(names)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry MediaEntry
		err := tx.Scopes(scopeOwner(userID), scopeLive).
			Where("id = ?", entryID).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newNotFoundError("entry")
		}
		if err != nil {
			s.logError(opSyncTags, "select_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entryID))
			return newServiceError(opSyncTags, "select_failed", err)
		}

		if err := s.reconcileTags(tx, userID, entryID, desired, s.clock().UTC()); err != nil {
			s.logError(opSyncTags, "reconcile_failed", err,
				zap.String("user_id", userID),
				zap.String("entry_id", entryID))
			return newServiceError(opSyncTags, "reconcile_failed", err)
		}
		return nil
	})
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("entries service error", attrs...)
}
