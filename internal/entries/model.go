package entries

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxTitleLength   = 200
	maxNotesLength   = 2000
	maxTagNameLength = 64
)

// MediaType enumerates the supported top-level media kinds.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

// MediaSubType refines a MediaType; optional on an entry.
type MediaSubType string

const (
	SubTypeLiveAction  MediaSubType = "live_action"
	SubTypeAnime       MediaSubType = "anime"
	SubTypeManga       MediaSubType = "manga"
	SubTypeAnimated    MediaSubType = "animated"
	SubTypeDocumentary MediaSubType = "documentary"
	SubTypeOther       MediaSubType = "other"
)

// WatchStatus tracks where an entry sits in the user's pipeline.
type WatchStatus string

const (
	StatusPlanning  WatchStatus = "planning"
	StatusWatching  WatchStatus = "watching"
	StatusCompleted WatchStatus = "completed"
	StatusOnHold    WatchStatus = "on_hold"
	StatusDropped   WatchStatus = "dropped"
)

var (
	allMediaTypes = []MediaType{MediaTypeMovie, MediaTypeSeries}
	allSubTypes   = []MediaSubType{SubTypeLiveAction, SubTypeAnime, SubTypeManga, SubTypeAnimated, SubTypeDocumentary, SubTypeOther}
	allStatuses   = []WatchStatus{StatusPlanning, StatusWatching, StatusCompleted, StatusOnHold, StatusDropped}
)

// ParseMediaType decodes a caller-supplied media type token case-insensitively.
func ParseMediaType(raw string) (MediaType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allMediaTypes {
		if normalized == string(candidate) {
			return candidate, nil
		}
	}
	return "", newEnumError("type", raw, mediaTypeNames())
}

// ParseMediaSubType decodes a caller-supplied sub type token case-insensitively.
func ParseMediaSubType(raw string) (MediaSubType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allSubTypes {
		if normalized == string(candidate) {
			return candidate, nil
		}
	}
	return "", newEnumError("sub_type", raw, subTypeNames())
}

// ParseWatchStatus decodes a caller-supplied status token case-insensitively.
func ParseWatchStatus(raw string) (WatchStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allStatuses {
		if normalized == string(candidate) {
			return candidate, nil
		}
	}
	return "", newEnumError("status", raw, statusNames())
}

func mediaTypeNames() []string {
	names := make([]string, 0, len(allMediaTypes))
	for _, value := range allMediaTypes {
		names = append(names, string(value))
	}
	return names
}

func subTypeNames() []string {
	names := make([]string, 0, len(allSubTypes))
	for _, value := range allSubTypes {
		names = append(names, string(value))
	}
	return names
}

func statusNames() []string {
	names := make([]string, 0, len(allStatuses))
	for _, value := range allStatuses {
		names = append(names, string(value))
	}
	return names
}

// MediaEntry is the persisted shape of one tracked title, owned by exactly one user.
type MediaEntry struct {
	ID        string        `gorm:"column:id;primaryKey;size:36;not null"`
	UserID    string        `gorm:"column:user_id;size:190;not null;index:idx_entries_user_updated,priority:1"`
	Title     string        `gorm:"column:title;size:200;not null"`
	MediaType MediaType     `gorm:"column:media_type;size:16;not null"`
	SubType   *MediaSubType `gorm:"column:sub_type;size:16"`
	Status    WatchStatus   `gorm:"column:status;size:16;not null"`
	Rating    *float64      `gorm:"column:rating"`
	Notes     *string       `gorm:"column:notes;size:2000"`
	CreatedAt time.Time     `gorm:"column:created_at;not null"`
	UpdatedAt time.Time     `gorm:"column:updated_at;not null;index:idx_entries_user_updated,priority:2"`
	IsDeleted bool          `gorm:"column:is_deleted;not null;default:false;index:idx_entries_user_updated,priority:3"`
	DeletedAt *time.Time    `gorm:"column:deleted_at"`
	Version   int64         `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (MediaEntry) TableName() string {
	return "media_entries"
}

// Tag is a per-user label. Names are stored lowercase; (user_id, name) is
// unique among live rows, so a soft-deleted tag does not block its name.
type Tag struct {
	ID        string     `gorm:"column:id;primaryKey;size:36;not null"`
	UserID    string     `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_tags_user_name,priority:1,where:is_deleted = 0"`
	Name      string     `gorm:"column:name;size:64;not null;uniqueIndex:idx_tags_user_name,priority:2"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
	Version   int64      `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// EntryTag joins a media entry to a tag. It carries no soft-delete flag of its
// own: a join row is visible only while both principals are live.
type EntryTag struct {
	EntryID string `gorm:"column:entry_id;primaryKey;size:36;not null"`
	TagID   string `gorm:"column:tag_id;primaryKey;size:36;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EntryTag) TableName() string {
	return "entry_tags"
}

// EntryView is the read projection: entry scalars plus the materialized tag
// name list, ready for serialization.
type EntryView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	MediaType MediaType     `json:"type"`
	SubType   *MediaSubType `json:"sub_type,omitempty"`
	Status    WatchStatus   `json:"status"`
	Rating    *float64      `json:"rating,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	Tags      []string      `json:"tags"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Version   int64         `json:"version"`
}

func projectEntry(entry MediaEntry, tagNames []string) EntryView {
	notes := ""
	if entry.Notes != nil {
		notes = *entry.Notes
	}
	if tagNames == nil {
		tagNames = []string{}
	}
	return EntryView{
		ID:        entry.ID,
		Title:     entry.Title,
		MediaType: entry.MediaType,
		SubType:   entry.SubType,
		Status:    entry.Status,
		Rating:    entry.Rating,
		Notes:     notes,
		Tags:      tagNames,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
		Version:   entry.Version,
	}
}

// normalizeTagNames trims, drops blanks, lowercases, and deduplicates the
// desired tag names. The returned set iterates in sorted order so repeated
// calls see the same sequence.
func normalizeTagNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	normalized := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxTagNameLength {
			return nil, newValidationError("tags", fmt.Sprintf("tag name exceeds %d characters", maxTagNameLength))
		}
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	sort.Strings(normalized)
	return normalized, nil
}
