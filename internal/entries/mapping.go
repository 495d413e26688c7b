package entries

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// EntryDraft carries a validated create payload. Tags are reconciled as a
// separate step after the base entity is persisted, inside the same
// transaction.
type EntryDraft struct {
	Title     string
	MediaType MediaType
	SubType   *MediaSubType
	Status    WatchStatus
	Rating    *float64
	Notes     string
	Tags      []string
}

// EntryPatch carries a partial update. Nil fields are absent and leave the
// stored value untouched. Notes set to blank clears the stored notes, which
// matches the blank/absent collapse on create. Version, when present, must
// equal the stored version stamp or the write fails with a conflict.
type EntryPatch struct {
	Title     *string
	MediaType *MediaType
	SubType   *MediaSubType
	Status    *WatchStatus
	Rating    *float64
	Notes     *string
	Tags      *[]string
	Version   *int64
}

// isEmpty reports whether the patch sets nothing. Version is a guard, not a
// field, so a version-only patch is still empty.
func (patch EntryPatch) isEmpty() bool {
	return patch.Title == nil &&
		patch.MediaType == nil &&
		patch.SubType == nil &&
		patch.Status == nil &&
		patch.Rating == nil &&
		patch.Notes == nil &&
		patch.Tags == nil
}

func (draft EntryDraft) normalized() (EntryDraft, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return EntryDraft{}, newValidationError("title", "title must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return EntryDraft{}, newValidationError("title", fmt.Sprintf("title exceeds %d characters", maxTitleLength))
	}
	if err := validateRating(draft.Rating); err != nil {
		return EntryDraft{}, err
	}
	notes, err := normalizeNotes(draft.Notes)
	if err != nil {
		return EntryDraft{}, err
	}
	normalizedTags, err := normalizeTagNames(draft.Tags)
	if err != nil {
		return EntryDraft{}, err
	}

	normalized := draft
	normalized.Title = title
	normalized.Notes = notes
	normalized.Tags = normalizedTags
	return normalized, nil
}

// apply folds the patch into a copy of the stored entry, or reports the first
// validation failure without touching anything.
func (patch EntryPatch) apply(entry MediaEntry) (MediaEntry, error) {
	updated := entry

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return MediaEntry{}, newValidationError("title", "title must not be empty")
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return MediaEntry{}, newValidationError("title", fmt.Sprintf("title exceeds %d characters", maxTitleLength))
		}
		updated.Title = title
	}
	if patch.MediaType != nil {
		updated.MediaType = *patch.MediaType
	}
	if patch.SubType != nil {
		updated.SubType = patch.SubType
	}
	if patch.Status != nil {
		updated.Status = *patch.Status
	}
	if patch.Rating != nil {
		if err := validateRating(patch.Rating); err != nil {
			return MediaEntry{}, err
		}
		updated.Rating = patch.Rating
	}
	if patch.Notes != nil {
		notes, err := normalizeNotes(*patch.Notes)
		if err != nil {
			return MediaEntry{}, err
		}
		if notes == "" {
			updated.Notes = nil
		} else {
			value := notes
			updated.Notes = &value
		}
	}

	return updated, nil
}

func normalizeNotes(raw string) (string, error) {
	notes := strings.TrimSpace(raw)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return "", newValidationError("notes", fmt.Sprintf("notes exceed %d characters", maxNotesLength))
	}
	return notes, nil
}

// validateRating enforces the stepped rating rule: nil is always valid,
// otherwise the value must sit in [0, 10], carry at most one fractional
// decimal digit, and land on a 0.5 step. Each failure names its own rule so
// the client message is actionable.
func validateRating(rating *float64) error {
	if rating == nil {
		return nil
	}
	value := *rating
	if value < 0 || value > 10 {
		return newValidationError("rating", "rating must be between 0 and 10")
	}
	tenths := value * 10
	if math.Abs(tenths-math.Round(tenths)) > 1e-9 {
		return newValidationError("rating", "rating must have at most one fractional digit")
	}
	if int64(math.Round(tenths))%5 != 0 {
		return newValidationError("rating", "rating must be a multiple of 0.5")
	}
	return nil
}
