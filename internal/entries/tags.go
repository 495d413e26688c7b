package entries

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// reconcileTags converges the entry's join set to exactly the desired
// (pre-normalized) name set: surplus joins are dropped, missing per-user tags
// are resolved or created, and missing joins are inserted. Re-running with
// the same desired set is a no-op. The caller supplies the transaction, so a
// reconciliation never commits separately from the base-entity write that
// triggered it.
func (s *Service) reconcileTags(tx *gorm.DB, userID, entryID string, desired []string, now time.Time) error {
	current, err := loadJoinedTags(tx, entryID, userID)
	if err != nil {
		return err
	}

	desiredSet := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		desiredSet[name] = struct{}{}
	}

	currentByName := make(map[string]Tag, len(current))
	removeTagIDs := make([]string, 0)
	for _, tag := range current {
		currentByName[tag.Name] = tag
		if _, keep := desiredSet[tag.Name]; !keep {
			removeTagIDs = append(removeTagIDs, tag.ID)
		}
	}

	if len(removeTagIDs) > 0 {
		if err := tx.Where("entry_id = ? AND tag_id IN ?", entryID, removeTagIDs).Delete(&EntryTag{}).Error; err != nil {
			return err
		}
	}

	for _, name := range desired {
		if _, attached := currentByName[name]; attached {
			continue
		}
		tag, err := s.resolveTag(tx, userID, name, now)
		if err != nil {
			return err
		}
		if err := tx.Create(&EntryTag{EntryID: entryID, TagID: tag.ID}).Error; err != nil {
			return err
		}
	}

	return nil
}

// resolveTag finds the user's live tag with the given (lowercase) name or
// creates it. Tags are strictly per user: two users asking for the same name
// each get their own row. Name uniqueness is enforced among live rows only,
// so a soft-deleted holder of the name stays dead (its old joins with it) and
// a fresh row takes over the name.
func (s *Service) resolveTag(tx *gorm.DB, userID, name string, now time.Time) (Tag, error) {
	var tag Tag
	err := tx.Scopes(scopeOwner(userID), scopeLive).Where("name = ?", name).Take(&tag).Error
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Tag{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Tag{}, err
	}
	tag = Tag{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		IsDeleted: false,
		Version:   1,
	}
	if err := tx.Create(&tag).Error; err != nil {
		return Tag{}, err
	}
	return tag, nil
}
