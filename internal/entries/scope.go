package entries

import "gorm.io/gorm"

// The soft-delete and tenant predicates are composed explicitly at every read
// path instead of hiding behind a framework-level global filter, so each call
// site shows exactly which rows it can see.

func scopeOwner(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

func scopeLive(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false)
}

// visibleTagsJoinSQL selects the live tags joined to one entry. Join-row
// visibility is derived: the row counts only while both principals are live,
// and the caller has already established the entry side.
const visibleTagsJoinSQL = `SELECT tags.* FROM tags
JOIN entry_tags ON entry_tags.tag_id = tags.id
WHERE entry_tags.entry_id = ? AND tags.user_id = ? AND tags.is_deleted = ?
ORDER BY tags.name`

func loadJoinedTags(db *gorm.DB, entryID, userID string) ([]Tag, error) {
	var tags []Tag
	if err := db.Raw(visibleTagsJoinSQL, entryID, userID, false).Scan(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func loadJoinedTagNames(db *gorm.DB, entryID, userID string) ([]string, error) {
	tags, err := loadJoinedTags(db, entryID, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names, nil
}
