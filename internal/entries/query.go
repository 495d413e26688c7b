package entries

import (
	"strings"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SortField enumerates the supported list orderings.
type SortField string

const (
	SortByTitle   SortField = "title"
	SortByCreated SortField = "created"
	SortByUpdated SortField = "updated"
	SortByRating  SortField = "rating"
)

// SortDirection enumerates ascending and descending order.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

var (
	allSortFields     = []SortField{SortByTitle, SortByCreated, SortByUpdated, SortByRating}
	allSortDirections = []SortDirection{SortAscending, SortDescending}
)

// ListParams is the raw, wire-level form of a list request. Blank strings and
// zero numbers mean the parameter was not supplied.
type ListParams struct {
	Search    string
	Type      string
	SubType   string
	Status    string
	Tag       string
	Sort      string
	Direction string
	Page      int
	PageSize  int
}

// ListQuery is the decoded, normalized form used by the service.
type ListQuery struct {
	Search         string
	Type           *MediaType
	SubType        *MediaSubType
	Status         *WatchStatus
	Tag            string
	Sort           SortField
	Direction      SortDirection
	Page           int
	PageSize       int
	IncludeDeleted bool
}

// ParseListQuery decodes raw parameters into a ListQuery. Unparseable enum
// tokens are client errors naming the field and the allowed values; they are
// never swallowed into an empty result. Out-of-range paging values normalize
// instead of failing.
func ParseListQuery(params ListParams) (ListQuery, error) {
	query := ListQuery{
		Search:    strings.TrimSpace(params.Search),
		Tag:       strings.ToLower(strings.TrimSpace(params.Tag)),
		Sort:      SortByUpdated,
		Direction: SortDescending,
		Page:      params.Page,
		PageSize:  params.PageSize,
	}

	if raw := strings.TrimSpace(params.Type); raw != "" {
		mediaType, err := ParseMediaType(raw)
		if err != nil {
			return ListQuery{}, err
		}
		query.Type = &mediaType
	}
	if raw := strings.TrimSpace(params.SubType); raw != "" {
		subType, err := ParseMediaSubType(raw)
		if err != nil {
			return ListQuery{}, err
		}
		query.SubType = &subType
	}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := ParseWatchStatus(raw)
		if err != nil {
			return ListQuery{}, err
		}
		query.Status = &status
	}
	if raw := strings.TrimSpace(params.Sort); raw != "" {
		sortField, err := parseSortField(raw)
		if err != nil {
			return ListQuery{}, err
		}
		query.Sort = sortField
	}
	if raw := strings.TrimSpace(params.Direction); raw != "" {
		direction, err := parseSortDirection(raw)
		if err != nil {
			return ListQuery{}, err
		}
		query.Direction = direction
	}

	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 || query.PageSize > maxPageSize {
		query.PageSize = defaultPageSize
	}

	return query, nil
}

func parseSortField(raw string) (SortField, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allSortFields {
		if normalized == string(candidate) {
			return candidate, nil
		}
	}
	allowed := make([]string, 0, len(allSortFields))
	for _, value := range allSortFields {
		allowed = append(allowed, string(value))
	}
	return "", newEnumError("sort", raw, allowed)
}

func parseSortDirection(raw string) (SortDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allSortDirections {
		if normalized == string(candidate) {
			return candidate, nil
		}
	}
	allowed := make([]string, 0, len(allSortDirections))
	for _, value := range allSortDirections {
		allowed = append(allowed, string(value))
	}
	return "", newEnumError("dir", raw, allowed)
}

// applyFilters composes the query's predicates onto a tenant-scoped entry
// query. The tag filter matches live tags only, so joins to soft-deleted tags
// stay invisible here as everywhere else.
func (q ListQuery) applyFilters(tx *gorm.DB, userID string) *gorm.DB {
	if q.Search != "" {
		needle := "%" + strings.ToLower(q.Search) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(COALESCE(notes, '')) LIKE ?", needle, needle)
	}
	if q.Type != nil {
		tx = tx.Where("media_type = ?", *q.Type)
	}
	if q.SubType != nil {
		tx = tx.Where("sub_type = ?", *q.SubType)
	}
	if q.Status != nil {
		tx = tx.Where("status = ?", *q.Status)
	}
	if q.Tag != "" {
		tx = tx.Where(
			"id IN (SELECT entry_tags.entry_id FROM entry_tags JOIN tags ON tags.id = entry_tags.tag_id WHERE tags.user_id = ? AND tags.is_deleted = ? AND tags.name = ?)",
			userID, false, q.Tag,
		)
	}
	return tx
}

// orderClause renders the declared sort plus deterministic tie-breaks on
// (created_at, id) so pages do not drift when the sort key has duplicates.
// A rating sort keeps null ratings after every rated row in both directions.
func (q ListQuery) orderClause() string {
	direction := "ASC"
	if q.Direction == SortDescending {
		direction = "DESC"
	}

	var primary string
	switch q.Sort {
	case SortByTitle:
		primary = "LOWER(title) " + direction
	case SortByCreated:
		primary = "created_at " + direction
	case SortByRating:
		primary = "(rating IS NULL) ASC, rating " + direction
	default:
		primary = "updated_at " + direction
	}

	return primary + ", created_at ASC, id ASC"
}
