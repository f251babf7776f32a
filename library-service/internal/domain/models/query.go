package models

import (
	"strings"

	"github.com/azaliaz/library/library-service/internal/domain/consts"
)

const defaultSortBy = "createdAt"

// sortable maps the public field names accepted in ?sortBy= to table columns.
var sortable = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"author":    "author",
	"genre":     "genre",
	"isbn":      "isbn",
	"copies":    "copies",
	"available": "available",
}

type BookQuery struct {
	Genre     Genre
	SortBy    string
	Ascending bool
	Limit     int
}

// NewBookQuery builds a query from raw request values, falling back to the
// defaults for anything it does not recognise.
func NewBookQuery(filter, sortBy, direction string, limit int) BookQuery {
	q := BookQuery{
		SortBy:    sortBy,
		Ascending: strings.EqualFold(direction, "asc"),
		Limit:     limit,
	}
	if g := Genre(filter); g.Valid() {
		q.Genre = g
	}
	return q.Normalize()
}

func (q BookQuery) Normalize() BookQuery {
	if _, ok := sortable[q.SortBy]; !ok {
		q.SortBy = defaultSortBy
	}
	if !q.Genre.Valid() {
		q.Genre = ""
	}
	if q.Limit <= 0 {
		q.Limit = consts.DefaultListLimit
	}
	return q
}

// SortColumn is the table column for q.SortBy.
func (q BookQuery) SortColumn() string {
	if col, ok := sortable[q.SortBy]; ok {
		return col
	}
	return sortable[defaultSortBy]
}

// Less orders a before b according to q.SortBy and q.Ascending.
func (q BookQuery) Less(a, b Book) bool {
	var less, equal bool
	switch q.SortBy {
	case "title":
		less, equal = a.Title < b.Title, a.Title == b.Title
	case "author":
		less, equal = a.Author < b.Author, a.Author == b.Author
	case "genre":
		less, equal = a.Genre < b.Genre, a.Genre == b.Genre
	case "isbn":
		less, equal = a.ISBN < b.ISBN, a.ISBN == b.ISBN
	case "copies":
		less, equal = a.Copies < b.Copies, a.Copies == b.Copies
	case "available":
		less, equal = !a.Available && b.Available, a.Available == b.Available
	case "updatedAt":
		less, equal = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	default:
		less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
	if equal {
		return false
	}
	if q.Ascending {
		return less
	}
	return !less
}

func (q BookQuery) Match(b Book) bool {
	return q.Genre == "" || b.Genre == q.Genre
}
