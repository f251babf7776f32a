package models

import (
	"strings"
	"time"

	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

type Genre string

const (
	Fiction    Genre = "FICTION"
	NonFiction Genre = "NON_FICTION"
	Biography  Genre = "BIOGRAPHY"
	Science    Genre = "SCIENCE"
	History    Genre = "HISTORY"
	Fantasy    Genre = "FANTASY"
)

var genres = []Genre{Fiction, NonFiction, Biography, Science, History, Fantasy}

func Genres() []Genre {
	out := make([]Genre, len(genres))
	copy(out, genres)
	return out
}

func (g Genre) Valid() bool {
	for _, known := range genres {
		if g == known {
			return true
		}
	}
	return false
}

// GenreList renders the accepted genres the way they are reported back to clients.
func GenreList() string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		names = append(names, string(g))
	}
	return strings.Join(names, ", ")
}

type Book struct {
	BID         string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title" validate:"required"`
	Author      string    `json:"author" bson:"author" validate:"required"`
	Genre       Genre     `json:"genre" bson:"genre" validate:"required,genre"`
	ISBN        string    `json:"isbn" bson:"isbn" validate:"required"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Copies      int       `json:"copies" bson:"copies" validate:"gte=0"`
	Available   bool      `json:"available" bson:"available"`
	Version     int64     `json:"-" bson:"version"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SyncAvailability must run right before a book is persisted.
func (b *Book) SyncAvailability() {
	b.Available = b.Copies > 0
}

// Lend takes quantity copies off the shelf or reports how many are left.
func (b *Book) Lend(quantity int) error {
	if b.Copies < quantity {
		return &storerrors.InsufficientStockError{Available: b.Copies, Requested: quantity}
	}
	b.Copies -= quantity
	b.SyncAvailability()
	return nil
}

// BookPatch holds the client-supplied fields of a create or update request.
// Nil fields are left untouched by Apply.
type BookPatch struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *Genre  `json:"genre"`
	ISBN        *string `json:"isbn"`
	Description *string `json:"description"`
	Copies      *int    `json:"copies"`
}

func (p BookPatch) Apply(b *Book) {
	if p.Title != nil {
		b.Title = strings.TrimSpace(*p.Title)
	}
	if p.Author != nil {
		b.Author = strings.TrimSpace(*p.Author)
	}
	if p.Genre != nil {
		b.Genre = *p.Genre
	}
	if p.ISBN != nil {
		b.ISBN = strings.TrimSpace(*p.ISBN)
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Copies != nil {
		b.Copies = *p.Copies
	}
}
