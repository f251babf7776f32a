package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/logger"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

//go:generate mockgen -source=service.go -destination=./mocks/storage_mock.go -package=mocks
type Storage interface {
	SaveBook(ctx context.Context, book *models.Book) error
	GetBooks(ctx context.Context, q models.BookQuery) ([]models.Book, error)
	GetBook(ctx context.Context, bid string) (models.Book, error)
	// UpdateBook runs mutate against the current book under the store's write lock.
	UpdateBook(ctx context.Context, bid string, mutate func(*models.Book) error) (models.Book, error)
	DeleteBook(ctx context.Context, bid string) error
	// SaveBorrow lends borrow.Quantity copies of borrow.BookID and records the
	// borrow atomically. Nothing is written when the book is short of copies.
	SaveBorrow(ctx context.Context, borrow *models.Borrow) error
	BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error)
	Ping(ctx context.Context) error
}

type Library struct {
	stor  Storage
	valid *validator.Validate
	now   func() time.Time
}

type Option func(*Library)

// WithClock replaces the clock used for due date checks.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

func New(stor Storage, opts ...Option) *Library {
	l := &Library{
		stor:  stor,
		valid: newValidator(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) CreateBook(ctx context.Context, in models.BookPatch) (models.Book, error) {
	if in.Genre == nil || !in.Genre.Valid() {
		var got any
		if in.Genre != nil {
			got = *in.Genre
		}
		return models.Book{}, fmt.Errorf("%w: %w", storerrors.ErrInvalidGenre,
			storerrors.NewValidationError("genre", fmt.Sprintf("%v is not valid genre", got)))
	}

	var book models.Book
	in.Apply(&book)
	if err := l.validate(book); err != nil {
		return models.Book{}, err
	}
	if in.Copies == nil {
		return models.Book{}, storerrors.NewValidationError("copies", "At least one book copy needed")
	}

	if err := l.stor.SaveBook(ctx, &book); err != nil {
		return models.Book{}, err
	}
	logger.Get().Info().Str("bid", book.BID).Str("title", book.Title).Int("copies", book.Copies).
		Msg("book has been saved")
	return book, nil
}

func (l *Library) ListBooks(ctx context.Context, q models.BookQuery) ([]models.Book, error) {
	return l.stor.GetBooks(ctx, q.Normalize())
}

func (l *Library) GetBook(ctx context.Context, bid string) (models.Book, error) {
	bid, err := parseID(bid)
	if err != nil {
		return models.Book{}, err
	}
	return l.stor.GetBook(ctx, bid)
}

func (l *Library) UpdateBook(ctx context.Context, bid string, patch models.BookPatch) (models.Book, error) {
	bid, err := parseID(bid)
	if err != nil {
		return models.Book{}, err
	}
	return l.stor.UpdateBook(ctx, bid, func(book *models.Book) error {
		patch.Apply(book)
		return l.validate(*book)
	})
}

func (l *Library) DeleteBook(ctx context.Context, bid string) error {
	bid, err := parseID(bid)
	if err != nil {
		return err
	}
	return l.stor.DeleteBook(ctx, bid)
}

// Borrow lends quantity copies of a book until dueDate.
func (l *Library) Borrow(ctx context.Context, bookID string, quantity int, dueDate time.Time) (models.Borrow, error) {
	bookID, err := parseID(bookID)
	if err != nil {
		return models.Borrow{}, err
	}

	borrow := models.Borrow{BookID: bookID, Quantity: quantity, DueDate: dueDate.UTC()}
	if err := l.validateBorrow(borrow); err != nil {
		return models.Borrow{}, err
	}
	if err := l.stor.SaveBorrow(ctx, &borrow); err != nil {
		return models.Borrow{}, err
	}
	logger.Get().Info().Str("bid", borrow.BookID).Int("quantity", borrow.Quantity).
		Msg("borrow record created")
	return borrow, nil
}

func (l *Library) Summary(ctx context.Context) ([]models.BorrowSummary, error) {
	return l.stor.BorrowSummary(ctx)
}

func (l *Library) Ping(ctx context.Context) error {
	return l.stor.Ping(ctx)
}

func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", storerrors.ErrInvalidID, id)
	}
	return parsed.String(), nil
}
