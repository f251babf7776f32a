package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/logger"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

// MemStorage keeps everything in process memory. A single mutex serialises
// writers, which is what keeps concurrent borrows from over-committing a book.
type MemStorage struct {
	mu         sync.RWMutex
	bookStor   map[string]models.Book
	borrowStor []models.Borrow
	now        func() time.Time
}

func New() *MemStorage {
	return &MemStorage{
		bookStor: make(map[string]models.Book),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (ms *MemStorage) SaveBook(_ context.Context, book *models.Book) error {
	log := logger.Get()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.isbnTaken(book.ISBN, "") {
		return storerrors.ErrDuplicateISBN
	}

	now := ms.now()
	book.BID = uuid.New().String()
	book.Version = 1
	book.CreatedAt = now
	book.UpdatedAt = now
	book.SyncAvailability()
	ms.bookStor[book.BID] = *book

	log.Debug().Str("bid", book.BID).Int("copies", book.Copies).Msg("book saved")
	return nil
}

func (ms *MemStorage) GetBooks(_ context.Context, q models.BookQuery) ([]models.Book, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	q = q.Normalize()
	books := make([]models.Book, 0, len(ms.bookStor))
	for _, book := range ms.bookStor {
		if q.Match(book) {
			books = append(books, book)
		}
	}
	sort.SliceStable(books, func(i, j int) bool {
		if q.Less(books[i], books[j]) {
			return true
		}
		if q.Less(books[j], books[i]) {
			return false
		}
		return books[i].BID < books[j].BID
	})
	if len(books) > q.Limit {
		books = books[:q.Limit]
	}
	return books, nil
}

func (ms *MemStorage) GetBook(_ context.Context, bid string) (models.Book, error) {
	log := logger.Get()
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	book, ok := ms.bookStor[bid]
	if !ok {
		log.Debug().Str("bid", bid).Msg("book not found")
		return models.Book{}, storerrors.ErrBookNotFound
	}
	return book, nil
}

func (ms *MemStorage) UpdateBook(_ context.Context, bid string, mutate func(*models.Book) error) (models.Book, error) {
	log := logger.Get()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	book, ok := ms.bookStor[bid]
	if !ok {
		return models.Book{}, storerrors.ErrBookNotFound
	}
	if err := mutate(&book); err != nil {
		return models.Book{}, err
	}
	if ms.isbnTaken(book.ISBN, bid) {
		return models.Book{}, storerrors.ErrDuplicateISBN
	}

	book.BID = bid
	book.Version++
	book.UpdatedAt = ms.now()
	book.SyncAvailability()
	ms.bookStor[bid] = book

	log.Debug().Str("bid", bid).Int("copies", book.Copies).Msg("book updated")
	return book, nil
}

func (ms *MemStorage) DeleteBook(_ context.Context, bid string) error {
	log := logger.Get()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.bookStor[bid]; !exists {
		log.Warn().Str("bid", bid).Msg("book not found")
		return storerrors.ErrBookNotFound
	}
	delete(ms.bookStor, bid)
	log.Info().Str("bid", bid).Msg("book deleted successfully")
	return nil
}

// SaveBorrow takes the copies off the book and records the borrow as one step.
func (ms *MemStorage) SaveBorrow(_ context.Context, borrow *models.Borrow) error {
	log := logger.Get()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	book, ok := ms.bookStor[borrow.BookID]
	if !ok {
		return storerrors.ErrBookNotFound
	}
	if err := book.Lend(borrow.Quantity); err != nil {
		return err
	}

	now := ms.now()
	book.Version++
	book.UpdatedAt = now
	ms.bookStor[book.BID] = book

	borrow.ID = uuid.New().String()
	borrow.CreatedAt = now
	borrow.UpdatedAt = now
	ms.borrowStor = append(ms.borrowStor, *borrow)

	log.Debug().Str("bid", book.BID).Int("quantity", borrow.Quantity).Msg("borrow record created")
	return nil
}

func (ms *MemStorage) BorrowSummary(_ context.Context) ([]models.BorrowSummary, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return models.Summarize(ms.borrowStor, ms.bookStor), nil
}

func (ms *MemStorage) Ping(_ context.Context) error { return nil }

func (ms *MemStorage) Close() error { return nil }

func (ms *MemStorage) isbnTaken(isbn, except string) bool {
	for bid, book := range ms.bookStor {
		if bid != except && book.ISBN == isbn {
			return true
		}
	}
	return false
}
