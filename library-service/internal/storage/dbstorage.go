package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azaliaz/library/library-service/internal/domain/consts"
	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/logger"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

const (
	dialectPostgres = "postgres"
	tableBooks      = "books"
)

const bookColumns = `id::text, title, author, genre, isbn, description, copies, available, version, created_at, updated_at`

const (
	selectBook          = `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	selectBookForUpdate = selectBook + ` FOR UPDATE`

	insertBook = `
		INSERT INTO books (id, title, author, genre, isbn, description, copies, available, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		RETURNING version, created_at, updated_at`

	updateBook = `
		UPDATE books
		SET title = $2, author = $3, genre = $4, isbn = $5, description = $6,
			copies = $7, available = $8, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING version, updated_at`

	insertBorrow = `
		INSERT INTO borrows (id, book_id, quantity, due_date)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	summarizeBorrows = `
		SELECT b.title, b.isbn, s.total_quantity
		FROM (
			SELECT book_id, SUM(quantity)::bigint AS total_quantity, MIN(created_at) AS first_borrowed
			FROM borrows
			GROUP BY book_id
		) s
		JOIN books b ON b.id = s.book_id
		ORDER BY s.total_quantity DESC, s.first_borrowed ASC`
)

type DBStorage struct {
	pool *pgxpool.Pool
}

func NewDB(ctx context.Context, addr string) (*DBStorage, error) {
	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DBStorage{pool: pool}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (models.Book, error) {
	var book models.Book
	err := row.Scan(&book.BID, &book.Title, &book.Author, &book.Genre, &book.ISBN, &book.Description,
		&book.Copies, &book.Available, &book.Version, &book.CreatedAt, &book.UpdatedAt)
	return book, err
}

func (dbs *DBStorage) SaveBook(ctx context.Context, book *models.Book) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	book.BID = uuid.New().String()
	book.SyncAvailability()
	err := dbs.pool.QueryRow(ctx, insertBook,
		book.BID, book.Title, book.Author, book.Genre, book.ISBN, book.Description, book.Copies, book.Available,
	).Scan(&book.Version, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Msg("save book failed")
		return translate(err)
	}
	log.Debug().Str("bid", book.BID).Int("copies", book.Copies).Msg("book saved")
	return nil
}

func (dbs *DBStorage) GetBooks(ctx context.Context, q models.BookQuery) ([]models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	q = q.Normalize()
	query, args, err := buildListQuery(q)
	if err != nil {
		log.Error().Err(err).Msg("failed to build books query")
		return nil, err
	}

	rows, err := dbs.pool.Query(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Msg("failed get books from db")
		return nil, translate(err)
	}
	defer rows.Close()

	books := make([]models.Book, 0, q.Limit)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			log.Error().Err(err).Msg("failed to scan data from db")
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func buildListQuery(q models.BookQuery) (string, []any, error) {
	q = q.Normalize()

	order := goqu.I(q.SortColumn()).Desc()
	if q.Ascending {
		order = goqu.I(q.SortColumn()).Asc()
	}

	ds := goqu.Dialect(dialectPostgres).
		From(tableBooks).
		Select(
			goqu.L("id::text"), goqu.C("title"), goqu.C("author"), goqu.C("genre"), goqu.C("isbn"),
			goqu.C("description"), goqu.C("copies"), goqu.C("available"), goqu.C("version"),
			goqu.C("created_at"), goqu.C("updated_at"),
		).
		Order(order, goqu.I("id").Asc()).
		Limit(uint(q.Limit))
	if q.Genre != "" {
		ds = ds.Where(goqu.C("genre").Eq(string(q.Genre)))
	}
	return ds.Prepared(true).ToSQL()
}

func (dbs *DBStorage) GetBook(ctx context.Context, bid string) (models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	book, err := scanBook(dbs.pool.QueryRow(ctx, selectBook, bid))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Error().Err(err).Msg("failed to scan data from db")
		}
		return models.Book{}, translate(err)
	}
	return book, nil
}

// UpdateBook holds the row lock while mutate runs, so the change is applied
// to the latest committed state of the book.
func (dbs *DBStorage) UpdateBook(ctx context.Context, bid string, mutate func(*models.Book) error) (models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	var book models.Book
	err := dbs.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if book, err = scanBook(tx.QueryRow(ctx, selectBookForUpdate, bid)); err != nil {
			return err
		}
		if err = mutate(&book); err != nil {
			return err
		}
		book.BID = bid
		book.SyncAvailability()
		return writeBook(ctx, tx, &book)
	})
	if err != nil {
		log.Error().Err(err).Str("bid", bid).Msg("update book failed")
		return models.Book{}, translate(err)
	}
	log.Debug().Str("bid", bid).Int("copies", book.Copies).Msg("book updated")
	return book, nil
}

func writeBook(ctx context.Context, tx pgx.Tx, book *models.Book) error {
	return tx.QueryRow(ctx, updateBook,
		book.BID, book.Title, book.Author, book.Genre, book.ISBN, book.Description, book.Copies, book.Available,
	).Scan(&book.Version, &book.UpdatedAt)
}

func (dbs *DBStorage) DeleteBook(ctx context.Context, bid string) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	res, err := dbs.pool.Exec(ctx, "DELETE FROM books WHERE id = $1", bid)
	if err != nil {
		log.Error().Err(err).Msg("failed to delete book")
		return translate(err)
	}
	if res.RowsAffected() == 0 {
		log.Warn().Str("bid", bid).Msg("book not found")
		return storerrors.ErrBookNotFound
	}
	log.Info().Str("bid", bid).Msg("book deleted successfully")
	return nil
}

// SaveBorrow locks the book row, takes the copies and inserts the borrow in
// one transaction. Concurrent borrows of the same book queue on the lock.
func (dbs *DBStorage) SaveBorrow(ctx context.Context, borrow *models.Borrow) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	err := dbs.inTx(ctx, func(tx pgx.Tx) error {
		book, err := scanBook(tx.QueryRow(ctx, selectBookForUpdate, borrow.BookID))
		if err != nil {
			return err
		}
		if err = book.Lend(borrow.Quantity); err != nil {
			return err
		}
		if err = writeBook(ctx, tx, &book); err != nil {
			return err
		}

		borrow.ID = uuid.New().String()
		return tx.QueryRow(ctx, insertBorrow, borrow.ID, borrow.BookID, borrow.Quantity, borrow.DueDate).
			Scan(&borrow.CreatedAt, &borrow.UpdatedAt)
	})
	if err != nil {
		log.Error().Err(err).Str("bid", borrow.BookID).Msg("borrow failed")
		return translate(err)
	}
	log.Debug().Str("bid", borrow.BookID).Int("quantity", borrow.Quantity).Msg("borrow record created")
	return nil
}

func (dbs *DBStorage) BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	rows, err := dbs.pool.Query(ctx, summarizeBorrows)
	if err != nil {
		log.Error().Err(err).Msg("failed to summarize borrows")
		return nil, err
	}
	defer rows.Close()

	summary := make([]models.BorrowSummary, 0)
	for rows.Next() {
		var row models.BorrowSummary
		if err := rows.Scan(&row.Book.Title, &row.Book.ISBN, &row.TotalQuantity); err != nil {
			log.Error().Err(err).Msg("failed to scan data from db")
			return nil, err
		}
		summary = append(summary, row)
	}
	return summary, rows.Err()
}

func (dbs *DBStorage) Ping(ctx context.Context) error {
	return dbs.pool.Ping(ctx)
}

func (dbs *DBStorage) Close() error {
	dbs.pool.Close()
	return nil
}

func (dbs *DBStorage) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := dbs.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// translate maps driver errors onto the storage error taxonomy.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storerrors.ErrBookNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", storerrors.ErrDuplicateISBN, pgErr.Detail)
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			field := pgErr.ColumnName
			if field == "" {
				field = pgErr.ConstraintName
			}
			return storerrors.NewValidationError(field, pgErr.Message)
		case pgerrcode.InvalidTextRepresentation:
			return fmt.Errorf("%w: %s", storerrors.ErrInvalidID, pgErr.Message)
		}
	}
	return err
}

func Migrations(dbDsn string, migrationsPath string) error {
	log := logger.Get()
	migratePath := fmt.Sprintf("file://%s", migrationsPath)
	m, err := migrate.New(migratePath, dbDsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no migrations apply")
			return nil
		}
		return err
	}
	log.Info().Msg("all migrations apply")
	return nil
}
