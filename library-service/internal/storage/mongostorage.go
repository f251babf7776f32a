package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/azaliaz/library/library-service/internal/domain/consts"
	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/logger"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

const (
	collBooks   = "books"
	collBorrows = "borrows"
)

// MongoStorage needs a replica set: borrows run inside multi-document transactions.
type MongoStorage struct {
	client  *mongo.Client
	books   *mongo.Collection
	borrows *mongo.Collection
}

func NewMongo(ctx context.Context, uri, dbName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(dbName)
	ms := &MongoStorage{
		client:  client,
		books:   db.Collection(collBooks),
		borrows: db.Collection(collBorrows),
	}
	if err := ms.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return ms, nil
}

func (ms *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := ms.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "isbn", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "genre", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = ms.borrows.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "book", Value: 1}}})
	return err
}

func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (ms *MongoStorage) SaveBook(ctx context.Context, book *models.Book) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	now := mongoNow()
	book.BID = uuid.New().String()
	book.Version = 1
	book.CreatedAt = now
	book.UpdatedAt = now
	book.SyncAvailability()

	if _, err := ms.books.InsertOne(ctx, book); err != nil {
		log.Error().Err(err).Msg("save book failed")
		return translateMongo(err)
	}
	log.Debug().Str("bid", book.BID).Int("copies", book.Copies).Msg("book saved")
	return nil
}

func (ms *MongoStorage) GetBooks(ctx context.Context, q models.BookQuery) ([]models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	q = q.Normalize()
	filter := bson.D{}
	if q.Genre != "" {
		filter = bson.D{{Key: "genre", Value: q.Genre}}
	}
	direction := -1
	if q.Ascending {
		direction = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: q.SortBy, Value: direction}, {Key: "_id", Value: 1}}).
		SetLimit(int64(q.Limit))

	cur, err := ms.books.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Msg("failed get books from db")
		return nil, err
	}
	books := make([]models.Book, 0, q.Limit)
	if err := cur.All(ctx, &books); err != nil {
		log.Error().Err(err).Msg("failed to decode books")
		return nil, err
	}
	return books, nil
}

func (ms *MongoStorage) GetBook(ctx context.Context, bid string) (models.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()
	return ms.findBook(ctx, bid)
}

func (ms *MongoStorage) findBook(ctx context.Context, bid string) (models.Book, error) {
	var book models.Book
	if err := ms.books.FindOne(ctx, bson.M{"_id": bid}).Decode(&book); err != nil {
		return models.Book{}, translateMongo(err)
	}
	return book, nil
}

// UpdateBook replaces the document only if nobody bumped its version since it
// was read, and starts over when somebody did.
func (ms *MongoStorage) UpdateBook(ctx context.Context, bid string, mutate func(*models.Book) error) (models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	var book models.Book
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		var err error
		if book, err = ms.findBook(ctx, bid); err != nil {
			return err
		}
		version := book.Version
		if err = mutate(&book); err != nil {
			return err
		}
		book.BID = bid
		book.Version = version + 1
		book.UpdatedAt = mongoNow()
		book.SyncAvailability()

		res, err := ms.books.ReplaceOne(ctx, bson.M{"_id": bid, "version": version}, book)
		if err != nil {
			return translateMongo(err)
		}
		if res.MatchedCount == 0 {
			return storerrors.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("bid", bid).Msg("update book failed")
		return models.Book{}, err
	}
	log.Debug().Str("bid", bid).Int("copies", book.Copies).Msg("book updated")
	return book, nil
}

func (ms *MongoStorage) DeleteBook(ctx context.Context, bid string) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	res, err := ms.books.DeleteOne(ctx, bson.M{"_id": bid})
	if err != nil {
		log.Error().Err(err).Msg("failed to delete book")
		return err
	}
	if res.DeletedCount == 0 {
		log.Warn().Str("bid", bid).Msg("book not found")
		return storerrors.ErrBookNotFound
	}
	log.Info().Str("bid", bid).Msg("book deleted successfully")
	return nil
}

// SaveBorrow decrements the book and inserts the borrow in one transaction.
// The version guard turns a lost update into a retry instead of an over-commit.
func (ms *MongoStorage) SaveBorrow(ctx context.Context, borrow *models.Borrow) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	sess, err := ms.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	err = retryOnConflict(ctx, func(ctx context.Context) error {
		_, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			book, err := ms.findBook(sc, borrow.BookID)
			if err != nil {
				return nil, err
			}
			version := book.Version
			if err = book.Lend(borrow.Quantity); err != nil {
				return nil, err
			}

			now := mongoNow()
			res, err := ms.books.UpdateOne(sc,
				bson.M{"_id": book.BID, "version": version},
				bson.M{"$set": bson.M{
					"copies":    book.Copies,
					"available": book.Available,
					"updatedAt": now,
					"version":   version + 1,
				}},
			)
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, storerrors.ErrVersionConflict
			}

			borrow.ID = uuid.New().String()
			borrow.CreatedAt = now
			borrow.UpdatedAt = now
			_, err = ms.borrows.InsertOne(sc, borrow)
			return nil, err
		})
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("bid", borrow.BookID).Msg("borrow failed")
		return err
	}
	log.Debug().Str("bid", borrow.BookID).Int("quantity", borrow.Quantity).Msg("borrow record created")
	return nil
}

func (ms *MongoStorage) BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$book"},
			{Key: "totalQuantity", Value: bson.D{{Key: "$sum", Value: "$quantity"}}},
			{Key: "firstBorrowed", Value: bson.D{{Key: "$min", Value: "$createdAt"}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: collBooks},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "bookDetails"},
		}}},
		{{Key: "$unwind", Value: "$bookDetails"}},
		{{Key: "$sort", Value: bson.D{
			{Key: "totalQuantity", Value: -1},
			{Key: "firstBorrowed", Value: 1},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "book", Value: bson.D{
				{Key: "title", Value: "$bookDetails.title"},
				{Key: "isbn", Value: "$bookDetails.isbn"},
			}},
			{Key: "totalQuantity", Value: 1},
		}}},
	}

	cur, err := ms.borrows.Aggregate(ctx, pipeline)
	if err != nil {
		log.Error().Err(err).Msg("failed to summarize borrows")
		return nil, err
	}
	summary := make([]models.BorrowSummary, 0)
	if err := cur.All(ctx, &summary); err != nil {
		log.Error().Err(err).Msg("failed to decode borrow summary")
		return nil, err
	}
	return summary, nil
}

func (ms *MongoStorage) Ping(ctx context.Context) error {
	return ms.client.Ping(ctx, nil)
}

func (ms *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), consts.DBCtxTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func translateMongo(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return storerrors.ErrBookNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", storerrors.ErrDuplicateISBN, err.Error())
	default:
		return err
	}
}
