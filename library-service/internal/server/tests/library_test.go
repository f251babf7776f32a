package tests

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaliaz/library/library-service/internal/config"
	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/server"
	"github.com/azaliaz/library/library-service/internal/server/mocks"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

const bookID = "5d0a7f3e-1c2b-4f6a-9e2d-3b4c5d6e7f80"

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *mocks.MockLibrary) {
	ctrl := gomock.NewController(t)
	lib := mocks.NewMockLibrary(ctrl)
	return server.New(cfg, lib).Router(), lib
}

func do(t *testing.T, router http.Handler, method, target, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestServer_CreateBook(t *testing.T) {
	body := `{"title":"Dune","author":"Frank Herbert","genre":"FICTION","isbn":"978-0441013593","copies":3}`

	t.Run("success", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().CreateBook(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, in models.BookPatch) (models.Book, error) {
				require.NotNil(t, in.Copies)
				assert.Equal(t, 3, *in.Copies)
				return models.Book{BID: bookID, Title: *in.Title, Copies: 3, Available: true}, nil
			})

		w, env := do(t, router, http.MethodPost, "/api/books", body)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, env.Success)
		assert.Equal(t, "Book created successfully", env.Message)
		assert.Contains(t, string(env.Data), bookID)
	})

	t.Run("invalid genre", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().CreateBook(gomock.Any(), gomock.Any()).Return(models.Book{},
			errors.Join(storerrors.ErrInvalidGenre, storerrors.NewValidationError("genre", "POETRY is not valid genre")))

		w, env := do(t, router, http.MethodPost, "/api/books", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, env.Success)
		assert.Equal(t, "Invalid genre provided", env.Message)
		assert.Contains(t, string(env.Error), "FICTION, NON_FICTION")
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().CreateBook(gomock.Any(), gomock.Any()).Return(models.Book{}, storerrors.ErrDuplicateISBN)

		w, env := do(t, router, http.MethodPost, "/api/books", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Book with this ISBN already exists", env.Message)
	})

	t.Run("validation", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().CreateBook(gomock.Any(), gomock.Any()).
			Return(models.Book{}, storerrors.NewValidationError("title", "Title is required"))

		w, env := do(t, router, http.MethodPost, "/api/books", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Validation failed", env.Message)
		assert.JSONEq(t, `{"title":"Title is required"}`, string(env.Error))
	})

	t.Run("malformed body", func(t *testing.T) {
		router, _ := newRouter(t, config.Config{})
		w, env := do(t, router, http.MethodPost, "/api/books", `{"title":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, env.Success)
	})
}

func TestServer_ListBooks(t *testing.T) {
	t.Run("query parameters", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		want := models.BookQuery{Genre: models.Science, SortBy: "title", Ascending: true, Limit: 5}
		lib.EXPECT().ListBooks(gomock.Any(), want).Return([]models.Book{{Title: "Cosmos"}}, nil)

		w, env := do(t, router, http.MethodGet, "/api/books?filter=SCIENCE&sortBy=title&sort=asc&limit=5", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Books retrieved successfully", env.Message)
		assert.Contains(t, string(env.Data), "Cosmos")
	})

	t.Run("defaults", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		want := models.BookQuery{SortBy: "createdAt", Limit: 10}
		lib.EXPECT().ListBooks(gomock.Any(), want).Return([]models.Book{}, nil)

		w, env := do(t, router, http.MethodGet, "/api/books?limit=abc&filter=POETRY", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", string(env.Data))
	})

	t.Run("store error", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().ListBooks(gomock.Any(), gomock.Any()).Return(nil, errors.New("db error"))

		w, env := do(t, router, http.MethodGet, "/api/books", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.False(t, env.Success)
		assert.NotContains(t, w.Body.String(), "db error")
	})
}

func TestServer_GetBook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().GetBook(gomock.Any(), bookID).Return(models.Book{BID: bookID, Title: "Dune"}, nil)

		w, env := do(t, router, http.MethodGet, "/api/books/"+bookID, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Book retrieved successfully", env.Message)
	})

	t.Run("invalid id", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().GetBook(gomock.Any(), "42").Return(models.Book{}, storerrors.ErrInvalidID)

		w, env := do(t, router, http.MethodGet, "/api/books/42", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid book ID", env.Message)
	})

	t.Run("not found", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().GetBook(gomock.Any(), bookID).Return(models.Book{}, storerrors.ErrBookNotFound)

		w, env := do(t, router, http.MethodGet, "/api/books/"+bookID, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Book not found", env.Message)
	})
}

func TestServer_UpdateBook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().UpdateBook(gomock.Any(), bookID, gomock.Any()).DoAndReturn(
			func(_ any, _ string, patch models.BookPatch) (models.Book, error) {
				assert.Nil(t, patch.Title)
				require.NotNil(t, patch.Copies)
				return models.Book{BID: bookID, Copies: *patch.Copies}, nil
			})

		w, env := do(t, router, http.MethodPut, "/api/books/"+bookID, `{"copies":0}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Book updated successfully", env.Message)
		assert.Contains(t, string(env.Data), `"available":false`)
	})

	t.Run("validation", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().UpdateBook(gomock.Any(), bookID, gomock.Any()).
			Return(models.Book{}, storerrors.NewValidationError("copies", "Copies must be a positive number"))

		w, env := do(t, router, http.MethodPut, "/api/books/"+bookID, `{"copies":-1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Failed to update book", env.Message)
	})
}

func TestServer_DeleteBook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().DeleteBook(gomock.Any(), bookID).Return(nil)

		w, env := do(t, router, http.MethodDelete, "/api/books/"+bookID, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Book deleted successfully", env.Message)
		assert.Equal(t, "null", string(env.Data))
	})

	t.Run("not found", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().DeleteBook(gomock.Any(), bookID).Return(storerrors.ErrBookNotFound)

		w, _ := do(t, router, http.MethodDelete, "/api/books/"+bookID, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_BorrowBook(t *testing.T) {
	t.Run("success with plain date", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		due := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
		lib.EXPECT().Borrow(gomock.Any(), bookID, 2, due).
			Return(models.Borrow{ID: "b-1", BookID: bookID, Quantity: 2, DueDate: due}, nil)

		w, env := do(t, router, http.MethodPost, "/api/borrow",
			`{"book":"`+bookID+`","quantity":2,"dueDate":"2030-01-15"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "Book borrowed successfully", env.Message)
		assert.Contains(t, string(env.Data), `"book":"`+bookID+`"`)
	})

	t.Run("rfc3339 date", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().Borrow(gomock.Any(), bookID, 1, gomock.Any()).DoAndReturn(
			func(_ any, _ string, _ int, due time.Time) (models.Borrow, error) {
				assert.True(t, due.Equal(time.Date(2030, 1, 15, 10, 30, 0, 0, time.UTC)))
				return models.Borrow{}, nil
			})

		w, _ := do(t, router, http.MethodPost, "/api/borrow",
			`{"book":"`+bookID+`","quantity":1,"dueDate":"2030-01-15T12:30:00+02:00"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("unparseable date", func(t *testing.T) {
		router, _ := newRouter(t, config.Config{})
		w, env := do(t, router, http.MethodPost, "/api/borrow",
			`{"book":"`+bookID+`","quantity":1,"dueDate":"next week"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Failed to borrow book", env.Message)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().Borrow(gomock.Any(), bookID, 5, gomock.Any()).
			Return(models.Borrow{}, &storerrors.InsufficientStockError{Available: 2, Requested: 5})

		w, env := do(t, router, http.MethodPost, "/api/borrow",
			`{"book":"`+bookID+`","quantity":5,"dueDate":"2030-01-15"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Not enough copies available", env.Message)
		assert.Equal(t, `"Only 2 copies available, but 5 requested"`, string(env.Error))
	})

	t.Run("book not found", func(t *testing.T) {
		router, lib := newRouter(t, config.Config{})
		lib.EXPECT().Borrow(gomock.Any(), bookID, 1, gomock.Any()).
			Return(models.Borrow{}, storerrors.ErrBookNotFound)

		w, _ := do(t, router, http.MethodPost, "/api/borrow",
			`{"book":"`+bookID+`","quantity":1,"dueDate":"2030-01-15"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_BorrowSummary(t *testing.T) {
	router, lib := newRouter(t, config.Config{})
	lib.EXPECT().Summary(gomock.Any()).Return([]models.BorrowSummary{
		{Book: models.BookRef{Title: "Dune", ISBN: "978-0441013593"}, TotalQuantity: 5},
	}, nil)

	w, env := do(t, router, http.MethodGet, "/api/borrow", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Borrowed books summary retrieved successfully", env.Message)
	assert.JSONEq(t, `[{"book":{"title":"Dune","isbn":"978-0441013593"},"totalQuantity":5}]`, string(env.Data))
}

func TestServer_NotFound(t *testing.T) {
	router, _ := newRouter(t, config.Config{})

	w, env := do(t, router, http.MethodGet, "/api/authors", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Route /api/authors not found.", env.Message)
	assert.Equal(t, `"Not Found"`, string(env.Error))
}

func TestServer_Recovery(t *testing.T) {
	router, lib := newRouter(t, config.Config{})
	lib.EXPECT().Summary(gomock.Any()).DoAndReturn(func(any) ([]models.BorrowSummary, error) {
		panic("boom")
	})

	w, env := do(t, router, http.MethodGet, "/api/borrow", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Internal Server Error", env.Message)
}

func TestServer_Health(t *testing.T) {
	router, lib := newRouter(t, config.Config{})
	lib.EXPECT().Ping(gomock.Any()).Return(nil)
	w, _ := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	lib.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))
	w, _ = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_JWTGuard(t *testing.T) {
	const secret = "test-secret"
	sign := func(role string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, server.Claims{UserID: "u-1", Role: role})
		s, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return "Bearer " + s
	}

	router, lib := newRouter(t, config.Config{JWTSecret: secret})

	w, env := do(t, router, http.MethodDelete, "/api/books/"+bookID, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, router, http.MethodDelete, "/api/books/"+bookID, "", "Authorization", sign("user"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/api/books/"+bookID, "", "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	lib.EXPECT().DeleteBook(gomock.Any(), bookID).Return(nil)
	w, _ = do(t, router, http.MethodDelete, "/api/books/"+bookID, "", "Authorization", sign("admin"))
	assert.Equal(t, http.StatusOK, w.Code)

	lib.EXPECT().GetBook(gomock.Any(), bookID).Return(models.Book{BID: bookID}, nil)
	w, _ = do(t, router, http.MethodGet, "/api/books/"+bookID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RateLimit(t *testing.T) {
	router, lib := newRouter(t, config.Config{RateLimit: 1, RateBurst: 2})
	lib.EXPECT().Summary(gomock.Any()).Return([]models.BorrowSummary{}, nil).Times(2)

	for range 2 {
		w, _ := do(t, router, http.MethodGet, "/api/borrow", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w, env := do(t, router, http.MethodGet, "/api/borrow", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests", env.Message)
}

func TestServer_RequestID(t *testing.T) {
	router, lib := newRouter(t, config.Config{})
	lib.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)

	w, _ := do(t, router, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = do(t, router, http.MethodGet, "/health", "", "X-Request-ID", "abc")
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}
