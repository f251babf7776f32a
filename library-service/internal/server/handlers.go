package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azaliaz/library/library-service/internal/domain/models"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

const dateOnly = "2006-01-02"

type borrowRequest struct {
	Book     string `json:"book"`
	Quantity int    `json:"quantity"`
	DueDate  string `json:"dueDate"`
}

// parseDueDate accepts RFC 3339 timestamps and plain dates.
func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, storerrors.NewValidationError("dueDate", "Due date must be a valid date")
	}
	return t, nil
}

func (s *Server) CreateBook(ctx *gin.Context) {
	var in models.BookPatch
	if err := ctx.ShouldBindJSON(&in); err != nil {
		respondError(ctx, http.StatusBadRequest, "Validation failed", "Request body must be a valid JSON book")
		return
	}

	book, err := s.Library.CreateBook(ctx.Request.Context(), in)
	if err != nil {
		handleError(ctx, err, "Validation failed")
		return
	}
	respond(ctx, http.StatusCreated, "Book created successfully", book)
}

func (s *Server) ListBooks(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil {
		limit = 0
	}
	q := models.NewBookQuery(ctx.Query("filter"), ctx.Query("sortBy"), ctx.DefaultQuery("sort", "desc"), limit)

	books, err := s.Library.ListBooks(ctx.Request.Context(), q)
	if err != nil {
		handleError(ctx, err, "Failed to retrieve books")
		return
	}
	respond(ctx, http.StatusOK, "Books retrieved successfully", books)
}

func (s *Server) GetBook(ctx *gin.Context) {
	book, err := s.Library.GetBook(ctx.Request.Context(), ctx.Param("bookId"))
	if err != nil {
		handleError(ctx, err, "Failed to retrieve book")
		return
	}
	respond(ctx, http.StatusOK, "Book retrieved successfully", book)
}

func (s *Server) UpdateBook(ctx *gin.Context) {
	var patch models.BookPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		respondError(ctx, http.StatusBadRequest, "Failed to update book", "Request body must be a valid JSON book")
		return
	}

	book, err := s.Library.UpdateBook(ctx.Request.Context(), ctx.Param("bookId"), patch)
	if err != nil {
		handleError(ctx, err, "Failed to update book")
		return
	}
	respond(ctx, http.StatusOK, "Book updated successfully", book)
}

func (s *Server) DeleteBook(ctx *gin.Context) {
	if err := s.Library.DeleteBook(ctx.Request.Context(), ctx.Param("bookId")); err != nil {
		handleError(ctx, err, "Failed to delete book")
		return
	}
	respond(ctx, http.StatusOK, "Book deleted successfully", nil)
}

func (s *Server) BorrowBook(ctx *gin.Context) {
	var req borrowRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, http.StatusBadRequest, "Failed to borrow book", "Request body must be a valid JSON borrow")
		return
	}

	var due time.Time
	if req.DueDate != "" {
		parsed, err := parseDueDate(req.DueDate)
		if err != nil {
			handleError(ctx, err, "Failed to borrow book")
			return
		}
		due = parsed
	}

	borrow, err := s.Library.Borrow(ctx.Request.Context(), req.Book, req.Quantity, due)
	if err != nil {
		handleError(ctx, err, "Failed to borrow book")
		return
	}
	respond(ctx, http.StatusCreated, "Book borrowed successfully", borrow)
}

func (s *Server) BorrowSummary(ctx *gin.Context) {
	summary, err := s.Library.Summary(ctx.Request.Context())
	if err != nil {
		handleError(ctx, err, "Failed to retrieve summary")
		return
	}
	respond(ctx, http.StatusOK, "Borrowed books summary retrieved successfully", summary)
}

func (s *Server) Health(ctx *gin.Context) {
	if err := s.Library.Ping(ctx.Request.Context()); err != nil {
		respondError(ctx, http.StatusServiceUnavailable, "Storage unavailable", err.Error())
		return
	}
	respond(ctx, http.StatusOK, "OK", gin.H{"status": "up"})
}

func (s *Server) NotFound(ctx *gin.Context) {
	respondError(ctx, http.StatusBadRequest, "Route "+ctx.Request.URL.String()+" not found.", "Not Found")
}
