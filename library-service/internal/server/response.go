package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/logger"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   any    `json:"error"`
}

func respond(ctx *gin.Context, status int, message string, data any) {
	ctx.JSON(status, successResponse{Success: true, Message: message, Data: data})
}

func respondError(ctx *gin.Context, status int, message string, detail any) {
	ctx.JSON(status, errorResponse{Success: false, Message: message, Error: detail})
}

func abortWithError(ctx *gin.Context, status int, message string, detail any) {
	ctx.AbortWithStatusJSON(status, errorResponse{Success: false, Message: message, Error: detail})
}

// handleError maps a service error to its envelope. validationMsg is the
// message used for validation failures of the calling handler.
func handleError(ctx *gin.Context, err error, validationMsg string) {
	var (
		stockErr *storerrors.InsufficientStockError
		verr     *storerrors.ValidationError
	)
	switch {
	case errors.Is(err, storerrors.ErrInvalidID):
		respondError(ctx, http.StatusBadRequest, "Invalid book ID", "Book ID must be a valid UUID")
	case errors.Is(err, storerrors.ErrBookNotFound):
		respondError(ctx, http.StatusNotFound, "Book not found", "No book found with the provided ID")
	case errors.Is(err, storerrors.ErrInvalidGenre):
		respondError(ctx, http.StatusBadRequest, "Invalid genre provided",
			"Genre must be one of: "+models.GenreList())
	case errors.Is(err, storerrors.ErrDuplicateISBN):
		respondError(ctx, http.StatusBadRequest, "Book with this ISBN already exists", "Duplicate ISBN")
	case errors.As(err, &stockErr):
		respondError(ctx, http.StatusBadRequest, "Not enough copies available", stockErr.Error())
	case errors.As(err, &verr):
		respondError(ctx, http.StatusBadRequest, validationMsg, verr.Fields)
	default:
		logger.Get().Error().Err(err).Str("request_id", ctx.GetString(ctxRequestID)).
			Str("path", ctx.Request.URL.Path).Msg("request failed")
		respondError(ctx, http.StatusInternalServerError, "Internal Server Error", "Something went wrong")
	}
}
