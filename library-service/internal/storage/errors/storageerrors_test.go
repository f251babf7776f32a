package storerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"title":  "Title is required",
		"copies": "Copies must be a positive number",
	}}
	assert.Equal(t, "validation failed: copies: Copies must be a positive number; title: Title is required", err.Error())
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, fmt.Errorf("create: %w", err), ErrValidation)
	assert.NotErrorIs(t, err, ErrInsufficientStock)

	var target *ValidationError
	assert.True(t, errors.As(fmt.Errorf("%w: %w", ErrInvalidGenre, NewValidationError("genre", "x")), &target))
	assert.Equal(t, "x", target.Fields["genre"])
}

func TestInsufficientStockError(t *testing.T) {
	err := error(&InsufficientStockError{Available: 1, Requested: 2})
	assert.Equal(t, "Only 1 copies available, but 2 requested", err.Error())
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrValidation)
}
