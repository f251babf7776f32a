package storerrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidID         = errors.New("invalid id format")
	ErrInvalidGenre      = errors.New("invalid genre")
	ErrBookNotFound      = errors.New("book not found")
	ErrDuplicateISBN     = errors.New("book with this isbn already exists")
	ErrInsufficientStock = errors.New("not enough copies available")
	ErrVersionConflict   = errors.New("book was modified concurrently")
)

// ValidationError carries the field-level reasons a write was rejected.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientStockError reports how many copies were on the shelf when a borrow was refused.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Only %d copies available, but %d requested", e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
