package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/azaliaz/library/library-service/internal/domain/models"
	storerrors "github.com/azaliaz/library/library-service/internal/storage/errors"
)

// messages are keyed by "<json field>.<tag>".
var messages = map[string]string{
	"title.required":  "Title is required",
	"author.required": "Author name is required",
	"isbn.required":   "ISBN is required",
	"genre.required":  "Genre is required",
	"genre.genre":     "%v is not valid genre",
	"copies.gte":      "Copies must be a positive number",
	"quantity.gte":    "Quantity must be at least 1",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return models.Genre(fl.Field().String()).Valid()
	})
	return v
}

func (l *Library) validate(v any) error {
	err := l.valid.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &storerrors.ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "failed on " + fe.Tag()
		}
		if strings.Contains(msg, "%v") {
			msg = fmt.Sprintf(msg, fe.Value())
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}

// validateBorrow checks the borrow on its own; the stock check happens in the store.
func (l *Library) validateBorrow(borrow models.Borrow) error {
	verr := &storerrors.ValidationError{Fields: map[string]string{}}
	if err := l.validate(borrow); err != nil {
		if !errors.As(err, &verr) {
			return err
		}
	}
	switch {
	case borrow.DueDate.IsZero():
		verr.Fields["dueDate"] = "Due date is required"
	case !borrow.DueDate.After(l.now()):
		verr.Fields["dueDate"] = "Due date must be in the future"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
