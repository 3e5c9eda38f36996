package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed rule on a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse lists every failed field of a request.
type ValidationErrorResponse struct {
	Errors []FieldError `json:"errors"`
}

// Normalizer is implemented by request bodies that clean their input
// (trimming, case folding) before validation.
type Normalizer interface {
	Normalize()
}

// Validator checks request structs against their `validate` tags and
// reports failures using each field's `msg` tag. A `msg_<rule>` tag
// overrides `msg` for that one rule.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// maxbytes bounds the encoded length of a string, which bcrypt caps at 72.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return &Validator{validate: v}
}

// Struct validates value and returns one FieldError per failing field.
func (v *Validator) Struct(value any) []FieldError {
	err := v.validate.Struct(value)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []FieldError{{Message: err.Error()}}
	}

	typ := reflect.TypeOf(value)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	fieldErrs := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fieldErrs = append(fieldErrs, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(typ, fe),
		})
	}
	return fieldErrs
}

func fieldMessage(typ reflect.Type, fe validator.FieldError) string {
	if field, ok := typ.FieldByName(fe.StructField()); ok {
		if msg := field.Tag.Get("msg_" + fe.Tag()); msg != "" {
			return msg
		}
		if msg := field.Tag.Get("msg"); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

type bodyKey[T any] struct{}

// Validate decodes the JSON body into T, normalizes and validates it, and
// stores it in the request context for the next handler.
func Validate[T any](v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body T
			if err := decodeJSON(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request")
				return
			}
			if normalizer, ok := any(&body).(Normalizer); ok {
				normalizer.Normalize()
			}
			if fieldErrs := v.Struct(&body); len(fieldErrs) > 0 {
				writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{Errors: fieldErrs})
				return
			}

			ctx := context.WithValue(r.Context(), bodyKey[T]{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bodyFromContext[T any](ctx context.Context) (T, bool) {
	body, ok := ctx.Value(bodyKey[T]{}).(T)
	return body, ok
}
