package pipeline

import (
	"errors"
	"strings"

	"nutriscan/ml"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrDimensionMismatch    = ml.ErrDimensionMismatch
	ErrTransformUnavailable = errors.New("transform unavailable")
	ErrModelUnavailable     = errors.New("model unavailable")
)

// FieldError names one rejected nutrient field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidInputError lists every rejected field of a profile. It matches
// ErrInvalidInput with errors.Is.
type InvalidInputError struct {
	Fields []FieldError
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Reason
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Unavailable reports whether err is an artifact fault rather than a caller
// input problem.
func Unavailable(err error) bool {
	return errors.Is(err, ErrTransformUnavailable) ||
		errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrDimensionMismatch)
}
