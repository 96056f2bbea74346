package validation

import (
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps a request field to its failure messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Has reports whether field already failed.
func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

// Error is returned when a request fails validation. No side effect has
// happened when it is returned.
type Error struct {
	Fields FieldErrors
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// NewError returns a single-field validation error.
func NewError(field, message string) *Error {
	fe := FieldErrors{}
	fe.Add(field, message)
	return &Error{Fields: fe}
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func msgRequired(field string) string {
	return fmt.Sprintf("The %s field is required.", label(field))
}

func msgInvalid(field string) string {
	return fmt.Sprintf("The selected %s is invalid.", label(field))
}

func msgTaken(field string) string {
	return fmt.Sprintf("The %s has already been taken.", label(field))
}

// Taken returns the uniqueness failure for field.
func Taken(field string) *Error {
	return NewError(field, msgTaken(field))
}
