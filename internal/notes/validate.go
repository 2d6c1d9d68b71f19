package notes

import (
	"strings"
	"unicode/utf8"

	"github.com/kuitang/notesmith/internal/errs"
)

// MaxTitleLength is the maximum title length in characters (Unicode code points).
const MaxTitleLength = 200

// FieldError describes one invalid field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError lists every invalid field of a request body.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return errs.Wrap(errs.InvalidArgument, e.Error(), e)
}

// ValidateCreate checks a create body: title 1..200 characters, content non-empty.
func ValidateCreate(p CreateNoteParams) error {
	var v ValidationError
	checkTitle(&v, p.Title)
	checkContent(&v, p.Content)
	return v.err()
}

// ValidateUpdate checks the present fields of an update body with the same
// rules as create. An explicit empty string is rejected.
func ValidateUpdate(p UpdateNoteParams) error {
	var v ValidationError
	if p.Title != nil {
		checkTitle(&v, *p.Title)
	}
	if p.Content != nil {
		checkContent(&v, *p.Content)
	}
	return v.err()
}

func checkTitle(v *ValidationError, title string) {
	switch {
	case title == "":
		v.add("title", "must not be empty")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		v.add("title", "must be at most 200 characters")
	}
}

func checkContent(v *ValidationError, content string) {
	if content == "" {
		v.add("content", "must not be empty")
	}
}
