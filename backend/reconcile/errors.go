package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyBatch is returned when a submission carries no answers.
var ErrEmptyBatch = errors.New("answer batch is empty")

// MalformedEntryError rejects a batch because one entry cannot be addressed
// or carries an impossible score.
type MalformedEntryError struct {
	Index  int
	Reason string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("malformed answer entry %d: %s", e.Index, e.Reason)
}

// UnknownItemCodeError lists every item code that matched no item.
type UnknownItemCodeError struct {
	Codes []string
}

func (e *UnknownItemCodeError) Error() string {
	return "unknown item codes: " + strings.Join(e.Codes, ", ")
}

// UnknownItemIDError lists every durable item id that matched no item.
type UnknownItemIDError struct {
	IDs []string
}

func (e *UnknownItemIDError) Error() string {
	return "unknown item ids: " + strings.Join(e.IDs, ", ")
}

// AmbiguousItemCodeError lists codes shared by several items that the
// entry's domain code could not narrow down to one.
type AmbiguousItemCodeError struct {
	Codes []string
}

func (e *AmbiguousItemCodeError) Error() string {
	return "ambiguous item codes: " + strings.Join(e.Codes, ", ")
}

// IsValidation reports whether err rejects the batch because of its content,
// as opposed to a lookup failure.
func IsValidation(err error) bool {
	var (
		malformed *MalformedEntryError
		code      *UnknownItemCodeError
		id        *UnknownItemIDError
		ambiguous *AmbiguousItemCodeError
	)
	return errors.Is(err, ErrEmptyBatch) ||
		errors.As(err, &malformed) ||
		errors.As(err, &code) ||
		errors.As(err, &id) ||
		errors.As(err, &ambiguous)
}
