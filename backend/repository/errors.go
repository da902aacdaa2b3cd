// Package repository is the gorm-backed persistence for the instrument tree,
// evaluations and their answers.
package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrUnknownInstrument = errors.New("instrument not found")
	ErrNotFound          = errors.New("record not found")
)

// PersistenceError carries the raw store error for the failed operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
