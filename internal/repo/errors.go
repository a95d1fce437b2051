package repo

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can match either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStorage matches every *StorageError via errors.Is.
var ErrStorage = errors.New("storage error")

// ErrAlreadyClaimed indicates that a trigger run for the same
// (trigger, period_key) was already recorded.
var ErrAlreadyClaimed = errors.New("trigger run already claimed")

// StorageError reports a failed store operation. A missing singleton row is
// also a StorageError: the state is never silently defaulted.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) true for any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrAlreadyClaimed) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// isUniqueViolation recognizes UNIQUE failures. glebarez/sqlite often returns
// plain-text errors for these instead of gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
