// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file classifies store errors so callers can tell a
// benign uniqueness conflict from a transient session failure and from
// everything else.
package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates an insert lost a uniqueness race.
var ErrDuplicate = errors.New("duplicate")

// ErrTransient indicates the session or transaction was in a state that a
// reset and retry can clear (aborted transaction, serialization failure,
// deadlock, busy database).
var ErrTransient = errors.New("transient store failure")

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "constraint failed: primary key")
}

// IsTransient reports whether err can be cleared by resetting the session
// and retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.InFailedSQLTransaction,
			pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected:
			return true
		}
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "sqlite_busy")
}

// Classify maps err onto ErrDuplicate or ErrTransient when it is one of
// those, and returns it unchanged otherwise.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsDuplicate(err):
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return errors.Join(ErrDuplicate, err)
	case IsTransient(err):
		if errors.Is(err, ErrTransient) {
			return err
		}
		return errors.Join(ErrTransient, err)
	default:
		return err
	}
}
