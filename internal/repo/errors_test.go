package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		duplicate bool
		transient bool
	}{
		{"nil", nil, false, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true, false},
		{"wrapped sentinel", fmt.Errorf("insert: %w", ErrDuplicate), true, false},
		{"sqlite unique text", errors.New("constraint failed: UNIQUE constraint failed: users.id (1555)"), true, false},
		{"pg unique", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, true, false},
		{"pg aborted tx", &pgconn.PgError{Code: pgerrcode.InFailedSQLTransaction}, false, true},
		{"pg deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), false, true},
		{"pg other", &pgconn.PgError{Code: pgerrcode.UndefinedTable}, false, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), false, true},
		{"other", errors.New("no such table: users"), false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicate(tc.err); got != tc.duplicate {
				t.Fatalf("IsDuplicate = %v, want %v", got, tc.duplicate)
			}
			if got := IsTransient(tc.err); got != tc.transient {
				t.Fatalf("IsTransient = %v, want %v", got, tc.transient)
			}
			got := Classify(tc.err)
			if tc.err == nil {
				if got != nil {
					t.Fatalf("Classify(nil) = %v", got)
				}
				return
			}
			if errors.Is(got, ErrDuplicate) != tc.duplicate || errors.Is(got, ErrTransient) != tc.transient {
				t.Fatalf("Classify(%v) = %v", tc.err, got)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("Classify should keep the original error in the chain")
			}
		})
	}
}
