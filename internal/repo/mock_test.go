package repo

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockDB hands back a sqlmock-backed pool that is closed when the test
// finishes. Declared expectations left unmet fail the test.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	return db, mock
}

func newUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewUserRepo(db), mock
}

func newLedgerStore(t *testing.T) (*LedgerStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewLedgerStore(db), mock
}
