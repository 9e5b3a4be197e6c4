package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/recychain/recychain/internal/repo"
)

// Column sets returned by the user queries, in SELECT order.
var (
	userCols     = []string{"id", "username", "password_hash", "role", "wallet_address", "created_at"}
	userListCols = []string{"id", "username", "role", "wallet_address", "created_at"}
)

// newMockUserRepo returns a UserRepo backed by sqlmock. The pool is closed
// and the recorded expectations are verified when the test finishes.
func newMockUserRepo(t *testing.T) (*repo.UserRepo, sqlmock.Sqlmock) {
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
	return repo.NewUserRepo(db), mock
}

// jsonRequest builds a POST-style request carrying v as a JSON body.
func jsonRequest(t *testing.T, method, path string, v interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody unmarshals a recorded response into out.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
