package repo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

// Column sets produced by the user queries, in SELECT order.
var (
	userRows     = []string{"id", "username", "password_hash", "role", "wallet_address", "created_at"}
	userListRows = []string{"id", "username", "role", "wallet_address", "created_at"}
)

// bcryptOf matches any bcrypt hash of the expected plaintext.
type bcryptOf string

func (b bcryptOf) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s), []byte(b)) == nil
}

func TestUserRepo_Create(t *testing.T) {
	users, mock := newUserRepo(t)

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO users \(username, password_hash, role, wallet_address\)`).
		WithArgs("alice", nil, "viewer", "0xalice").
		WillReturnRows(sqlmock.NewRows(userListRows).
			AddRow(1, "alice", "viewer", "0xalice", createdAt))

	user, err := users.Create(context.Background(), "alice", "", "viewer", "0xalice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.ID != 1 || user.Username != "alice" || user.Role != "viewer" || user.WalletAddress != "0xalice" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestUserRepo_Create_HashesPassword(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("bob", bcryptOf("hunter2"), "technician", "0xbob").
		WillReturnRows(sqlmock.NewRows(userListRows).
			AddRow(2, "bob", "technician", "0xbob", time.Now()))

	if _, err := users.Create(context.Background(), "bob", "hunter2", "technician", "0xbob"); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestUserRepo_GetByUsername(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectQuery(`SELECT id, username, COALESCE\(password_hash,''\), role, wallet_address, created_at`).
		WithArgs("charlie").
		WillReturnRows(sqlmock.NewRows(userRows).
			AddRow(2, "charlie", "$2a$10$hash", "viewer", "0xcharlie", time.Now()))

	user, err := users.GetByUsername(context.Background(), "charlie")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if user.ID != 2 || user.Username != "charlie" || user.PasswordHash == "" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectQuery(`SELECT id, username, COALESCE\(password_hash,''\), role, wallet_address, created_at`).
		WithArgs(999).
		WillReturnError(sql.ErrNoRows)

	if _, err := users.GetByID(context.Background(), 999); err != sql.ErrNoRows {
		t.Errorf("got %v, want sql.ErrNoRows", err)
	}
}

func TestUserRepo_UpdateRole(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectQuery(`UPDATE users\s+SET role`).
		WithArgs("technician", 2).
		WillReturnRows(sqlmock.NewRows(userListRows).
			AddRow(2, "charlie", "technician", "0xcharlie", time.Now()))

	user, err := users.UpdateRole(context.Background(), 2, "technician")
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if user.Role != "technician" {
		t.Errorf("role = %q, want technician", user.Role)
	}
}

func TestUserRepo_Delete(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := users.Delete(context.Background(), 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestUserRepo_Delete_Missing(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(404).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := users.Delete(context.Background(), 404); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestUserRepo_ListAndCount(t *testing.T) {
	users, mock := newUserRepo(t)

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, username, role, wallet_address, created_at\s+FROM users\s+ORDER BY id`).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(userListRows).
			AddRow(1, "alice", "admin", "0xalice", createdAt).
			AddRow(2, "bob", "viewer", "0xbob", createdAt))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	page, err := users.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[0].Username != "alice" || page[1].Username != "bob" {
		t.Errorf("unexpected page: %+v", page)
	}

	n, err := users.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestUserRepo_EnsureAdmin(t *testing.T) {
	users, mock := newUserRepo(t)

	mock.ExpectExec(`INSERT INTO users .+ ON CONFLICT \(username\) DO NOTHING`).
		WithArgs("root", bcryptOf("changeme"), "admin", "0xroot").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := users.EnsureAdmin(context.Background(), "root", "changeme", "0xroot"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	// No credentials configured: nothing to do, no SQL issued.
	if err := users.EnsureAdmin(context.Background(), "", "", ""); err != nil {
		t.Fatalf("EnsureAdmin without credentials: %v", err)
	}
}
