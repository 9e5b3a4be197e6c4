package repo

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/recychain/recychain/internal/models"
)

// UserRepo persists operator accounts.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a user. Passwords are stored as bcrypt hashes; an empty
// password stores NULL for accounts that authenticate through their wallet
// only.
func (r *UserRepo) Create(ctx context.Context, username, password, role, walletAddress string) (*models.User, error) {
	var hash any
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = string(h)
	}

	user := &models.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role, wallet_address)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, role, wallet_address, created_at`,
		username, hash, role, walletAddress,
	).Scan(&user.ID, &user.Username, &user.Role, &user.WalletAddress, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID returns a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, COALESCE(password_hash,''), role, wallet_address, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.WalletAddress, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername returns a user by username, including the password hash for
// credential checks.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, COALESCE(password_hash,''), role, wallet_address, created_at
		 FROM users
		 WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.WalletAddress, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateRole changes a user's role.
func (r *UserRepo) UpdateRole(ctx context.Context, id int, role string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET role = $1
		 WHERE id = $2
		 RETURNING id, username, role, wallet_address, created_at`,
		role, id,
	).Scan(&user.ID, &user.Username, &user.Role, &user.WalletAddress, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user.
func (r *UserRepo) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("user not found")
	}
	return nil
}

// List returns users ordered by id.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, role, wallet_address, created_at
		 FROM users
		 ORDER BY id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.WalletAddress, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the total number of users.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// EnsureAdmin creates the bootstrap admin account if no user with that
// username exists. Safe to call on every startup.
func (r *UserRepo) EnsureAdmin(ctx context.Context, username, password, walletAddress string) error {
	if username == "" || password == "" {
		return nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, wallet_address)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (username) DO NOTHING`,
		username, string(h), models.RoleAdmin, walletAddress,
	)
	return err
}
