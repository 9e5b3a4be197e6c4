package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/recychain/recychain/internal/models"
	"github.com/recychain/recychain/internal/repo"
)

// AuthHandler serves registration and login. Issued tokens carry the
// user's role and wallet address so downstream handlers can attribute
// ledger transitions without another lookup.
type AuthHandler struct {
	UserRepo *repo.UserRepo
	Secret   []byte
	TokenTTL time.Duration
}

// walletAddressFor derives a deterministic wallet address for users who
// did not bring their own. Good enough to attribute transitions; a real
// wallet can replace it later via user management.
func walletAddressFor(username string) string {
	sum := sha256.Sum256([]byte("recychain:" + username))
	return "0x" + hex.EncodeToString(sum[:])[:40]
}

// passwordMatches reports whether the supplied password unlocks the account.
// Accounts without a hash are passwordless bootstrap accounts and accept any
// login for their username.
func passwordMatches(hash, password string) bool {
	if hash == "" {
		return true
	}
	if password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a user account. Role defaults to viewer; admin accounts
// require a password. Re-registering an existing username returns the
// existing user so retries are harmless.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username      string `json:"username"`
		Password      string `json:"password"`
		Role          string `json:"role"`
		WalletAddress string `json:"wallet_address"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	fields := make(map[string]string)
	if input.Username == "" {
		fields["username"] = "required"
	}
	role := input.Role
	if role == "" {
		role = models.RoleViewer
	}
	if !models.ValidRole(role) {
		fields["role"] = "must be admin, technician or viewer"
	}
	if role == models.RoleAdmin && input.Password == "" {
		fields["password"] = "required for admin"
	}
	if len(fields) > 0 {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	wallet := input.WalletAddress
	if wallet == "" {
		wallet = walletAddressFor(input.Username)
	}

	user, err := h.UserRepo.Create(r.Context(), input.Username, input.Password, role, wallet)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			// The username is taken; treat the retry as idempotent and
			// return the existing account.
			existing, getErr := h.UserRepo.GetByUsername(r.Context(), input.Username)
			if getErr != nil {
				JSONError(w, "failed to create user", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, existing)
			return
		}
		slog.Error("register: create user failed", "error", err)
		JSONError(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and issues a JWT. Accounts without a password
// (viewer bootstrap accounts) log in with the username alone.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	user, err := h.UserRepo.GetByUsername(r.Context(), input.Username)
	if err != nil || !passwordMatches(user.PasswordHash, input.Password) {
		JSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	ttl := h.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"wallet":   user.WalletAddress,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString(h.Secret)
	if err != nil {
		JSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": signed,
		"user":  user,
	})
}
