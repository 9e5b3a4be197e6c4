package handlers

import (
	"net/http"

	"github.com/recychain/recychain/internal/models"
	"github.com/recychain/recychain/internal/repo"
)

// UserHandler serves user management endpoints. Account creation happens
// through auth registration; this handler covers the admin surface.
type UserHandler struct {
	Repo *repo.UserRepo
}

// ListUsers returns users with a paging envelope.
// Query: limit (default 50), offset (default 0).
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50, 0)

	users, err := h.Repo.List(r.Context(), limit, offset)
	if err != nil {
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	total, err := h.Repo.Count(r.Context())
	if err != nil {
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetUser returns a single user by id.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}

	user, err := h.Repo.GetByID(r.Context(), int(id))
	if err != nil {
		JSONError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateRole changes a user's role.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}

	var input struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if !models.ValidRole(input.Role) {
		JSONValidationError(w, "validation failed", map[string]string{
			"role": "must be admin, technician or viewer",
		}, http.StatusBadRequest)
		return
	}

	user, err := h.Repo.UpdateRole(r.Context(), int(id), input.Role)
	if err != nil {
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser removes a user account.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}

	if err := h.Repo.Delete(r.Context(), int(id)); err != nil {
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
