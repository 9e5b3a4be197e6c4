package handlers

import (
	"net/http"

	"github.com/recychain/recychain/internal/ledger"
)

// TransitionHandler serves the recent-transitions feed.
type TransitionHandler struct {
	Ledger *ledger.Ledger
}

// List returns recent transitions, newest first.
// Query: limit (default 50, max 200), offset (default 0).
func (h *TransitionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50, 200)

	records, err := h.Ledger.RecentTransitions(r.Context(), limit, offset)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
