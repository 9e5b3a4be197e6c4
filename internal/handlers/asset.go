package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/recychain/recychain/internal/ledger"
	"github.com/recychain/recychain/internal/middleware"
	"github.com/recychain/recychain/internal/models"
)

var validate = validator.New()

// maxImportRows caps a single batch import request.
const maxImportRows = 500

// AssetHandler serves the asset lifecycle endpoints. Every mutation goes
// through the ledger so signing, idempotency and event publishing apply
// uniformly no matter which entry point the caller used.
type AssetHandler struct {
	Ledger *ledger.Ledger
}

func (h *AssetHandler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

// Register creates a new asset in the Registered state.
func (h *AssetHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var input struct {
		SerialNumber string `json:"serial_number" validate:"required,max=120"`
		Model        string `json:"model" validate:"required,max=255"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if err := validate.Struct(input); err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	asset, err := h.Ledger.Register(r.Context(), input.SerialNumber, input.Model, actor)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// Import registers a batch of assets in one request. Rows are processed
// independently: a duplicate serial number fails that row only, and the
// response reports the outcome per row.
func (h *AssetHandler) Import(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var rows []struct {
		SerialNumber string `json:"serial_number"`
		Model        string `json:"model"`
	}
	if !decodeJSON(w, r, &rows) {
		return
	}
	if len(rows) == 0 {
		JSONError(w, "no rows to import", http.StatusBadRequest)
		return
	}
	if len(rows) > maxImportRows {
		JSONError(w, "too many rows, max "+strconv.Itoa(maxImportRows), http.StatusBadRequest)
		return
	}

	type importResult struct {
		SerialNumber string `json:"serial_number"`
		AssetID      int64  `json:"asset_id,omitempty"`
		Error        string `json:"error,omitempty"`
	}

	results := make([]importResult, 0, len(rows))
	imported := 0
	for _, row := range rows {
		res := importResult{SerialNumber: row.SerialNumber}
		asset, err := h.Ledger.Register(r.Context(), row.SerialNumber, row.Model, actor)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.AssetID = asset.ID
			imported++
		}
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": imported,
		"failed":   len(rows) - imported,
		"results":  results,
	})
}

// List returns assets, optionally filtered by lifecycle status.
// Query: status (optional), limit (default 50, max 200), offset (default 0).
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50, 200)

	var assets []models.Asset
	var err error

	if s := r.URL.Query().Get("status"); s != "" {
		status, perr := models.ParseStatus(s)
		if perr != nil {
			JSONError(w, perr.Error(), http.StatusBadRequest)
			return
		}
		assets, err = h.Ledger.QueryByStatus(r.Context(), status, offset, limit)
	} else {
		assets, err = h.Ledger.ListAssets(r.Context(), offset, limit)
	}

	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// Summary reports asset counts per lifecycle status.
func (h *AssetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledger.Summary(r.Context())
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Get returns a single asset by id.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "asset")
	if !ok {
		return
	}

	asset, err := h.Ledger.GetAsset(r.Context(), id)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// History returns an asset together with its full transition trail.
func (h *AssetHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "asset")
	if !ok {
		return
	}

	history, err := h.Ledger.GetHistory(r.Context(), id)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Sanitize records a data sanitization for the asset. The evidence reference
// is required; retries of the same request are absorbed and return the
// original receipt.
func (h *AssetHandler) Sanitize(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "asset")
	if !ok {
		return
	}

	var input struct {
		EvidenceRef string `json:"evidence_ref"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	receipt, err := h.Ledger.RecordSanitization(r.Context(), id, input.EvidenceRef, actor)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Recycle moves a sanitized asset into its terminal Recycled state.
func (h *AssetHandler) Recycle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "asset")
	if !ok {
		return
	}

	receipt, err := h.Ledger.RecycleAsset(r.Context(), id, actor)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Transfer reassigns custody of an asset to a new owner.
func (h *AssetHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "asset")
	if !ok {
		return
	}

	var input struct {
		NewOwner string `json:"new_owner" validate:"required,max=120"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if err := validate.Struct(input); err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Ledger.TransferOwnership(r.Context(), id, input.NewOwner, actor); err != nil {
		WriteLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
