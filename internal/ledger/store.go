package ledger

import (
	"context"
	"time"

	"github.com/recychain/recychain/internal/models"
)

// Store is the persistence contract for the ledger: append-only asset records
// plus their ordered transition logs, a serial-number uniqueness index, a
// per-status ordered index for paging, and a bounded receipt window for
// retry absorption. internal/repo implements it on Postgres; MemStore is the
// in-memory implementation used by tests and the memory backend.
type Store interface {
	// CreateAsset inserts the asset and its register transition record
	// atomically. The serial-number uniqueness check is part of the insert:
	// two concurrent creates with the same serial must yield exactly one
	// success and one ErrDuplicateSerialNumber. The stored asset (with its
	// assigned id) is returned.
	CreateAsset(ctx context.Context, p CreateAssetParams) (models.Asset, error)

	// GetAsset returns a consistent snapshot of one asset, or ErrAssetNotFound.
	GetAsset(ctx context.Context, id int64) (models.Asset, error)

	// SerialExists reports whether a serial number is already registered.
	SerialExists(ctx context.Context, serialNumber string) (bool, error)

	// ApplyTransition advances the asset from p.From to p.To, appends the
	// transition record, moves the status index entry, and saves the receipt
	// under p.IdempotencyKey, all atomically, conditional on the asset still
	// being in p.From. Returns ErrAssetNotFound or ErrInvalidTransition when
	// the condition fails, and the updated asset on success.
	ApplyTransition(ctx context.Context, p ApplyTransitionParams) (models.Asset, error)

	// UpdateOwner replaces the owner, conditional on the current owner still
	// being p.PrevOwner, and appends the transfer record. Lifecycle status and
	// timestamps are untouched.
	UpdateOwner(ctx context.Context, p UpdateOwnerParams) error

	// ListByStatus pages assets in the order they entered the status.
	// Entries added after a page is fetched never shift earlier pages.
	ListByStatus(ctx context.Context, status models.Status, offset, limit int) ([]models.Asset, error)

	// ListAssets pages all assets by ascending id.
	ListAssets(ctx context.Context, offset, limit int) ([]models.Asset, error)

	// CountByStatus returns the number of assets currently in each status.
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	// ListTransitions returns an asset's transition trail in chronological order.
	ListTransitions(ctx context.Context, assetID int64) ([]models.TransitionRecord, error)

	// ListRecentTransitions returns transition records newest first.
	ListRecentTransitions(ctx context.Context, limit, offset int) ([]models.TransitionRecord, error)

	// GetReceipt returns the receipt stored under key, if committed at or
	// after notBefore.
	GetReceipt(ctx context.Context, key string, notBefore time.Time) (models.TransitionReceipt, bool, error)

	// PruneReceipts deletes receipts committed before the cutoff and returns
	// how many were removed.
	PruneReceipts(ctx context.Context, before time.Time) (int64, error)

	// ListUnconfirmedTransitions returns up to limit transition records whose
	// transactions have not yet been confirmed, oldest first.
	ListUnconfirmedTransitions(ctx context.Context, limit int) ([]models.TransitionRecord, error)

	// MarkTransitionConfirmed flips one transition record to confirmed.
	MarkTransitionConfirmed(ctx context.Context, recordID int64) error
}

// CreateAssetParams carries a registration into the store.
type CreateAssetParams struct {
	SerialNumber string
	Model        string
	Owner        string
	Actor        string
	TxID         string
	RegisteredAt time.Time
}

// ApplyTransitionParams carries one committed transition into the store.
type ApplyTransitionParams struct {
	AssetID        int64
	From           models.Status
	To             models.Status
	Kind           string
	EvidenceRef    string
	Actor          string
	TxID           string
	OccurredAt     time.Time
	IdempotencyKey string
	Receipt        models.TransitionReceipt
}

// UpdateOwnerParams carries an ownership transfer into the store.
type UpdateOwnerParams struct {
	AssetID    int64
	PrevOwner  string
	NewOwner   string
	Actor      string
	TxID       string
	OccurredAt time.Time
}

// TransitionPayload is the unsigned content of a transition submitted to the
// ledger transport. Register payloads carry serial/model; transfer payloads
// carry the new owner.
type TransitionPayload struct {
	Kind         string `json:"kind"`
	AssetID      int64  `json:"asset_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Model        string `json:"model,omitempty"`
	EvidenceRef  string `json:"evidence_ref,omitempty"`
	NewOwner     string `json:"new_owner,omitempty"`
	Actor        string `json:"actor"`
}

// SignedTransition is a payload authorized by a Signer.
type SignedTransition struct {
	Payload   TransitionPayload `json:"payload"`
	Signer    string            `json:"signer"`
	Signature string            `json:"signature"`
	SignedAt  time.Time         `json:"signed_at"`
}

// Signer supplies the service identity and authorizes state-changing calls.
// Authorize may suspend on user confirmation; implementations return
// ErrUserRejected when declined and ErrAuthTimeout when confirmation expires.
type Signer interface {
	Identity() string
	Authorize(ctx context.Context, p TransitionPayload) (SignedTransition, error)
}

// Transport carries signed transitions to durable storage. Delivery is
// at-least-once: Submit returns a transaction id on success, a *RevertedError
// on permanent rejection, and a *TransportError on transient failure.
type Transport interface {
	Submit(ctx context.Context, st SignedTransition) (txID string, err error)
	Confirm(ctx context.Context, txID string) (bool, error)
}

// TransitionEvent is the post-commit notification fanned out after a
// transition is durably applied.
type TransitionEvent struct {
	Kind         string        `json:"kind"`
	AssetID      int64         `json:"asset_id"`
	SerialNumber string        `json:"serial_number"`
	Status       models.Status `json:"status"`
	Actor        string        `json:"actor"`
	EvidenceRef  string        `json:"evidence_ref,omitempty"`
	TxID         string        `json:"tx_id"`
	ReceiptID    string        `json:"receipt_id,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// Publisher fans out committed transitions. Publishing is best-effort:
// failures are logged and never fail the committed operation.
type Publisher interface {
	Publish(ctx context.Context, ev TransitionEvent) error
}
