// Package ledger owns asset lifecycle records and enforces the
// Registered -> Sanitized -> Recycled state machine. Every state-changing
// operation follows the same shape: validate, authorize through the wallet
// signer, submit through the ledger transport, then commit to the store.
// Nothing is mutated before transport confirmation, so a failed or timed-out
// submit leaves the asset exactly as it was.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recychain/recychain/internal/metrics"
	"github.com/recychain/recychain/internal/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500

	// DefaultIdempotencyWindow bounds how long a committed receipt absorbs
	// retried duplicates of the same logical transition.
	DefaultIdempotencyWindow = time.Hour
)

// Config tunes the ledger.
type Config struct {
	// IdempotencyWindow bounds receipt replay; zero means DefaultIdempotencyWindow.
	IdempotencyWindow time.Duration
}

// Ledger is the single source of truth for asset lifecycle state.
type Ledger struct {
	store  Store
	signer Signer
	tp     Transport
	pub    Publisher
	window time.Duration

	// at most one in-flight transition per asset, one registration per serial
	assets  *keyGate
	serials *keyGate

	now func() time.Time
}

// New wires a ledger. pub may be nil when no event fan-out is configured.
func New(store Store, signer Signer, tp Transport, pub Publisher, cfg Config) *Ledger {
	window := cfg.IdempotencyWindow
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Ledger{
		store:   store,
		signer:  signer,
		tp:      tp,
		pub:     pub,
		window:  window,
		assets:  newKeyGate(),
		serials: newKeyGate(),
		now:     time.Now,
	}
}

// Register creates a new asset in Registered status. Only administrators may
// register assets. The serial number must be unique for the lifetime of the
// system; concurrent registrations of the same serial are serialized and
// exactly one succeeds.
func (l *Ledger) Register(ctx context.Context, serialNumber, model string, actor models.Actor) (models.Asset, error) {
	serialNumber = strings.TrimSpace(serialNumber)
	model = strings.TrimSpace(model)
	if serialNumber == "" {
		return models.Asset{}, fmt.Errorf("%w: serial_number is required", ErrInvalidInput)
	}
	if model == "" {
		return models.Asset{}, fmt.Errorf("%w: model is required", ErrInvalidInput)
	}
	if !actor.IsAdmin() {
		return models.Asset{}, fmt.Errorf("%w: only administrators register assets", ErrUnauthorized)
	}

	metrics.IncTransitionInflight()
	defer metrics.DecTransitionInflight()

	if err := l.serials.acquire(ctx, serialNumber); err != nil {
		return models.Asset{}, err
	}
	defer l.serials.release(serialNumber)

	exists, err := l.store.SerialExists(ctx, serialNumber)
	if err != nil {
		return models.Asset{}, err
	}
	if exists {
		metrics.RecordTransition(models.KindRegister, "duplicate")
		return models.Asset{}, fmt.Errorf("%w: %s", ErrDuplicateSerialNumber, serialNumber)
	}

	txID, err := l.submit(ctx, TransitionPayload{
		Kind:         models.KindRegister,
		SerialNumber: serialNumber,
		Model:        model,
		Actor:        actor.Address,
	})
	if err != nil {
		metrics.RecordTransition(models.KindRegister, outcomeFor(err))
		return models.Asset{}, err
	}

	asset, err := l.store.CreateAsset(ctx, CreateAssetParams{
		SerialNumber: serialNumber,
		Model:        model,
		Owner:        actor.Address,
		Actor:        actor.Address,
		TxID:         txID,
		RegisteredAt: l.now().UTC(),
	})
	if err != nil {
		metrics.RecordTransition(models.KindRegister, outcomeFor(err))
		return models.Asset{}, err
	}

	metrics.RecordTransition(models.KindRegister, "committed")
	l.publish(ctx, TransitionEvent{
		Kind:         models.KindRegister,
		AssetID:      asset.ID,
		SerialNumber: asset.SerialNumber,
		Status:       asset.Status,
		Actor:        actor.Address,
		TxID:         txID,
		OccurredAt:   asset.RegisteredAt,
	})
	return asset, nil
}

// RecordSanitization advances a Registered asset to Sanitized, binding the
// evidence reference permanently and recording the technician. A retry of the
// same (asset, evidence, actor) within the idempotency window returns the
// original receipt instead of ErrInvalidTransition, because the transport may
// redeliver.
func (l *Ledger) RecordSanitization(ctx context.Context, assetID int64, evidenceRef string, actor models.Actor) (models.TransitionReceipt, error) {
	evidenceRef = strings.TrimSpace(evidenceRef)
	if evidenceRef == "" {
		return models.TransitionReceipt{}, ErrMissingEvidence
	}
	if !actor.CanTransition() {
		return models.TransitionReceipt{}, fmt.Errorf("%w: role %q cannot record sanitization", ErrUnauthorized, actor.Role)
	}
	key := transitionKey(assetID, models.KindSanitize, evidenceRef, actor.Address)
	return l.applyTransition(ctx, assetID, key, transitionSpec{
		kind:        models.KindSanitize,
		from:        models.StatusRegistered,
		to:          models.StatusSanitized,
		evidenceRef: evidenceRef,
		actor:       actor,
	})
}

// RecycleAsset advances a Sanitized asset to the terminal Recycled status.
// The same idempotent-retry absorption as RecordSanitization applies.
func (l *Ledger) RecycleAsset(ctx context.Context, assetID int64, actor models.Actor) (models.TransitionReceipt, error) {
	if !actor.CanTransition() {
		return models.TransitionReceipt{}, fmt.Errorf("%w: role %q cannot recycle assets", ErrUnauthorized, actor.Role)
	}
	key := transitionKey(assetID, models.KindRecycle, "", actor.Address)
	return l.applyTransition(ctx, assetID, key, transitionSpec{
		kind:  models.KindRecycle,
		from:  models.StatusSanitized,
		to:    models.StatusRecycled,
		actor: actor,
	})
}

type transitionSpec struct {
	kind        string
	from        models.Status
	to          models.Status
	evidenceRef string
	actor       models.Actor
}

// applyTransition runs the shared sanitize/recycle flow: replay check, per-asset
// gate, precondition check, authorize+submit, conditional commit.
func (l *Ledger) applyTransition(ctx context.Context, assetID int64, key string, spec transitionSpec) (models.TransitionReceipt, error) {
	// Fast path: a redelivered duplicate inside the window gets the original
	// receipt without touching the gate.
	if rcpt, ok, err := l.replay(ctx, key); err != nil {
		return models.TransitionReceipt{}, err
	} else if ok {
		metrics.RecordTransition(spec.kind, "replayed")
		return rcpt, nil
	}

	metrics.IncTransitionInflight()
	defer metrics.DecTransitionInflight()

	if err := l.assets.acquire(ctx, assetKey(assetID)); err != nil {
		return models.TransitionReceipt{}, err
	}
	defer l.assets.release(assetKey(assetID))

	// A concurrent duplicate may have committed while we waited for the gate.
	if rcpt, ok, err := l.replay(ctx, key); err != nil {
		return models.TransitionReceipt{}, err
	} else if ok {
		metrics.RecordTransition(spec.kind, "replayed")
		return rcpt, nil
	}

	asset, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		metrics.RecordTransition(spec.kind, outcomeFor(err))
		return models.TransitionReceipt{}, err
	}
	if asset.Status != spec.from {
		metrics.RecordTransition(spec.kind, "invalid")
		return models.TransitionReceipt{}, fmt.Errorf("%w: asset %d is %s, %s requires %s",
			ErrInvalidTransition, assetID, asset.Status, spec.kind, spec.from)
	}

	txID, err := l.submit(ctx, TransitionPayload{
		Kind:        spec.kind,
		AssetID:     assetID,
		EvidenceRef: spec.evidenceRef,
		Actor:       spec.actor.Address,
	})
	if err != nil {
		metrics.RecordTransition(spec.kind, outcomeFor(err))
		return models.TransitionReceipt{}, err
	}

	now := l.now().UTC()
	rcpt := models.TransitionReceipt{
		ReceiptID:   newReceiptID(),
		AssetID:     assetID,
		Kind:        spec.kind,
		TxID:        txID,
		EvidenceRef: spec.evidenceRef,
		Actor:       spec.actor.Address,
		CommittedAt: now,
	}
	updated, err := l.store.ApplyTransition(ctx, ApplyTransitionParams{
		AssetID:        assetID,
		From:           spec.from,
		To:             spec.to,
		Kind:           spec.kind,
		EvidenceRef:    spec.evidenceRef,
		Actor:          spec.actor.Address,
		TxID:           txID,
		OccurredAt:     now,
		IdempotencyKey: key,
		Receipt:        rcpt,
	})
	if err != nil {
		// Another process may have applied the same logical transition between
		// our precondition check and the conditional commit; its receipt counts
		// as ours.
		if errors.Is(err, ErrInvalidTransition) {
			if prev, ok, rerr := l.replay(ctx, key); rerr == nil && ok {
				metrics.RecordTransition(spec.kind, "replayed")
				return prev, nil
			}
		}
		metrics.RecordTransition(spec.kind, outcomeFor(err))
		return models.TransitionReceipt{}, err
	}

	metrics.RecordTransition(spec.kind, "committed")
	l.publish(ctx, TransitionEvent{
		Kind:         spec.kind,
		AssetID:      updated.ID,
		SerialNumber: updated.SerialNumber,
		Status:       updated.Status,
		Actor:        spec.actor.Address,
		EvidenceRef:  spec.evidenceRef,
		TxID:         txID,
		ReceiptID:    rcpt.ReceiptID,
		OccurredAt:   now,
	})
	return rcpt, nil
}

// TransferOwnership replaces the asset's owner. The requesting actor must be
// the current owner or an administrator. Ownership is orthogonal to lifecycle
// status: transfers are allowed in any status, including terminal Recycled,
// and never touch status or timestamps.
func (l *Ledger) TransferOwnership(ctx context.Context, assetID int64, newOwner string, actor models.Actor) error {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return fmt.Errorf("%w: new_owner is required", ErrInvalidInput)
	}

	metrics.IncTransitionInflight()
	defer metrics.DecTransitionInflight()

	if err := l.assets.acquire(ctx, assetKey(assetID)); err != nil {
		return err
	}
	defer l.assets.release(assetKey(assetID))

	asset, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		metrics.RecordTransition(models.KindTransfer, outcomeFor(err))
		return err
	}
	if actor.Address != asset.Owner && !actor.IsAdmin() {
		metrics.RecordTransition(models.KindTransfer, "unauthorized")
		return fmt.Errorf("%w: only the current owner or an administrator may transfer asset %d",
			ErrUnauthorized, assetID)
	}

	txID, err := l.submit(ctx, TransitionPayload{
		Kind:     models.KindTransfer,
		AssetID:  assetID,
		NewOwner: newOwner,
		Actor:    actor.Address,
	})
	if err != nil {
		metrics.RecordTransition(models.KindTransfer, outcomeFor(err))
		return err
	}

	now := l.now().UTC()
	if err := l.store.UpdateOwner(ctx, UpdateOwnerParams{
		AssetID:    assetID,
		PrevOwner:  asset.Owner,
		NewOwner:   newOwner,
		Actor:      actor.Address,
		TxID:       txID,
		OccurredAt: now,
	}); err != nil {
		metrics.RecordTransition(models.KindTransfer, outcomeFor(err))
		return err
	}

	metrics.RecordTransition(models.KindTransfer, "committed")
	l.publish(ctx, TransitionEvent{
		Kind:         models.KindTransfer,
		AssetID:      asset.ID,
		SerialNumber: asset.SerialNumber,
		Status:       asset.Status,
		Actor:        actor.Address,
		TxID:         txID,
		OccurredAt:   now,
	})
	return nil
}

// QueryByStatus pages assets in one status, ordered by when they entered it.
// Pages fetched at increasing offsets stay disjoint even as assets enter the
// status between calls. An empty page is not an error.
func (l *Ledger) QueryByStatus(ctx context.Context, status models.Status, offset, limit int) ([]models.Asset, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	offset, limit = clampPage(offset, limit)
	return l.store.ListByStatus(ctx, status, offset, limit)
}

// ListAssets pages all assets by ascending id.
func (l *Ledger) ListAssets(ctx context.Context, offset, limit int) ([]models.Asset, error) {
	offset, limit = clampPage(offset, limit)
	return l.store.ListAssets(ctx, offset, limit)
}

// GetAsset returns one asset snapshot.
func (l *Ledger) GetAsset(ctx context.Context, assetID int64) (models.Asset, error) {
	return l.store.GetAsset(ctx, assetID)
}

// GetHistory returns the asset with its full transition trail in
// chronological order.
func (l *Ledger) GetHistory(ctx context.Context, assetID int64) (models.AssetHistory, error) {
	asset, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return models.AssetHistory{}, err
	}
	trail, err := l.store.ListTransitions(ctx, assetID)
	if err != nil {
		return models.AssetHistory{}, err
	}
	return models.AssetHistory{Asset: asset, Transitions: trail}, nil
}

// Summary counts assets per lifecycle status.
func (l *Ledger) Summary(ctx context.Context) (models.StatusSummary, error) {
	counts, err := l.store.CountByStatus(ctx)
	if err != nil {
		return models.StatusSummary{}, err
	}
	s := models.StatusSummary{
		Registered: counts[models.StatusRegistered],
		Sanitized:  counts[models.StatusSanitized],
		Recycled:   counts[models.StatusRecycled],
	}
	s.Total = s.Registered + s.Sanitized + s.Recycled
	return s, nil
}

// RecentTransitions returns the activity feed, newest first.
func (l *Ledger) RecentTransitions(ctx context.Context, limit, offset int) ([]models.TransitionRecord, error) {
	offset, limit = clampPage(offset, limit)
	return l.store.ListRecentTransitions(ctx, limit, offset)
}

// replay looks up a previously committed receipt inside the idempotency window.
func (l *Ledger) replay(ctx context.Context, key string) (models.TransitionReceipt, bool, error) {
	return l.store.GetReceipt(ctx, key, l.now().UTC().Add(-l.window))
}

// submit authorizes the payload and submits it through the transport. No
// ledger lock is held here beyond the per-key gate that defines "in flight".
func (l *Ledger) submit(ctx context.Context, p TransitionPayload) (string, error) {
	signed, err := l.signer.Authorize(ctx, p)
	if err != nil {
		return "", err
	}
	start := time.Now()
	txID, err := l.tp.Submit(ctx, signed)
	metrics.ObserveChainSubmit(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return txID, nil
}

func (l *Ledger) publish(ctx context.Context, ev TransitionEvent) {
	// The transition is already committed; a publish failure must not undo it.
	if err := l.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("transition event publish failed",
			"kind", ev.Kind, "asset_id", ev.AssetID, "error", err)
	}
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, ErrDuplicateSerialNumber):
		return "duplicate"
	case errors.Is(err, ErrAssetNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUserRejected):
		return "unauthorized"
	case errors.Is(err, ErrAuthTimeout):
		return "auth_timeout"
	default:
		var re *RevertedError
		if errors.As(err, &re) {
			return "reverted"
		}
		var te *TransportError
		if errors.As(err, &te) {
			return "transport_error"
		}
		return "error"
	}
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TransitionEvent) error { return nil }
