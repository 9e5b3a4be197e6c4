package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/recychain/recychain/internal/ledger"
	"github.com/recychain/recychain/internal/models"
)

// LedgerStore implements ledger.Store on Postgres. Multi-row writes (asset +
// transition record + status entry + receipt) run in one transaction so a
// crash never leaves a half-applied transition.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore returns a new LedgerStore.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

var _ ledger.Store = (*LedgerStore)(nil)

const assetColumns = `id, serial_number, model, status, owner, COALESCE(evidence_ref,''), registered_at, sanitized_at, recycled_at`

const recordColumns = `id, asset_id, kind, from_status, to_status, actor, COALESCE(evidence_ref,''), tx_id, confirmed, occurred_at`

// CreateAsset inserts the asset, its register record, and its status entry in
// one transaction. The unique index on serial_number decides races: the loser
// gets ErrDuplicateSerialNumber.
func (s *LedgerStore) CreateAsset(ctx context.Context, p ledger.CreateAssetParams) (models.Asset, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Asset{}, err
	}
	defer tx.Rollback()

	asset, err := scanAsset(tx.QueryRowContext(ctx,
		`INSERT INTO assets (serial_number, model, status, owner, registered_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+assetColumns,
		p.SerialNumber, p.Model, models.StatusRegistered, p.Owner, p.RegisteredAt,
	))
	if err != nil {
		if e, ok := err.(*pq.Error); ok && e.Code == "23505" {
			return models.Asset{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateSerialNumber, p.SerialNumber)
		}
		return models.Asset{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO asset_transitions (asset_id, kind, from_status, to_status, actor, tx_id, occurred_at)
		 VALUES ($1, $2, '', $3, $4, $5, $6)`,
		asset.ID, models.KindRegister, models.StatusRegistered, p.Actor, p.TxID, p.RegisteredAt,
	); err != nil {
		return models.Asset{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO status_entries (asset_id, status) VALUES ($1, $2)`,
		asset.ID, models.StatusRegistered,
	); err != nil {
		return models.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Asset{}, err
	}
	return asset, nil
}

// GetAsset returns one asset, or ErrAssetNotFound.
func (s *LedgerStore) GetAsset(ctx context.Context, id int64) (models.Asset, error) {
	asset, err := scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return models.Asset{}, fmt.Errorf("%w: id %d", ledger.ErrAssetNotFound, id)
	}
	return asset, err
}

// SerialExists reports whether a serial number is already registered.
func (s *LedgerStore) SerialExists(ctx context.Context, serialNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM assets WHERE serial_number = $1)`, serialNumber,
	).Scan(&exists)
	return exists, err
}

// ApplyTransition advances the asset conditionally on its current status. The
// UPDATE's WHERE clause is the arbiter: zero rows means either the asset is
// gone or another writer moved it first.
func (s *LedgerStore) ApplyTransition(ctx context.Context, p ledger.ApplyTransitionParams) (models.Asset, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Asset{}, err
	}
	defer tx.Rollback()

	asset, err := scanAsset(tx.QueryRowContext(ctx,
		`UPDATE assets
		 SET status = $1,
		     evidence_ref = COALESCE(NULLIF($2, ''), evidence_ref),
		     sanitized_at = CASE WHEN $1 = 'Sanitized' THEN $3 ELSE sanitized_at END,
		     recycled_at  = CASE WHEN $1 = 'Recycled'  THEN $3 ELSE recycled_at  END
		 WHERE id = $4 AND status = $5
		 RETURNING `+assetColumns,
		p.To, p.EvidenceRef, p.OccurredAt, p.AssetID, p.From,
	))
	if err == sql.ErrNoRows {
		var status models.Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM assets WHERE id = $1`, p.AssetID).Scan(&status)
		if err == sql.ErrNoRows {
			return models.Asset{}, fmt.Errorf("%w: id %d", ledger.ErrAssetNotFound, p.AssetID)
		}
		if err != nil {
			return models.Asset{}, err
		}
		return models.Asset{}, fmt.Errorf("%w: asset %d is %s, not %s",
			ledger.ErrInvalidTransition, p.AssetID, status, p.From)
	}
	if err != nil {
		return models.Asset{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO asset_transitions (asset_id, kind, from_status, to_status, actor, evidence_ref, tx_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		p.AssetID, p.Kind, p.From, p.To, p.Actor, p.EvidenceRef, p.TxID, p.OccurredAt,
	); err != nil {
		return models.Asset{}, err
	}

	// Move the status index entry: the asset leaves its old ordering slot and
	// takes the next sequence number in the new status.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM status_entries WHERE asset_id = $1 AND status = $2`,
		p.AssetID, p.From,
	); err != nil {
		return models.Asset{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO status_entries (asset_id, status) VALUES ($1, $2)`,
		p.AssetID, p.To,
	); err != nil {
		return models.Asset{}, err
	}

	if p.IdempotencyKey != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transition_receipts (idempotency_key, receipt_id, asset_id, kind, tx_id, evidence_ref, actor, committed_at)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
			 ON CONFLICT (idempotency_key) DO NOTHING`,
			p.IdempotencyKey, p.Receipt.ReceiptID, p.Receipt.AssetID, p.Receipt.Kind,
			p.Receipt.TxID, p.Receipt.EvidenceRef, p.Receipt.Actor, p.Receipt.CommittedAt,
		); err != nil {
			return models.Asset{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Asset{}, err
	}
	return asset, nil
}

// UpdateOwner replaces the owner conditionally on the previous owner and
// appends the transfer record.
func (s *LedgerStore) UpdateOwner(ctx context.Context, p ledger.UpdateOwnerParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status models.Status
	err = tx.QueryRowContext(ctx,
		`UPDATE assets SET owner = $1 WHERE id = $2 AND owner = $3 RETURNING status`,
		p.NewOwner, p.AssetID, p.PrevOwner,
	).Scan(&status)
	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM assets WHERE id = $1)`, p.AssetID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: id %d", ledger.ErrAssetNotFound, p.AssetID)
		}
		return fmt.Errorf("%w: owner of asset %d changed", ledger.ErrUnauthorized, p.AssetID)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO asset_transitions (asset_id, kind, from_status, to_status, actor, tx_id, occurred_at)
		 VALUES ($1, $2, $3, $3, $4, $5, $6)`,
		p.AssetID, models.KindTransfer, status, p.Actor, p.TxID, p.OccurredAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListByStatus pages assets in status-entry order, so pages stay disjoint as
// assets enter the status between calls.
func (s *LedgerStore) ListByStatus(ctx context.Context, status models.Status, offset, limit int) ([]models.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.serial_number, a.model, a.status, a.owner, COALESCE(a.evidence_ref,''), a.registered_at, a.sanitized_at, a.recycled_at
		 FROM status_entries se
		 JOIN assets a ON a.id = se.asset_id
		 WHERE se.status = $1
		 ORDER BY se.seq
		 LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssets(rows)
}

// ListAssets pages all assets by ascending id.
func (s *LedgerStore) ListAssets(ctx context.Context, offset, limit int) ([]models.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssets(rows)
}

// CountByStatus returns the number of assets in each status.
func (s *LedgerStore) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM assets GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.Status]int64{}
	for rows.Next() {
		var status models.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListTransitions returns an asset's transition trail in chronological order.
func (s *LedgerStore) ListTransitions(ctx context.Context, assetID int64) ([]models.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM asset_transitions WHERE asset_id = $1 ORDER BY id`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListRecentTransitions returns transition records newest first.
func (s *LedgerStore) ListRecentTransitions(ctx context.Context, limit, offset int) ([]models.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM asset_transitions ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// GetReceipt returns the receipt stored under key if it was committed at or
// after notBefore.
func (s *LedgerStore) GetReceipt(ctx context.Context, key string, notBefore time.Time) (models.TransitionReceipt, bool, error) {
	var rcpt models.TransitionReceipt
	err := s.db.QueryRowContext(ctx,
		`SELECT receipt_id, asset_id, kind, tx_id, COALESCE(evidence_ref,''), actor, committed_at
		 FROM transition_receipts
		 WHERE idempotency_key = $1 AND committed_at >= $2`,
		key, notBefore,
	).Scan(&rcpt.ReceiptID, &rcpt.AssetID, &rcpt.Kind, &rcpt.TxID, &rcpt.EvidenceRef, &rcpt.Actor, &rcpt.CommittedAt)
	if err == sql.ErrNoRows {
		return models.TransitionReceipt{}, false, nil
	}
	if err != nil {
		return models.TransitionReceipt{}, false, err
	}
	return rcpt, true, nil
}

// PruneReceipts deletes receipts committed before the cutoff.
func (s *LedgerStore) PruneReceipts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transition_receipts WHERE committed_at < $1`, before,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListUnconfirmedTransitions returns records still awaiting chain
// confirmation, oldest first.
func (s *LedgerStore) ListUnconfirmedTransitions(ctx context.Context, limit int) ([]models.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM asset_transitions
		 WHERE confirmed = FALSE AND tx_id <> ''
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// MarkTransitionConfirmed flips one transition record to confirmed.
func (s *LedgerStore) MarkTransitionConfirmed(ctx context.Context, recordID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE asset_transitions SET confirmed = TRUE WHERE id = $1`, recordID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transition record %d not found", recordID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (models.Asset, error) {
	var a models.Asset
	var sanitizedAt, recycledAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.SerialNumber,
		&a.Model,
		&a.Status,
		&a.Owner,
		&a.EvidenceRef,
		&a.RegisteredAt,
		&sanitizedAt,
		&recycledAt,
	)
	if err != nil {
		return models.Asset{}, err
	}
	if sanitizedAt.Valid {
		a.SanitizedAt = &sanitizedAt.Time
	}
	if recycledAt.Valid {
		a.RecycledAt = &recycledAt.Time
	}
	return a, nil
}

func collectAssets(rows *sql.Rows) ([]models.Asset, error) {
	assets := []models.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func collectRecords(rows *sql.Rows) ([]models.TransitionRecord, error) {
	var records []models.TransitionRecord
	for rows.Next() {
		var rec models.TransitionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.AssetID,
			&rec.Kind,
			&rec.FromStatus,
			&rec.ToStatus,
			&rec.Actor,
			&rec.EvidenceRef,
			&rec.TxID,
			&rec.Confirmed,
			&rec.OccurredAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
