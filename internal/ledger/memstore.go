package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/recychain/recychain/internal/models"
)

// MemStore is the in-memory Store implementation, used by the ledger tests
// and by the memory backend in dev mode. A single mutex guards all state, so
// every read observes a consistent snapshot; values are copied on the way out
// so callers can never mutate stored records.
type MemStore struct {
	mu           sync.RWMutex
	nextAssetID  int64
	nextRecordID int64
	assets       map[int64]models.Asset
	serials      map[string]int64
	byStatus     map[models.Status][]int64 // ids in status-entry order
	records      []models.TransitionRecord
	receipts     map[string]models.TransitionReceipt
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nextAssetID:  1,
		nextRecordID: 1,
		assets:       make(map[int64]models.Asset),
		serials:      make(map[string]int64),
		byStatus:     make(map[models.Status][]int64),
		receipts:     make(map[string]models.TransitionReceipt),
	}
}

func (s *MemStore) CreateAsset(_ context.Context, p CreateAssetParams) (models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.serials[p.SerialNumber]; dup {
		return models.Asset{}, fmt.Errorf("%w: %s", ErrDuplicateSerialNumber, p.SerialNumber)
	}

	asset := models.Asset{
		ID:           s.nextAssetID,
		SerialNumber: p.SerialNumber,
		Model:        p.Model,
		Status:       models.StatusRegistered,
		Owner:        p.Owner,
		RegisteredAt: p.RegisteredAt,
	}
	s.nextAssetID++
	s.assets[asset.ID] = asset
	s.serials[p.SerialNumber] = asset.ID
	s.byStatus[models.StatusRegistered] = append(s.byStatus[models.StatusRegistered], asset.ID)
	s.appendRecordLocked(models.TransitionRecord{
		AssetID:    asset.ID,
		Kind:       models.KindRegister,
		ToStatus:   models.StatusRegistered,
		Actor:      p.Actor,
		TxID:       p.TxID,
		OccurredAt: p.RegisteredAt,
	})
	return copyAsset(asset), nil
}

func (s *MemStore) GetAsset(_ context.Context, id int64) (models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return models.Asset{}, fmt.Errorf("%w: id %d", ErrAssetNotFound, id)
	}
	return copyAsset(asset), nil
}

func (s *MemStore) SerialExists(_ context.Context, serialNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.serials[serialNumber]
	return ok, nil
}

func (s *MemStore) ApplyTransition(_ context.Context, p ApplyTransitionParams) (models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[p.AssetID]
	if !ok {
		return models.Asset{}, fmt.Errorf("%w: id %d", ErrAssetNotFound, p.AssetID)
	}
	if asset.Status != p.From {
		return models.Asset{}, fmt.Errorf("%w: asset %d is %s, expected %s",
			ErrInvalidTransition, p.AssetID, asset.Status, p.From)
	}

	at := p.OccurredAt
	asset.Status = p.To
	switch p.To {
	case models.StatusSanitized:
		asset.EvidenceRef = p.EvidenceRef
		asset.SanitizedAt = &at
	case models.StatusRecycled:
		asset.RecycledAt = &at
	}
	s.assets[p.AssetID] = asset
	s.removeStatusEntryLocked(p.From, p.AssetID)
	s.byStatus[p.To] = append(s.byStatus[p.To], p.AssetID)
	s.appendRecordLocked(models.TransitionRecord{
		AssetID:     p.AssetID,
		Kind:        p.Kind,
		FromStatus:  p.From,
		ToStatus:    p.To,
		Actor:       p.Actor,
		EvidenceRef: p.EvidenceRef,
		TxID:        p.TxID,
		OccurredAt:  at,
	})
	if p.IdempotencyKey != "" {
		s.receipts[p.IdempotencyKey] = p.Receipt
	}
	return copyAsset(asset), nil
}

func (s *MemStore) UpdateOwner(_ context.Context, p UpdateOwnerParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[p.AssetID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrAssetNotFound, p.AssetID)
	}
	if asset.Owner != p.PrevOwner {
		return fmt.Errorf("%w: owner of asset %d changed", ErrUnauthorized, p.AssetID)
	}
	asset.Owner = p.NewOwner
	s.assets[p.AssetID] = asset
	s.appendRecordLocked(models.TransitionRecord{
		AssetID:    p.AssetID,
		Kind:       models.KindTransfer,
		FromStatus: asset.Status,
		ToStatus:   asset.Status,
		Actor:      p.Actor,
		TxID:       p.TxID,
		OccurredAt: p.OccurredAt,
	})
	return nil
}

func (s *MemStore) ListByStatus(_ context.Context, status models.Status, offset, limit int) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byStatus[status]
	if offset >= len(ids) {
		return []models.Asset{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]models.Asset, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, copyAsset(s.assets[id]))
	}
	return out, nil
}

func (s *MemStore) ListAssets(_ context.Context, offset, limit int) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.assets))
	for id := range s.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if offset >= len(ids) {
		return []models.Asset{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]models.Asset, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, copyAsset(s.assets[id]))
	}
	return out, nil
}

func (s *MemStore) CountByStatus(_ context.Context) (map[models.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int64, len(s.byStatus))
	for status, ids := range s.byStatus {
		counts[status] = int64(len(ids))
	}
	return counts, nil
}

func (s *MemStore) ListTransitions(_ context.Context, assetID int64) ([]models.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.assets[assetID]; !ok {
		return nil, fmt.Errorf("%w: id %d", ErrAssetNotFound, assetID)
	}
	var out []models.TransitionRecord
	for _, rec := range s.records {
		if rec.AssetID == assetID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemStore) ListRecentTransitions(_ context.Context, limit, offset int) ([]models.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	out := make([]models.TransitionRecord, 0, limit)
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *MemStore) GetReceipt(_ context.Context, key string, notBefore time.Time) (models.TransitionReceipt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rcpt, ok := s.receipts[key]
	if !ok || rcpt.CommittedAt.Before(notBefore) {
		return models.TransitionReceipt{}, false, nil
	}
	return rcpt, true, nil
}

func (s *MemStore) PruneReceipts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, rcpt := range s.receipts {
		if rcpt.CommittedAt.Before(before) {
			delete(s.receipts, key)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) ListUnconfirmedTransitions(_ context.Context, limit int) ([]models.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TransitionRecord, 0, limit)
	for _, rec := range s.records {
		if len(out) >= limit {
			break
		}
		if !rec.Confirmed && rec.TxID != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemStore) MarkTransitionConfirmed(_ context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == recordID {
			s.records[i].Confirmed = true
			return nil
		}
	}
	return fmt.Errorf("transition record %d not found", recordID)
}

func (s *MemStore) appendRecordLocked(rec models.TransitionRecord) {
	rec.ID = s.nextRecordID
	s.nextRecordID++
	s.records = append(s.records, rec)
}

func (s *MemStore) removeStatusEntryLocked(status models.Status, assetID int64) {
	ids := s.byStatus[status]
	for i, id := range ids {
		if id == assetID {
			s.byStatus[status] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// copyAsset clones pointer fields so callers hold an independent snapshot.
func copyAsset(a models.Asset) models.Asset {
	if a.SanitizedAt != nil {
		t := *a.SanitizedAt
		a.SanitizedAt = &t
	}
	if a.RecycledAt != nil {
		t := *a.RecycledAt
		a.RecycledAt = &t
	}
	return a
}
