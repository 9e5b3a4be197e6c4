package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an asset. Transitions are forward-only and
// single-step: Registered -> Sanitized -> Recycled.
type Status string

const (
	StatusRegistered Status = "Registered"
	StatusSanitized  Status = "Sanitized"
	StatusRecycled   Status = "Recycled"
)

// statusCodes maps each status to the numeric code used on chain (0/1/2).
var statusCodes = map[Status]int{
	StatusRegistered: 0,
	StatusSanitized:  1,
	StatusRecycled:   2,
}

// ParseStatus parses s case-insensitively into a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "registered":
		return StatusRegistered, nil
	case "sanitized":
		return StatusSanitized, nil
	case "recycled":
		return StatusRecycled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Valid reports whether s is one of the three lifecycle statuses.
func (s Status) Valid() bool {
	_, ok := statusCodes[s]
	return ok
}

// Code returns the numeric status code used on chain. Unknown statuses map to -1.
func (s Status) Code() int {
	if c, ok := statusCodes[s]; ok {
		return c
	}
	return -1
}

// Next returns the status that follows s. ok is false for the terminal
// status (Recycled) and for unknown values.
func (s Status) Next() (next Status, ok bool) {
	switch s {
	case StatusRegistered:
		return StatusSanitized, true
	case StatusSanitized:
		return StatusRecycled, true
	}
	return "", false
}

// CanAdvanceTo reports whether t is the single next step after s.
// Skips and reversals are never allowed.
func (s Status) CanAdvanceTo(t Status) bool {
	next, ok := s.Next()
	return ok && next == t
}

// Transition kinds recorded in the audit trail.
const (
	KindRegister = "register"
	KindSanitize = "sanitize"
	KindRecycle  = "recycle"
	KindTransfer = "transfer"
)

// Asset is one tracked device. Records are append-only: an asset is created
// by registration, advanced by sanitize/recycle, and never deleted.
type Asset struct {
	ID           int64      `json:"id"`
	SerialNumber string     `json:"serial_number"`
	Model        string     `json:"model"`
	Status       Status     `json:"status"`
	Owner        string     `json:"owner"`
	EvidenceRef  string     `json:"evidence_ref,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	SanitizedAt  *time.Time `json:"sanitized_at,omitempty"`
	RecycledAt   *time.Time `json:"recycled_at,omitempty"`
}

// TransitionRecord is one row of an asset's durable transition log.
// FromStatus is empty for the register record. Confirmed flips to true once
// the chain gateway reports the transaction final.
type TransitionRecord struct {
	ID          int64     `json:"id"`
	AssetID     int64     `json:"asset_id"`
	Kind        string    `json:"kind"`
	FromStatus  Status    `json:"from_status,omitempty"`
	ToStatus    Status    `json:"to_status"`
	Actor       string    `json:"actor"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	TxID        string    `json:"tx_id"`
	Confirmed   bool      `json:"confirmed"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TransitionReceipt proves a lifecycle transition was durably committed.
// Retried duplicates of the same logical transition get the original receipt back.
type TransitionReceipt struct {
	ReceiptID   string    `json:"receipt_id"`
	AssetID     int64     `json:"asset_id"`
	Kind        string    `json:"kind"`
	TxID        string    `json:"tx_id"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	Actor       string    `json:"actor"`
	CommittedAt time.Time `json:"committed_at"`
}

// AssetHistory is an asset with its full transition trail in chronological order.
type AssetHistory struct {
	Asset       Asset              `json:"asset"`
	Transitions []TransitionRecord `json:"transitions"`
}

// StatusSummary counts assets per lifecycle status.
type StatusSummary struct {
	Registered int64 `json:"registered"`
	Sanitized  int64 `json:"sanitized"`
	Recycled   int64 `json:"recycled"`
	Total      int64 `json:"total"`
}
