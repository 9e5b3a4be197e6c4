package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/recychain/recychain/internal/models"
)

var (
	admin  = models.Actor{Address: "0xadmin", Username: "root", Role: models.RoleAdmin}
	tech   = models.Actor{Address: "0xtech", Username: "tech1", Role: models.RoleTechnician}
	viewer = models.Actor{Address: "0xviewer", Username: "guest", Role: models.RoleViewer}
)

// stubSigner authorizes everything unless err is set.
type stubSigner struct {
	identity string
	err      error
}

func (s *stubSigner) Identity() string { return s.identity }

func (s *stubSigner) Authorize(_ context.Context, p TransitionPayload) (SignedTransition, error) {
	if s.err != nil {
		return SignedTransition{}, s.err
	}
	return SignedTransition{Payload: p, Signer: s.identity, Signature: "stub", SignedAt: time.Now()}, nil
}

// stubTransport assigns sequential tx ids and counts submissions.
type stubTransport struct {
	mu      sync.Mutex
	submits int
	err     error
}

func (t *stubTransport) Submit(_ context.Context, _ SignedTransition) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.submits++
	return fmt.Sprintf("tx-%d", t.submits), nil
}

func (t *stubTransport) Confirm(_ context.Context, _ string) (bool, error) { return true, nil }

func (t *stubTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submits
}

type captorPublisher struct {
	mu     sync.Mutex
	events []TransitionEvent
}

func (p *captorPublisher) Publish(_ context.Context, ev TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *captorPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestLedger(t *testing.T) (*Ledger, *stubTransport, *captorPublisher) {
	t.Helper()
	tp := &stubTransport{}
	pub := &captorPublisher{}
	l := New(NewMemStore(), &stubSigner{identity: "0xservice"}, tp, pub, Config{})
	return l, tp, pub
}

// TestLifecycle_Scenario walks the full register -> sanitize -> recycle path,
// including the failure branches along the way.
func TestLifecycle_Scenario(t *testing.T) {
	l, _, pub := newTestLedger(t)
	ctx := context.Background()

	asset, err := l.Register(ctx, "SN-001", "Dell 7090", admin)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if asset.ID != 1 || asset.Status != models.StatusRegistered {
		t.Fatalf("unexpected asset after register: %+v", asset)
	}
	if asset.Owner != admin.Address {
		t.Errorf("owner: got %q, want %q", asset.Owner, admin.Address)
	}
	if asset.RegisteredAt.IsZero() || asset.SanitizedAt != nil || asset.RecycledAt != nil {
		t.Errorf("unexpected timestamps after register: %+v", asset)
	}

	// Missing evidence is rejected locally.
	if _, err := l.RecordSanitization(ctx, asset.ID, "", tech); !errors.Is(err, ErrMissingEvidence) {
		t.Errorf("sanitize without evidence: got %v, want ErrMissingEvidence", err)
	}
	if _, err := l.RecordSanitization(ctx, asset.ID, "   ", tech); !errors.Is(err, ErrMissingEvidence) {
		t.Errorf("sanitize with blank evidence: got %v, want ErrMissingEvidence", err)
	}

	// Recycling before sanitization skips a step.
	if _, err := l.RecycleAsset(ctx, asset.ID, tech); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("recycle before sanitize: got %v, want ErrInvalidTransition", err)
	}

	rcpt, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
	if err != nil {
		t.Fatalf("RecordSanitization: %v", err)
	}
	if rcpt.TxID == "" || rcpt.ReceiptID == "" {
		t.Errorf("receipt missing identifiers: %+v", rcpt)
	}
	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Status != models.StatusSanitized || got.EvidenceRef != "bafy123" || got.SanitizedAt == nil {
		t.Fatalf("unexpected asset after sanitize: %+v", got)
	}

	// Sanitizing twice with different evidence is not a retry.
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy456", tech); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second sanitize: got %v, want ErrInvalidTransition", err)
	}

	if _, err := l.RecycleAsset(ctx, asset.ID, tech); err != nil {
		t.Fatalf("RecycleAsset: %v", err)
	}
	got, _ = l.GetAsset(ctx, asset.ID)
	if got.Status != models.StatusRecycled || got.RecycledAt == nil {
		t.Fatalf("unexpected asset after recycle: %+v", got)
	}
	if got.EvidenceRef != "bafy123" {
		t.Errorf("evidence must stay bound after recycle: %q", got.EvidenceRef)
	}

	// Terminal state: nothing advances out of Recycled.
	if _, err := l.RecycleAsset(ctx, asset.ID, admin); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("recycle of recycled asset: got %v, want ErrInvalidTransition", err)
	}

	if kinds := pub.kinds(); len(kinds) != 3 ||
		kinds[0] != models.KindRegister || kinds[1] != models.KindSanitize || kinds[2] != models.KindRecycle {
		t.Errorf("unexpected published events: %v", kinds)
	}
}

func TestRegister_Validation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Register(ctx, "  ", "Dell", admin); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank serial: got %v, want ErrInvalidInput", err)
	}
	if _, err := l.Register(ctx, "SN-1", "\t ", admin); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank model: got %v, want ErrInvalidInput", err)
	}
	if _, err := l.Register(ctx, "SN-1", "Dell", tech); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("technician register: got %v, want ErrUnauthorized", err)
	}
	if _, err := l.Register(ctx, "SN-1", "Dell", viewer); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("viewer register: got %v, want ErrUnauthorized", err)
	}
}

func TestRegister_TrimsInput(t *testing.T) {
	l, _, _ := newTestLedger(t)

	asset, err := l.Register(context.Background(), "  SN-9 ", " ThinkPad X1 ", admin)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if asset.SerialNumber != "SN-9" || asset.Model != "ThinkPad X1" {
		t.Errorf("input not trimmed: %+v", asset)
	}
}

func TestRegister_DuplicateSerial(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Register(ctx, "SN-1", "Dell", admin); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := l.Register(ctx, "SN-1", "HP", admin); !errors.Is(err, ErrDuplicateSerialNumber) {
		t.Errorf("duplicate register: got %v, want ErrDuplicateSerialNumber", err)
	}
	// Serial numbers stay taken even after the asset reaches terminal status.
	a2, _ := l.Register(ctx, "SN-2", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, a2.ID, "ref", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if _, err := l.RecycleAsset(ctx, a2.ID, tech); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if _, err := l.Register(ctx, "SN-2", "Dell", admin); !errors.Is(err, ErrDuplicateSerialNumber) {
		t.Errorf("re-register of recycled serial: got %v, want ErrDuplicateSerialNumber", err)
	}
}

// TestRegister_ConcurrentDuplicateSerial races N registrations of one serial:
// exactly one must win.
func TestRegister_ConcurrentDuplicateSerial(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Register(ctx, "SN-RACE", "Dell", admin)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateSerialNumber):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Fatalf("got %d successes and %d duplicates, want 1 and %d", ok, dup, n-1)
	}
}

// TestSanitize_IdempotentRetry retries the identical sanitization after it
// succeeded: the original receipt comes back, the asset is mutated exactly
// once, and nothing is resubmitted to the transport.
func TestSanitize_IdempotentRetry(t *testing.T) {
	l, tp, _ := newTestLedger(t)
	ctx := context.Background()

	asset, err := l.Register(ctx, "SN-1", "Dell", admin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	submitsBefore := tp.count()

	first, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
	if err != nil {
		t.Fatalf("first sanitize: %v", err)
	}
	second, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
	if err != nil {
		t.Fatalf("retried sanitize: %v", err)
	}
	if first.ReceiptID != second.ReceiptID || first.TxID != second.TxID {
		t.Errorf("retry returned a different receipt: %+v vs %+v", first, second)
	}
	if got := tp.count() - submitsBefore; got != 1 {
		t.Errorf("transport submits for two calls: got %d, want 1", got)
	}

	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Status != models.StatusSanitized {
		t.Errorf("asset mutated incorrectly: %+v", got)
	}
	hist, _ := l.GetHistory(ctx, asset.ID)
	var sanitizeRecords int
	for _, rec := range hist.Transitions {
		if rec.Kind == models.KindSanitize {
			sanitizeRecords++
		}
	}
	if sanitizeRecords != 1 {
		t.Errorf("sanitize recorded %d times, want 1", sanitizeRecords)
	}
}

// A retry by a different actor is not the same logical transition.
func TestSanitize_RetryDifferentActorNotReplayed(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	other := models.Actor{Address: "0xtech2", Username: "tech2", Role: models.RoleTechnician}
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", other); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("different actor: got %v, want ErrInvalidTransition", err)
	}
}

func TestRecycle_IdempotentRetry(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	first, err := l.RecycleAsset(ctx, asset.ID, tech)
	if err != nil {
		t.Fatalf("first recycle: %v", err)
	}
	second, err := l.RecycleAsset(ctx, asset.ID, tech)
	if err != nil {
		t.Fatalf("retried recycle: %v", err)
	}
	if first.ReceiptID != second.ReceiptID {
		t.Errorf("retry returned a different receipt")
	}
}

// TestIdempotencyWindowExpiry advances the clock past the window: the retry
// is no longer absorbed and surfaces ErrInvalidTransition.
func TestIdempotencyWindowExpiry(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}

	// Inside the window the retry replays.
	l.now = func() time.Time { return base.Add(30 * time.Minute) }
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("retry inside window: %v", err)
	}

	// Past the window it does not.
	l.now = func() time.Time { return base.Add(DefaultIdempotencyWindow + time.Minute) }
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("retry past window: got %v, want ErrInvalidTransition", err)
	}
}

// TestConcurrentSameTransition races two identical sanitize calls: both end
// with the same receipt and the asset transitions exactly once.
func TestConcurrentSameTransition(t *testing.T) {
	l, tp, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	submitsBefore := tp.count()

	var wg sync.WaitGroup
	receipts := make([]models.TransitionReceipt, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if receipts[0].ReceiptID != receipts[1].ReceiptID {
		t.Errorf("concurrent duplicates got different receipts: %q vs %q",
			receipts[0].ReceiptID, receipts[1].ReceiptID)
	}
	if got := tp.count() - submitsBefore; got != 1 {
		t.Errorf("transport submits: got %d, want 1", got)
	}
}

// Concurrent transitions by different actors are not duplicates: the loser
// observes ErrInvalidTransition, never a torn state.
func TestConcurrentDifferentActors(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	other := models.Actor{Address: "0xtech2", Username: "tech2", Role: models.RoleTechnician}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	actors := []models.Actor{tech, other}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.RecordSanitization(ctx, asset.ID, "bafy123", actors[i])
		}(i)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidTransition):
			invalid++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Fatalf("got %d ok / %d invalid, want 1 / 1", ok, invalid)
	}
	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Status != models.StatusSanitized || got.SanitizedAt == nil {
		t.Fatalf("torn state after race: %+v", got)
	}
}

// TestTransportFailure_NoMutation: a failed submit leaves the asset in its
// pre-transition status and the error is retryable.
func TestTransportFailure_NoMutation(t *testing.T) {
	l, tp, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)

	tp.err = &TransportError{Op: "submit", Err: errors.New("connection refused")}
	_, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !Retryable(err) {
		t.Errorf("transport failure should be retryable: %v", err)
	}
	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Status != models.StatusRegistered || got.EvidenceRef != "" || got.SanitizedAt != nil {
		t.Fatalf("asset mutated despite transport failure: %+v", got)
	}

	// The retry with the same arguments succeeds once the transport recovers.
	tp.err = nil
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
}

func TestReverted_SurfacedVerbatim(t *testing.T) {
	l, tp, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	tp.err = &RevertedError{Reason: "caller is not contract owner"}

	_, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
	var re *RevertedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RevertedError, got %v", err)
	}
	if re.Reason != "caller is not contract owner" {
		t.Errorf("reason not surfaced verbatim: %q", re.Reason)
	}
	if Retryable(err) {
		t.Error("reverted must not be retryable")
	}
	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Status != models.StatusRegistered {
		t.Fatalf("asset mutated despite revert: %+v", got)
	}
}

func TestSignerRejection(t *testing.T) {
	tp := &stubTransport{}
	sg := &stubSigner{identity: "0xservice"}
	l := New(NewMemStore(), sg, tp, nil, Config{})
	ctx := context.Background()

	asset, err := l.Register(ctx, "SN-1", "Dell", admin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sg.err = ErrUserRejected
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); !errors.Is(err, ErrUserRejected) {
		t.Errorf("got %v, want ErrUserRejected", err)
	}
	if tp.count() != 1 { // only the register reached the transport
		t.Errorf("rejected payload must not be submitted: %d submits", tp.count())
	}

	sg.err = ErrAuthTimeout
	_, err = l.RecordSanitization(ctx, asset.ID, "bafy123", tech)
	if !errors.Is(err, ErrAuthTimeout) {
		t.Errorf("got %v, want ErrAuthTimeout", err)
	}
	if !Retryable(err) {
		t.Error("auth timeout should be retryable")
	}
}

func TestSanitize_AssetNotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)
	if _, err := l.RecordSanitization(context.Background(), 404, "bafy123", tech); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("got %v, want ErrAssetNotFound", err)
	}
}

func TestSanitize_ViewerUnauthorized(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", viewer); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)

	// Non-owner, non-admin cannot transfer.
	if err := l.TransferOwnership(ctx, asset.ID, "0xnew", tech); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-owner transfer: got %v, want ErrUnauthorized", err)
	}
	// The current owner can.
	if err := l.TransferOwnership(ctx, asset.ID, tech.Address, admin); err != nil {
		t.Fatalf("owner transfer: %v", err)
	}
	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Owner != tech.Address {
		t.Errorf("owner: got %q, want %q", got.Owner, tech.Address)
	}
	if got.Status != models.StatusRegistered {
		t.Errorf("transfer must not touch status: %+v", got)
	}

	// Admin override even when not the owner.
	if err := l.TransferOwnership(ctx, asset.ID, "0xwarehouse", admin); err != nil {
		t.Fatalf("admin override transfer: %v", err)
	}

	if err := l.TransferOwnership(ctx, 404, "0xnew", admin); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("missing asset: got %v, want ErrAssetNotFound", err)
	}
	if err := l.TransferOwnership(ctx, asset.ID, "  ", admin); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank new owner: got %v, want ErrInvalidInput", err)
	}
}

// Ownership is orthogonal to lifecycle: transfers work in terminal Recycled.
func TestTransferOwnership_RecycledAsset(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if _, err := l.RecycleAsset(ctx, asset.ID, tech); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if err := l.TransferOwnership(ctx, asset.ID, "0xrecycler", admin); err != nil {
		t.Fatalf("transfer of recycled asset: %v", err)
	}
	got, _ := l.GetAsset(ctx, asset.ID)
	if got.Owner != "0xrecycler" || got.Status != models.StatusRecycled {
		t.Errorf("unexpected asset after terminal transfer: %+v", got)
	}
}

// TestQueryByStatus_PagingDisjoint checks the snapshot-at-offset property:
// assets entering the status between page fetches never duplicate or shift
// rows already served.
func TestQueryByStatus_PagingDisjoint(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	ids := make([]int64, 0, 6)
	for i := 1; i <= 6; i++ {
		a, err := l.Register(ctx, fmt.Sprintf("SN-%d", i), "Dell", admin)
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		ids = append(ids, a.ID)
	}
	// Sanitize out of id order: entry order is 3, 1, 2.
	for _, idx := range []int{2, 0, 1} {
		if _, err := l.RecordSanitization(ctx, ids[idx], fmt.Sprintf("ref-%d", idx), tech); err != nil {
			t.Fatalf("sanitize: %v", err)
		}
	}

	page1, err := l.QueryByStatus(ctx, models.StatusSanitized, 0, 2)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != ids[2] || page1[1].ID != ids[0] {
		t.Fatalf("page1 order: %v", assetIDs(page1))
	}

	// An asset entering the status after page1 was fetched lands after the
	// current boundary, never inside page1.
	if _, err := l.RecordSanitization(ctx, ids[3], "ref-3", tech); err != nil {
		t.Fatalf("sanitize between pages: %v", err)
	}

	page2, err := l.QueryByStatus(ctx, models.StatusSanitized, 2, 2)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2) != 2 || page2[0].ID != ids[1] || page2[1].ID != ids[3] {
		t.Fatalf("page2 order: %v", assetIDs(page2))
	}
	for _, a := range page1 {
		for _, b := range page2 {
			if a.ID == b.ID {
				t.Fatalf("pages overlap on id %d", a.ID)
			}
		}
	}

	// Earlier pages are unchanged by the addition.
	again, err := l.QueryByStatus(ctx, models.StatusSanitized, 0, 2)
	if err != nil {
		t.Fatalf("page1 refetch: %v", err)
	}
	if len(again) != 2 || again[0].ID != page1[0].ID || again[1].ID != page1[1].ID {
		t.Fatalf("page1 shifted after addition: %v vs %v", assetIDs(again), assetIDs(page1))
	}
}

func TestQueryByStatus_EmptyAndInvalid(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	assets, err := l.QueryByStatus(ctx, models.StatusRecycled, 0, 10)
	if err != nil {
		t.Fatalf("empty query: %v", err)
	}
	if assets == nil || len(assets) != 0 {
		t.Errorf("empty result must be an empty sequence, got %v", assets)
	}

	if _, err := l.QueryByStatus(ctx, models.Status("Sold"), 0, 10); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("invalid status: got %v, want ErrInvalidInput", err)
	}
}

func TestGetHistory(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	asset, _ := l.Register(ctx, "SN-1", "Dell", admin)
	if _, err := l.RecordSanitization(ctx, asset.ID, "bafy123", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if err := l.TransferOwnership(ctx, asset.ID, "0xrecycler", admin); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := l.RecycleAsset(ctx, asset.ID, tech); err != nil {
		t.Fatalf("recycle: %v", err)
	}

	hist, err := l.GetHistory(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	wantKinds := []string{models.KindRegister, models.KindSanitize, models.KindTransfer, models.KindRecycle}
	if len(hist.Transitions) != len(wantKinds) {
		t.Fatalf("transition count: got %d, want %d", len(hist.Transitions), len(wantKinds))
	}
	for i, rec := range hist.Transitions {
		if rec.Kind != wantKinds[i] {
			t.Errorf("transition %d: got kind %q, want %q", i, rec.Kind, wantKinds[i])
		}
		if rec.Actor == "" || rec.OccurredAt.IsZero() {
			t.Errorf("transition %d missing actor/timestamp: %+v", i, rec)
		}
	}
	if hist.Transitions[1].EvidenceRef != "bafy123" {
		t.Errorf("sanitize record missing evidence: %+v", hist.Transitions[1])
	}

	if _, err := l.GetHistory(ctx, 404); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("missing asset: got %v, want ErrAssetNotFound", err)
	}
}

func TestSummary(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := l.Register(ctx, fmt.Sprintf("SN-%d", i), "Dell", admin); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if _, err := l.RecordSanitization(ctx, 1, "r1", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if _, err := l.RecordSanitization(ctx, 2, "r2", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if _, err := l.RecycleAsset(ctx, 1, tech); err != nil {
		t.Fatalf("recycle: %v", err)
	}

	s, err := l.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := models.StatusSummary{Registered: 2, Sanitized: 1, Recycled: 1, Total: 4}
	if s != want {
		t.Errorf("summary: got %+v, want %+v", s, want)
	}
}

func TestRecentTransitions(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	a1, _ := l.Register(ctx, "SN-1", "Dell", admin)
	a2, _ := l.Register(ctx, "SN-2", "HP", admin)
	if _, err := l.RecordSanitization(ctx, a1.ID, "ref", tech); err != nil {
		t.Fatalf("sanitize: %v", err)
	}

	recent, err := l.RecentTransitions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("RecentTransitions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d records, want 2", len(recent))
	}
	if recent[0].Kind != models.KindSanitize || recent[0].AssetID != a1.ID {
		t.Errorf("newest record wrong: %+v", recent[0])
	}
	if recent[1].Kind != models.KindRegister || recent[1].AssetID != a2.ID {
		t.Errorf("second record wrong: %+v", recent[1])
	}
}

func assetIDs(assets []models.Asset) []int64 {
	out := make([]int64, len(assets))
	for i, a := range assets {
		out[i] = a.ID
	}
	return out
}
