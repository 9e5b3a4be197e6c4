package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/recychain/recychain/internal/ledger"
	"github.com/recychain/recychain/internal/models"
)

func signedFixture() ledger.SignedTransition {
	return ledger.SignedTransition{
		Payload: ledger.TransitionPayload{
			Kind:        models.KindSanitize,
			AssetID:     7,
			EvidenceRef: "bafy123",
			Actor:       "0xtech",
		},
		Signer:    "0xservice",
		Signature: "deadbeef",
	}
}

func TestGateway_Submit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transactions" {
			http.NotFound(w, r)
			return
		}
		var st ledger.SignedTransition
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			t.Errorf("decode submitted transition: %v", err)
		}
		if st.Payload.AssetID != 7 || st.Signature != "deadbeef" {
			t.Errorf("unexpected submission: %+v", st)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tx_id":"0xabc123"}`))
	}))
	defer ts.Close()

	g := NewGateway(ts.URL)
	txID, err := g.Submit(context.Background(), signedFixture())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if txID != "0xabc123" {
		t.Fatalf("unexpected tx id: %s", txID)
	}
}

func TestGateway_Submit_Reverted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"asset already recycled"}`))
	}))
	defer ts.Close()

	g := NewGateway(ts.URL)
	_, err := g.Submit(context.Background(), signedFixture())
	var re *ledger.RevertedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RevertedError, got %v", err)
	}
	if re.Reason != "asset already recycled" {
		t.Errorf("reason: got %q", re.Reason)
	}
	if ledger.Retryable(err) {
		t.Error("reverted must not be retryable")
	}
}

func TestGateway_Submit_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	g := NewGateway(ts.URL)
	_, err := g.Submit(context.Background(), signedFixture())
	var te *ledger.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Op != "submit" {
		t.Errorf("op: got %q", te.Op)
	}
	if !ledger.Retryable(err) {
		t.Error("transport errors must be retryable")
	}
}

func TestGateway_Submit_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // refuse connections

	g := NewGateway(ts.URL)
	_, err := g.Submit(context.Background(), signedFixture())
	var te *ledger.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestGateway_Confirm(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/transactions/0xabc":
			_, _ = w.Write([]byte(`{"status":"confirmed"}`))
		case "/v1/transactions/0xdef":
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	g := NewGateway(ts.URL)
	ok, err := g.Confirm(context.Background(), "0xabc")
	if err != nil || !ok {
		t.Fatalf("confirmed tx: ok=%v err=%v", ok, err)
	}
	ok, err = g.Confirm(context.Background(), "0xdef")
	if err != nil || ok {
		t.Fatalf("pending tx: ok=%v err=%v", ok, err)
	}
	ok, err = g.Confirm(context.Background(), "0xmissing")
	if err != nil || ok {
		t.Fatalf("unknown tx: ok=%v err=%v", ok, err)
	}
}
