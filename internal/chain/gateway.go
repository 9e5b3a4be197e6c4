// Package chain talks to the recycling ledger's chain gateway and to wallet
// signers. The gateway is the transport of record: a transition only counts
// once the gateway has accepted it and handed back a transaction id.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/recychain/recychain/internal/ledger"
)

// Gateway submits signed transitions to the chain gateway over HTTP.
type Gateway struct {
	BaseURL string
	HTTP    *http.Client
}

func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ ledger.Transport = (*Gateway)(nil)

// Submit posts the signed transition. A 409 or 422 from the gateway means the
// contract rejected the transition and the reason is surfaced verbatim as a
// RevertedError; anything else that goes wrong is a retryable TransportError.
func (g *Gateway) Submit(ctx context.Context, st ledger.SignedTransition) (string, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return "", &ledger.TransportError{Op: "submit", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/transactions", bytes.NewReader(b))
	if err != nil {
		return "", &ledger.TransportError{Op: "submit", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", &ledger.TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		var out struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Error == "" {
			out.Error = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		return "", &ledger.RevertedError{Reason: out.Error}
	case resp.StatusCode >= 300:
		return "", &ledger.TransportError{Op: "submit", Err: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	}

	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ledger.TransportError{Op: "submit", Err: err}
	}
	if out.TxID == "" {
		return "", &ledger.TransportError{Op: "submit", Err: errors.New("gateway response missing tx_id")}
	}
	return out.TxID, nil
}

// Confirm reports whether the transaction has been finalized on chain.
// An unknown transaction is simply not confirmed yet, not an error.
func (g *Gateway) Confirm(ctx context.Context, txID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.BaseURL+"/v1/transactions/"+url.PathEscape(txID), nil)
	if err != nil {
		return false, &ledger.TransportError{Op: "confirm", Err: err}
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return false, &ledger.TransportError{Op: "confirm", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, &ledger.TransportError{Op: "confirm", Err: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, &ledger.TransportError{Op: "confirm", Err: err}
	}
	return out.Status == "confirmed", nil
}
