package chain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/recychain/recychain/internal/ledger"
)

// LocalSigner authorizes transitions with a service-held HMAC key. It never
// prompts anyone, so it cannot reject or time out; use it for headless
// deployments and tests.
type LocalSigner struct {
	address string
	key     []byte

	now func() time.Time
}

func NewLocalSigner(address, key string) *LocalSigner {
	return &LocalSigner{address: address, key: []byte(key), now: time.Now}
}

var _ ledger.Signer = (*LocalSigner)(nil)

func (s *LocalSigner) Identity() string { return s.address }

func (s *LocalSigner) Authorize(_ context.Context, p ledger.TransitionPayload) (ledger.SignedTransition, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(b)
	return ledger.SignedTransition{
		Payload:   p,
		Signer:    s.address,
		Signature: hex.EncodeToString(mac.Sum(nil)),
		SignedAt:  s.now().UTC(),
	}, nil
}

// RemoteSigner forwards payloads to a wallet daemon that prompts the holder
// for approval. A 403 means the holder declined; a missed deadline means the
// prompt expired and the caller may retry.
type RemoteSigner struct {
	BaseURL string
	HTTP    *http.Client
	address string
	timeout time.Duration
}

func NewRemoteSigner(baseURL, address string, timeout time.Duration) *RemoteSigner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteSigner{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{},
		address: address,
		timeout: timeout,
	}
}

var _ ledger.Signer = (*RemoteSigner)(nil)

func (s *RemoteSigner) Identity() string { return s.address }

func (s *RemoteSigner) Authorize(ctx context.Context, p ledger.TransitionPayload) (ledger.SignedTransition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := json.Marshal(p)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v1/sign", bytes.NewReader(b))
	if err != nil {
		return ledger.SignedTransition{}, &ledger.TransportError{Op: "sign", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ledger.SignedTransition{}, fmt.Errorf("%w: wallet did not respond within %s", ledger.ErrAuthTimeout, s.timeout)
		}
		return ledger.SignedTransition{}, &ledger.TransportError{Op: "sign", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		var out struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Error != "" {
			return ledger.SignedTransition{}, fmt.Errorf("%w: %s", ledger.ErrUserRejected, out.Error)
		}
		return ledger.SignedTransition{}, ledger.ErrUserRejected
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return ledger.SignedTransition{}, fmt.Errorf("%w: wallet returned %d", ledger.ErrAuthTimeout, resp.StatusCode)
	case resp.StatusCode >= 300:
		return ledger.SignedTransition{}, &ledger.TransportError{Op: "sign", Err: fmt.Errorf("wallet returned %d", resp.StatusCode)}
	}

	var out struct {
		Signer    string    `json:"signer"`
		Signature string    `json:"signature"`
		SignedAt  time.Time `json:"signed_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ledger.SignedTransition{}, &ledger.TransportError{Op: "sign", Err: err}
	}
	if out.Signature == "" {
		return ledger.SignedTransition{}, &ledger.TransportError{Op: "sign", Err: errors.New("wallet response missing signature")}
	}
	if out.Signer == "" {
		out.Signer = s.address
	}
	if out.SignedAt.IsZero() {
		out.SignedAt = time.Now().UTC()
	}
	return ledger.SignedTransition{
		Payload:   p,
		Signer:    out.Signer,
		Signature: out.Signature,
		SignedAt:  out.SignedAt,
	}, nil
}
