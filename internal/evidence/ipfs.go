package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IPFSStore stores evidence on an IPFS node through its HTTP API. Refs are
// the CIDs the node assigns, so they stay valid across nodes pinning the
// same content.
type IPFSStore struct {
	BaseURL string
	HTTP    *http.Client
}

func NewIPFSStore(apiURL string) *IPFSStore {
	return &IPFSStore{
		BaseURL: strings.TrimRight(strings.TrimSpace(apiURL), "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Store = (*IPFSStore)(nil)

func (s *IPFSStore) Put(ctx context.Context, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "evidence")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: %s", apiError(resp))
	}

	var out struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: response missing hash")
	}
	return out.Hash, nil
}

func (s *IPFSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/api/v0/cat?arg="+url.QueryEscape(ref), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusInternalServerError:
		// Kubo reports unknown CIDs as 500 with a Message body.
		msg := apiError(resp)
		if strings.Contains(msg, "not found") || strings.Contains(msg, "no link named") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ipfs cat: %s", msg)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ipfs cat: %s", apiError(resp))
	}
	return io.ReadAll(resp.Body)
}

// apiError extracts the node's Message field, falling back to the status.
func apiError(resp *http.Response) string {
	var out struct {
		Message string `json:"Message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Message != "" {
		return out.Message
	}
	return resp.Status
}
