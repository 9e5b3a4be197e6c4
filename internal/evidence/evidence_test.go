package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMemStore_PutGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	doc := []byte("wipe certificate #42")
	ref, err := s.Put(ctx, bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	sum := sha256.Sum256(doc)
	if want := hex.EncodeToString(sum[:]); ref != want {
		t.Errorf("ref: got %s, want %s", ref, want)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, doc) {
		t.Errorf("content round trip failed: %q", got)
	}

	// Content addressing: same bytes, same ref.
	again, err := s.Put(ctx, bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if again != ref {
		t.Errorf("same content produced different refs: %s vs %s", again, ref)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ref: got %v, want ErrNotFound", err)
	}
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ref, _ := s.Put(ctx, strings.NewReader("original"))
	got, _ := s.Get(ctx, ref)
	got[0] = 'X'

	fresh, _ := s.Get(ctx, ref)
	if string(fresh) != "original" {
		t.Fatalf("stored blob mutated through returned slice: %q", fresh)
	}
}

func TestIPFSStore_Put(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v0/add" {
			http.NotFound(w, r)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if string(b) != "certificate body" {
			t.Errorf("uploaded content: %q", b)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Name":"evidence","Hash":"QmTestCid123","Size":"16"}`))
	}))
	defer ts.Close()

	s := NewIPFSStore(ts.URL)
	ref, err := s.Put(context.Background(), strings.NewReader("certificate body"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "QmTestCid123" {
		t.Errorf("ref: got %s", ref)
	}
}

func TestIPFSStore_Get(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/cat" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("arg") {
		case "QmKnown":
			_, _ = w.Write([]byte("certificate body"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"Message":"merkledag: not found","Code":0}`))
		}
	}))
	defer ts.Close()

	s := NewIPFSStore(ts.URL)
	got, err := s.Get(context.Background(), "QmKnown")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "certificate body" {
		t.Errorf("content: %q", got)
	}

	if _, err := s.Get(context.Background(), "QmMissing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown cid: got %v, want ErrNotFound", err)
	}
}
