package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TobiSchelling/painscout/internal/retry"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "llama3" {
			t.Errorf("expected model llama3, got %v", body["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": "YNY"}})
	}))
	defer srv.Close()

	out, err := NewOllamaProvider("llama3", srv.URL+"/").Generate(context.Background(), "classify", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "YNY" {
		t.Errorf("expected YNY, got %q", out)
	}
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"index": 1, "embedding": []float64{0, 1}},
			{"index": 0, "embedding": []float64{1, 0}},
		}})
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{Model: "text-embedding-3-small", APIKey: "sk-test", BaseURL: srv.URL, client: srv.Client()}
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("embeddings not ordered by index: %v", vecs)
	}
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"index": 0, "embedding": []float64{1}}}})
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{Model: "m", APIKey: "k", BaseURL: srv.URL, client: srv.Client()}
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error on count mismatch")
	}
}

type flakyProvider struct {
	errs  []error
	calls int
}

func (f *flakyProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return "", f.errs[f.calls-1]
	}
	return "ok", nil
}

func (f *flakyProvider) IsConfigured() bool { return true }

func TestRetryingRecoversFromServerErrors(t *testing.T) {
	fp := &flakyProvider{errs: []error{&StatusError{Provider: "x", Code: 503}}}
	p := WithRetry(fp, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	out, err := p.Generate(context.Background(), "p", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || fp.calls != 2 {
		t.Errorf("expected ok after 2 calls, got %q after %d", out, fp.calls)
	}
}

func TestRetryingSkipsClientErrors(t *testing.T) {
	fp := &flakyProvider{errs: []error{&StatusError{Provider: "x", Code: 400}}}
	p := WithRetry(fp, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	if _, err := p.Generate(context.Background(), "p", 1); err == nil {
		t.Fatal("expected error")
	}
	if fp.calls != 1 {
		t.Errorf("expected 1 call, got %d", fp.calls)
	}
}

func TestTransient(t *testing.T) {
	if Transient(ErrNotConfigured) {
		t.Error("missing credentials should not be retried")
	}
	if !Transient(&StatusError{Code: 429}) {
		t.Error("429 should be retried")
	}
	if !Transient(errors.New("connection reset")) {
		t.Error("network errors should be retried")
	}
}

func TestWithRetryNil(t *testing.T) {
	if WithRetry(nil, retry.DefaultPolicy) != nil {
		t.Error("expected nil provider to stay nil")
	}
}
