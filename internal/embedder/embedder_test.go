package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/codecompass/core/pkg/config"
)

func newTestConfig(url string, maxRetries int) *config.EmbedderConfig {
	return &config.EmbedderConfig{
		OllamaURL:      url,
		Model:          "test-model",
		BatchSize:      16,
		MaxRetries:     maxRetries,
		BackoffBaseMs:  1,
		TimeoutSeconds: 5,
	}
}

func TestEmbedTexts_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer server.Close()

	c := New(newTestConfig(server.URL, 3))
	out, err := c.EmbedTexts(context.Background(), []string{"hello"}, 0)
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(out))
	}
}

func TestEmbedTexts_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(newTestConfig(server.URL, 1))
	_, err := c.EmbedTexts(context.Background(), []string{"hello"}, 0)
	if err == nil {
		t.Fatal("expected retry-exhaustion error")
	}
	var retryErr *RetryError
	if !isRetryError(err, &retryErr) {
		t.Errorf("expected *RetryError, got %T: %v", err, err)
	}
}

func TestEmbedTexts_ValidationErrorNeverRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{}})
	}))
	defer server.Close()

	c := New(newTestConfig(server.URL, 5))
	_, err := c.EmbedTexts(context.Background(), []string{"hello"}, 0)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("validation errors must not be retried, got %d calls", calls)
	}
}

func TestEmbedTexts_EmptyInput(t *testing.T) {
	c := New(newTestConfig("http://example.invalid", 1))
	out, err := c.EmbedTexts(context.Background(), nil, 0)
	if err != nil || out != nil {
		t.Errorf("expected (nil, nil) for empty input, got (%v, %v)", out, err)
	}
}

func isRetryError(err error, target **RetryError) bool {
	if re, ok := err.(*RetryError); ok {
		*target = re
		return true
	}
	return false
}
