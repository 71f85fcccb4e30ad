// Package embedder talks to the embedding provider's HTTP API, batching
// requests and retrying transient failures with exponential backoff.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"github.com/codecompass/core/pkg/config"
)

// Error kinds per spec §7.
type RetryError struct{ Cause error }

func (e *RetryError) Error() string { return fmt.Sprintf("embedder: retries exhausted: %v", e.Cause) }
func (e *RetryError) Unwrap() error { return e.Cause }

type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return "embedder: " + e.Message }

// Client embeds texts over HTTP against a single `<base>/api/embed`
// endpoint, retrying transient failures.
type Client struct {
	cfg        *config.EmbedderConfig
	httpClient *http.Client
	sem        *semaphore.Weighted
	vectorSize int
}

const maxConcurrentBatches = 8

// New builds a Client tuned like the teacher's pooled transport.
func New(cfg *config.EmbedderConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
			Transport: transport,
		},
		sem: semaphore.NewWeighted(maxConcurrentBatches),
	}
}

func (c *Client) embedURL() string {
	return fmt.Sprintf("%s/api/embed", trimTrailingSlash(c.cfg.OllamaURL))
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// requestEmbeddings performs a single POST and validates the response
// shape; it never retries — callers wrap it in the backoff policy.
func (c *Client) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.embedURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // connect/timeout error, retryable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedder: server error %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, backoff.Permanent(fmt.Errorf("embedder: request rejected (%d): %s", resp.StatusCode, string(respBody)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(&ValidationError{Message: fmt.Sprintf("decoding response: %v", err)})
	}

	if len(out.Embeddings) != len(texts) {
		return nil, backoff.Permanent(&ValidationError{
			Message: fmt.Sprintf("got %d embeddings for %d texts", len(out.Embeddings), len(texts)),
		})
	}

	return out.Embeddings, nil
}

// EmbedTexts embeds texts in a single request, retrying transient failures
// per spec §4.E's backoff policy. expectedVectorSize, if non-zero,
// additionally validates the returned dimensionality.
func (c *Client) EmbedTexts(ctx context.Context, texts []string, expectedVectorSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	bo := &fixedExponentialBackoff{baseMs: c.cfg.BackoffBaseMs}

	result, err := backoff.Retry(ctx, func() ([][]float32, error) {
		embeddings, err := c.requestEmbeddings(ctx, texts)
		if err != nil {
			return nil, err
		}
		if expectedVectorSize > 0 && len(embeddings) > 0 && len(embeddings[0]) != expectedVectorSize {
			return nil, backoff.Permanent(&ValidationError{
				Message: fmt.Sprintf("vector size %d != expected %d", len(embeddings[0]), expectedVectorSize),
			})
		}
		return embeddings, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(c.cfg.MaxRetries)))

	if err != nil {
		var ve *ValidationError
		if asValidationError(err, &ve) {
			return nil, ve
		}
		return nil, &RetryError{Cause: err}
	}
	return result, nil
}

// EmbedTextsBatched embeds texts respecting cfg.BatchSize, dispatching
// batches concurrently up to maxConcurrentBatches.
func (c *Client) EmbedTextsBatched(ctx context.Context, texts []string, expectedVectorSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := c.cfg.BatchSize
	numBatches := (len(texts) + batchSize - 1) / batchSize
	results := make([][][]float32, numBatches)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, numBatches)
	for b := 0; b < numBatches; b++ {
		start := b * batchSize
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("embedder: acquiring concurrency slot: %w", err)
		}

		go func(idx, s, e int) {
			defer c.sem.Release(1)
			embeddings, err := c.EmbedTexts(ctx, texts[s:e], expectedVectorSize)
			if err != nil {
				errCh <- err
				cancel()
				return
			}
			results[idx] = embeddings
			errCh <- nil
		}(b, start, end)
	}

	var firstErr error
	for i := 0; i < numBatches; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	all := make([][]float32, 0, len(texts))
	for _, batch := range results {
		all = append(all, batch...)
	}
	return all, nil
}

// ProbeVectorSize discovers the model's vector size by embedding the
// literal "x".
func (c *Client) ProbeVectorSize(ctx context.Context) (int, error) {
	embeddings, err := c.EmbedTexts(ctx, []string{"x"}, 0)
	if err != nil {
		return 0, fmt.Errorf("embedder: probing vector size: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("embedder: empty response while probing vector size")
	}
	c.vectorSize = len(embeddings[0])
	return c.vectorSize, nil
}

// fixedExponentialBackoff implements backoff.BackOff with the spec's exact
// formula: backoffBaseMs * 2^attempt milliseconds.
type fixedExponentialBackoff struct {
	baseMs  int
	attempt int
}

func (b *fixedExponentialBackoff) NextBackOff() time.Duration {
	delay := time.Duration(b.baseMs) * time.Millisecond * time.Duration(1<<uint(b.attempt))
	b.attempt++
	return delay
}

func (b *fixedExponentialBackoff) Reset() { b.attempt = 0 }

func asValidationError(err error, target **ValidationError) bool {
	for err != nil {
		if ve, ok := err.(*ValidationError); ok {
			*target = ve
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
