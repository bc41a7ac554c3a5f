package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxBatchSize = 16
	defaultTimeout      = 60 * time.Second
)

// Client calls a remote embedding provider over HTTP. Requests are batched
// up to the provider's maximum batch size; a failed batch falls back to
// one-at-a-time so a single poisoned input does not sink the whole batch.
// An LRU cache in front of the API avoids re-embedding repeated text.
type Client struct {
	cfg        ProviderConfig
	adapter    ResponseAdapter
	httpClient *http.Client
	cache      *Cache
}

// NewClient creates an embedding client for the given provider config.
// cacheSize <= 0 disables caching.
func NewClient(cfg ProviderConfig, cacheSize int) (*Client, error) {
	adapter, err := AdapterFor(cfg.Family)
	if err != nil {
		return nil, err
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("provider %q: dimensions must be positive", cfg.ID)
	}
	var cache *Cache
	if cacheSize > 0 {
		cache = NewCache(cacheSize)
	}
	return &Client{
		cfg:        cfg,
		adapter:    adapter,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      cache,
	}, nil
}

// Embed returns the embedding for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for texts in order. Cached texts are not
// re-sent; the remainder goes out in provider-sized batches.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if c.cache != nil {
			if vec, ok := c.cache.Get(text); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}

	batchSize := c.cfg.MaxBatchSize
	if batchSize <= 0 {
		batchSize = defaultMaxBatchSize
	}
	for start := 0; start < len(missing); start += batchSize {
		end := start + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		idxs := missing[start:end]
		batch := make([]string, len(idxs))
		for j, i := range idxs {
			batch[j] = texts[i]
		}
		vecs, err := c.embedOnce(ctx, batch)
		if err != nil {
			vecs, err = c.embedSingly(ctx, batch, err)
			if err != nil {
				return nil, err
			}
		}
		for j, i := range idxs {
			out[i] = vecs[j]
			if c.cache != nil {
				c.cache.Set(texts[i], vecs[j])
			}
		}
	}
	return out, nil
}

// embedSingly retries a failed batch one text at a time. Auth, dimension,
// and cancellation errors are not retried: they will fail identically.
func (c *Client) embedSingly(ctx context.Context, batch []string, batchErr error) ([][]float32, error) {
	if len(batch) <= 1 || ctx.Err() != nil {
		return nil, batchErr
	}
	if errors.Is(batchErr, ErrAuth) || errors.Is(batchErr, ErrDimensionMismatch) {
		return nil, batchErr
	}
	out := make([][]float32, len(batch))
	for i, text := range batch {
		vecs, err := c.embedOnce(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		out[i] = vecs[0]
	}
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(c.adapter.BuildRequest(c.cfg.Model, input))
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: provider %q returned %d", ErrAuth, c.cfg.ID, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: provider %q", ErrRateLimited, c.cfg.ID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("embedding API returned %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	vecs, err := c.adapter.ParseResponse(respBody)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(input) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(vecs), len(input))
	}
	for i, v := range vecs {
		if len(v) != c.cfg.Dimensions {
			return nil, fmt.Errorf("%w: input %d got %d dims, want %d", ErrDimensionMismatch, i, len(v), c.cfg.Dimensions)
		}
	}
	return vecs, nil
}

// Dimensions returns the provider's declared embedding dimension.
func (c *Client) Dimensions() int {
	return c.cfg.Dimensions
}

// Close is a no-op for the HTTP client.
func (c *Client) Close() error {
	return nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
