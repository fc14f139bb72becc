// Package entropy provides the random sources the outcome generator draws from.
// Seeded sources make every draw reproducible; the random.org client pools true
// random fractions and falls back to crypto/rand when the API is unavailable.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// IntRange returns a uniform integer in [lo, hi].
func IntRange(src Source, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	v := lo + int64(src.Float64()*float64(hi-lo+1))
	if v > hi {
		return hi
	}
	return v
}

// Uniform returns a uniform float in [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Seeded is a deterministic source. Safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source from seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float64 returns the next float in [0, 1).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Fixed replays a scripted sequence of draws, cycling when exhausted.
type Fixed struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewFixed creates a scripted source. An empty script always yields 0.
func NewFixed(values ...float64) *Fixed {
	return &Fixed{values: values}
}

// Float64 returns the next scripted value.
func (f *Fixed) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0
	}
	v := f.values[f.next%len(f.values)]
	f.next++
	return v
}

// Drawn returns how many values have been consumed.
func (f *Fixed) Drawn() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// Float64 returns a crypto-random float in [0, 1).
func (Crypto) Float64() float64 { return cryptoRandFloat() }

// Client provides true random numbers from random.org with a local pool.
// Draws never wait on the network: the pool is refilled in the background and
// crypto/rand covers any draw made while it is empty.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	pool      []float64
	refilling bool
	retryAt   time.Time     // no background refill before this
	backoff   time.Duration // doubles after each failed refill
}

const (
	randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"

	lowWater   = 10
	batchSize  = 100
	minBackoff = 5 * time.Second
	maxBackoff = 5 * time.Minute
)

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at another JSON-RPC endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient replaces the HTTP client used for refills.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		return nil
	}
	c := &Client{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Float64 returns a random float64 in [0, 1) from the pool. A low pool starts
// a background refill; an empty one falls back to crypto/rand.
func (c *Client) Float64() float64 {
	if c == nil {
		return Crypto{}.Float64()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < lowWater {
		c.startRefillLocked()
	}

	if len(c.pool) == 0 {
		return Crypto{}.Float64()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) startRefillLocked() {
	if c.refilling || c.now().Before(c.retryAt) {
		return
	}
	c.refilling = true
	go func() {
		c.Refill(context.Background())
	}()
}

// Refill fetches one batch from random.org and adds it to the pool. It blocks
// on the network, so callers holding other locks must not use it; Float64
// calls it from a goroutine. A failure pushes the next background attempt
// back by an exponentially growing delay.
func (c *Client) Refill(ctx context.Context) error {
	data, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refilling = false

	if err != nil {
		c.backoff = min(max(2*c.backoff, minBackoff), maxBackoff)
		c.retryAt = c.now().Add(c.backoff)
		slog.Debug("random.org refill failed", "error", err, "retry_in", c.backoff)
		return err
	}

	c.backoff = 0
	c.retryAt = time.Time{}
	c.pool = append(c.pool, data...)
	slog.Debug("random.org pool refilled", "count", len(data))
	return nil
}

func (c *Client) fetch(ctx context.Context) ([]float64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             batchSize,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("api error: %s", result.Error.Message)
	}
	if len(result.Result.Random.Data) == 0 {
		return nil, errors.New("empty batch")
	}
	return result.Result.Random.Data, nil
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// FromConfig picks the source for a running game: random.org when a key is
// configured, a seeded source when seed is set, otherwise crypto/rand.
func FromConfig(apiKey string, seed int64) Source {
	if c := NewClient(apiKey); c.Enabled() {
		return c
	}
	if seed != 0 {
		return NewSeeded(seed)
	}
	return Crypto{}
}
