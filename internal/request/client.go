// Package request is the low-level HTTP layer shared by all collaborator
// clients. It deduplicates identical in-flight requests, supports
// cancellation by key, retries transient failures with exponential backoff,
// and transparently attaches/refreshes the access token.
package request

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Config tunes the client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Offline        OfflinePolicy
}

// Request describes one HTTP call. A non-nil Body is JSON-encoded.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Auth   bool
}

// Response is a settled HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// call is one in-flight request shared by all deduplicated subscribers.
type call struct {
	done   chan struct{}
	cancel context.CancelFunc
	resp   *Response
	err    error
	reason error // set by Cancel before cancelling the context
}

// Client is the request layer. Safe for concurrent use.
type Client struct {
	http   *http.Client
	cfg    Config
	tokens *TokenManager
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

// New creates a client. tokens may be nil for unauthenticated use.
func New(cfg Config, tokens *TokenManager, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		tokens:   tokens,
		logger:   logger,
		inflight: make(map[string]*call),
	}
}

// Key returns the dedup key for a request: method plus normalized URL and
// sorted query params, plus a digest of the encoded body when one is set.
// Two requests coalesce only when they would put identical bytes on the
// wire.
func Key(req Request) string {
	q := ""
	if len(req.Query) > 0 {
		q = "?" + req.Query.Encode()
	}
	key := req.Method + " " + strings.TrimSuffix(req.Path, "/") + q
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			// Unencodable bodies fail later in execute; keep them apart.
			raw = []byte(fmt.Sprintf("%#v", req.Body))
		}
		sum := sha256.Sum256(raw)
		key += " " + hex.EncodeToString(sum[:8])
	}
	return key
}

// Do issues a request. Concurrent identical requests share one underlying
// call and all receive the same result; the registry entry is removed once
// the call settles.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	key := Key(req)

	c.mu.Lock()
	if existing, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.resp, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	callCtx, cancel := context.WithCancel(ctx)
	cl := &call{done: make(chan struct{}), cancel: cancel}
	c.inflight[key] = cl
	c.mu.Unlock()

	resp, err := c.execute(callCtx, req)

	c.mu.Lock()
	if cl.reason != nil {
		err = cl.reason
		resp = nil
	}
	cl.resp, cl.err = resp, err
	delete(c.inflight, key)
	c.mu.Unlock()
	close(cl.done)
	cancel()

	return resp, err
}

// Cancel aborts the in-flight request under key, rejecting every current
// subscriber with reason (ErrCancelled when nil). Cancelling an unknown key
// is a no-op.
func (c *Client) Cancel(key string, reason error) {
	if reason == nil {
		reason = ErrCancelled
	}
	c.mu.Lock()
	cl, ok := c.inflight[key]
	if ok {
		cl.reason = reason
	}
	c.mu.Unlock()
	if ok {
		cl.cancel()
	}
}

// execute runs the request with bounded exponential-backoff retries for
// transient failures. When connectivity is already known to be down the
// request fails fast instead of burning attempts against a dead link.
func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.Offline.Connectivity != nil && !c.cfg.Offline.Connectivity() {
		return nil, &TransportError{Err: fmt.Errorf("connectivity reported down")}
	}

	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), retry.NewExponential(c.cfg.RetryBaseDelay))

	var resp *Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.once(ctx, req)
		if err != nil {
			if transient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// once performs a single HTTP round-trip, including the one-shot 401 refresh
// path for authenticated requests.
func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	token := ""
	if req.Auth && c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		token = t
	}

	resp, err := c.roundTrip(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && req.Auth && c.tokens != nil {
		refreshed, refreshErr := c.tokens.ForceRefresh(ctx)
		if refreshErr != nil {
			return nil, &StatusError{Code: http.StatusUnauthorized, Body: string(resp.Body)}
		}
		resp, err = c.roundTrip(ctx, req, refreshed)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(resp.Body)}
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, token string) (*Response, error) {
	u := c.cfg.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: raw}, nil
}

// transient reports whether a failure is worth another attempt: connection
// class errors and 5xx responses. Other status codes propagate immediately.
func transient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
