// Copyright 2026 The Rockshrew Authors
// This file is part of rockshrew-go.
//
// rockshrew-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// rockshrew-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with rockshrew-go. If not, see <http://www.gnu.org/licenses/>.

// Package rpcclient is the thin JSON-RPC client the fetcher uses to pull
// block count, block hashes, and raw blocks from the upstream daemon.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"github.com/rockshrew-go/rockshrew/pkg/rerr"
)

// Client talks to the upstream daemon's JSON-RPC interface (getblockcount,
// getblockhash, getblock), per spec.md §4.3/§6.2.
type Client struct {
	url        string
	auth       string // "user:pass", sent as an HTTP basic-auth header when set
	httpClient *http.Client
	nextID     atomic.Uint64

	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      uint64
}

// Option configures non-default retry timing; only used by tests, which
// need the exhausted-retries path without the spec's real 10-attempt,
// 30s-cap schedule actually elapsing.
type Option func(*Client)

// WithRetryPolicy overrides the exponential-backoff schedule's initial
// delay, cap, and attempt count.
func WithRetryPolicy(initial, max time.Duration, maxRetries uint64) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxInterval = max
		c.maxRetries = maxRetries
	}
}

// New builds a Client targeting url. auth, if non-empty, is "user:pass"
// basic-auth credentials embedded in every request.
func New(url, auth string, requestTimeout time.Duration, opts ...Option) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	c := &Client{
		url:  url,
		auth: auth,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		initialInterval: 100 * time.Millisecond,
		maxInterval:     30 * time.Second,
		maxRetries:      10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// retryPolicy builds the backoff schedule spec.md §4.3 specifies: 100ms
// initial, factor 2, jitter, 30s cap, 10 attempts (defaults; overridable
// via WithRetryPolicy for tests).
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 1.0 // each delay is drawn from [0, 2x current interval]
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries instead
	// WithMaxRetries counts retries after the first call, so an attempt
	// budget of n allows n-1 retries.
	retries := c.maxRetries
	if retries > 0 {
		retries--
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	var lastErr error
	id := c.nextID.Add(1)

	op := func() error {
		err := c.callOnce(ctx, id, method, params, out)
		lastErr = err
		return err
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return fmt.Errorf("%w: %s: %v", rerr.ErrUpstreamUnavailable, method, lastErr)
	}
	return nil
}

func (c *Client) callOnce(ctx context.Context, id uint64, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		user, pass, ok := splitAuth(c.auth)
		if ok {
			req.SetBasicAuth(user, pass)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d: %s", method, resp.StatusCode, raw)
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rr.Error.Code, rr.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func splitAuth(auth string) (user, pass string, ok bool) {
	for i := 0; i < len(auth); i++ {
		if auth[i] == ':' {
			return auth[:i], auth[i+1:], true
		}
	}
	return "", "", false
}

// GetBlockCount returns the daemon's current best height.
func (c *Client) GetBlockCount(ctx context.Context) (uint32, error) {
	var count uint32
	if err := c.call(ctx, "getblockcount", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlockHash returns the 32-byte block hash at height, decoded from
// the daemon's hex response.
func (c *Client) GetBlockHash(ctx context.Context, height uint32) ([]byte, error) {
	var hexHash string
	if err := c.call(ctx, "getblockhash", []interface{}{height}, &hexHash); err != nil {
		return nil, err
	}
	return hex.DecodeString(hexHash)
}

// GetBlock returns the raw serialized block bytes for hash, requesting
// verbosity 0 (serialized form, no JSON object).
func (c *Client) GetBlock(ctx context.Context, hash []byte) ([]byte, error) {
	var hexBlock string
	hashHex := hex.EncodeToString(hash)
	if err := c.call(ctx, "getblock", []interface{}{hashHex, 0}, &hexBlock); err != nil {
		return nil, err
	}
	return hex.DecodeString(hexBlock)
}

// WaitForHeight polls GetBlockCount every 3s until h <= count, matching
// the tip-wait policy in spec.md §4.3. It returns ctx.Err() if ctx is
// canceled while waiting.
func (c *Client) WaitForHeight(ctx context.Context, h uint32) error {
	const tipWaitInterval = 3 * time.Second
	for {
		count, err := c.GetBlockCount(ctx)
		if err != nil {
			return err
		}
		if h <= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tipWaitInterval):
		}
	}
}
