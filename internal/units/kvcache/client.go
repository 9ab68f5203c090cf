package kvcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Client is the API the kvcache plugin exposes. Keys are namespaced with a
// per-host prefix; channels are not. A nil or disconnected Client fails
// every call with ErrUnavailable.
type Client struct {
	backend   Backend
	prefix    string
	connected atomic.Bool
}

func newClient(backend Backend, prefix string) *Client {
	return &Client{backend: backend, prefix: prefix}
}

// Connected reports whether the backend is usable.
func (c *Client) Connected() bool {
	return c != nil && c.connected.Load()
}

// Prefix returns the key prefix.
func (c *Client) Prefix() string {
	if c == nil {
		return ""
	}
	return c.prefix
}

// Key returns key with the client prefix applied.
func (c *Client) Key(key string) string {
	return c.Prefix() + key
}

func (c *Client) check() error {
	if !c.Connected() {
		return ErrUnavailable
	}
	return nil
}

// Get returns the string stored under key.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if err := c.check(); err != nil {
		return "", false, err
	}
	return c.backend.Get(ctx, c.Key(key))
}

// Set stores value under key. A zero ttl never expires.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.backend.Set(ctx, c.Key(key), value, ttl)
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.backend.Delete(ctx, c.Key(key))
}

// GetObject decodes the JSON stored under key into dst. It reports false
// when the key does not exist.
func (c *Client) GetObject(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// SetObject stores v as JSON under key.
func (c *Client) SetObject(ctx context.Context, key string, v any, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	// Encode appends a newline.
	raw := buf.B
	if n := len(raw); n > 0 && raw[n-1] == '\n' {
		raw = raw[:n-1]
	}
	return c.backend.Set(ctx, c.Key(key), string(raw), ttl)
}

// Publish sends message on channel.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.backend.Publish(ctx, channel, message)
}

// Subscribe calls fn for every message on channel until the returned
// function is called.
func (c *Client) Subscribe(channel string, fn func(message string)) (func(), error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.backend.Subscribe(channel, fn)
}
