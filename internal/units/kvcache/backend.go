// Package kvcache provides a key/value cache plugin with publish/subscribe.
// Other plugins reach it through the registry as a *Client.
package kvcache

import (
	"context"
	"errors"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

var (
	// ErrUnavailable is returned by a Client whose backend never connected.
	ErrUnavailable = errors.New("kv backend unavailable")
	// ErrClosed is returned after the backend has been closed.
	ErrClosed = errors.New("kv backend closed")
	// ErrConnect is returned by MemoryBackend.Connect while refusing connections.
	ErrConnect = errors.New("kv backend refused connection")
)

// Backend is the storage behind a Client.
type Backend interface {
	Connect(ctx context.Context) error
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value. A zero ttl never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, channel, message string) error
	// Subscribe registers fn for channel and returns a function that
	// removes it.
	Subscribe(channel string, fn func(message string)) (func(), error)
	Close() error
}

type item struct {
	value     string
	expiresAt time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryBackend is an in-process Backend. Expired keys are dropped lazily
// on read.
type MemoryBackend struct {
	store cmap.ConcurrentMap[string, item]
	now   func() time.Time

	mu        sync.Mutex
	refuse    int
	connected bool
	closed    bool
	subs      map[string]map[int]func(string)
	nextSub   int
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithRefusedConnects makes the first n Connect calls fail. A negative n
// refuses every call.
func WithRefusedConnects(n int) MemoryOption {
	return func(m *MemoryBackend) {
		m.refuse = n
	}
}

// WithNow sets the time source used for expiry.
func WithNow(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		store: cmap.New[item](),
		now:   time.Now,
		subs:  make(map[string]map[int]func(string)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect marks the backend connected unless it is refusing connections.
func (m *MemoryBackend) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.refuse != 0 {
		if m.refuse > 0 {
			m.refuse--
		}
		return ErrConnect
	}
	m.connected = true
	return nil
}

// Connected reports whether Connect has succeeded and Close was not called.
func (m *MemoryBackend) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && !m.closed
}

func (m *MemoryBackend) ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrClosed
	case !m.connected:
		return ErrUnavailable
	}
	return nil
}

// Get returns the value stored under key.
func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	if err := m.ready(); err != nil {
		return "", false, err
	}
	now := m.now()
	if m.store.RemoveCb(key, func(_ string, v item, exists bool) bool {
		return exists && v.expired(now)
	}) {
		return "", false, nil
	}
	v, ok := m.store.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.value, true, nil
}

// Set stores value under key.
func (m *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if err := m.ready(); err != nil {
		return err
	}
	it := item{value: value}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.store.Set(key, it)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	if err := m.ready(); err != nil {
		return err
	}
	m.store.Remove(key)
	return nil
}

// ExpiresAt returns the expiry of key, zero when it never expires.
func (m *MemoryBackend) ExpiresAt(key string) (time.Time, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return time.Time{}, false
	}
	return v.expiresAt, true
}

// Keys returns every stored key, including expired ones not yet dropped.
func (m *MemoryBackend) Keys() []string {
	return m.store.Keys()
}

// Publish delivers message synchronously to every subscriber of channel.
func (m *MemoryBackend) Publish(_ context.Context, channel, message string) error {
	if err := m.ready(); err != nil {
		return err
	}
	m.mu.Lock()
	fns := make([]func(string), 0, len(m.subs[channel]))
	for _, fn := range m.subs[channel] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(message)
	}
	return nil
}

// Subscribe registers fn for channel.
func (m *MemoryBackend) Subscribe(channel string, fn func(string)) (func(), error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]func(string))
	}
	m.subs[channel][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[channel], id)
	}, nil
}

// Close disconnects the backend and drops every subscriber. Stored values
// are kept.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	m.subs = make(map[string]map[int]func(string))
	return nil
}
