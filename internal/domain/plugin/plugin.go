// Package plugin provides the stateful extension units hosted on a side:
// their lifecycle, dependency ordering, and the registry that drives them.
package plugin

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
)

// Plugin is implemented by every concrete plugin.
//
// Manifest must be available as soon as the constructor returns: the
// registry reads dependencies before any hook runs.
type Plugin interface {
	// Manifest returns the unit metadata, or nil when the plugin declares none.
	Manifest() *unit.Manifest
	// OnLoad runs once when the plugin leaves the created phase.
	OnLoad(ctx context.Context) error
	// OnEnable runs on every transition into the enabled phase.
	OnEnable(ctx context.Context) error
	// OnDisable runs on every transition out of the enabled phase.
	OnDisable(ctx context.Context) error
	// OnUnload runs once before the plugin is discarded.
	OnUnload(ctx context.Context) error
	// API returns the value other plugins retrieve through the registry.
	API() any
}

// Constructor builds a plugin for the given registry key and side. The
// registry calls it exactly once per registration attempt.
type Constructor func(name string, side unit.Side) (Plugin, error)

// Base is an embeddable no-op implementation of Plugin. Concrete plugins
// embed it and override the hooks they need.
type Base struct {
	mu       sync.RWMutex
	manifest *unit.Manifest
	api      any
}

// SetManifest replaces the manifest.
func (b *Base) SetManifest(m unit.Manifest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manifest = &m
}

// Manifest returns the manifest set with SetManifest.
func (b *Base) Manifest() *unit.Manifest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.manifest
}

// SetAPI publishes the value returned by API.
func (b *Base) SetAPI(api any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.api = api
}

// API returns the published API, nil until SetAPI is called.
func (b *Base) API() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.api
}

// OnLoad does nothing.
func (b *Base) OnLoad(context.Context) error { return nil }

// OnEnable does nothing.
func (b *Base) OnEnable(context.Context) error { return nil }

// OnDisable does nothing.
func (b *Base) OnDisable(context.Context) error { return nil }

// OnUnload does nothing.
func (b *Base) OnUnload(context.Context) error { return nil }
