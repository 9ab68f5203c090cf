// Package sessions tracks connected players and mirrors them into the
// kvcache plugin.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
	"github.com/felixgeelhaar/pluginhost/internal/units/kvcache"
)

// Name is the registry key of the plugin.
const Name = "sessions"

// Channels published on join and leave. The message is the player id.
const (
	ChannelJoin  = "player:join"
	ChannelLeave = "player:leave"
)

// DefaultTTL is how long a player record lives in the cache.
const DefaultTTL = time.Hour

// ErrNotEnabled is returned by Tracker calls while the plugin is disabled.
var ErrNotEnabled = errors.New("sessions not enabled")

// Player is a connected player.
type Player struct {
	ID       string         `json:"identifier"`
	Name     string         `json:"name"`
	LastSeen time.Time      `json:"lastSeen"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tracker is the plugin API.
type Tracker struct {
	mu      sync.RWMutex
	enabled bool
	players map[string]Player
	cache   *kvcache.Client
	ttl     time.Duration
	now     func() time.Time
	logger  ports.Logger
}

// Join records a player and publishes ChannelJoin. Cache failures are
// logged; the player is tracked regardless.
func (t *Tracker) Join(ctx context.Context, p Player) error {
	if p.ID == "" {
		return errors.New("player id is required")
	}
	p.LastSeen = t.now().UTC()

	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return ErrNotEnabled
	}
	t.players[p.ID] = p
	cache := t.cache
	t.mu.Unlock()

	if cache.Connected() {
		if err := cache.SetObject(ctx, playerKey(p.ID), p, t.ttl); err != nil {
			t.logger.Warn(ctx, "storing player failed", ports.F("player", p.ID), ports.Err(err))
		}
		if err := cache.Publish(ctx, ChannelJoin, p.ID); err != nil {
			t.logger.Warn(ctx, "publishing join failed", ports.F("player", p.ID), ports.Err(err))
		}
	}
	t.logger.Debug(ctx, "player joined", ports.F("player", p.ID))
	return nil
}

// Leave forgets a player and publishes ChannelLeave. It reports false when
// the player was not tracked.
func (t *Tracker) Leave(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return false, ErrNotEnabled
	}
	_, ok := t.players[id]
	delete(t.players, id)
	cache := t.cache
	t.mu.Unlock()

	if !ok {
		return false, nil
	}
	if cache.Connected() {
		if err := cache.Delete(ctx, playerKey(id)); err != nil {
			t.logger.Warn(ctx, "removing player failed", ports.F("player", id), ports.Err(err))
		}
		if err := cache.Publish(ctx, ChannelLeave, id); err != nil {
			t.logger.Warn(ctx, "publishing leave failed", ports.F("player", id), ports.Err(err))
		}
	}
	t.logger.Debug(ctx, "player left", ports.F("player", id))
	return true, nil
}

// Count returns the number of tracked players.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.players)
}

// Players returns tracked players sorted by id.
func (t *Tracker) Players() []Player {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Player, 0, len(t.players))
	for _, p := range t.players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Player) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func playerKey(id string) string {
	return "player:" + id
}

// Plugin wires a Tracker into the registry lifecycle.
type Plugin struct {
	plugin.Base

	registry *plugin.Registry
	side     unit.Side
	tracker  *Tracker
}

// New returns a constructor. The kvcache API is looked up in registry when
// the plugin loads; a ttl of zero uses DefaultTTL.
func New(registry *plugin.Registry, ttl time.Duration, logger ports.Logger) plugin.Constructor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return func(name string, side unit.Side) (plugin.Plugin, error) {
		if registry == nil {
			return nil, errors.New("sessions: nil plugin registry")
		}
		p := &Plugin{
			registry: registry,
			side:     side,
			tracker: &Tracker{
				players: make(map[string]Player),
				ttl:     ttl,
				now:     time.Now,
				logger:  logger,
			},
		}
		p.SetManifest(unit.Manifest{
			Name:         "Sessions",
			Description:  "Tracks connected players",
			Version:      "1.0.0",
			Dependencies: []string{kvcache.Name},
		})
		p.SetAPI(p.tracker)
		return p, nil
	}
}

// Tracker returns the plugin API.
func (p *Plugin) Tracker() *Tracker {
	return p.tracker
}

// OnLoad resolves the kvcache client.
func (p *Plugin) OnLoad(ctx context.Context) error {
	cache, ok := plugin.APIAs[*kvcache.Client](p.registry, p.side, kvcache.Name)
	if !ok {
		return fmt.Errorf("%s plugin not available on %s", kvcache.Name, p.side)
	}
	if !cache.Connected() {
		p.tracker.logger.Warn(ctx, "kvcache degraded, players tracked in memory only")
	}

	p.tracker.mu.Lock()
	p.tracker.cache = cache
	p.tracker.mu.Unlock()
	return nil
}

// OnEnable starts accepting players.
func (p *Plugin) OnEnable(context.Context) error {
	p.tracker.mu.Lock()
	defer p.tracker.mu.Unlock()
	p.tracker.enabled = true
	return nil
}

// OnDisable stops accepting players and forgets the tracked ones.
func (p *Plugin) OnDisable(ctx context.Context) error {
	p.tracker.mu.Lock()
	p.tracker.enabled = false
	dropped := len(p.tracker.players)
	p.tracker.players = make(map[string]Player)
	p.tracker.mu.Unlock()

	if dropped > 0 {
		p.tracker.logger.Info(ctx, "sessions disabled, players dropped", ports.F("count", dropped))
	}
	return nil
}
