package kvcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// Name is the registry key of the plugin.
const Name = "kvcache"

// InfoKey holds the host description while the plugin is enabled.
const InfoKey = "server:info"

const (
	defaultAttempts   = 5
	defaultRetryDelay = time.Second
)

// Config tunes the plugin.
type Config struct {
	// HostName identifies the host in InfoKey and the default prefix.
	HostName string
	// Prefix overrides the "host:<HostName>:" key prefix.
	Prefix string
	// Attempts is the number of connect attempts before running degraded.
	Attempts int
	// RetryDelay is the pause between connect attempts.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.HostName == "" {
		c.HostName = "default"
	}
	if c.Prefix == "" {
		c.Prefix = fmt.Sprintf("host:%s:", c.HostName)
	}
	if c.Attempts <= 0 {
		c.Attempts = defaultAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// Info is stored under InfoKey.
type Info struct {
	Name       string    `json:"name"`
	InstanceID string    `json:"instanceId"`
	StartTime  time.Time `json:"startTime"`
}

var manifest = unit.Manifest{
	Name:        "KV Cache",
	Description: "Shared key/value cache with publish/subscribe",
	Version:     "1.0.0",
}

// New returns a constructor for the plugin. Server instances use backend;
// client instances load with a nil Client and do nothing.
func New(cfg Config, backend Backend, logger ports.Logger) plugin.Constructor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return func(name string, side unit.Side) (plugin.Plugin, error) {
		if side == unit.SideClient {
			p := &clientPlugin{logger: logger}
			p.SetManifest(manifest)
			p.SetAPI((*Client)(nil))
			return p, nil
		}
		if backend == nil {
			return nil, errors.New("kvcache: nil backend")
		}
		p := &Server{
			cfg:        cfg,
			backend:    backend,
			logger:     logger,
			instanceID: uuid.New().String(),
			client:     newClient(backend, cfg.Prefix),
			now:        time.Now,
		}
		p.SetManifest(manifest)
		p.SetAPI(p.client)
		return p, nil
	}
}

// Server is the server-side plugin.
type Server struct {
	plugin.Base

	cfg        Config
	backend    Backend
	logger     ports.Logger
	instanceID string
	client     *Client
	now        func() time.Time
}

// InstanceID returns the id published in InfoKey.
func (p *Server) InstanceID() string {
	return p.instanceID
}

// Client returns the plugin API.
func (p *Server) Client() *Client {
	return p.client
}

// OnLoad connects the backend. When every attempt fails the plugin stays
// loaded in degraded mode and its Client returns ErrUnavailable.
func (p *Server) OnLoad(ctx context.Context) error {
	attempt := 0
	connect := func() error {
		attempt++
		p.logger.Info(ctx, "connecting kv backend",
			ports.F("attempt", attempt), ports.F("of", p.cfg.Attempts))
		return p.backend.Connect(ctx)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), uint64(p.cfg.Attempts-1)),
		ctx,
	)
	if err := backoff.Retry(connect, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.logger.Warn(ctx, "kv backend unreachable, running degraded",
			ports.F("attempts", attempt), ports.Err(err))
		return nil
	}

	p.client.connected.Store(true)
	p.logger.Info(ctx, "kv backend connected", ports.F("prefix", p.cfg.Prefix))
	return nil
}

// OnEnable publishes the host description.
func (p *Server) OnEnable(ctx context.Context) error {
	if !p.client.Connected() {
		p.logger.Warn(ctx, "kv backend not connected, host info not published")
		return nil
	}
	info := Info{Name: p.cfg.HostName, InstanceID: p.instanceID, StartTime: p.now().UTC()}
	if err := p.client.SetObject(ctx, InfoKey, info, 0); err != nil {
		return fmt.Errorf("publishing host info: %w", err)
	}
	p.logger.Debug(ctx, "host info published", ports.F("instance_id", p.instanceID))
	return nil
}

// OnDisable removes the host description.
func (p *Server) OnDisable(ctx context.Context) error {
	if !p.client.Connected() {
		return nil
	}
	if err := p.client.Delete(ctx, InfoKey); err != nil {
		return fmt.Errorf("removing host info: %w", err)
	}
	return nil
}

// OnUnload closes the backend.
func (p *Server) OnUnload(ctx context.Context) error {
	p.client.connected.Store(false)
	if err := p.backend.Close(); err != nil {
		return fmt.Errorf("closing kv backend: %w", err)
	}
	p.logger.Info(ctx, "kv backend closed")
	return nil
}

// clientPlugin is the client-side variant. The cache is a server concern.
type clientPlugin struct {
	plugin.Base
	logger ports.Logger
}

func (p *clientPlugin) OnLoad(ctx context.Context) error {
	p.logger.Info(ctx, "kvcache loaded on client with limited functionality")
	return nil
}
