package app

import (
	"slices"

	"github.com/felixgeelhaar/pluginhost/internal/config"
	"github.com/felixgeelhaar/pluginhost/internal/domain/job"
	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
	"github.com/felixgeelhaar/pluginhost/internal/units/kvcache"
	"github.com/felixgeelhaar/pluginhost/internal/units/presence"
	"github.com/felixgeelhaar/pluginhost/internal/units/sessions"
)

// Deps are the host collaborators available to unit factories.
type Deps struct {
	HostName string
	Plugins  *plugin.Registry
	// Logger is already scoped to the unit and side.
	Logger ports.Logger
}

// PluginFactory builds a plugin constructor from the unit's settings.
type PluginFactory func(deps Deps, settings config.Settings) plugin.Constructor

// JobFactory builds a job constructor from the unit's settings.
type JobFactory func(deps Deps, settings config.Settings) job.Constructor

// Catalog maps unit names to factories. Configuration selects units from it
// by name.
type Catalog struct {
	plugins map[string]PluginFactory
	jobs    map[string]JobFactory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		plugins: make(map[string]PluginFactory),
		jobs:    make(map[string]JobFactory),
	}
}

// AddPlugin adds or replaces a plugin factory.
func (c *Catalog) AddPlugin(name string, f PluginFactory) *Catalog {
	c.plugins[name] = f
	return c
}

// AddJob adds or replaces a job factory.
func (c *Catalog) AddJob(name string, f JobFactory) *Catalog {
	c.jobs[name] = f
	return c
}

// Plugin returns the factory for a plugin name.
func (c *Catalog) Plugin(name string) (PluginFactory, bool) {
	f, ok := c.plugins[name]
	return f, ok
}

// Job returns the factory for a job name.
func (c *Catalog) Job(name string) (JobFactory, bool) {
	f, ok := c.jobs[name]
	return f, ok
}

// PluginNames returns the known plugin names, sorted.
func (c *Catalog) PluginNames() []string {
	return sortedKeys(c.plugins)
}

// JobNames returns the known job names, sorted.
func (c *Catalog) JobNames() []string {
	return sortedKeys(c.jobs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// DefaultCatalog returns the units shipped with pluginhost.
func DefaultCatalog() *Catalog {
	return NewCatalog().
		AddPlugin(kvcache.Name, func(d Deps, s config.Settings) plugin.Constructor {
			cfg := kvcache.Config{
				HostName:   d.HostName,
				Prefix:     s.String("prefix", ""),
				Attempts:   s.Int("attempts", 0),
				RetryDelay: s.Duration("retry_delay", 0),
			}
			return kvcache.New(cfg, kvcache.NewMemoryBackend(), d.Logger)
		}).
		AddPlugin(sessions.Name, func(d Deps, s config.Settings) plugin.Constructor {
			return sessions.New(d.Plugins, s.Duration("ttl", 0), d.Logger)
		}).
		AddJob(presence.Name, func(d Deps, s config.Settings) job.Constructor {
			return presence.New(d.Plugins, s.Int("every", 0), d.Logger)
		})
}
