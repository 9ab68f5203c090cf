// Package config loads the host configuration: which units to register on
// each side, registry policies, scheduler settings and per-unit settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pluginhost/internal/domain/job"
	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// HostConfig is the root of a host configuration file.
type HostConfig struct {
	Name    string                    `yaml:"name" toml:"name"`
	Log     LogConfig                 `yaml:"log" toml:"log"`
	Plugins PluginsConfig             `yaml:"plugins" toml:"plugins"`
	Jobs    JobsConfig                `yaml:"jobs" toml:"jobs"`
	Admin   AdminConfig               `yaml:"admin" toml:"admin"`
	Units   map[string]map[string]any `yaml:"units" toml:"units"`
}

// LogConfig selects the console logger level and format.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// PluginsConfig lists plugins per side and the registry policies.
type PluginsConfig struct {
	Client              []string `yaml:"client" toml:"client"`
	Server              []string `yaml:"server" toml:"server"`
	MissingDependencies string   `yaml:"missing_dependencies" toml:"missing_dependencies"`
	OnFailure           string   `yaml:"on_failure" toml:"on_failure"`
}

// JobsConfig lists jobs per side and the scheduler settings.
// ServerTickInterval is zero unless server jobs should be ticked periodically.
type JobsConfig struct {
	Client             []string `yaml:"client" toml:"client"`
	Server             []string `yaml:"server" toml:"server"`
	TickInterval       Duration `yaml:"tick_interval" toml:"tick_interval"`
	ServerTickInterval Duration `yaml:"server_tick_interval" toml:"server_tick_interval"`
	Workers            int      `yaml:"workers" toml:"workers"`
}

// AdminConfig configures the admin HTTP endpoint. An empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *HostConfig {
	cfg := &HostConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *HostConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "pluginhost"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Plugins.MissingDependencies == "" {
		c.Plugins.MissingDependencies = string(plugin.MissingFail)
	}
	if c.Plugins.OnFailure == "" {
		c.Plugins.OnFailure = string(plugin.FailureIsolate)
	}
	if c.Jobs.TickInterval == 0 {
		c.Jobs.TickInterval = Duration(job.DefaultTickInterval)
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = job.DefaultWorkers
	}
}

// PluginNames returns the configured plugins for side.
func (c *HostConfig) PluginNames(side unit.Side) []string {
	if side == unit.SideServer {
		return c.Plugins.Server
	}
	return c.Plugins.Client
}

// JobNames returns the configured jobs for side.
func (c *HostConfig) JobNames(side unit.Side) []string {
	if side == unit.SideServer {
		return c.Jobs.Server
	}
	return c.Jobs.Client
}

// MissingPolicy returns the parsed missing dependency policy. Call Validate
// first; an invalid value falls back to the default.
func (c *HostConfig) MissingPolicy() plugin.MissingPolicy {
	if p, err := plugin.ParseMissingPolicy(c.Plugins.MissingDependencies); err == nil {
		return p
	}
	return plugin.MissingFail
}

// FailurePolicy returns the parsed failure policy.
func (c *HostConfig) FailurePolicy() plugin.FailurePolicy {
	if p, err := plugin.ParseFailurePolicy(c.Plugins.OnFailure); err == nil {
		return p
	}
	return plugin.FailureIsolate
}

// Settings returns the raw settings block for a unit. It is never nil.
func (c *HostConfig) Settings(name string) Settings {
	if s, ok := c.Units[name]; ok && s != nil {
		return Settings(s)
	}
	return Settings{}
}

// Validate checks the configuration and reports every problem at once.
func (c *HostConfig) Validate() error {
	errs := &ErrorList{}

	if _, ok := ports.ParseLevel(c.Log.Level); !ok {
		errs.AddValidation("log.level", fmt.Sprintf("unknown level %q", c.Log.Level),
			"use one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs.AddValidation("log.format", fmt.Sprintf("unknown format %q", c.Log.Format),
			"use text or json")
	}

	if _, err := plugin.ParseMissingPolicy(c.Plugins.MissingDependencies); err != nil {
		errs.AddValidation("plugins.missing_dependencies", err.Error(), "use fail or warn")
	}
	if _, err := plugin.ParseFailurePolicy(c.Plugins.OnFailure); err != nil {
		errs.AddValidation("plugins.on_failure", err.Error(), "use isolate or skip-dependents")
	}
	checkNames(errs, "plugins.client", c.Plugins.Client)
	checkNames(errs, "plugins.server", c.Plugins.Server)
	checkNames(errs, "jobs.client", c.Jobs.Client)
	checkNames(errs, "jobs.server", c.Jobs.Server)

	if c.Jobs.TickInterval <= 0 {
		errs.AddValidation("jobs.tick_interval", "must be positive", "e.g. tick_interval: 10ms")
	}
	if c.Jobs.ServerTickInterval < 0 {
		errs.AddValidation("jobs.server_tick_interval", "must not be negative",
			"leave it unset to tick server jobs externally")
	}
	if c.Jobs.Workers <= 0 {
		errs.AddValidation("jobs.workers", "must be positive", "e.g. workers: 4")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func checkNames(errs *ErrorList, field string, names []string) {
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			errs.AddValidation(fmt.Sprintf("%s[%d]", field, i), "name is empty", "remove the empty entry")
			continue
		}
		if seen[name] {
			errs.AddValidation(fmt.Sprintf("%s[%d]", field, i),
				fmt.Sprintf("%q listed more than once", name), "list each unit once")
		}
		seen[name] = true
	}
}

// Duration is a time.Duration written as a string such as "10ms" in
// configuration files and environment variables.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}
