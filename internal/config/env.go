package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLUGINHOST_"

// envOverrides holds the variables that may override file values. Unset
// variables leave the pointer nil.
type envOverrides struct {
	Name                *string   `env:"NAME"`
	LogLevel            *string   `env:"LOG_LEVEL"`
	LogFormat           *string   `env:"LOG_FORMAT"`
	MissingDependencies *string   `env:"MISSING_DEPENDENCIES"`
	OnFailure           *string   `env:"ON_FAILURE"`
	TickInterval        *Duration `env:"TICK_INTERVAL"`
	ServerTickInterval  *Duration `env:"SERVER_TICK_INTERVAL"`
	Workers             *int      `env:"WORKERS"`
	AdminAddr           *string   `env:"ADMIN_ADDR"`
}

// ApplyEnv overrides cfg with PLUGINHOST_* environment variables.
func ApplyEnv(cfg *HostConfig) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return &UserError{
			Code:       ErrCodeEnvInvalid,
			Message:    "invalid environment override",
			Suggestion: fmt.Sprintf("Check the %s* variables", EnvPrefix),
			Underlying: fmt.Errorf("parse env: %w", err),
		}
	}

	if o.Name != nil {
		cfg.Name = *o.Name
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Log.Format = *o.LogFormat
	}
	if o.MissingDependencies != nil {
		cfg.Plugins.MissingDependencies = *o.MissingDependencies
	}
	if o.OnFailure != nil {
		cfg.Plugins.OnFailure = *o.OnFailure
	}
	if o.TickInterval != nil {
		cfg.Jobs.TickInterval = *o.TickInterval
	}
	if o.ServerTickInterval != nil {
		cfg.Jobs.ServerTickInterval = *o.ServerTickInterval
	}
	if o.Workers != nil {
		cfg.Jobs.Workers = *o.Workers
	}
	if o.AdminAddr != nil {
		cfg.Admin.Addr = *o.AdminAddr
	}
	return nil
}
