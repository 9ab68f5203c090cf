package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &UserError{
			Code:       ErrCodeConfigFormat,
			Message:    fmt.Sprintf("unsupported config file extension %q", filepath.Ext(path)),
			Context:    path,
			Suggestion: "Use a .yaml, .yml or .toml file",
		}
	}
}

// Loader reads host configuration files.
type Loader struct {
	// LookupEnv disables environment overrides when false.
	LookupEnv bool
}

// NewLoader creates a new configuration loader with environment overrides
// enabled.
func NewLoader() *Loader {
	return &Loader{LookupEnv: true}
}

// Load reads path, applies defaults and environment overrides, and
// validates the result.
func (l *Loader) Load(path string) (*HostConfig, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &UserError{
				Code:       ErrCodeConfigNotFound,
				Message:    "host configuration not found",
				Context:    path,
				Suggestion: "Pass --config with the path to a host.yaml or host.toml file",
				Underlying: err,
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		var userErr *UserError
		if errors.As(err, &userErr) {
			userErr.Context = path
		}
		return nil, err
	}

	if l.LookupEnv {
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in the given format and applies defaults. Unknown keys
// are rejected. The result is not validated.
func Parse(data []byte, format Format) (*HostConfig, error) {
	cfg := &HostConfig{}

	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	default:
		return nil, &UserError{
			Code:    ErrCodeConfigFormat,
			Message: fmt.Sprintf("unsupported config format %q", format),
		}
	}
	if err != nil {
		return nil, &UserError{
			Code:       ErrCodeConfigParse,
			Message:    fmt.Sprintf("invalid %s syntax", strings.ToUpper(string(format))),
			Suggestion: "Check indentation and field names against the documented host configuration",
			Underlying: err,
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}
