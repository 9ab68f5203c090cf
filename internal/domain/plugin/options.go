package plugin

import (
	"fmt"

	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// MissingPolicy defines how an init pass treats dependencies that name no
// registered plugin.
type MissingPolicy string

const (
	// MissingFail aborts the pass before any plugin is loaded.
	MissingFail MissingPolicy = "fail"
	// MissingWarn logs the missing names and orders them like any other node.
	MissingWarn MissingPolicy = "warn"
)

// IsValid checks if the missing policy is valid.
func (p MissingPolicy) IsValid() bool {
	return p == MissingFail || p == MissingWarn
}

// ParseMissingPolicy parses a string into a MissingPolicy.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	policy := MissingPolicy(s)
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid missing dependency policy: %q (valid: fail, warn)", s)
	}
	return policy, nil
}

// FailurePolicy defines what an init pass does after a plugin hook fails.
type FailurePolicy string

const (
	// FailureIsolate continues with every remaining plugin.
	FailureIsolate FailurePolicy = "isolate"
	// FailureSkipDependents skips plugins that depend, directly or
	// transitively, on a plugin that failed in the same pass.
	FailureSkipDependents FailurePolicy = "skip-dependents"
)

// IsValid checks if the failure policy is valid.
func (p FailurePolicy) IsValid() bool {
	return p == FailureIsolate || p == FailureSkipDependents
}

// ParseFailurePolicy parses a string into a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	policy := FailurePolicy(s)
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid failure policy: %q (valid: isolate, skip-dependents)", s)
	}
	return policy, nil
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger ports.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithMissingPolicy sets how missing dependencies are handled.
func WithMissingPolicy(p MissingPolicy) RegistryOption {
	return func(r *Registry) {
		if p.IsValid() {
			r.missing = p
		}
	}
}

// WithFailurePolicy sets how hook failures affect dependents.
func WithFailurePolicy(p FailurePolicy) RegistryOption {
	return func(r *Registry) {
		if p.IsValid() {
			r.failure = p
		}
	}
}
