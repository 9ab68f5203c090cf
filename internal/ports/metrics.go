package ports

import "time"

// Metrics records registry and scheduler activity.
// Label values are the unit side ("client"/"server") and small fixed vocabularies.
type Metrics interface {
	// PluginTransition counts a successful lifecycle transition into phase.
	PluginTransition(side, phase string)

	// HookFailure counts a failed hook. kind is "plugin" or "job".
	HookFailure(side, kind, hook string)

	// JobTick records one scheduler firing for a side and how long it took.
	JobTick(side string, elapsed time.Duration)

	// JobTask counts a queued job task that finished with result "ok" or "error".
	JobTask(side, result string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

// PluginTransition does nothing.
func (NopMetrics) PluginTransition(_, _ string) {}

// HookFailure does nothing.
func (NopMetrics) HookFailure(_, _, _ string) {}

// JobTick does nothing.
func (NopMetrics) JobTick(_ string, _ time.Duration) {}

// JobTask does nothing.
func (NopMetrics) JobTask(_, _ string) {}

// Ensure NopMetrics implements Metrics.
var _ Metrics = NopMetrics{}
