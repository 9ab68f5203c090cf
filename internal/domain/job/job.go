// Package job provides recurring-task units and the fixed-period scheduler
// that drives them.
package job

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
)

// Job is implemented by every concrete job.
type Job interface {
	// Manifest returns the unit metadata, or nil when the job declares none.
	Manifest() *unit.Manifest
	// Init runs once when the registry initializes the job's side.
	Init(ctx context.Context) error
	// Tick runs on every scheduler firing. It must return promptly; work
	// that takes longer belongs in a Task handed to the queue.
	Tick(ctx context.Context, queue TaskQueue) error
}

// Constructor builds a job for the given registry key and side.
type Constructor func(name string, side unit.Side) (Job, error)

// Task is deferred work produced by a tick.
type Task func(ctx context.Context) error

// TaskQueue accepts tasks from a tick. Tasks of one job run in FIFO order,
// at most one at a time, on a shared worker pool.
type TaskQueue interface {
	Enqueue(task Task)
}

// Hook names reported in unit.HookError.
const (
	HookInit = "init"
	HookTick = "tick"
	HookTask = "task"
)

// Base is an embeddable no-op implementation of Job's Manifest and Init.
type Base struct {
	mu       sync.RWMutex
	manifest *unit.Manifest
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

// Init does nothing.
func (b *Base) Init(context.Context) error { return nil }
