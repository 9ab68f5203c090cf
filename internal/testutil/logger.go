package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// Entry is one captured log call.
type Entry struct {
	Level   ports.Level
	Message string
	Fields  map[string]interface{}
}

// RecordingLogger captures log entries for assertions.
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  []ports.Field
	level   ports.Level
}

// NewRecordingLogger creates a logger that records every level.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]Entry{}, level: ports.LevelDebug}
}

func (l *RecordingLogger) record(level ports.Level, msg string, fields []ports.Field) {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for _, f := range l.fields {
		all[f.Key] = f.Value
	}
	for _, f := range fields {
		all[f.Key] = f.Value
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, Entry{Level: level, Message: msg, Fields: all})
}

// Debug records a debug entry.
func (l *RecordingLogger) Debug(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelDebug, msg, fields)
}

// Info records an info entry.
func (l *RecordingLogger) Info(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelInfo, msg, fields)
}

// Warn records a warning entry.
func (l *RecordingLogger) Warn(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelWarn, msg, fields)
}

// Error records an error entry.
func (l *RecordingLogger) Error(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelError, msg, fields)
}

// With returns a logger sharing the same entry log with extra fields.
func (l *RecordingLogger) With(fields ...ports.Field) ports.Logger {
	return &RecordingLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]ports.Field(nil), l.fields...), fields...),
		level:   l.level,
	}
}

// Level returns the configured level.
func (l *RecordingLogger) Level() ports.Level { return l.level }

// SetLevel sets the level. Recording ignores it.
func (l *RecordingLogger) SetLevel(level ports.Level) { l.level = level }

// Entries returns a copy of every captured entry.
func (l *RecordingLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), (*l.entries)...)
}

// Find returns entries at level whose message contains substr.
func (l *RecordingLogger) Find(level ports.Level, substr string) []Entry {
	var found []Entry
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			found = append(found, e)
		}
	}
	return found
}

var _ ports.Logger = (*RecordingLogger)(nil)
