// Package logging provides the console implementation of ports.Logger,
// writing structured entries as text or JSON.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/pluginhost/internal/ports"
	"github.com/felixgeelhaar/pluginhost/internal/ui"
)

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ConsoleLogger logs structured messages to the console.
// Loggers derived with With share the parent's writer lock.
type ConsoleLogger struct {
	mu           *sync.Mutex
	out          io.Writer
	level        *levelVar
	fields       []ports.Field
	jsonFormat   bool
	includeTime  bool
	includeLevel bool
	color        bool
	styles       ui.Styles
}

// levelVar is shared between a logger and its children so SetLevel
// applies to all of them.
type levelVar struct {
	mu    sync.RWMutex
	level ports.Level
}

func (v *levelVar) get() ports.Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

func (v *levelVar) set(level ports.Level) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.level = level
}

// ConsoleLoggerOption configures the console logger.
type ConsoleLoggerOption func(*ConsoleLogger)

// WithOutput sets the output writer (default: os.Stderr).
func WithOutput(w io.Writer) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.out = w
	}
}

// WithLevel sets the minimum log level (default: Info).
func WithLevel(level ports.Level) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.level.set(level)
	}
}

// WithJSONFormat enables JSON output format.
func WithJSONFormat(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.jsonFormat = enabled
	}
}

// WithTimestamp includes timestamp in log entries.
func WithTimestamp(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.includeTime = enabled
	}
}

// WithLevelLabel includes level label in log entries.
func WithLevelLabel(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.includeLevel = enabled
	}
}

// WithColor styles level labels in text output.
func WithColor(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.color = enabled
	}
}

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(opts ...ConsoleLoggerOption) *ConsoleLogger {
	l := &ConsoleLogger{
		mu:           &sync.Mutex{},
		out:          os.Stderr,
		level:        &levelVar{level: ports.LevelInfo},
		includeTime:  true,
		includeLevel: true,
		styles:       ui.DefaultStyles(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// New creates a console logger from configuration values. Unknown levels
// fall back to info and unknown formats to text; both are reported.
func New(level, format string, w io.Writer) (*ConsoleLogger, error) {
	var problems []string

	lvl, ok := ports.ParseLevel(level)
	if !ok {
		problems = append(problems, fmt.Sprintf("unknown log level %q", level))
	}

	jsonFormat := false
	switch strings.ToLower(format) {
	case "", FormatText:
	case FormatJSON:
		jsonFormat = true
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", format))
	}

	logger := NewConsoleLogger(
		WithOutput(w),
		WithLevel(lvl),
		WithJSONFormat(jsonFormat),
		WithColor(!jsonFormat && isTerminal(w)),
	)

	if len(problems) > 0 {
		return logger, fmt.Errorf("logging: %s", strings.Join(problems, "; "))
	}
	return logger, nil
}

// Debug logs a debug message.
func (l *ConsoleLogger) Debug(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelDebug, msg, fields)
}

// Info logs an informational message.
func (l *ConsoleLogger) Info(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *ConsoleLogger) Warn(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *ConsoleLogger) Error(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelError, msg, fields)
}

// With returns a new logger with additional fields.
func (l *ConsoleLogger) With(fields ...ports.Field) ports.Logger {
	newFields := make([]ports.Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)

	child := *l
	child.fields = newFields
	return &child
}

// Level returns the minimum log level.
func (l *ConsoleLogger) Level() ports.Level {
	return l.level.get()
}

// SetLevel sets the minimum log level for this logger and every logger
// derived from the same root.
func (l *ConsoleLogger) SetLevel(level ports.Level) {
	l.level.set(level)
}

// log writes a log entry if the level is enabled.
func (l *ConsoleLogger) log(_ context.Context, level ports.Level, msg string, fields []ports.Field) {
	if level < l.level.get() {
		return
	}

	allFields := make([]ports.Field, len(l.fields)+len(fields))
	copy(allFields, l.fields)
	copy(allFields[len(l.fields):], fields)

	var line string
	if l.jsonFormat {
		line = l.formatJSON(level, msg, allFields)
	} else {
		line = l.formatText(level, msg, allFields)
	}
	if line == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.out, line)
}

// formatJSON renders a JSON log entry.
func (l *ConsoleLogger) formatJSON(level ports.Level, msg string, fields []ports.Field) string {
	entry := make(map[string]interface{}, len(fields)+3)

	if l.includeTime {
		entry["time"] = time.Now().UTC().Format(time.RFC3339)
	}
	if l.includeLevel {
		entry["level"] = level.String()
	}
	entry["msg"] = msg

	for _, f := range fields {
		entry[f.Key] = f.Value
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return ""
	}
	return string(data)
}

// formatText renders a human-readable log entry.
func (l *ConsoleLogger) formatText(level ports.Level, msg string, fields []ports.Field) string {
	var b strings.Builder

	if l.includeTime {
		b.WriteString(time.Now().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if l.includeLevel {
		label := level.String()
		if l.color {
			label = l.levelStyle(level).Render(label)
		}
		b.WriteString("[" + label + "] ")
	}

	b.WriteString(msg)

	for _, f := range fields {
		b.WriteByte(' ')
		fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
	}

	return b.String()
}

func (l *ConsoleLogger) levelStyle(level ports.Level) lipgloss.Style {
	switch level {
	case ports.LevelDebug:
		return l.styles.Debug
	case ports.LevelWarn:
		return l.styles.Warning
	case ports.LevelError:
		return l.styles.Error
	default:
		return l.styles.Info
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Ensure ConsoleLogger implements Logger.
var _ ports.Logger = (*ConsoleLogger)(nil)
