// Package log is the deskmate structured logger.
//
// Every line carries a level, a category and key=value fields. Output is off
// until Init, InitWithTeaLog or SetOutput is called, which keeps the TUI
// terminal clean in normal runs. Formatted lines are also fanned out on a
// pubsub broker so the companion view can tail them live.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/deskmate/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string onto a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatTask    Category = "task"    // task lifecycle: start, merge, cancel, failure
	CatEvent   Category = "event"   // event broadcast
	CatPlugin  Category = "plugin"  // plugin ordering, load, unload, cascade
	CatWorker  Category = "worker"  // orchestration loop
	CatConfig  Category = "config"  // app and plugin configuration
	CatWatcher Category = "watcher" // config file watcher
	CatAgent   Category = "agent"   // agent bridge
	CatUI      Category = "ui"
	CatHTTP    Category = "http"  // daemon API
	CatCache   Category = "cache" // cache operations
)

type logger struct {
	mu       sync.Mutex
	closer   io.Closer
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	mu            sync.RWMutex
	defaultLogger *logger
)

// ErrAlreadyInitialized is returned by Init when a file sink is already open.
var ErrAlreadyInitialized = errors.New("logger already initialized")

// Init opens path for appending and routes all log output to it.
// The returned func closes the file.
func Init(path string) (func(), error) {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil && defaultLogger.closer != nil {
		return nil, ErrAlreadyInitialized
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: user-chosen debug log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defaultLogger = newLogger(f, f)
	return func() { _ = f.Close() }, nil
}

// InitWithTeaLog routes output through tea.LogToFile so bubbletea's own
// debug output lands in the same file.
func InitWithTeaLog(path string, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defaultLogger = newLogger(f, f)
	mu.Unlock()
	return func() { _ = f.Close() }, nil
}

// SetOutput routes log output to w without owning it. Passing nil turns
// logging off.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		defaultLogger = nil
		return
	}
	defaultLogger = newLogger(w, nil)
}

func newLogger(w io.Writer, c io.Closer) *logger {
	return &logger{
		closer:   c,
		writer:   w,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
	}
}

func current() *logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(LevelError, cat, msg, fields...)
}

// Format renders one log line without a trailing newline.
// Example: 2026-10-18T10:45:00 [WARN] [plugin] dependency missing plugin=digest
func Format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", ts.Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	return b.String()
}

func write(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel {
		return
	}

	entry := Format(time.Now(), level, cat, msg, fields...) + "\n"
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry)
	}
	l.broker.Publish(pubsub.LogLine, entry)
}

// Listener follows formatted log lines.
type Listener = pubsub.ContinuousListener[string]

// NewListener subscribes to log lines until ctx is cancelled. It returns nil
// when logging is off.
func NewListener(ctx context.Context) *Listener {
	l := current()
	if l == nil {
		return nil
	}
	return pubsub.NewContinuousListener(ctx, l.broker)
}
