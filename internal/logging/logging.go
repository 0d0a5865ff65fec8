// Package logging provides the structured logging setup shared by every
// NarrationForge component: a JSON logger backed by a rotating file and a
// human-readable logger to stdout, both built on log/slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom levels beyond slog's four, matching the teacher's logging package.
const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

var (
	mu                sync.RWMutex
	structuredLogger  *slog.Logger
	humanLogger       *slog.Logger
	currentLevel      = new(slog.LevelVar)
	closableWriters   []io.Closer
	initialized       bool
)

// RotationPolicy selects how the structured log file is rotated.
type RotationPolicy string

const (
	RotationDaily  RotationPolicy = "daily"
	RotationWeekly RotationPolicy = "weekly"
	RotationSize   RotationPolicy = "size"
)

// Options configures Init.
type Options struct {
	Dir      string // directory for log files, created if missing; default "logs"
	FileName string // default "narrationforge.log"
	Level    slog.Level
	Rotation RotationPolicy
	MaxSizeMB int // only used for RotationSize
}

// Init sets up the package-level structured and human-readable loggers. It
// is safe to call more than once; later calls replace the previous loggers
// and close any file handles they owned.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.FileName == "" {
		opts.FileName = "narrationforge.log"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}

	currentLevel.Set(opts.Level)

	for _, c := range closableWriters {
		_ = c.Close()
	}
	closableWriters = nil

	fileWriter := newRotatingWriter(filepath.Join(opts.Dir, opts.FileName), opts.Rotation, opts.MaxSizeMB)
	if closer, ok := any(fileWriter).(io.Closer); ok {
		closableWriters = append(closableWriters, closer)
	}

	jsonHandler := slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{
		Level:       currentLevel,
		ReplaceAttr: defaultReplaceAttr,
	})
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       currentLevel,
		ReplaceAttr: defaultReplaceAttr,
	})

	structuredLogger = slog.New(jsonHandler)
	humanLogger = slog.New(textHandler)
	initialized = true
	return nil
}

// newRotatingWriter wires lumberjack the way the teacher's NewFileLogger
// derives MaxSize/MaxBackups/MaxAge from a rotation policy.
func newRotatingWriter(path string, policy RotationPolicy, maxSizeMB int) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename: path,
		Compress: true,
	}
	switch policy {
	case RotationWeekly:
		lj.MaxAge = 7
		lj.MaxBackups = 4
	case RotationSize:
		if maxSizeMB <= 0 {
			maxSizeMB = 100
		}
		lj.MaxSize = maxSizeMB
		lj.MaxBackups = 10
	case RotationDaily, "":
		fallthrough
	default:
		lj.MaxAge = 1
		lj.MaxBackups = 30
	}
	return lj
}

// defaultReplaceAttr formats timestamps as RFC3339, names the custom
// levels, and truncates float values to 2 decimals for log readability.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			if name, ok := levelNames[lvl]; ok {
				a.Value = slog.StringValue(name)
			}
		}
	default:
		if f, ok := a.Value.Any().(float64); ok {
			a.Value = slog.StringValue(fmt.Sprintf("%.2f", f))
		}
	}
	return a
}

// SetLevel changes the minimum log level of both loggers at runtime.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel.Set(level)
}

// Structured returns the JSON-to-file logger, or slog.Default() if Init was
// never called.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		return slog.Default()
	}
	return structuredLogger
}

// HumanReadable returns the text-to-stdout logger.
func HumanReadable() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		return slog.Default()
	}
	return humanLogger
}

// ForService returns a logger scoped to the named component, the way the
// teacher's logging.ForService does.
func ForService(name string) *slog.Logger {
	return Structured().With("service", name)
}

// Trace logs at the custom trace level below Debug.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fatal logs at the custom fatal level above Error, then exits the process.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}
