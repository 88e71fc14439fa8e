// Package logging provides a leveled, printf-style logger shared by every
// package. Output is plain text ("[INFO] msg") or JSON ({"ts","level","msg"})
// and is rendered by zap cores.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case level name.
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

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a level name. Matching is case-insensitive but
// surrounding whitespace is rejected.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
}

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "text"
	output io.Writer
	logger *zap.SugaredLogger
)

func init() {
	rebuild()
}

// SetLevel sets the minimum level that is written.
func SetLevel(l Level) {
	level.SetLevel(l.zapLevel())
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// SetFormat selects "json" or "text" output. Unknown values fall back to text.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.EqualFold(f, "json") {
		format = "json"
	} else {
		format = "text"
	}
	rebuildLocked()
}

// SetOutput redirects log output. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuildLocked()
}

func rebuild() {
	mu.Lock()
	defer mu.Unlock()
	rebuildLocked()
}

func rebuildLocked() {
	var w io.Writer = os.Stderr
	if output != nil {
		w = output
	}

	var enc zapcore.Encoder
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zapcore.EncoderConfig{
			TimeKey:          "ts",
			LevelKey:         "level",
			MessageKey:       "msg",
			LineEnding:       zapcore.DefaultLineEnding,
			EncodeTime:       zapcore.TimeEncoderOfLayout(time.DateTime),
			EncodeLevel:      bracketLevelEncoder,
			EncodeDuration:   zapcore.StringDurationEncoder,
			ConsoleSeparator: " ",
		}
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	logger = zap.New(core).Sugar()
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func current() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...interface{}) {
	current().Debugf(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...interface{}) {
	current().Infof(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...interface{}) {
	current().Warnf(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...interface{}) {
	current().Errorf(msg, args...)
}

// Sync flushes buffered output.
func Sync() {
	_ = current().Sync()
}

// OpenFile opens (or creates) an append-mode log file and routes output to
// it. The returned close func restores stderr.
func OpenFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	SetOutput(f)
	return func() error {
		Sync()
		SetOutput(nil)
		return f.Close()
	}, nil
}
