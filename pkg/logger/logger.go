// Package logger holds the process-wide zap logger.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu           sync.RWMutex
	globalLogger *zap.Logger
	globalSugar  *zap.SugaredLogger
)

// Options configures the logger.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is console or json.
	Format string

	// File, when set, receives the logs instead of stderr and is rotated.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool

	// Output overrides the destination. Used by tests.
	Output zapcore.WriteSyncer
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// fixedWidthColorLevelEncoder pads the level to 5 characters and colors it.
func fixedWidthColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(colorize(level, padLevel(level)))
}

func fixedWidthLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(padLevel(level))
}

func padLevel(level zapcore.Level) string {
	s := level.CapitalString()
	for len(s) < 5 {
		s += " "
	}
	return s
}

func colorize(level zapcore.Level, s string) string {
	switch level {
	case zapcore.DebugLevel:
		return "\x1b[35m" + s + "\x1b[0m"
	case zapcore.InfoLevel:
		return "\x1b[34m" + s + "\x1b[0m"
	case zapcore.WarnLevel:
		return "\x1b[33m" + s + "\x1b[0m"
	case zapcore.ErrorLevel:
		return "\x1b[31m" + s + "\x1b[0m"
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		return "\x1b[31;1m" + s + "\x1b[0m"
	}
	return s
}

// New builds a logger from opts without touching the global one.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	color := false
	switch {
	case out != nil:
	case opts.File != "":
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		})
	default:
		out = zapcore.Lock(os.Stderr)
		color = true
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "json":
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "time"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	case "", "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = "time"
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("[2006-01-02 15:04:05]")
		cfg.EncodeLevel = fixedWidthLevelEncoder
		if color {
			cfg.EncodeLevel = fixedWidthColorLevelEncoder
		}
		cfg.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			const width = 28
			s := caller.TrimmedPath()
			if len(s) < width {
				s += strings.Repeat(" ", width-len(s))
			}
			enc.AppendString(s)
		}
		cfg.ConsoleSeparator = " "
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	core := zapcore.NewCore(encoder, out, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Init replaces the global logger.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	globalLogger = l
	globalSugar = l.Sugar()
	return nil
}

// Get returns the global logger, creating an info-level console logger on first use.
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	if err := Init(Options{}); err != nil {
		return zap.NewNop()
	}
	return Get()
}

// Sugar returns the global SugaredLogger.
func Sugar() *zap.SugaredLogger {
	Get()
	mu.RLock()
	defer mu.RUnlock()
	return globalSugar
}

// Sync flushes buffered entries, waiting at most 200ms.
func Sync() {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		_ = l.Sync()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
}

func Debug(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Named returns a child of the global logger for one component.
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// Field constructors, re-exported so callers need a single import.
var (
	String   = zap.String
	Int      = zap.Int
	Uint64   = zap.Uint64
	Bool     = zap.Bool
	Duration = zap.Duration
	Err      = zap.Error
	Stringer = zap.Stringer
	Any      = zap.Any
)
