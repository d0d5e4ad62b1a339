// Package log provides structured logging for the price-range classifier.
//
// Components log through the small Logger interface with key/value fields.
// The default implementation is backed by zerolog; Setup configures level,
// format and an optional rotating log file (lumberjack).
//
//	log.Setup(log.Options{Level: "info"})
//	logger := log.GetLoggerWithName("training")
//	logger.Info("Training started", log.SamplesKey, 1600, log.FeaturesKey, 20)
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Structured field keys.
const (
	ModelNameKey  = "model_name"
	ComponentKey  = "component"
	OperationKey  = "operation"
	PhaseKey      = "phase"
	SamplesKey    = "samples"
	FeaturesKey   = "features"
	PredsKey      = "preds"
	DurationMsKey = "duration_ms"
	GenerationKey = "generation"
	AccuracyKey   = "accuracy"
	ArtifactKey   = "artifact"
	PathKey       = "path"
)

// Operation and phase values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationExplain = "explain"
	OperationLoad    = "load"
	OperationSave    = "save"

	PhaseTraining  = "training"
	PhaseInference = "inference"
	PhaseExplain   = "explain"
)

// Logger is a leveled key/value logger.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
}

// Level is the minimum level a provider emits.
type Level = zerolog.Level

// ToLogLevel parses "debug", "info", "warn", "error" (case-insensitive);
// anything else maps to info.
func ToLogLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ZerologProvider creates zerolog-backed loggers sharing one base logger.
type ZerologProvider struct {
	base zerolog.Logger
}

// NewZerologProvider returns a provider writing to the global zerolog logger
// at the given level.
func NewZerologProvider(level Level) *ZerologProvider {
	return &ZerologProvider{base: zlog.Logger.Level(level)}
}

// NewZerologProviderWithWriter returns a provider writing JSON lines to w.
func NewZerologProviderWithWriter(w io.Writer, level Level) *ZerologProvider {
	return &ZerologProvider{base: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{l: p.base}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{l: p.base.With().Str("logger", name).Logger()}
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...interface{}) {
	z.emit(z.l.Debug(), msg, fields)
}

func (z *zerologLogger) Info(msg string, fields ...interface{}) {
	z.emit(z.l.Info(), msg, fields)
}

func (z *zerologLogger) Warn(msg string, fields ...interface{}) {
	z.emit(z.l.Warn(), msg, fields)
}

// Error logs at error level. A leading error value in fields is attached with
// Err rather than as a key/value pair.
func (z *zerologLogger) Error(msg string, fields ...interface{}) {
	ev := z.l.Error()
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			fields = fields[1:]
		}
	}
	z.emit(ev, msg, fields)
}

func (z *zerologLogger) With(fields ...interface{}) Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	return &zerologLogger{l: ctx.Logger()}
}

func (z *zerologLogger) emit(ev *zerolog.Event, msg string, fields []interface{}) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case float64:
			ev = ev.Float64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// Options configures the process-wide logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	// File, when set, receives log output rotated by lumberjack.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu       sync.RWMutex
	provider LoggerProvider = NewZerologProvider(zerolog.InfoLevel)
	closer   io.Closer
)

// Setup configures the global zerolog logger and the default provider.
// It may be called more than once; a previously opened log file is closed.
func Setup(opts Options) {
	var out io.Writer = os.Stderr
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		closer = rot
		out = zerolog.MultiLevelWriter(out, rot)
	}

	level := ToLogLevel(opts.Level)
	zerolog.SetGlobalLevel(level)
	zlog.Logger = zerolog.New(out).With().Timestamp().Logger()
	provider = NewZerologProvider(level)
}

// SetupLogger configures console logging at the given level.
func SetupLogger(level string) {
	Setup(Options{Level: level})
}

// SetProvider replaces the default provider, mainly for tests.
func SetProvider(p LoggerProvider) {
	mu.Lock()
	defer mu.Unlock()
	provider = p
}

// GetLoggerWithName returns a named logger from the default provider.
func GetLoggerWithName(name string) Logger {
	mu.RLock()
	defer mu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// GetLogger returns the global zerolog logger for event-style logging.
func GetLogger() *zerolog.Logger {
	return &zlog.Logger
}

// LogError logs err at error level on the global logger.
func LogError(err error, msg string) {
	zlog.Error().Err(err).Msg(msg)
}

// Fatal logs err and exits the process.
func Fatal(err error, msg string) {
	zlog.Fatal().Err(err).Msg(msg)
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &zerologLogger{l: zerolog.Nop()}
}
