package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FormatPretty is an alias of the console format.
const FormatPretty = "pretty"

// Logger is a zerolog logger bound to a service name.
type Logger struct {
	zl      zerolog.Logger
	service string
}

var global atomic.Pointer[Logger]

// Init configures the global logger and drops cached component loggers.
func Init(cfg Config) {
	cfg.ApplyDefaults()
	if level, err := zerolog.ParseLevel(cfg.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	l := New(&cfg, "default")
	log.Logger = l.zl
	SetGlobalLogger(l)
}

// SetGlobalLogger replaces the global logger and drops cached component
// loggers.
func SetGlobalLogger(l *Logger) {
	global.Store(l)
	resetNamed()
}

// GetGlobalLogger returns the global logger, creating a console logger at
// info level on first use.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, NewDefault("default"))
	return global.Load()
}

// New returns a logger writing to cfg.Output.
func New(cfg *Config, service string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, service, w)
}

// NewWithWriter returns a logger writing to w. An unknown level means info.
func NewWithWriter(cfg *Config, service string, w io.Writer) *Logger {
	if isConsole(cfg.Format) {
		w = consoleWriter(w, service, cfg.NoColor)
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(w).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return &Logger{zl: ctx.Logger(), service: service}
}

// NewDefault returns a console logger at info level on stdout.
func NewDefault(service string) *Logger {
	return New(&Config{Level: "info", Format: "console", Output: "stdout", Timestamp: true}, service)
}

func (l *Logger) derive(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl, service: l.service}
}

// WithComponent tags every line with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.zl.With().Str(FieldComponent, name).Logger())
}

// WithFields attaches fields to every line.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.zl.With().Fields(fields).Logger())
}

// WithContext attaches the values ctx carries under keys, or under the
// correlation ID key when no keys are given.
func (l *Logger) WithContext(ctx context.Context, keys ...string) *Logger {
	if len(keys) == 0 {
		keys = []string{FieldCorrelationID}
	}
	zc := l.zl.With()
	for _, k := range keys {
		if v, ok := ValueFromContext(ctx, k); ok {
			zc = zc.Str(k, v)
		}
	}
	return l.derive(zc.Logger())
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Debug(), msg, fields)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Info(), msg, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Error(), msg, fields)
}

// emit is a no-op for a nil event, which zerolog returns for disabled levels.
func emit(ev *zerolog.Event, msg string, fields []map[string]interface{}) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = ev.Fields(f)
	}
	ev.Msg(msg)
}

// Debug logs through the global logger.
func Debug(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Debug(msg, fields...) }

// Info logs through the global logger.
func Info(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Info(msg, fields...) }

// Warn logs through the global logger.
func Warn(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Warn(msg, fields...) }

// Error logs through the global logger.
func Error(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Error(msg, fields...) }

type contextKey string

// ContextWithValue returns a copy of ctx carrying a log field value under
// key. WithContext picks it up.
func ContextWithValue(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, contextKey(key), value)
}

// ValueFromContext returns the non-empty value stored under key.
func ValueFromContext(ctx context.Context, key string) (string, bool) {
	v, _ := ctx.Value(contextKey(key)).(string)
	return v, v != ""
}
