// Package logger provides structured logging for the full-text index
// storage engine, wrapping zerolog exactly as the teacher's
// internal/logger package does: a Config{Level,Pretty,Output,WithCaller},
// component-scoped sub-loggers, and duration-aware structured event
// helpers, renamed to this domain's own components.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with engine-specific functionality.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "fulltext2").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger { return &l.zlog }

func (l *Logger) Info(msg string) *zerolog.Event  { return l.zlog.Info().Str("msg", msg) }
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }
func (l *Logger) Warn(msg string) *zerolog.Event  { return l.zlog.Warn().Str("msg", msg) }
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }
func (l *Logger) Fatal(msg string) *zerolog.Event { return l.zlog.Fatal().Str("msg", msg) }

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// GrpcLogger returns a logger for the admin gRPC surface.
func (l *Logger) GrpcLogger(method string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "grpc").Str("method", method).Logger()}
}

// PageCacheLogger scopes log lines to C1 page-cache operations.
func (l *Logger) PageCacheLogger(file string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "pagecache").Str("file", file).Logger()}
}

// LobLogger scopes log lines to C3 LOB-store operations.
func (l *Logger) LobLogger(op string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "lob").Str("op", op).Logger()}
}

// MergeLogger scopes log lines to C6 delayed-merge worker activity.
func (l *Logger) MergeLogger(lockName string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "delayedmerge").Str("lock", lockName).Logger()}
}

// KwicLogger scopes log lines to C7 KWIC extraction.
func (l *Logger) KwicLogger(stage string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "kwic").Str("stage", stage).Logger()}
}

// LogGrpcRequest logs an admin-surface gRPC request with structured fields.
func (l *Logger) LogGrpcRequest(method string, duration time.Duration, err error) {
	event := l.zlog.Info().Str("component", "grpc").Str("method", method).Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().Str("component", "grpc").Str("method", method).Dur("duration_ms", duration).Err(err)
	}
	event.Msg("admin request completed")
}

// LogPageOp logs a page-cache/paged-file operation.
func (l *Logger) LogPageOp(op string, pageID uint32, duration time.Duration, err error) {
	event := l.zlog.Debug().Str("component", "pagecache").Str("op", op).Uint32("page_id", pageID).Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().Str("component", "pagecache").Str("op", op).Uint32("page_id", pageID).Err(err)
	}
	event.Msg("page operation completed")
}

// LogServerStart logs engine startup.
func (l *Logger) LogServerStart(port int, dbPath string) {
	l.zlog.Info().Str("event", "server_start").Int("port", port).Str("database", dbPath).Msg("fulltext2 engine starting")
}

// LogServerReady logs when the engine is ready.
func (l *Logger) LogServerReady(port int) {
	l.zlog.Info().Str("event", "server_ready").Int("port", port).Msg("fulltext2 engine ready to accept connections")
}

// LogServerShutdown logs engine shutdown.
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().Str("event", "server_shutdown").Msg("fulltext2 engine shutting down")
}

var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance, initializing it
// with defaults on first use.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{Level: "info", Pretty: true})
	}
	return globalLogger
}
