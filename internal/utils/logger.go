// internal/utils/logger.go

package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger defines the interface for logging throughout the application.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLogLevel converts a configuration string into a LogLevel.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LoggerOptions controls how NewLoggerWithOptions builds a logger.
type LoggerOptions struct {
	Level  LogLevel
	Format string // "console", "json" or "" (console on a terminal, json otherwise)
	Output io.Writer
}

// ZeroLogger is the zerolog-backed Logger implementation.
type ZeroLogger struct {
	logger zerolog.Logger
}

// NewLoggerWithOptions creates a logger from explicit options.
func NewLoggerWithOptions(opts LoggerOptions) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		}
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zl := zerolog.New(out).Level(opts.Level.zerolog()).With().Timestamp().Logger()
	return &ZeroLogger{logger: zl}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &ZeroLogger{logger: zerolog.Nop()}
}

func (l *ZeroLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *ZeroLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *ZeroLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *ZeroLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *ZeroLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *ZeroLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *ZeroLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *ZeroLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *ZeroLogger) WithField(key string, value interface{}) Logger {
	return &ZeroLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

func (l *ZeroLogger) WithFields(fields map[string]interface{}) Logger {
	return &ZeroLogger{logger: l.logger.With().Fields(fields).Logger()}
}

func (l *ZeroLogger) WithError(err error) Logger {
	return &ZeroLogger{logger: l.logger.With().Err(err).Logger()}
}
