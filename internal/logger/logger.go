// Package logger builds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level   string // debug, info, warn, error
	File    string // log file path, empty disables file output
	Console bool   // enable console output
	Pretty  bool   // pretty format for console
	MaxSize int    // max file size in MB before rotation
}

// Logger wraps zerolog.Logger together with its file writer.
type Logger struct {
	logger zerolog.Logger
	writer *RotatingWriter
}

// New creates a logger. The returned logger is also installed as the
// zerolog global.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if cfg.Console {
		var consoleWriter io.Writer = os.Stdout
		if cfg.Pretty {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, consoleWriter)
	}

	var rotating *RotatingWriter
	if cfg.File != "" {
		rotating, err = NewRotatingWriter(cfg.File, cfg.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, rotating)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	logger := zerolog.New(writer).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{logger: logger, writer: rotating}, nil
}

// SetLevel changes the effective level at runtime.
func (l *Logger) SetLevel(name string) {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		l.logger.Warn().Str("level", name).Msg("Ignoring unknown log level")
		return
	}
	zerolog.SetGlobalLevel(level)
	l.logger.Info().Str("level", level.String()).Msg("Log level changed")
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Close closes the file writer, if any.
func (l *Logger) Close() error {
	if l.writer != nil {
		return l.writer.Close()
	}
	return nil
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Console: true,
		Pretty:  true,
		MaxSize: 100,
	}
}
