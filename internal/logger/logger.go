package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DefaultContextLogger = &zerolog.Logger{}
}

var (
	globalLogger *Logger

	// once ensures the global logger is only initialized once
	once sync.Once

	defaultConfig = Config{
		Level:      "info",
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
)

// Logger wraps zerolog.Logger to provide our own interface
type Logger struct {
	zerolog.Logger
}

// LogFormat defines the available log formats
type LogFormat string

const (
	// FormatJSON is the JSON format
	FormatJSON LogFormat = "json"
	// FormatConsole is the console format
	FormatConsole LogFormat = "console"
)

// String returns the string representation of the log format
func (f LogFormat) String() string {
	return string(f)
}

// ParseLogFormat parses a string into a LogFormat
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(format) {
	case "console":
		return FormatConsole
	case "json":
		return FormatJSON
	default:
		return FormatJSON
	}
}

// Config holds the configuration for the logger
type Config struct {
	// Level is the log level (debug, info, warn, error, fatal, panic)
	Level string
	// Format is the log format (json, console)
	Format LogFormat
	// Output is the output writer (default: os.Stdout)
	Output io.Writer
	// TimeFormat is the time format (default: time.RFC3339)
	TimeFormat string
}

// Get returns the global logger instance
func Get() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			setupLogger(defaultConfig)
		}
	})
	return globalLogger
}

// ResetForTesting resets the global logger and sync.Once variable for testing purposes
func ResetForTesting() {
	globalLogger = nil
	once = sync.Once{}
}

// Setup initializes the global logger with the given configuration.
// Can only be called once - subsequent calls will be ignored.
func Setup(cfg Config) {
	once.Do(func() {
		setupLogger(cfg)
	})
}

func setupLogger(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			level = zerolog.InfoLevel
		}
	}

	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var logger zerolog.Logger
	switch cfg.Format {
	case FormatConsole:
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		})
	default:
		logger = zerolog.New(output)
	}

	logger = logger.Level(level).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)

	globalLogger = &Logger{Logger: logger}
}

// WithFields adds the given fields to the logger and returns a new logger instance
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}
	if len(fields) == 0 {
		return l
	}

	logger := l.Logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return &Logger{Logger: logger}
}

// Info logs a message at Info level with the given message and optional fields
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	if len(fields) > 0 && len(fields[0]) > 0 {
		l.WithFields(fields[0]).Logger.Info().Msg(msg)
	} else {
		l.Logger.Info().Msg(msg)
	}
}

// Infof logs a message at Info level with the given format and args
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Info().Msgf(format, args...)
}

// Warn logs a message at Warn level with the given message and optional fields
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	if len(fields) > 0 && len(fields[0]) > 0 {
		l.WithFields(fields[0]).Logger.Warn().Msg(msg)
	} else {
		l.Logger.Warn().Msg(msg)
	}
}

// Warnf logs a message at Warn level with the given format and args
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Warn().Msgf(format, args...)
}

// Debug logs a message at Debug level with the given message and optional fields
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	if len(fields) > 0 && len(fields[0]) > 0 {
		l.WithFields(fields[0]).Logger.Debug().Msg(msg)
	} else {
		l.Logger.Debug().Msg(msg)
	}
}

// Debugf logs a message at Debug level with the given format and args
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Debug().Msgf(format, args...)
}

// Error logs a message at Error level with the given message and optional fields
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	if len(fields) > 0 && len(fields[0]) > 0 {
		l.WithFields(fields[0]).Logger.Error().Msg(msg)
	} else {
		l.Logger.Error().Msg(msg)
	}
}

// Errorf logs a message at Error level with the given format and args
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Error().Msgf(format, args...)
}

// With creates a child logger with the given fields
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}
	return l.WithFields(fields)
}

// HTTPMiddleware logs requests served by the control server
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := Get()

		rww := &responseWriterWrapper{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rww, r)

		l.Info("HTTP request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rww.status,
			"duration": time.Since(start).String(),
		})
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture the status code
type responseWriterWrapper struct {
	http.ResponseWriter
	status int
}

func (r *responseWriterWrapper) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
