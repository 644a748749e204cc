package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger. The console writer keeps progress
// output readable during interactive runs; format "json" switches to raw
// JSON lines for machine consumption. It ensures initialization happens
// only once; later calls with different arguments are no-ops.
func Init(level, format string) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil || level == "" {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)

		if strings.EqualFold(format, "json") {
			defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
			return
		}
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		defaultLogger = zerolog.New(writer).With().Timestamp().Logger()
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() zerolog.Logger {
	Init("", "")
	return defaultLogger
}

// Info logs an informational message using the default logger.
func Info(msg string, args ...any) {
	l := Get()
	event(l.Info(), args).Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	l := Get()
	event(l.Warn(), args).Msg(msg)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, args ...any) {
	l := Get()
	event(l.Error().Err(err), args).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	l := Get()
	event(l.Debug(), args).Msg(msg)
}

// event attaches slog-style alternating key/value args to a zerolog event.
// A trailing key without a value is dropped.
func event(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}
