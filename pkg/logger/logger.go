// Package logger wraps a process-wide zerolog logger with printf-style
// helpers. Structured call sites use L().
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	base    *zerolog.Logger
	logFile *os.File
)

// InitLogger writes to the console and appends to filename. level is a
// zerolog level name ("debug", "info", ...); an empty level means info.
// In the development environment console output is human readable.
func InitLogger(filename, level, env string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	var console io.Writer = os.Stdout
	if env == "development" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	out := console
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		mu.Lock()
		logFile = f
		mu.Unlock()
		out = zerolog.MultiLevelWriter(console, f)
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "caregap").Logger()
	set(&l)
	return nil
}

// Init installs a plain stdout logger at info level.
func Init() {
	l := zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Str("service", "caregap").Logger()
	set(&l)
}

// SetOutput redirects logging to w. Tests use it to silence or capture output.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	set(&l)
}

// Close releases the log file opened by InitLogger.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// L returns the structured logger.
func L() *zerolog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		Init()
		return L()
	}
	return l
}

func Info(format string, v ...interface{}) {
	L().Info().Msg(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

func Error(format string, v ...interface{}) {
	L().Error().Msg(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}

func Warn(format string, v ...interface{}) {
	L().Warn().Msg(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}

func set(l *zerolog.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
