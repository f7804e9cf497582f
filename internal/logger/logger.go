package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Environment variables configuring the log file and level.
const (
	envLogPath  = "MEMO_LOG"
	envLogLevel = "MEMO_LOG_LEVEL"
)

var (
	mu      sync.Mutex
	std     *slog.Logger
	logFile *os.File
)

// InitFromEnv initializes the logger using MEMO_LOG (or memo.log next to the
// executable) and MEMO_LOG_LEVEL.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "memo.log")
		} else {
			path = "./memo.log"
		}
	}
	level, err := ParseLevel(os.Getenv(envLogLevel))
	if err != nil {
		return err
	}
	return Init(path, level)
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
// Later calls are no-ops until Close.
func Init(path string, level slog.Level) error {
	mu.Lock()
	defer mu.Unlock()
	if std != nil {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = New(f, level)
	return nil
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug, info, warn and error to slog levels. The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logger: unknown level %q", s)
	}
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	std = nil
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Slog returns the process logger, initializing it from the environment on
// first use. If that fails, records go to stderr.
func Slog() *slog.Logger {
	mu.Lock()
	l := std
	mu.Unlock()
	if l != nil {
		return l
	}
	if err := InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if std == nil {
		std = New(os.Stderr, slog.LevelInfo)
	}
	return std
}

// Infof logs informational messages.
func Infof(format string, args ...any) { Slog().Info(fmt.Sprintf(format, args...)) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { Slog().Warn(fmt.Sprintf(format, args...)) }

// Errorf logs errors.
func Errorf(format string, args ...any) { Slog().Error(fmt.Sprintf(format, args...)) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
