package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// PanicSafeLogger is a log sink that copies everything to a file and stderr
// and can flush the file before the process dies.
type PanicSafeLogger struct {
	f  *os.File
	mw io.Writer
}

var std *PanicSafeLogger

func NewPanicSafeLogger(f *os.File) *PanicSafeLogger {
	std = &PanicSafeLogger{
		f:  f,
		mw: io.MultiWriter(f, os.Stderr),
	}
	return std
}

func (l *PanicSafeLogger) Write(p []byte) (n int, err error) {
	return l.mw.Write(p)
}

func (l *PanicSafeLogger) Flush() error {
	return l.f.Sync()
}

func (l *PanicSafeLogger) Close() error {
	_ = l.f.Sync()
	return l.f.Close()
}

func FlushLogger() error {
	if std == nil {
		return nil
	}
	return std.Flush()
}

// LogPanic records a recovered panic with its stack and flushes the log file.
func LogPanic(err any) {
	log.Error("panicked", "err", err, "stack", string(debug.Stack()))
	_ = FlushLogger()
}

// DefaultLogPath names a fresh log file in the temp directory, e.g. randod-2026-10-19T10-00-00-000Z.log.
func DefaultLogPath(app string) string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.log", app, ts))
}

// OpenLogSink opens path for appending and returns a sink writing to it and stderr.
// When the file cannot be opened the sink is plain stderr.
func OpenLogSink(path string) (io.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return os.Stderr, fmt.Errorf("could not open log file '%s' for writing: %w", path, err)
	}
	return NewPanicSafeLogger(f), nil
}

// NewLogger builds the process logger over w at the named level (debug, info, warn, error).
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05.000",
		Level:           lvl,
		ReportCaller:    lvl == log.DebugLevel,
	})
	log.SetDefault(logger)
	return logger, nil
}

// Named returns l with the component prefix applied, defaulting to the package logger.
func Named(l *log.Logger, component string) *log.Logger {
	if l == nil {
		l = log.Default()
	}
	return l.WithPrefix(component)
}
