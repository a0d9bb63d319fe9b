package util

import (
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

type tbWriter struct {
	tb testing.TB

	// lines written by goroutines outliving the test are dropped:
	mu   sync.Mutex
	done bool
}

func (w *tbWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		w.tb.Helper()
		w.tb.Log(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

// NewTestingLogger returns a debug level logger whose entries go to tb.Log.
func NewTestingLogger(tb testing.TB) *log.Logger {
	w := &tbWriter{tb: tb}
	tb.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})
	return log.NewWithOptions(w, log.Options{Level: log.DebugLevel})
}
