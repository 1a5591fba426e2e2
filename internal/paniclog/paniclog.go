// Package paniclog is the one process-wide mutable resource in the core:
// a lazily opened, mutex-guarded log file that every goroutine's panic
// recovery writes to. Go has no panic hook equivalent to a global
// handler installed once at startup, so the contract here is a deferred
// Recover() call at the top of main and at the top of every
// independently-started goroutine.
package paniclog

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

var (
	mu   sync.Mutex
	file *os.File
)

// Init opens (creating if necessary) the panic log at path. Call this
// once during startup before any goroutine that defers Recover runs.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("paniclog: open %s: %w", path, err)
	}
	file = f
	return nil
}

// Close releases the underlying log file, if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	return file.Close()
}

// Recover should be deferred at the top of main and of every goroutine
// that runs independently of main's own call stack. If the deferred
// function's goroutine is panicking, it writes a timestamped entry with
// the panic message and backtrace to the log file (or stderr if Init was
// never called), then re-panics so normal process-crash behavior is
// preserved.
func Recover() {
	r := recover()
	if r == nil {
		return
	}

	entry := fmt.Sprintf(
		"[PANIC] Timestamp: %s\nMessage: %v\nBacktrace:\n%s\n\n",
		time.Now().UTC().Format(time.RFC3339),
		r,
		debug.Stack(),
	)

	mu.Lock()
	dst := file
	mu.Unlock()

	if dst != nil {
		dst.WriteString(entry)
		dst.Sync()
	} else {
		fmt.Fprint(os.Stderr, entry)
	}

	panic(r)
}
