// Package log configures the process-wide slog logger.
package log

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
)

// Setup routes slog to a rotated JSON log file. Only the first call has an
// effect.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
		slog.SetDefault(slog.New(handler))
		initialized.Store(true)
	})
}

// Initialized reports whether Setup has run.
func Initialized() bool {
	return initialized.Load()
}

// RecoverPanic logs a panic with its stack trace, writes it to a file in the
// working directory, and runs cleanup. Use it deferred at goroutine roots.
func RecoverPanic(name string, cleanup func()) {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	slog.Error("Panic recovered", "name", name, "panic", r, "stack", string(stack))

	filename := fmt.Sprintf("codectx-panic-%s-%s.log", name, time.Now().Format("20060102-150405"))
	if f, err := os.Create(filename); err == nil {
		fmt.Fprintf(f, "Panic in %s: %v\n\n%s", name, r, stack)
		f.Close()
	}
	if cleanup != nil {
		cleanup()
	}
}
