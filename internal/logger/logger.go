// Package logger provides verbose logging for Lectern.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to trace ingestion, retrieval and chat turns.
// Errors are always printed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func printf(always bool, level, component, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !always && !verbose {
		return
	}
	prefix := "[" + level + "] "
	if component != "" {
		prefix += component + ": "
	}
	fmt.Fprintf(output, prefix+format+"\n", args...)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	printf(false, "DEBUG", "", format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	printf(false, "INFO", "", format, args...)
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	printf(false, "WARN", "", format, args...)
}

// Error prints an error message regardless of verbose mode.
func Error(format string, args ...any) {
	printf(true, "ERROR", "", format, args...)
}

// Logger prefixes every message with a component name.
type Logger struct {
	component string
}

// With returns a Logger scoped to component.
func With(component string) Logger {
	return Logger{component: component}
}

// Debug prints a message if verbose mode is enabled.
func (l Logger) Debug(format string, args ...any) {
	printf(false, "DEBUG", l.component, format, args...)
}

// Info prints an informational message if verbose mode is enabled.
func (l Logger) Info(format string, args ...any) {
	printf(false, "INFO", l.component, format, args...)
}

// Warn prints a warning message if verbose mode is enabled.
func (l Logger) Warn(format string, args ...any) {
	printf(false, "WARN", l.component, format, args...)
}

// Error prints an error message regardless of verbose mode.
func (l Logger) Error(format string, args ...any) {
	printf(true, "ERROR", l.component, format, args...)
}
