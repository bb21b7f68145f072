// Package assert reports programming-error invariants. A failed assertion is
// returned as an error wrapping ErrAssertionFailed and logged through the
// installed Logger, so corrupt configuration is never silently tolerated.
package assert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrAssertionFailed is the sentinel error for failed assertions.
var ErrAssertionFailed = errors.New("assertion failed")

// Logger is the minimal logging contract used on failure.
type Logger interface {
	Error(msg string, keysAndValues ...interface{})
}

var (
	mu     sync.RWMutex
	logger Logger
)

// SetLogger installs the logger used to report failures.
func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// AssertionError describes a failed assertion.
type AssertionError struct {
	Component string
	Message   string
	Details   string
}

func (e *AssertionError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("assertion failed: %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("assertion failed: %s: %s [%s]", e.Component, e.Message, e.Details)
}

func (e *AssertionError) Unwrap() error { return ErrAssertionFailed }

// That returns nil when ok holds, an *AssertionError otherwise.
func That(ok bool, component, msg string, kv ...any) error {
	if ok {
		return nil
	}
	return fail(component, msg, kv...)
}

// Never always fails; use it on unreachable branches.
func Never(component, msg string, kv ...any) error {
	return fail(component, msg, kv...)
}

func fail(component, msg string, kv ...any) error {
	err := &AssertionError{Component: component, Message: msg, Details: formatKV(kv)}
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		l.Error("assertion failed", append([]any{"component", component, "message", msg}, kv...)...)
	}
	return err
}

func formatKV(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	parts := make([]string, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			parts = append(parts, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
		} else {
			parts = append(parts, fmt.Sprintf("%v=<missing>", kv[i]))
		}
	}
	return strings.Join(parts, " ")
}
