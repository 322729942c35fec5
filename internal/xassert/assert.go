// Package xassert provides debug-only invariant checks used across the
// runtime (the readers counter check in ubuf). Built
// with -tags debug these panic; otherwise Assert is a no-op, so callers
// must never rely on it for control flow or side effects.
package xassert

import "fmt"

// Assert panics with the formatted message if cond is false and the debug
// build tag is set. It is a no-op in release builds.
func Assert(cond bool, format string, args ...interface{}) {
	if enabled && !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Enabled reports whether debug assertions are compiled in.
func Enabled() bool { return enabled }
