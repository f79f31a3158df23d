package clock

import "time"

// Func returns the current instant. Components accept one so tests can pin time.
type Func func() time.Time

// NowFunc returns current UTC time. Override in tests for determinism.
var NowFunc Func = func() time.Time { return time.Now().UTC() }

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Fixed returns a Func that always reports t.
func Fixed(t time.Time) Func {
	return func() time.Time { return t }
}
