// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Identifiers for sessions, assignments and feedback are opaque strings;
// callers must not parse them.
package idgen
