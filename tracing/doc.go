// Package tracing wraps OpenTelemetry so that engine operations can open
// spans without importing the upstream packages directly.
package tracing
