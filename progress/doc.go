// Package progress keeps aggregated counters for one escalation tick. The
// tracker travels in the context so that every worker can update it.
package progress
