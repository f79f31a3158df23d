// Package model contains the in-memory representation of review workflow
// definitions, reviewer profiles and the review session aggregate.
//
// Definitions are typically loaded from YAML documents; sessions are
// persisted as JSON by the stores under service/dao. Types in this package
// carry structural validation and lookups only - state transitions live in
// service/session.
package model
