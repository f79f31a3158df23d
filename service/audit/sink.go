// Package audit records session transitions to one or more sinks.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/viant/revflow/model"
)

// Sink receives transition events in emission order
type Sink interface {
	Record(ctx context.Context, transitions ...*model.Transition) error
}

// Memory keeps every transition, mostly for tests and the summary view
type Memory struct {
	mux         sync.RWMutex
	transitions []*model.Transition
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, transitions ...*model.Transition) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	for _, transition := range transitions {
		clone := *transition
		m.transitions = append(m.transitions, &clone)
	}
	return nil
}

// Transitions returns the recorded transitions of sessionID, or all when empty.
func (m *Memory) Transitions(sessionID string) []*model.Transition {
	m.mux.RLock()
	defer m.mux.RUnlock()
	var result []*model.Transition
	for _, transition := range m.transitions {
		if sessionID == "" || transition.SessionID == sessionID {
			clone := *transition
			result = append(result, &clone)
		}
	}
	return result
}

// Log writes one JSON line per transition
type Log struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Record(_ context.Context, transitions ...*model.Transition) error {
	for _, transition := range transitions {
		data, err := json.Marshal(transition)
		if err != nil {
			return err
		}
		l.logger.Printf("audit %s", data)
	}
	return nil
}

// Multi fans transitions out to every sink, joining their errors
type Multi []Sink

func (m Multi) Record(ctx context.Context, transitions ...*model.Transition) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, transitions...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards transitions.
type Nop struct{}

func (Nop) Record(context.Context, ...*model.Transition) error { return nil }
