package event

import (
	"time"

	"github.com/viant/revflow/internal/clock"
)

// Context identifies what an event is about
type Context struct {
	SessionID string `json:"sessionID"`
	EventType string `json:"eventType"`
	Actor     string `json:"actor,omitempty"`
	Stage     int    `json:"stage,omitempty"`
}

// Event is a typed envelope carried by publishers and listeners
type Event[T any] struct {
	Context   *Context          `json:"context"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Data      T                 `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]string),
		Data:      data,
	}
}
