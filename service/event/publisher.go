package event

import (
	"context"

	"github.com/viant/revflow/internal/clock"
	"github.com/viant/revflow/service/messaging"
)

type Publisher[T any] struct {
	queue messaging.Queue[Event[T]]
}

func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{queue: queue}
}

func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = clock.Now()
	}
	return p.queue.Publish(ctx, event)
}
