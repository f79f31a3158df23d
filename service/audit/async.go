package audit

import (
	"context"
	"log"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/event"
	"github.com/viant/revflow/service/messaging/memory"
)

// EventTransition is the event type carried by the async sink
const EventTransition = "session.transition"

// Async decouples callers from a slow sink through an in-memory queue.
// Failed deliveries are retried and finally dead-lettered by the queue.
type Async struct {
	queue     *memory.Queue[event.Event[model.Transition]]
	publisher *event.Publisher[model.Transition]
	listener  *event.Listener[model.Transition]
}

// NewAsync starts delivering to sink in the background until Close.
func NewAsync(ctx context.Context, sink Sink, config memory.Config, logger *log.Logger) *Async {
	queue := memory.NewQueue[event.Event[model.Transition]](config)
	listener := event.NewListener[model.Transition](queue, func(ctx context.Context, e *event.Event[model.Transition]) error {
		return sink.Record(ctx, &e.Data)
	}, logger)
	listener.Start(ctx)
	return &Async{
		queue:     queue,
		publisher: event.NewPublisher[model.Transition](queue),
		listener:  listener,
	}
}

func (a *Async) Record(ctx context.Context, transitions ...*model.Transition) error {
	for _, transition := range transitions {
		e := event.NewEvent(&event.Context{
			SessionID: transition.SessionID,
			EventType: EventTransition,
			Actor:     transition.Actor,
			Stage:     transition.Stage,
		}, *transition)
		if err := a.publisher.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Failed returns transitions that exhausted their retries.
func (a *Async) Failed() []*model.Transition {
	var result []*model.Transition
	for _, letter := range a.queue.DeadLetters() {
		transition := letter.Payload.Data
		result = append(result, &transition)
	}
	return result
}

// Close drains queued transitions and stops the delivery loop.
func (a *Async) Close() {
	a.queue.Close()
	<-a.listener.Done()
}
