package event

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/viant/revflow/service/messaging"
)

// Handler processes one event; an error nacks the underlying message.
type Handler[T any] func(ctx context.Context, event *Event[T]) error

// Listener consumes events from a queue on a single goroutine
type Listener[T any] struct {
	queue   messaging.Queue[Event[T]]
	handler Handler[T]
	logger  *log.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func NewListener[T any](queue messaging.Queue[Event[T]], handler Handler[T], logger *log.Logger) *Listener[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Listener[T]{
		queue:   queue,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start runs the consume loop until Stop is called, ctx is done or the
// queue is closed.
func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go func() {
		defer close(l.done)
		for {
			msg, err := l.queue.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
					return
				}
				l.logger.Printf("error consuming event: %v", err)
				continue
			}
			if err = l.handler(ctx, msg.T()); err != nil {
				l.logger.Printf("error handling %v event for %v: %v", eventType(msg.T()), sessionID(msg.T()), err)
				_ = msg.Nack(err)
				continue
			}
			_ = msg.Ack()
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (l *Listener[T]) Stop() {
	if l.cancel == nil {
		return
	}
	l.once.Do(l.cancel)
	<-l.done
}

// Done is closed once the consume loop exits.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

func eventType[T any](e *Event[T]) string {
	if e.Context == nil {
		return ""
	}
	return e.Context.EventType
}

func sessionID[T any](e *Event[T]) string {
	if e.Context == nil {
		return ""
	}
	return e.Context.SessionID
}
