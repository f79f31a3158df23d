package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/revflow/internal/idgen"
	"github.com/viant/revflow/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// DeadLetter is a message that exhausted its retries
type DeadLetter[T any] struct {
	ID       string
	Payload  T
	Attempts int
	Err      error
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	attempt   int
	mu        sync.Mutex
	processed bool
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

func (m *Message[T]) Attempt() int {
	return m.attempt
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

// Nack requeues the message after RetryDelay until MaxRetries is reached,
// then moves it to the dead letter list when enabled.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	if m.attempt <= m.queue.config.MaxRetries {
		retry := &Message[T]{id: m.id, payload: m.payload, queue: m.queue, attempt: m.attempt + 1}
		m.queue.pending.Add(1)
		time.AfterFunc(m.queue.config.RetryDelay, func() {
			defer m.queue.pending.Done()
			if !m.queue.enqueue(retry) {
				m.queue.bury(retry, messaging.ErrClosed)
			}
		})
		return nil
	}
	m.queue.bury(m, err)
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
	mu       sync.RWMutex
	closed   bool
	pending  sync.WaitGroup
	dlq      []*DeadLetter[T]
	dlqMu    sync.Mutex
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish adds a copy of t to the queue, blocking while the buffer is full
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{id: idgen.New(), payload: *t, queue: q, attempt: 1}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return messaging.ErrClosed
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish adds a copy of t without waiting. When the buffer is full the
// message goes to the dead letter list and messaging.ErrFull is returned.
func (q *Queue[T]) TryPublish(t *T) error {
	msg := &Message[T]{id: idgen.New(), payload: *t, queue: q, attempt: 1}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return messaging.ErrClosed
	}
	select {
	case q.messages <- msg:
		return nil
	default:
		q.bury(msg, messaging.ErrFull)
		return messaging.ErrFull
	}
}

func (q *Queue[T]) enqueue(msg *Message[T]) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.messages <- msg:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) bury(m *Message[T], err error) {
	if !q.config.DeadLetter {
		return
	}
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, &DeadLetter[T]{ID: m.id, Payload: m.payload, Attempts: m.attempt, Err: err})
	q.dlqMu.Unlock()
}

// Consume retrieves a single item from the queue; it returns
// messaging.ErrClosed once the queue is closed and drained
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg, ok := <-q.messages:
		if !ok {
			return nil, messaging.ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting messages and waits for scheduled retries to settle.
// Messages already buffered can still be consumed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.pending.Wait()
	close(q.messages)
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DeadLetters returns a snapshot of the dead letter list
func (q *Queue[T]) DeadLetters() []*DeadLetter[T] {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]*DeadLetter[T](nil), q.dlq...)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
