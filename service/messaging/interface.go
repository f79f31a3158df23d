package messaging

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when publishing to a closed queue.
	ErrClosed = errors.New("messaging: queue closed")
	// ErrFull is returned by a non-blocking publish when the buffer is full.
	ErrFull = errors.New("messaging: queue full")
)

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Attempt returns the 1-based delivery attempt
	Attempt() int

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}
