package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/revflow/service/messaging"
)

type reminder struct {
	SessionID  string
	ReviewerID string
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue[reminder](DefaultConfig())
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &reminder{SessionID: "s1", ReviewerID: "r1"}))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", message.T().ReviewerID)
	assert.Equal(t, 1, message.Attempt())
	assert.Equal(t, 0, queue.Size())

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
	assert.Error(t, message.Nack(nil))
}

func TestQueue_RetriesThenDeadLetter(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[reminder](config)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, queue.Publish(ctx, &reminder{SessionID: "s1"}))
	cause := errors.New("smtp unavailable")
	for attempt := 1; attempt <= 3; attempt++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, attempt, message.Attempt())
		require.NoError(t, message.Nack(cause))
	}

	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	letters := queue.DeadLetters()
	assert.Equal(t, 3, letters[0].Attempts)
	assert.ErrorIs(t, letters[0].Err, cause)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_Concurrency(t *testing.T) {
	queue := NewQueue[reminder](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	producers, perProducer := 8, 25
	var consumed sync.Map
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(2)
		go func(producer int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				assert.NoError(t, queue.Publish(ctx, &reminder{SessionID: fmt.Sprintf("p%d-%d", producer, j)}))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				message, err := queue.Consume(ctx)
				if !assert.NoError(t, err) {
					return
				}
				consumed.Store(message.T().SessionID, true)
				assert.NoError(t, message.Ack())
			}
		}()
	}
	wg.Wait()

	count := 0
	consumed.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, producers*perProducer, count)
}

func TestQueue_ContextAndClose(t *testing.T) {
	queue := NewQueue[reminder](DefaultConfig())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, queue.Publish(cancelled, &reminder{}), context.Canceled)

	timeout, cancelTimeout := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelTimeout()
	_, err := queue.Consume(timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &reminder{SessionID: "last"}))
	queue.Close()
	assert.ErrorIs(t, queue.Publish(ctx, &reminder{}), messaging.ErrClosed)

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last", message.T().SessionID)
	_, err = queue.Consume(ctx)
	assert.ErrorIs(t, err, messaging.ErrClosed)
}

func TestQueue_TryPublish(t *testing.T) {
	config := DefaultConfig()
	config.QueueBuffer = 1
	queue := NewQueue[reminder](config)

	require.NoError(t, queue.TryPublish(&reminder{SessionID: "s1"}))
	assert.ErrorIs(t, queue.TryPublish(&reminder{SessionID: "s2"}), messaging.ErrFull)
	assert.Equal(t, 1, queue.Size())

	letters := queue.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "s2", letters[0].Payload.SessionID)
	assert.ErrorIs(t, letters[0].Err, messaging.ErrFull)

	queue.Close()
	assert.ErrorIs(t, queue.TryPublish(&reminder{}), messaging.ErrClosed)
}
