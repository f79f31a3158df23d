package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/messaging"
)

type flakyTransport struct {
	failures int32
	Recorder
}

func (f *flakyTransport) Send(ctx context.Context, message *Message) error {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return errors.New("temporarily unavailable")
	}
	return f.Recorder.Send(ctx, message)
}

func TestService_Deliver(t *testing.T) {
	testCases := []struct {
		name        string
		failures    int32
		maxRetries  int
		delivered   int
		undelivered int
	}{
		{name: "first attempt", failures: 0, maxRetries: 2, delivered: 1},
		{name: "after retry", failures: 2, maxRetries: 2, delivered: 1},
		{name: "dead lettered", failures: 10, maxRetries: 1, undelivered: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &flakyTransport{failures: tc.failures}
			service := New(Config{Workers: 1, MaxRetries: tc.maxRetries, RetryDelay: time.Millisecond}, transport)
			ctx := context.Background()
			service.Start(ctx)

			require.NoError(t, service.Notify(ctx, &Message{SessionID: "s1", Template: TemplateAssigned, Recipients: []string{"r1"}}))
			assert.Eventually(t, func() bool {
				return len(transport.Messages("")) == tc.delivered && len(service.Undelivered()) == tc.undelivered
			}, time.Second, 2*time.Millisecond)
			require.NoError(t, service.Shutdown(ctx))
		})
	}
}

func TestService_SkipsMessagesWithoutRecipients(t *testing.T) {
	recorder := &Recorder{}
	service := New(DefaultConfig(), recorder)
	ctx := context.Background()
	service.Start(ctx)
	require.NoError(t, service.Notify(ctx, &Message{SessionID: "s1", Template: TemplateReminder}))
	require.NoError(t, service.Shutdown(ctx))
	assert.Empty(t, recorder.Messages(""))
}

func TestService_FullOutboxDoesNotBlock(t *testing.T) {
	recorder := &Recorder{}
	service := New(Config{Workers: 1, QueueBuffer: 1}, recorder)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < 3; i++ {
			err = errors.Join(err, service.Notify(ctx, &Message{SessionID: fmt.Sprintf("s%d", i), Template: TemplateAssigned, Recipients: []string{"r1"}}))
		}
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, messaging.ErrFull)
	case <-time.After(time.Second):
		t.Fatal("Notify waited for outbox space")
	}
	assert.Len(t, service.Undelivered(), 2)

	service.Start(ctx)
	require.NoError(t, service.Shutdown(ctx))
	delivered := recorder.Messages("")
	require.Len(t, delivered, 1)
	assert.Equal(t, "s0", delivered[0].SessionID)
}

func TestWebhookTransport_Send(t *testing.T) {
	var received Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		if received.Severity == model.SeverityCritical {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL, server.Client())
	require.NoError(t, transport.Send(context.Background(), &Message{SessionID: "s1", Template: TemplateEscalated, Severity: model.SeverityMajor}))
	assert.Equal(t, "s1", received.SessionID)
	assert.Error(t, transport.Send(context.Background(), &Message{Severity: model.SeverityCritical}))
}
