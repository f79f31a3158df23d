package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
)

// Transport delivers a single message
type Transport interface {
	Send(ctx context.Context, message *Message) error
}

// LogTransport writes messages to a logger
type LogTransport struct {
	logger *log.Logger
}

func NewLogTransport(logger *log.Logger) *LogTransport {
	if logger == nil {
		logger = log.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, message *Message) error {
	t.logger.Printf("notify %s [%s] session=%s to=%v", message.Template, message.Severity, message.SessionID, message.Recipients)
	return nil
}

// WebhookTransport POSTs each message as JSON
type WebhookTransport struct {
	url    string
	client *http.Client
}

func NewWebhookTransport(url string, client *http.Client) *WebhookTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookTransport{url: url, client: client}
}

func (t *WebhookTransport) Send(ctx context.Context, message *Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := t.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", t.url, err)
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook %s: unexpected status %d", t.url, response.StatusCode)
	}
	return nil
}

// Recorder keeps delivered messages in memory
type Recorder struct {
	mux      sync.Mutex
	messages []*Message
}

func (r *Recorder) Send(_ context.Context, message *Message) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	clone := *message
	r.messages = append(r.messages, &clone)
	return nil
}

// Messages returns delivered messages, optionally filtered by template.
func (r *Recorder) Messages(template string) []*Message {
	r.mux.Lock()
	defer r.mux.Unlock()
	var result []*Message
	for _, message := range r.messages {
		if template == "" || message.Template == template {
			result = append(result, message)
		}
	}
	return result
}

// Fanout sends through every transport and fails when any of them fails
type Fanout []Transport

func (f Fanout) Send(ctx context.Context, message *Message) error {
	for _, transport := range f {
		if err := transport.Send(ctx, message); err != nil {
			return err
		}
	}
	return nil
}
