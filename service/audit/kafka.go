package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viant/revflow/model"
)

// MessageWriter is the subset of kafka.Writer the sink needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka sink
type KafkaConfig struct {
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	Topic        string        `json:"topic" yaml:"topic"`
	WriteTimeout time.Duration `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
}

// Kafka publishes transitions keyed by session id, so a session's events
// land on one partition in order.
type Kafka struct {
	writer MessageWriter
}

// NewKafka creates a sink backed by a synchronous kafka.Writer.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return NewKafkaWithWriter(writer), nil
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(writer MessageWriter) *Kafka {
	return &Kafka{writer: writer}
}

func (k *Kafka) Record(ctx context.Context, transitions ...*model.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(transitions))
	for _, transition := range transitions {
		value, err := json.Marshal(transition)
		if err != nil {
			return fmt.Errorf("kafka: marshal transition: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(transition.SessionID),
			Value: value,
			Time:  transition.Timestamp,
			Headers: []kafka.Header{
				{Key: "status", Value: []byte(transition.ToStatus)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("kafka: write %d transitions: %w", len(messages), err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
