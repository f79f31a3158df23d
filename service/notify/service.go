package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/viant/revflow/internal/clock"
	"github.com/viant/revflow/internal/idgen"
	"github.com/viant/revflow/service/messaging"
	"github.com/viant/revflow/service/messaging/memory"
)

// Config controls the outbox
type Config struct {
	Workers     int           `json:"workers" yaml:"workers"`
	QueueBuffer int           `json:"queueBuffer" yaml:"queueBuffer"`
	SendTimeout time.Duration `json:"sendTimeout" yaml:"sendTimeout"`
	MaxRetries  int           `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay  time.Duration `json:"retryDelay" yaml:"retryDelay"`
}

func DefaultConfig() Config {
	return Config{
		Workers:     2,
		QueueBuffer: 256,
		SendTimeout: 5 * time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Second,
	}
}

// Service queues messages and delivers them on worker goroutines, so that
// session operations never wait on a transport.
type Service struct {
	config    Config
	transport Transport
	queue     *memory.Queue[Message]
	logger    *log.Logger
	nowFn     clock.Func
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	mux       sync.Mutex
	started   bool
}

// Option customises the Service
type Option func(s *Service)

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(fn clock.Func) Option {
	return func(s *Service) { s.nowFn = fn }
}

func New(config Config, transport Transport, opts ...Option) *Service {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	ret := &Service{
		config:    config,
		transport: transport,
		logger:    log.Default(),
		nowFn:     clock.NowFunc,
		queue: memory.NewQueue[Message](memory.Config{
			MaxRetries:  config.MaxRetries,
			RetryDelay:  config.RetryDelay,
			DeadLetter:  true,
			QueueBuffer: config.QueueBuffer,
		}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Notify enqueues message without waiting; delivery happens asynchronously.
// A message that finds the outbox full is kept in Undelivered.
func (s *Service) Notify(_ context.Context, message *Message) error {
	if len(message.Recipients) == 0 {
		return nil
	}
	if message.ID == "" {
		message.ID = idgen.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.nowFn()
	}
	err := s.queue.TryPublish(message)
	if errors.Is(err, messaging.ErrFull) {
		s.logger.Printf("notify outbox full, dropped %s for session %s", message.Template, message.SessionID)
	}
	return err
}

// Start launches the delivery workers.
func (s *Service) Start(ctx context.Context) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.run(ctx)
	}
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		msg, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
				return
			}
			continue
		}
		s.deliver(ctx, msg)
	}
}

func (s *Service) deliver(ctx context.Context, msg messaging.Message[Message]) {
	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()
	message := msg.T()
	if err := s.transport.Send(sendCtx, message); err != nil {
		s.logger.Printf("notify %s for session %s attempt %d failed: %v", message.Template, message.SessionID, msg.Attempt(), err)
		_ = msg.Nack(err)
		return
	}
	_ = msg.Ack()
}

// Shutdown stops accepting messages, drains the outbox and waits for the
// workers, or gives up when ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.queue.Close()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if s.cancel != nil {
			s.cancel()
		}
		return ctx.Err()
	}
}

// Undelivered returns messages that exhausted their retries.
func (s *Service) Undelivered() []*Message {
	var result []*Message
	for _, letter := range s.queue.DeadLetters() {
		message := letter.Payload
		result = append(result, &message)
	}
	return result
}
