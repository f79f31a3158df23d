package revflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/viant/afs"
	"github.com/viant/revflow/internal/env"
	"github.com/viant/revflow/internal/yml"
	"github.com/viant/revflow/service/audit"
	sfs "github.com/viant/revflow/service/dao/session/fs"
	smemory "github.com/viant/revflow/service/dao/session/memory"
	ssql "github.com/viant/revflow/service/dao/session/sql"
	"github.com/viant/revflow/service/messaging/memory"
	"github.com/viant/revflow/service/notify"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StoreFS       = "fs"
	StorePostgres = ssql.DriverPostgres
	StoreSQLite   = ssql.DriverSQLite
)

// Config is a serialisable representation of the engine configuration.
type Config struct {
	Store        StoreConfig        `json:"store" yaml:"store"`
	Escalation   EscalationConfig   `json:"escalation" yaml:"escalation"`
	Notification NotificationConfig `json:"notification" yaml:"notification"`
	Audit        AuditConfig        `json:"audit" yaml:"audit"`
	HTTP         HTTPConfig         `json:"http" yaml:"http"`
	Tracing      TracingConfig      `json:"tracing" yaml:"tracing"`
	// WorkflowURLs and ReviewerURLs are afs URLs of YAML documents
	WorkflowURLs []string `json:"workflowURLs" yaml:"workflowURLs"`
	ReviewerURLs []string `json:"reviewerURLs" yaml:"reviewerURLs"`
}

type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// BaseURL is the session directory of the fs driver
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

type EscalationConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
	Workers  int           `json:"workers" yaml:"workers"`
}

type NotificationConfig struct {
	Workers     int           `json:"workers" yaml:"workers"`
	QueueBuffer int           `json:"queueBuffer" yaml:"queueBuffer"`
	SendTimeout time.Duration `json:"sendTimeout" yaml:"sendTimeout"`
	MaxRetries  int           `json:"maxRetries" yaml:"maxRetries"`
	WebhookURL  string        `json:"webhookURL,omitempty" yaml:"webhookURL,omitempty"`
}

type AuditConfig struct {
	Timeout time.Duration     `json:"timeout" yaml:"timeout"`
	Kafka   audit.KafkaConfig `json:"kafka" yaml:"kafka"`
	S3      audit.S3Config    `json:"s3" yaml:"s3"`
}

type HTTPConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	JWTSecret string `json:"jwtSecret,omitempty" yaml:"jwtSecret,omitempty"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	Version     string `json:"version" yaml:"version"`
	OutputFile  string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config with every default applied; callers may
// modify it before passing it to NewFromConfig.
func DefaultConfig() *Config {
	notification := notify.DefaultConfig()
	return &Config{
		Store:      StoreConfig{Driver: StoreMemory},
		Escalation: EscalationConfig{Interval: time.Minute, Workers: 8},
		Notification: NotificationConfig{
			Workers:     notification.Workers,
			QueueBuffer: notification.QueueBuffer,
			SendTimeout: notification.SendTimeout,
			MaxRetries:  notification.MaxRetries,
		},
		Audit:   AuditConfig{Timeout: defaultAuditTimeout},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Tracing: TracingConfig{ServiceName: "revflow", Version: "0.1.0"},
	}
}

// Validate returns every invalid setting, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	switch c.Store.Driver {
	case StoreMemory:
	case StoreFS:
		if c.Store.BaseURL == "" {
			errs = append(errs, fmt.Errorf("store.baseURL is required by the fs driver"))
		}
	case StorePostgres, StoreSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required by the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store.driver %q", c.Store.Driver))
	}
	if c.Escalation.Interval <= 0 {
		errs = append(errs, fmt.Errorf("escalation.interval must be > 0"))
	}
	if c.Escalation.Workers <= 0 {
		errs = append(errs, fmt.Errorf("escalation.workers must be > 0"))
	}
	if c.Notification.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("notification.sendTimeout must be > 0"))
	}
	if c.Audit.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("audit.timeout must be > 0"))
	}
	if len(c.Audit.Kafka.Brokers) > 0 && c.Audit.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("audit.kafka.topic is required"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML config through afs on top of DefaultConfig.
// ${env.KEY} references are expanded and REVFLOW_* variables override the
// document.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	ret := DefaultConfig()
	if URL != "" {
		data, err := afs.New().DownloadWithURL(ctx, URL)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
		}
		if err = decodeConfig(data, ret); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
		}
	}
	ret.applyEnv()
	return ret, ret.Validate()
}

func decodeConfig(data []byte, config *Config) error {
	node := &yaml.Node{}
	if err := yaml.Unmarshal(data, node); err != nil {
		return err
	}
	if len(node.Content) == 0 {
		return nil
	}
	root := yml.Root(node)
	root.Expand(env.Expand)
	return root.Decode(config)
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("REVFLOW_ADDR", c.HTTP.Addr)
	c.HTTP.JWTSecret = getEnv("REVFLOW_JWT_SECRET", c.HTTP.JWTSecret)
	c.Store.Driver = getEnv("REVFLOW_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("REVFLOW_STORE_DSN", c.Store.DSN)
	c.Store.BaseURL = getEnv("REVFLOW_STORE_BASE_URL", c.Store.BaseURL)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewFromConfig wires the store, audit sinks and notification transport
// described by config, then loads workflows and reviewers. Options are
// applied after the configured ones and take precedence.
func NewFromConfig(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := log.New(os.Stderr, "revflow ", log.LstdFlags)
	var closers []func() error
	fail := func(err error) (*Service, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}
	var opts []Option
	opts = append(opts, WithLogger(logger))

	switch config.Store.Driver {
	case StoreFS:
		store, err := sfs.New(config.Store.BaseURL, logger)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, WithStore(store))
	case StorePostgres, StoreSQLite:
		store, err := ssql.Open(ctx, config.Store.Driver, config.Store.DSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store.Close)
		opts = append(opts, WithStore(store))
	default:
		opts = append(opts, WithStore(smemory.New()))
	}

	// each durable sink retries on its own queue so that a failure of one
	// never replays the transition to the others
	durable := func(sink audit.Sink) audit.Sink {
		async := audit.NewAsync(context.Background(), sink, memory.DefaultConfig(), logger)
		closers = append(closers, func() error {
			async.Close()
			return nil
		})
		return async
	}
	sinks := audit.Multi{audit.NewLog(logger)}
	if len(config.Audit.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafka(config.Audit.Kafka)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, kafka.Close)
		sinks = append(sinks, durable(kafka))
	}
	if config.Audit.S3.Bucket != "" {
		archive, err := audit.NewS3(ctx, config.Audit.S3)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, durable(archive))
	}
	opts = append(opts, WithAuditSink(sinks))

	var transport notify.Transport = notify.NewLogTransport(logger)
	if config.Notification.WebhookURL != "" {
		transport = notify.Fanout{transport, notify.NewWebhookTransport(config.Notification.WebhookURL, nil)}
	}
	notification := notify.DefaultConfig()
	notification.Workers = config.Notification.Workers
	notification.QueueBuffer = config.Notification.QueueBuffer
	notification.SendTimeout = config.Notification.SendTimeout
	notification.MaxRetries = config.Notification.MaxRetries
	opts = append(opts,
		WithTransport(transport),
		WithNotifyConfig(notification),
		WithAuditTimeout(config.Audit.Timeout),
		WithEscalationWorkers(config.Escalation.Workers),
	)
	if config.Tracing.Enabled {
		opts = append(opts, WithTracing(config.Tracing.ServiceName, config.Tracing.Version, config.Tracing.OutputFile))
	}

	srv, err := New(append(opts, options...)...)
	if err != nil {
		return fail(err)
	}
	srv.closers = append(srv.closers, closers...)
	if len(config.WorkflowURLs) > 0 {
		if err = srv.LoadWorkflows(ctx, config.WorkflowURLs...); err != nil {
			return fail(err)
		}
	}
	if len(config.ReviewerURLs) > 0 {
		if err = srv.LoadReviewers(ctx, config.ReviewerURLs...); err != nil {
			return fail(err)
		}
	}
	return srv, nil
}
