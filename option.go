package revflow

import (
	"log"
	"time"

	"github.com/viant/afs/storage"
	"github.com/viant/revflow/internal/clock"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/audit"
	dsession "github.com/viant/revflow/service/dao/session"
	"github.com/viant/revflow/service/directory"
	"github.com/viant/revflow/service/notify"
	"github.com/viant/revflow/service/registry"
	"github.com/viant/revflow/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithStore sets the session store; the default keeps sessions in memory.
func WithStore(store dsession.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithRegistry sets the workflow registry
func WithRegistry(registry *registry.Service) Option {
	return func(s *Service) { s.registry = registry }
}

// WithDirectory sets the reviewer directory. Its workload source is replaced
// by one counting open assignments in the session store.
func WithDirectory(directory *directory.Service) Option {
	return func(s *Service) { s.directory = directory }
}

// WithAuditSink sets the sink receiving every status transition
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.audit = sink }
}

// WithTransport sets the notification transport
func WithTransport(transport notify.Transport) Option {
	return func(s *Service) { s.transport = transport }
}

// WithNotifyConfig sets the notification outbox settings
func WithNotifyConfig(config notify.Config) Option {
	return func(s *Service) { s.notifyConfig = config }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(fn clock.Func) Option {
	return func(s *Service) { s.nowFn = fn }
}

// WithPredicate registers a custom escalation condition by name
func WithPredicate(name string, predicate model.Predicate) Option {
	return func(s *Service) { s.predicates[name] = predicate }
}

// WithActionHandler registers a custom escalation action by name
func WithActionHandler(name string, handler model.ActionHandler) Option {
	return func(s *Service) { s.actions[name] = handler }
}

// WithAuditTimeout bounds every audit sink call
func WithAuditTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.auditTimeout = timeout }
}

// WithSaveRetries sets how many times a failed save is retried. Conflicts
// are never retried.
func WithSaveRetries(retries int, delay time.Duration) Option {
	return func(s *Service) {
		s.saveRetries = retries
		s.retryDelay = delay
	}
}

// WithEscalationWorkers bounds concurrent session evaluations per tick
func WithEscalationWorkers(workers int) Option {
	return func(s *Service) { s.escalationWorkers = workers }
}

// WithFSOptions sets storage options used to load workflows and reviewers,
// e.g. an embed.FS.
func WithFSOptions(options ...storage.Option) Option {
	return func(s *Service) { s.fsOptions = options }
}

// WithTracing configures OpenTelemetry with the stdout exporter, or a file
// when outputFile is set. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err != nil {
			s.initErrors = append(s.initErrors, err)
		}
	}
}

// WithTracingExporter configures OpenTelemetry with a custom span exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.initErrors = append(s.initErrors, err)
		}
	}
}
