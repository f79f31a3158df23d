package revflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/viant/afs/storage"
	"github.com/viant/revflow/internal/clock"
	"github.com/viant/revflow/internal/lock"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/audit"
	"github.com/viant/revflow/service/dao"
	dsession "github.com/viant/revflow/service/dao/session"
	smemory "github.com/viant/revflow/service/dao/session/memory"
	"github.com/viant/revflow/service/directory"
	"github.com/viant/revflow/service/escalation"
	"github.com/viant/revflow/service/notify"
	"github.com/viant/revflow/service/planner"
	"github.com/viant/revflow/service/registry"
	"github.com/viant/revflow/service/scoring"
	"github.com/viant/revflow/service/session"
)

const (
	defaultAuditTimeout = 5 * time.Second
	defaultSaveRetries  = 2
	defaultRetryDelay   = 50 * time.Millisecond
)

// Service is the review engine facade. Every mutation of a session is
// serialised by a per-session lock, applied to a copy and persisted with an
// optimistic version check; reads never lock.
type Service struct {
	store     dsession.Store
	registry  *registry.Service
	directory *directory.Service
	planner   *planner.Planner
	machine   *session.Machine
	scoring   *scoring.Engine
	evaluator *escalation.Evaluator
	scheduler *escalation.Scheduler
	notifier  *notify.Service
	transport notify.Transport
	audit     audit.Sink
	locks     *lock.Keyed
	logger    *log.Logger
	nowFn     clock.Func

	predicates        map[string]model.Predicate
	actions           map[string]model.ActionHandler
	notifyConfig      notify.Config
	auditTimeout      time.Duration
	saveRetries       int
	retryDelay        time.Duration
	escalationWorkers int
	fsOptions         []storage.Option
	closers           []func() error
	initErrors        []error
}

// New creates a Service; unset collaborators default to in-memory ones.
func New(options ...Option) (*Service, error) {
	ret := &Service{
		predicates:   map[string]model.Predicate{},
		actions:      map[string]model.ActionHandler{},
		notifyConfig: notify.DefaultConfig(),
		auditTimeout: defaultAuditTimeout,
		saveRetries:  defaultSaveRetries,
		retryDelay:   defaultRetryDelay,
	}
	ret.init(options)
	if len(ret.initErrors) > 0 {
		return nil, errors.Join(ret.initErrors...)
	}
	return ret, nil
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	s.directory.SetWorkload(&storeWorkload{store: s.store})
	s.planner = planner.New(s.directory)
	s.scoring = scoring.New()
	s.machine = session.New(s.scoring)
	s.evaluator = escalation.NewEvaluator()
	for name, predicate := range s.predicates {
		s.evaluator.RegisterPredicate(name, predicate)
	}
	s.scheduler = escalation.NewScheduler(s, s.escalationWorkers, s.logger)
	s.notifier = notify.New(s.notifyConfig, s.transport, notify.WithLogger(s.logger), notify.WithClock(s.nowFn))
}

func (s *Service) ensureBaseSetup() {
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "revflow ", log.LstdFlags)
	}
	if s.nowFn == nil {
		s.nowFn = clock.NowFunc
	}
	if s.store == nil {
		s.store = smemory.New()
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if len(s.fsOptions) > 0 {
		s.registry.SetFSOptions(s.fsOptions...)
	}
	if s.directory == nil {
		s.directory = directory.New(directory.WithFSOptions(s.fsOptions...))
	}
	if s.audit == nil {
		s.audit = audit.NewLog(s.logger)
	}
	if s.transport == nil {
		s.transport = notify.NewLogTransport(s.logger)
	}
	s.locks = lock.NewKeyed()
}

// Registry returns the workflow registry
func (s *Service) Registry() *registry.Service {
	return s.registry
}

// Directory returns the reviewer directory
func (s *Service) Directory() *directory.Service {
	return s.directory
}

// RegisterWorkflow validates and publishes cfg.
func (s *Service) RegisterWorkflow(cfg *model.WorkflowConfig) error {
	return s.registry.Register(cfg)
}

// LoadWorkflows replaces the registry content with the definitions at URLs.
func (s *Service) LoadWorkflows(ctx context.Context, URLs ...string) error {
	return s.registry.Load(ctx, URLs...)
}

// LoadReviewers replaces the directory content with the profiles at URLs.
func (s *Service) LoadReviewers(ctx context.Context, URLs ...string) error {
	return s.directory.Load(ctx, URLs...)
}

// GetSession returns a copy of the stored session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.ReviewSession, error) {
	return s.load(ctx, sessionID)
}

// ListSessions returns sessions matching every filter.
func (s *Service) ListSessions(ctx context.Context, filters ...*dao.Parameter) ([]*model.ReviewSession, error) {
	return s.store.List(ctx, filters...)
}

func (s *Service) load(ctx context.Context, sessionID string) (*model.ReviewSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty id", types.ErrSessionNotFound)
	}
	ret, err := s.store.Load(ctx, sessionID)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, sessionID)
	}
	return ret, err
}

// save persists aSession, retrying transient failures. Conflicts surface
// immediately so that the caller can reload.
func (s *Service) save(ctx context.Context, aSession *model.ReviewSession) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = s.store.Save(ctx, aSession); err == nil || types.IsConflict(err) || attempt >= s.saveRetries {
			return err
		}
		s.logger.Printf("failed to save session %s (attempt %d): %v", aSession.ID, attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay * time.Duration(attempt+1)):
		}
	}
}
