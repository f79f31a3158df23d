package memory

import (
	"context"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/dao"
	"github.com/viant/revflow/service/dao/criteria"
	"github.com/viant/revflow/service/dao/session"
	"github.com/viant/revflow/service/dao/store"
)

// Service implements an in-memory, thread-safe session store. All API
// methods work with copies to eliminate data races between goroutines.
type Service struct {
	*store.MemoryStore[string, model.ReviewSession]
}

var _ session.Store = (*Service)(nil)

// Save stores a copy of aSession when its version matches the stored one
// and advances aSession.Version.
func (s *Service) Save(ctx context.Context, aSession *model.ReviewSession) error {
	if err := session.Validate(aSession); err != nil {
		return err
	}
	return s.Put(ctx, aSession, func(current *model.ReviewSession, exists bool) error {
		var stored int64
		if exists {
			stored = current.Version
		}
		next, err := session.NextVersion(aSession, stored, exists)
		if err != nil {
			return err
		}
		aSession.Version = next
		return nil
	})
}

func (s *Service) Load(ctx context.Context, id string) (*model.ReviewSession, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	return s.MemoryStore.Load(ctx, id)
}

// List returns matching sessions ordered by submission time.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ReviewSession, error) {
	sessions, err := s.MemoryStore.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	session.Sort(sessions)
	return sessions, nil
}

// New creates an empty store.
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[string, model.ReviewSession](
			func(s *model.ReviewSession) string { return s.ID },
			store.WithCopy[string, model.ReviewSession]((*model.ReviewSession).Clone),
			store.WithMatcher[string, model.ReviewSession](criteria.MatchSession),
		),
	}
}
