package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/dao"
	"github.com/viant/revflow/service/dao/criteria"
	"github.com/viant/revflow/service/dao/session"
)

// Service implements a filesystem-based session storage, one JSON document per session
type Service struct {
	basePath string
	fs       afs.Service
	logger   *log.Logger
	mu       sync.RWMutex
}

var _ session.Store = (*Service)(nil)

// Save persists a session when its version matches the stored one
func (s *Service) Save(ctx context.Context, aSession *model.ReviewSession) error {
	if err := session.Validate(aSession); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx, aSession.ID)
	if err != nil && err != dao.ErrNotFound {
		return err
	}
	var stored int64
	if current != nil {
		stored = current.Version
	}
	next, err := session.NextVersion(aSession, stored, current != nil)
	if err != nil {
		return err
	}
	previous := aSession.Version
	aSession.Version = next
	data, err := json.Marshal(aSession)
	if err != nil {
		aSession.Version = previous
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	filePath := s.sessionPath(aSession.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		aSession.Version = previous
		return fmt.Errorf("failed to save session to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a session from the filesystem
func (s *Service) Load(ctx context.Context, id string) (*model.ReviewSession, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*model.ReviewSession, error) {
	filePath := s.sessionPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if session exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	aSession := &model.ReviewSession{}
	if err := json.Unmarshal(data, aSession); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return aSession, nil
}

// Delete removes a session from the filesystem
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.sessionPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if session exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns matching sessions; unreadable files are logged and skipped
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ReviewSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	var sessions []*model.ReviewSession
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Printf("error reading session file %s: %v", object.URL(), err)
			continue
		}
		aSession := &model.ReviewSession{}
		if err := json.Unmarshal(data, aSession); err != nil {
			s.logger.Printf("error unmarshaling session from %s: %v", object.URL(), err)
			continue
		}
		if !criteria.MatchSession(aSession, parameters) {
			continue
		}
		sessions = append(sessions, aSession)
	}
	session.Sort(sessions)
	return sessions, nil
}

func (s *Service) sessionPath(id string) string {
	return url.Join(s.basePath, id+".json")
}

// New creates a filesystem session store rooted at basePath. basePath may
// be any afs URL (file://, mem://, s3://, gs://).
func New(basePath string, logger *log.Logger) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if logger == nil {
		logger = log.Default()
	}
	fs := afs.New()

	ctx := context.Background()
	basePath = url.Normalize(basePath, file.Scheme)
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Service{basePath: basePath, fs: fs, logger: logger}, nil
}
