// Package registry holds validated, versioned workflow configurations.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/revflow/internal/yml"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"gopkg.in/yaml.v3"
)

// ValidationResult is the outcome of Validate
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

type catalog struct {
	versions map[string]map[int]*model.WorkflowConfig
	latest   map[string]*model.WorkflowConfig
}

func newCatalog() *catalog {
	return &catalog{
		versions: map[string]map[int]*model.WorkflowConfig{},
		latest:   map[string]*model.WorkflowConfig{},
	}
}

func (c *catalog) clone() *catalog {
	ret := newCatalog()
	for id, versions := range c.versions {
		ret.versions[id] = make(map[int]*model.WorkflowConfig, len(versions))
		for version, cfg := range versions {
			ret.versions[id][version] = cfg
		}
	}
	for id, cfg := range c.latest {
		ret.latest[id] = cfg
	}
	return ret
}

func (c *catalog) add(cfg *model.WorkflowConfig) error {
	versions, ok := c.versions[cfg.ID]
	if !ok {
		versions = map[int]*model.WorkflowConfig{}
		c.versions[cfg.ID] = versions
	}
	if cfg.Version == 0 {
		if latest := c.latest[cfg.ID]; latest != nil {
			cfg.Version = latest.Version + 1
		} else {
			cfg.Version = 1
		}
	}
	if _, exists := versions[cfg.Version]; exists {
		return fmt.Errorf("workflow %s version %d already registered", cfg.ID, cfg.Version)
	}
	versions[cfg.Version] = cfg
	if latest := c.latest[cfg.ID]; latest == nil || cfg.Version > latest.Version {
		c.latest[cfg.ID] = cfg
	}
	return nil
}

// Service is a read-mostly workflow cache. Registered configs are treated as
// immutable; readers never lock.
type Service struct {
	snapshot atomic.Pointer[catalog]
	mux      sync.Mutex
	fs       afs.Service
	options  []storage.Option
}

func New() *Service {
	ret := &Service{fs: afs.New()}
	ret.snapshot.Store(newCatalog())
	return ret
}

// NewWithFS creates a registry that loads definitions through fs.
func NewWithFS(fs afs.Service) *Service {
	ret := New()
	ret.fs = fs
	return ret
}

// SetFSOptions sets storage options used by Load, e.g. an embed.FS.
func (s *Service) SetFSOptions(options ...storage.Option) {
	s.options = options
}

// Validate reports every structural violation of cfg.
func (s *Service) Validate(cfg *model.WorkflowConfig) *ValidationResult {
	issues := cfg.Validate()
	result := &ValidationResult{IsValid: len(issues) == 0}
	for _, issue := range issues {
		result.Errors = append(result.Errors, issue.Error())
	}
	return result
}

func prepare(cfg *model.WorkflowConfig) error {
	if cfg == nil {
		return &types.ConfigValidationError{Errors: []error{fmt.Errorf("config is nil")}}
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		return &types.ConfigValidationError{Config: cfg.ID, Errors: issues}
	}
	cfg.Normalize()
	return nil
}

// Register validates and adds cfg. A zero Version is assigned the next
// version of cfg.ID.
func (s *Service) Register(cfg *model.WorkflowConfig) error {
	if err := prepare(cfg); err != nil {
		return err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	next := s.snapshot.Load().clone()
	if err := next.add(cfg); err != nil {
		return err
	}
	s.snapshot.Store(next)
	return nil
}

// Replace validates every config and swaps the whole catalog; nothing
// changes when any config is invalid.
func (s *Service) Replace(configs []*model.WorkflowConfig) error {
	next := newCatalog()
	for _, cfg := range configs {
		if err := prepare(cfg); err != nil {
			return err
		}
		if err := next.add(cfg); err != nil {
			return err
		}
	}
	s.mux.Lock()
	s.snapshot.Store(next)
	s.mux.Unlock()
	return nil
}

// Lookup returns the latest version of id when it is active.
func (s *Service) Lookup(id string) (*model.WorkflowConfig, error) {
	cfg, ok := s.snapshot.Load().latest[id]
	if !ok || !cfg.IsActive {
		return nil, fmt.Errorf("%w: %s", types.ErrWorkflowNotFound, id)
	}
	return cfg, nil
}

// LookupVersion returns a specific version, active or not, so that running
// sessions keep the definition they started with.
func (s *Service) LookupVersion(id string, version int) (*model.WorkflowConfig, error) {
	cfg, ok := s.snapshot.Load().versions[id][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%d", types.ErrWorkflowNotFound, id, version)
	}
	return cfg, nil
}

// List returns the latest version of every workflow ordered by id.
func (s *Service) List() []*model.WorkflowConfig {
	latest := s.snapshot.Load().latest
	result := make([]*model.WorkflowConfig, 0, len(latest))
	for _, cfg := range latest {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Decode parses either a single workflow document or a `workflows:` list.
func Decode(data []byte) ([]*model.WorkflowConfig, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	root := yml.Root(&node)
	if list := root.Lookup("workflows"); list != nil {
		if !list.IsSequence() {
			return nil, fmt.Errorf("workflows must be a list")
		}
		var configs []*model.WorkflowConfig
		if err := list.Decode(&configs); err != nil {
			return nil, err
		}
		return configs, nil
	}
	cfg := &model.WorkflowConfig{}
	if err := root.Decode(cfg); err != nil {
		return nil, err
	}
	return []*model.WorkflowConfig{cfg}, nil
}

// Download reads and decodes the definitions at URL without registering them.
func (s *Service) Download(ctx context.Context, URL string) ([]*model.WorkflowConfig, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	decoded, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow from %s: %w", URL, err)
	}
	return decoded, nil
}

// Load reads every URL and swaps in the combined catalog.
func (s *Service) Load(ctx context.Context, URLs ...string) error {
	var configs []*model.WorkflowConfig
	for _, URL := range URLs {
		decoded, err := s.Download(ctx, URL)
		if err != nil {
			return err
		}
		configs = append(configs, decoded...)
	}
	return s.Replace(configs)
}
