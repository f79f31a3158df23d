// Package directory holds reviewer profiles and answers who can take a stage.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"gopkg.in/yaml.v3"
)

// DefaultMaxConcurrentReviews applies to profiles that leave the limit unset
const DefaultMaxConcurrentReviews = 5

// WorkloadCounter counts open assignments per reviewer, ignoring the
// sessions listed in skip
type WorkloadCounter interface {
	OpenAssignments(ctx context.Context, skip ...string) (map[string]int, error)
}

// Service is a read-mostly reviewer cache; readers see an immutable snapshot
// and writers swap the whole snapshot.
type Service struct {
	snapshot atomic.Pointer[map[string]*model.ReviewerProfile]
	mux      sync.Mutex
	workload WorkloadCounter
	fs       afs.Service
	options  []storage.Option
}

// Option customises the Service
type Option func(s *Service)

// WithWorkload sets the workload source; without one every reviewer has zero
// open assignments.
func WithWorkload(counter WorkloadCounter) Option {
	return func(s *Service) { s.workload = counter }
}

func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// WithFSOptions sets storage options used by Load.
func WithFSOptions(options ...storage.Option) Option {
	return func(s *Service) { s.options = options }
}

func New(opts ...Option) *Service {
	ret := &Service{fs: afs.New()}
	empty := map[string]*model.ReviewerProfile{}
	ret.snapshot.Store(&empty)
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// SetWorkload replaces the workload source.
func (s *Service) SetWorkload(counter WorkloadCounter) {
	s.mux.Lock()
	s.workload = counter
	s.mux.Unlock()
}

func (s *Service) profiles() map[string]*model.ReviewerProfile {
	return *s.snapshot.Load()
}

// Get returns a copy of the reviewer profile.
func (s *Service) Get(id string) (*model.ReviewerProfile, error) {
	profile, ok := s.profiles()[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrReviewerNotFound, id)
	}
	return profile.Clone(), nil
}

// List returns copies of all profiles ordered by id.
func (s *Service) List() []*model.ReviewerProfile {
	profiles := s.profiles()
	result := make([]*model.ReviewerProfile, 0, len(profiles))
	for _, profile := range profiles {
		result = append(result, profile.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Replace swaps the whole snapshot.
func (s *Service) Replace(profiles []*model.ReviewerProfile) error {
	next := make(map[string]*model.ReviewerProfile, len(profiles))
	for _, profile := range profiles {
		if err := validate(profile); err != nil {
			return err
		}
		next[profile.ID] = normalize(profile.Clone())
	}
	s.mux.Lock()
	s.snapshot.Store(&next)
	s.mux.Unlock()
	return nil
}

// Upsert adds or replaces one profile, for availability edits.
func (s *Service) Upsert(profile *model.ReviewerProfile) error {
	if err := validate(profile); err != nil {
		return err
	}
	return s.update(func(next map[string]*model.ReviewerProfile) error {
		next[profile.ID] = normalize(profile.Clone())
		return nil
	})
}

// update applies fn to a copy of the snapshot and publishes it.
func (s *Service) update(fn func(next map[string]*model.ReviewerProfile) error) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	current := s.profiles()
	next := make(map[string]*model.ReviewerProfile, len(current)+1)
	for id, profile := range current {
		next[id] = profile
	}
	if err := fn(next); err != nil {
		return err
	}
	s.snapshot.Store(&next)
	return nil
}

func (s *Service) modify(id string, fn func(profile *model.ReviewerProfile)) error {
	return s.update(func(next map[string]*model.ReviewerProfile) error {
		profile, ok := next[id]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrReviewerNotFound, id)
		}
		profile = profile.Clone()
		fn(profile)
		next[id] = profile
		return nil
	})
}

// RecordCompletion folds one finished review into the reviewer metrics.
func (s *Service) RecordCompletion(_ context.Context, reviewerID string, completion Completion) error {
	return s.modify(reviewerID, func(profile *model.ReviewerProfile) {
		applyCompletion(&profile.Metrics, completion)
	})
}

// TouchContact records that reviewerID was just given an assignment.
func (s *Service) TouchContact(reviewerID string, at time.Time) error {
	return s.modify(reviewerID, func(profile *model.ReviewerProfile) {
		profile.LastContactAt = &at
	})
}

// Workload returns open assignment counts per reviewer, leaving out the
// sessions in skip.
func (s *Service) Workload(ctx context.Context, skip ...string) (map[string]int, error) {
	s.mux.Lock()
	counter := s.workload
	s.mux.Unlock()
	if counter == nil {
		return map[string]int{}, nil
	}
	return counter.OpenAssignments(ctx, skip...)
}

// CanTake reports whether a reviewer with open assignments may take another
// review at instant at. estimatedHours is informational.
func CanTake(profile *model.ReviewerProfile, estimatedHours float64, at time.Time, open int) bool {
	if !profile.IsActive {
		return false
	}
	if AvailabilityStatus(profile, at) != model.AvailabilityAvailable {
		return false
	}
	return open < profile.Availability.MaxConcurrentReviews
}

// CanTakeReview checks CanTake against the live workload.
func (s *Service) CanTakeReview(ctx context.Context, profile *model.ReviewerProfile, estimatedHours float64, at time.Time) (bool, error) {
	workload, err := s.Workload(ctx)
	if err != nil {
		return false, err
	}
	return CanTake(profile, estimatedHours, at, workload[profile.ID]), nil
}

type document struct {
	Reviewers []*model.ReviewerProfile `yaml:"reviewers"`
}

// Decode parses a `reviewers:` YAML document.
func Decode(data []byte) ([]*model.ReviewerProfile, error) {
	doc := &document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode reviewers: %w", err)
	}
	return doc.Reviewers, nil
}

// Load reads every URL and swaps in the combined snapshot.
func (s *Service) Load(ctx context.Context, URLs ...string) error {
	var profiles []*model.ReviewerProfile
	for _, URL := range URLs {
		data, err := s.fs.DownloadWithURL(ctx, URL, s.options...)
		if err != nil {
			return fmt.Errorf("failed to load reviewers %s: %w", URL, err)
		}
		decoded, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", URL, err)
		}
		profiles = append(profiles, decoded...)
	}
	return s.Replace(profiles)
}

func validate(profile *model.ReviewerProfile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("reviewer profile requires an id")
	}
	if len(profile.Roles) == 0 {
		return fmt.Errorf("reviewer %s has no roles", profile.ID)
	}
	return nil
}

func normalize(profile *model.ReviewerProfile) *model.ReviewerProfile {
	if profile.Availability.MaxConcurrentReviews <= 0 {
		profile.Availability.MaxConcurrentReviews = DefaultMaxConcurrentReviews
	}
	return profile
}
