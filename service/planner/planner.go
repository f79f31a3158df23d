// Package planner selects reviewers for the stages of a session that still
// need one.
package planner

import (
	"context"
	"sort"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/directory"
	"github.com/viant/revflow/service/session"
)

// Directory is the part of the reviewer directory the planner reads
type Directory interface {
	List() []*model.ReviewerProfile
	Workload(ctx context.Context, skip ...string) (map[string]int, error)
}

// Request describes one planning pass
type Request struct {
	Session *model.ReviewSession
	Config  *model.WorkflowConfig
	// Exclude lists reviewers that must not be selected, e.g. a non-responsive reviewer
	Exclude []string
	At      time.Time
}

// Result lists the planned assignments and the optional stages nobody could take
type Result struct {
	Assignments []*model.ReviewerAssignment
	Skipped     []int
}

// Empty reports whether the pass changed nothing.
func (r *Result) Empty() bool {
	return len(r.Assignments) == 0 && len(r.Skipped) == 0
}

// Planner is stateless apart from its directory
type Planner struct {
	directory Directory
}

func New(directory Directory) *Planner {
	return &Planner{directory: directory}
}

type candidate struct {
	profile *model.ReviewerProfile
	score   float64
}

// Plan staffs every unstaffed stage of the active group. The plan is all or
// nothing: when a mandatory stage has no eligible reviewer, no assignment is
// returned and the error is a NoEligibleReviewerError.
//
// The stored copy of the session being planned may lag behind the request
// session, so its assignments are counted from the request instead.
func (p *Planner) Plan(ctx context.Context, request *Request) (*Result, error) {
	s := request.Session
	workload, err := p.directory.Workload(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]int, len(workload))
	for id, count := range workload {
		booked[id] = count
	}
	for _, assignment := range s.Assignments {
		if assignment.Status.IsOpen() {
			booked[assignment.ReviewerID]++
		}
	}
	excluded := map[string]bool{}
	for _, id := range request.Exclude {
		excluded[id] = true
	}
	for _, stage := range session.ActiveStages(s, request.Config) {
		for _, assignment := range s.OpenAssignments(stage.Number) {
			excluded[assignment.ReviewerID] = true
		}
	}

	result := &Result{}
	profiles := p.directory.List()
	for _, stage := range session.Unstaffed(s, request.Config) {
		stageExcluded := copyOf(excluded)
		for _, id := range session.Decliners(s, stage.Number) {
			stageExcluded[id] = true
		}
		best := selectReviewer(profiles, stage, stageExcluded, booked, request.At)
		if best == nil {
			if stage.Skippable() {
				result.Skipped = append(result.Skipped, stage.Number)
				continue
			}
			return nil, &types.NoEligibleReviewerError{SessionID: s.ID, Stage: stage.Number, Role: stage.RequiredRole}
		}
		booked[best.ID]++
		excluded[best.ID] = true
		result.Assignments = append(result.Assignments, &model.ReviewerAssignment{
			ReviewerID:     best.ID,
			Role:           stage.RequiredRole,
			Stage:          stage.Number,
			Status:         model.AssignmentAssigned,
			AssignedAt:     request.At,
			EstimatedHours: stage.EstimatedHours,
		})
	}
	return result, nil
}

func selectReviewer(profiles []*model.ReviewerProfile, stage *model.Stage, excluded map[string]bool, booked map[string]int, at time.Time) *model.ReviewerProfile {
	var candidates []*candidate
	for _, profile := range profiles {
		if excluded[profile.ID] || !profile.HasRole(stage.RequiredRole) || !profile.HasExpertise(stage.RequiredExpertise) {
			continue
		}
		open := booked[profile.ID]
		if !directory.CanTake(profile, stage.EstimatedHours, at, open) {
			continue
		}
		headroom := profile.Availability.MaxConcurrentReviews - open
		candidates = append(candidates, &candidate{
			profile: profile,
			score:   2*float64(headroom) + bucketWeight(directory.PerformanceRating(profile).Bucket),
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return ranks(candidates[i], candidates[j])
	})
	return candidates[0].profile
}

// ranks orders by score, then longest idle (never contacted first), then id.
func ranks(a, b *candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	left, right := a.profile.LastContactAt, b.profile.LastContactAt
	switch {
	case left == nil && right != nil:
		return true
	case left != nil && right == nil:
		return false
	case left != nil && right != nil && !left.Equal(*right):
		return left.Before(*right)
	}
	return a.profile.ID < b.profile.ID
}

func bucketWeight(bucket model.PerformanceBucket) float64 {
	switch bucket {
	case model.PerformanceExcellent:
		return 5
	case model.PerformanceGood:
		return 4
	case model.PerformanceSatisfactory:
		return 3
	case model.PerformanceNeedsImprovement:
		return 2
	}
	return 1
}

func copyOf(values map[string]bool) map[string]bool {
	result := make(map[string]bool, len(values))
	for k, v := range values {
		result[k] = v
	}
	return result
}
