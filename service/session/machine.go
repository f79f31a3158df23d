// Package session implements the review session state machine.
//
// Every operation mutates the session it is given and returns the status
// transitions it caused; it never performs I/O. Callers apply operations to
// a copy and persist it only on success.
package session

import (
	"fmt"
	"time"

	"github.com/viant/revflow/internal/idgen"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/scoring"
)

// SystemActor identifies changes made by the escalation scheduler
const SystemActor = "system"

// Machine applies state machine operations
type Machine struct {
	scoring *scoring.Engine
	newID   func(kind string) string
}

// New creates a Machine.
func New(engine *scoring.Engine) *Machine {
	if engine == nil {
		engine = scoring.New()
	}
	return &Machine{scoring: engine, newID: idgen.WithPrefix}
}

// CreateRequest describes a document submitted for review
type CreateRequest struct {
	ID           string
	DocumentID   string
	DocumentType string
	ContentRef   string
	Priority     model.Priority
	DueDate      *time.Time
}

// Outcome describes the effect of closing a round
type Outcome struct {
	Round *model.ReviewRound
	// Passed is the quality gate result
	Passed bool
	// Advanced is set when the session moved to the next stage group
	Advanced bool
	// Completed is set when the final stage was approved
	Completed bool
	// NeedsAssignment is set when the new stage group has no reviewer yet
	NeedsAssignment bool
	// Duplicate is set when the round was already closed with the same decision
	Duplicate bool
	Events    []*model.Transition
}

func requireActor(actor string) error {
	if actor == "" {
		return types.ErrActorRequired
	}
	return nil
}

func invalid(s *model.ReviewSession, operation, reason string) error {
	return types.NewInvalidTransition(s.ID, string(s.Status), operation, reason)
}

// transition moves s to status and returns the audit event, or nil when the
// status does not change.
func transition(s *model.ReviewSession, to model.SessionStatus, actor string, now time.Time, reason string, round int) *model.Transition {
	touch(s, actor, now)
	if s.Status == to {
		return nil
	}
	event := &model.Transition{
		SessionID:   s.ID,
		FromStatus:  s.Status,
		ToStatus:    to,
		Actor:       actor,
		Timestamp:   now,
		Reason:      reason,
		Stage:       s.CurrentStage,
		RoundNumber: round,
	}
	s.Status = to
	return event
}

func touch(s *model.ReviewSession, actor string, now time.Time) {
	s.UpdatedBy = actor
	s.UpdatedAt = now
}

func appendEvent(events []*model.Transition, event *model.Transition) []*model.Transition {
	if event == nil {
		return events
	}
	return append(events, event)
}

// Create starts a session on the first applicable stage of cfg.
func (m *Machine) Create(request *CreateRequest, cfg *model.WorkflowConfig, actor string, now time.Time) (*model.ReviewSession, []*model.Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if request.DocumentID == "" {
		return nil, nil, fmt.Errorf("document id is required")
	}
	stages := cfg.ApplicableStages(request.DocumentType)
	if len(stages) == 0 {
		return nil, nil, fmt.Errorf("%w: %s does not declare %q", types.ErrDocumentTypeNotSupported, cfg.ID, request.DocumentType)
	}
	priority := request.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	id := request.ID
	if id == "" {
		id = m.newID("ses")
	}
	s := &model.ReviewSession{
		ID:              id,
		DocumentID:      request.DocumentID,
		DocumentType:    request.DocumentType,
		ContentRef:      request.ContentRef,
		WorkflowID:      cfg.ID,
		WorkflowVersion: cfg.Version,
		Priority:        priority,
		DueDate:         request.DueDate,
		CurrentStage:    stages[0].Number,
		StageEnteredAt:  now,
		SubmittedAt:     now,
		CreatedBy:       actor,
	}
	event := transition(s, model.StatusPendingAssignment, actor, now, "submitted", 0)
	return s, []*model.Transition{event}, nil
}

// ActiveStages returns the stage group the session is currently in.
func ActiveStages(s *model.ReviewSession, cfg *model.WorkflowConfig) []*model.Stage {
	return cfg.StageGroup(s.CurrentStage)
}

func stageNumbers(stages []*model.Stage) []int {
	result := make([]int, len(stages))
	for i, stage := range stages {
		result[i] = stage.Number
	}
	return result
}

func stageIn(stages []*model.Stage, number int) *model.Stage {
	for _, stage := range stages {
		if stage.Number == number {
			return stage
		}
	}
	return nil
}

// StagePassed reports whether the latest decided round on stage approved
// and met the gate, or whether the stage was skipped.
func StagePassed(s *model.ReviewSession, stage int) bool {
	if s.IsSkipped(stage) {
		return true
	}
	round := s.LatestDecidedRoundForStage(stage)
	return round != nil && round.Decision == model.DecisionApprove && round.Passed
}

// Unstaffed returns the active stages that still need a reviewer: not
// passed and without an open assignment.
func Unstaffed(s *model.ReviewSession, cfg *model.WorkflowConfig) []*model.Stage {
	var result []*model.Stage
	for _, stage := range ActiveStages(s, cfg) {
		if StagePassed(s, stage.Number) {
			continue
		}
		if len(s.OpenAssignments(stage.Number)) == 0 {
			result = append(result, stage)
		}
	}
	return result
}

func groupComplete(s *model.ReviewSession, group []*model.Stage) bool {
	for _, stage := range group {
		if !StagePassed(s, stage.Number) || s.OpenRound(stage.Number) != nil {
			return false
		}
	}
	return true
}

// waitingStatus is the status of a group that is neither complete nor
// failed: in review while a round is open, revision requested when a stage
// asked for changes, assigned otherwise.
func waitingStatus(s *model.ReviewSession, group []*model.Stage) model.SessionStatus {
	revision := false
	for _, stage := range group {
		if round := s.OpenRound(stage.Number); round != nil {
			if s.Status == model.StatusFeedbackProvided {
				return model.StatusFeedbackProvided
			}
			return model.StatusInReview
		}
		if round := s.LatestDecidedRoundForStage(stage.Number); round != nil && !StagePassed(s, stage.Number) {
			revision = true
		}
	}
	if revision {
		return model.StatusRevisionRequested
	}
	return model.StatusAssigned
}

// Assign records planned assignments and skipped stages for the active
// group. A group left with nothing to review advances immediately.
func (m *Machine) Assign(s *model.ReviewSession, cfg *model.WorkflowConfig, assignments []*model.ReviewerAssignment, skipped []int, actor string, now time.Time) ([]*model.Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, invalid(s, "assign", "session is closed")
	}
	group := ActiveStages(s, cfg)
	for _, number := range skipped {
		if stageIn(group, number) == nil {
			return nil, invalid(s, "assign", fmt.Sprintf("stage %d is not active", number))
		}
		if !s.IsSkipped(number) {
			s.SkippedStages = append(s.SkippedStages, number)
		}
	}
	for _, assignment := range assignments {
		if stageIn(group, assignment.Stage) == nil {
			return nil, invalid(s, "assign", fmt.Sprintf("stage %d is not active", assignment.Stage))
		}
		if assignment.ID == "" {
			assignment.ID = m.newID("asg")
		}
		s.Assignments = append(s.Assignments, assignment)
	}
	touch(s, actor, now)

	var events []*model.Transition
	if groupComplete(s, group) {
		return m.advance(s, cfg, group, actor, now, events, &Outcome{})
	}
	if len(Unstaffed(s, cfg)) > 0 {
		return appendEvent(events, transition(s, model.StatusPendingAssignment, actor, now, "awaiting reviewers", 0)), nil
	}
	if s.Status == model.StatusPendingAssignment {
		events = appendEvent(events, transition(s, waitingStatus(s, group), actor, now, "reviewers assigned", 0))
	}
	return events, nil
}

// advance completes the group and moves to the next one, or approves and
// completes the session after the last stage.
func (m *Machine) advance(s *model.ReviewSession, cfg *model.WorkflowConfig, group []*model.Stage, actor string, now time.Time, events []*model.Transition, outcome *Outcome) ([]*model.Transition, error) {
	for _, assignment := range s.Assignments {
		if stageIn(group, assignment.Stage) != nil && assignment.Status.IsOpen() {
			assignment.Status = model.AssignmentCompleted
			completedAt := now
			assignment.CompletedAt = &completedAt
		}
	}
	round := 0
	if outcome.Round != nil {
		round = outcome.Round.Number
	}
	next := cfg.NextStage(group[len(group)-1].Number)
	if next == nil {
		events = appendEvent(events, transition(s, model.StatusApproved, actor, now, "final stage approved", round))
		events = appendEvent(events, transition(s, model.StatusCompleted, actor, now, "review completed", round))
		completedAt := now
		s.CompletedAt = &completedAt
		outcome.Completed = true
		return events, nil
	}
	s.CurrentStage = next.Number
	s.StageEnteredAt = now
	s.Escalations = nil
	outcome.Advanced = true
	reason := fmt.Sprintf("advanced to stage %d", next.Number)
	nextGroup := ActiveStages(s, cfg)
	if groupComplete(s, nextGroup) {
		return m.advance(s, cfg, nextGroup, actor, now, events, outcome)
	}
	if len(Unstaffed(s, cfg)) > 0 {
		outcome.NeedsAssignment = true
		return appendEvent(events, transition(s, model.StatusPendingAssignment, actor, now, reason, round)), nil
	}
	return appendEvent(events, transition(s, model.StatusAssigned, actor, now, reason, round)), nil
}
