package session

import (
	"fmt"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
)

// Cancel terminates the session. Open rounds are closed without a decision
// so the reviewer's feedback is kept.
func (m *Machine) Cancel(s *model.ReviewSession, reason, actor string, now time.Time) ([]*model.Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, invalid(s, "cancel", "session is closed")
	}
	for _, round := range s.OpenRounds() {
		completedAt := now
		round.CompletedAt = &completedAt
	}
	completedAt := now
	s.CompletedAt = &completedAt
	s.CancelReason = reason
	if reason == "" {
		reason = "cancelled"
	}
	return appendEvent(nil, transition(s, model.StatusCancelled, actor, now, reason, 0)), nil
}

// AcceptAssignment marks the reviewer's open assignment accepted.
func (m *Machine) AcceptAssignment(s *model.ReviewSession, cfg *model.WorkflowConfig, reviewerID, actor string, now time.Time) (*model.ReviewerAssignment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, invalid(s, "acceptAssignment", "session is closed")
	}
	assignment := s.AssignmentFor(reviewerID, stageNumbers(ActiveStages(s, cfg))...)
	if assignment == nil {
		return nil, fmt.Errorf("%w: %s on session %s", types.ErrReviewerNotAssigned, reviewerID, s.ID)
	}
	if assignment.Status != model.AssignmentAccepted {
		acceptedAt := now
		assignment.Status = model.AssignmentAccepted
		assignment.AcceptedAt = &acceptedAt
	}
	touch(s, actor, now)
	return assignment, nil
}

// ReleaseAssignment declines the reviewer's open assignment on the active
// group, for a reviewer decline or an escalation reassignment. The session
// goes back to pending_assignment so that a replacement can be planned.
func (m *Machine) ReleaseAssignment(s *model.ReviewSession, cfg *model.WorkflowConfig, reviewerID, reason, actor string, now time.Time) (*model.ReviewerAssignment, []*model.Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if s.Status.IsTerminal() {
		return nil, nil, invalid(s, "releaseAssignment", "session is closed")
	}
	assignment := s.AssignmentFor(reviewerID, stageNumbers(ActiveStages(s, cfg))...)
	if assignment == nil {
		return nil, nil, fmt.Errorf("%w: %s on session %s", types.ErrReviewerNotAssigned, reviewerID, s.ID)
	}
	if round := s.OpenRound(assignment.Stage); round != nil && round.ReviewerID == reviewerID {
		return nil, nil, invalid(s, "releaseAssignment", fmt.Sprintf("round %d is in progress", round.Number))
	}
	declinedAt := now
	assignment.Status = model.AssignmentDeclined
	assignment.DeclinedAt = &declinedAt
	touch(s, actor, now)
	var events []*model.Transition
	if len(Unstaffed(s, cfg)) > 0 {
		events = appendEvent(events, transition(s, model.StatusPendingAssignment, actor, now, reason, 0))
	}
	return assignment, events, nil
}

// Decliners returns reviewers who declined or were released from stage.
func Decliners(s *model.ReviewSession, stage int) []string {
	var result []string
	for _, assignment := range s.Assignments {
		if assignment.Stage == stage && assignment.Status == model.AssignmentDeclined {
			result = append(result, assignment.ReviewerID)
		}
	}
	return result
}

// UpdateFeedbackStatus moves a feedback item out of open (or deferred). It
// is allowed after the owning round closed.
func (m *Machine) UpdateFeedbackStatus(s *model.ReviewSession, feedbackID string, status model.FeedbackStatus, actor string, now time.Time) (*model.ReviewFeedback, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.Status == model.StatusCancelled {
		return nil, invalid(s, "updateFeedbackStatus", "session is cancelled")
	}
	item, _ := s.Feedback(feedbackID)
	if item == nil {
		return nil, fmt.Errorf("%w: %s on session %s", types.ErrFeedbackNotFound, feedbackID, s.ID)
	}
	switch status {
	case model.FeedbackAddressed, model.FeedbackDismissed, model.FeedbackDeferred:
	default:
		return nil, fmt.Errorf("unsupported feedback status %q", status)
	}
	if item.Status == status {
		return item, nil
	}
	if item.Status != model.FeedbackOpen && item.Status != model.FeedbackDeferred {
		return nil, invalid(s, "updateFeedbackStatus", fmt.Sprintf("feedback %s is %s", feedbackID, item.Status))
	}
	item.Status = status
	updatedAt := now
	item.UpdatedAt = &updatedAt
	touch(s, actor, now)
	return item, nil
}
