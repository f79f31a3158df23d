package revflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/directory"
	"github.com/viant/revflow/service/notify"
	"github.com/viant/revflow/service/session"
	"github.com/viant/revflow/tracing"
)

// CreateSessionRequest submits a document for review
type CreateSessionRequest struct {
	// ID is optional; a new id is generated when empty
	ID           string         `json:"id,omitempty"`
	DocumentID   string         `json:"documentId"`
	DocumentType string         `json:"documentType"`
	ContentRef   string         `json:"contentRef,omitempty"`
	WorkflowID   string         `json:"workflowId"`
	Priority     model.Priority `json:"priority,omitempty"`
	DueDate      *time.Time     `json:"dueDate,omitempty"`
}

// CreateSession starts a review on the latest active version of the
// workflow. With automatic assignment the first stage group is staffed
// right away; when nobody is eligible the session stays pending_assignment.
func (s *Service) CreateSession(ctx context.Context, request *CreateSessionRequest, actor string) (result *model.ReviewSession, err error) {
	ctx, span := tracing.StartSpan(ctx, "revflow.createSession", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	cfg, err := s.registry.Lookup(request.WorkflowID)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	created, events, err := s.machine.Create(&session.CreateRequest{
		ID:           request.ID,
		DocumentID:   request.DocumentID,
		DocumentType: request.DocumentType,
		ContentRef:   request.ContentRef,
		Priority:     request.Priority,
		DueDate:      request.DueDate,
	}, cfg, actor, now)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(created.ID)
	eff := &effects{}
	eff.emit(events...)
	if err = s.autoStaff(ctx, created, cfg, nil, actor, now, eff); err != nil {
		unlock()
		return nil, err
	}
	if err = s.save(ctx, created); err != nil {
		unlock()
		return nil, err
	}
	s.release(ctx, created, eff)
	unlock()
	s.dispatch(ctx, created.ID, eff.notifications)
	return created.Clone(), nil
}

// AssignReviewers staffs the unstaffed stages of the active group. It fails
// with NoEligibleReviewerError when a mandatory stage has no candidate.
func (s *Service) AssignReviewers(ctx context.Context, sessionID, actor string) (*model.ReviewSession, error) {
	return s.mutate(ctx, "assignReviewers", sessionID, func(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, eff *effects) error {
		if working.Status.IsTerminal() {
			return types.NewInvalidTransition(working.ID, string(working.Status), "assignReviewers", "session is closed")
		}
		if actor == "" {
			return types.ErrActorRequired
		}
		return s.staff(ctx, working, cfg, nil, actor, s.nowFn(), eff)
	})
}

// BeginRound opens a round for reviewerID.
func (s *Service) BeginRound(ctx context.Context, sessionID, reviewerID, actor string) (*model.ReviewRound, error) {
	var number int
	updated, err := s.mutate(ctx, "beginRound", sessionID, func(_ context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, eff *effects) error {
		round, events, err := s.machine.BeginRound(working, cfg, reviewerID, actor, s.nowFn())
		if err != nil {
			return err
		}
		number = round.Number
		eff.emit(events...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Round(number), nil
}

// SubmitFeedback appends feedback items to an open round.
func (s *Service) SubmitFeedback(ctx context.Context, sessionID string, roundNumber int, items []*model.ReviewFeedback, actor string) (*model.ReviewSession, error) {
	return s.mutate(ctx, "submitFeedback", sessionID, func(_ context.Context, working *model.ReviewSession, _ *model.WorkflowConfig, eff *effects) error {
		events, err := s.machine.SubmitFeedback(working, roundNumber, items, actor, s.nowFn())
		eff.emit(events...)
		return err
	})
}

// CloseRoundRequest carries a reviewer decision
type CloseRoundRequest struct {
	RoundNumber     int            `json:"roundNumber"`
	Decision        model.Decision `json:"decision"`
	QualityScore    float64        `json:"qualityScore"`
	ComplianceScore float64        `json:"complianceScore"`
	Comments        string         `json:"comments,omitempty"`
}

// CloseRoundResult is the session after the close and what happened to it
type CloseRoundResult struct {
	Session *model.ReviewSession `json:"session"`
	Passed  bool                 `json:"passed"`
	// Advanced is set when the session moved to the next stage group
	Advanced  bool `json:"advanced"`
	Completed bool `json:"completed"`
	// Duplicate is set when the round had already been closed with the same decision
	Duplicate bool `json:"duplicate"`
}

// CloseRound records a reviewer decision. Retrying a close that already
// succeeded with the same decision returns the stored session unchanged.
func (s *Service) CloseRound(ctx context.Context, sessionID string, request *CloseRoundRequest, actor string) (*CloseRoundResult, error) {
	result := &CloseRoundResult{}
	updated, err := s.mutate(ctx, "closeRound", sessionID, func(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, eff *effects) error {
		now := s.nowFn()
		stageEnteredAt := working.StageEnteredAt
		outcome, err := s.machine.CloseRound(working, cfg, &session.CloseRequest{
			RoundNumber:     request.RoundNumber,
			Decision:        request.Decision,
			QualityScore:    request.QualityScore,
			ComplianceScore: request.ComplianceScore,
			Comments:        request.Comments,
		}, actor, now)
		if err != nil {
			return err
		}
		result.Passed = outcome.Passed
		result.Advanced = outcome.Advanced
		result.Completed = outcome.Completed
		result.Duplicate = outcome.Duplicate
		if outcome.Duplicate {
			eff.noop = true
			return nil
		}
		eff.emit(outcome.Events...)
		round := outcome.Round
		eff.complete(round.ReviewerID, completionOf(round, cfg.Stage(round.Stage), stageEnteredAt))
		s.notifyOutcome(working, round, eff)
		if outcome.NeedsAssignment {
			return s.autoStaff(ctx, working, cfg, nil, actor, now, eff)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Session = updated
	return result, nil
}

func (s *Service) notifyOutcome(working *model.ReviewSession, round *model.ReviewRound, eff *effects) {
	message := &notify.Message{
		SessionID:  working.ID,
		Severity:   model.SeverityInfo,
		Recipients: []string{working.CreatedBy},
		Data:       sessionData(working, round.Stage),
	}
	switch working.Status {
	case model.StatusRevisionRequested:
		message.Template = notify.TemplateRevisionRequest
		message.Severity = model.SeverityMinor
		message.Subject = fmt.Sprintf("Revision requested: %s (round %d)", working.DocumentID, round.Number)
	case model.StatusCompleted, model.StatusRejected:
		message.Template = notify.TemplateCompleted
		message.Subject = fmt.Sprintf("Review %s: %s", working.Status, working.DocumentID)
	default:
		return
	}
	eff.notify(message)
}

// completionOf derives reviewer metrics from a human round. Thoroughness
// grows with the number of feedback items; feedback quality is the share of
// items pointing at a section or carrying a suggestion.
func completionOf(round *model.ReviewRound, stage *model.Stage, stageEnteredAt time.Time) directory.Completion {
	completedAt := *round.CompletedAt
	onTime := true
	if stage != nil && stage.MaxDays > 0 {
		onTime = !completedAt.After(stageEnteredAt.Add(time.Duration(stage.MaxDays) * 24 * time.Hour))
	}
	items := len(round.Feedback)
	feedbackQuality := 100.0
	if items > 0 {
		actionable := 0
		for _, item := range round.Feedback {
			if item.Suggestion != "" || item.Section != "" {
				actionable++
			}
		}
		feedbackQuality = 100 * float64(actionable) / float64(items)
	}
	return directory.Completion{
		ReviewTimeHours: completedAt.Sub(round.StartedAt).Hours(),
		QualityScore:    round.QualityScore,
		OnTime:          onTime,
		FeedbackQuality: feedbackQuality,
		Thoroughness:    math.Min(100, 50+10*float64(items)),
	}
}

// CancelSession terminates the session. An open round is closed without a
// decision in the same write, so the reviewer's feedback is kept.
func (s *Service) CancelSession(ctx context.Context, sessionID, reason, actor string) (*model.ReviewSession, error) {
	return s.mutate(ctx, "cancelSession", sessionID, func(_ context.Context, working *model.ReviewSession, _ *model.WorkflowConfig, eff *effects) error {
		events, err := s.machine.Cancel(working, reason, actor, s.nowFn())
		eff.emit(events...)
		return err
	})
}

// AcceptAssignment records that reviewerID accepted the assignment.
func (s *Service) AcceptAssignment(ctx context.Context, sessionID, reviewerID, actor string) (*model.ReviewSession, error) {
	return s.mutate(ctx, "acceptAssignment", sessionID, func(_ context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, _ *effects) error {
		_, err := s.machine.AcceptAssignment(working, cfg, reviewerID, actor, s.nowFn())
		return err
	})
}

// DeclineAssignment releases reviewerID and plans a replacement that
// excludes every reviewer who declined the stage.
func (s *Service) DeclineAssignment(ctx context.Context, sessionID, reviewerID, reason, actor string) (*model.ReviewSession, error) {
	return s.mutate(ctx, "declineAssignment", sessionID, func(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, eff *effects) error {
		now := s.nowFn()
		if reason == "" {
			reason = "declined by " + reviewerID
		}
		_, events, err := s.machine.ReleaseAssignment(working, cfg, reviewerID, reason, actor, now)
		if err != nil {
			return err
		}
		eff.emit(events...)
		return s.replan(ctx, working, cfg, []string{reviewerID}, actor, now, eff)
	})
}

// UpdateFeedbackStatus moves a feedback item to addressed, dismissed or deferred.
func (s *Service) UpdateFeedbackStatus(ctx context.Context, sessionID, feedbackID string, status model.FeedbackStatus, actor string) (*model.ReviewFeedback, error) {
	updated, err := s.mutate(ctx, "updateFeedbackStatus", sessionID, func(_ context.Context, working *model.ReviewSession, _ *model.WorkflowConfig, _ *effects) error {
		_, err := s.machine.UpdateFeedbackStatus(working, feedbackID, status, actor, s.nowFn())
		return err
	})
	if err != nil {
		return nil, err
	}
	item, _ := updated.Feedback(feedbackID)
	return item, nil
}
