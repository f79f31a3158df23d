package session

import (
	"fmt"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
)

// CloseRequest carries a reviewer decision
type CloseRequest struct {
	RoundNumber     int
	Decision        model.Decision
	QualityScore    float64
	ComplianceScore float64
	Comments        string
	// System marks rounds closed by escalation
	System bool
}

// BeginRound opens a round for reviewerID on the stage they are assigned to.
func (m *Machine) BeginRound(s *model.ReviewSession, cfg *model.WorkflowConfig, reviewerID, actor string, now time.Time) (*model.ReviewRound, []*model.Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if s.Status.IsTerminal() {
		return nil, nil, invalid(s, "beginRound", "session is closed")
	}
	group := ActiveStages(s, cfg)
	switch s.Status {
	case model.StatusAssigned, model.StatusRevisionRequested:
	case model.StatusInReview, model.StatusFeedbackProvided:
		if len(group) < 2 {
			return nil, nil, invalid(s, "beginRound", "a round is already in progress")
		}
	default:
		return nil, nil, invalid(s, "beginRound", "")
	}
	assignment := s.AssignmentFor(reviewerID, stageNumbers(group)...)
	if assignment == nil {
		return nil, nil, fmt.Errorf("%w: %s on session %s", types.ErrReviewerNotAssigned, reviewerID, s.ID)
	}
	if s.OpenRound(assignment.Stage) != nil {
		return nil, nil, invalid(s, "beginRound", fmt.Sprintf("stage %d already has an open round", assignment.Stage))
	}
	if StagePassed(s, assignment.Stage) {
		return nil, nil, invalid(s, "beginRound", fmt.Sprintf("stage %d is already approved", assignment.Stage))
	}
	if assignment.AcceptedAt == nil {
		acceptedAt := now
		assignment.AcceptedAt = &acceptedAt
		assignment.Status = model.AssignmentAccepted
	}
	round := &model.ReviewRound{
		Number:     s.CurrentRound + 1,
		ReviewerID: reviewerID,
		Stage:      assignment.Stage,
		StartedAt:  now,
	}
	s.Rounds = append(s.Rounds, round)
	s.CurrentRound = round.Number
	var events []*model.Transition
	if s.Status != model.StatusFeedbackProvided {
		events = appendEvent(events, transition(s, model.StatusInReview, actor, now, "round started", round.Number))
	}
	touch(s, actor, now)
	return round, events, nil
}

// SubmitFeedback appends items to an open round.
func (m *Machine) SubmitFeedback(s *model.ReviewSession, roundNumber int, items []*model.ReviewFeedback, actor string, now time.Time) ([]*model.Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, invalid(s, "submitFeedback", "session is closed")
	}
	round := s.Round(roundNumber)
	if round == nil {
		return nil, fmt.Errorf("%w: %d on session %s", types.ErrRoundNotFound, roundNumber, s.ID)
	}
	if !round.IsOpen() {
		return nil, fmt.Errorf("%w: round %d on session %s", types.ErrRoundNotOpen, roundNumber, s.ID)
	}
	for _, item := range items {
		if err := validateFeedback(item); err != nil {
			return nil, err
		}
	}
	for _, item := range items {
		if item.ID == "" {
			item.ID = m.newID("fb")
		}
		if item.Severity == "" {
			item.Severity = model.SeverityInfo
		}
		item.Status = model.FeedbackOpen
		item.CreatedBy = actor
		item.CreatedAt = now
		round.Feedback = append(round.Feedback, item)
	}
	touch(s, actor, now)
	var events []*model.Transition
	if len(round.Feedback) > 0 && s.Status == model.StatusInReview {
		events = appendEvent(events, transition(s, model.StatusFeedbackProvided, actor, now, "feedback submitted", round.Number))
	}
	return events, nil
}

func validateFeedback(item *model.ReviewFeedback) error {
	if item == nil {
		return fmt.Errorf("feedback item is nil")
	}
	switch item.Type {
	case model.FeedbackContentAccuracy, model.FeedbackTechnicalCompliance, model.FeedbackFormatting,
		model.FeedbackCompleteness, model.FeedbackClarity, model.FeedbackStakeholderAlignment,
		model.FeedbackRegulatoryCompliance:
	default:
		return fmt.Errorf("unsupported feedback type %q", item.Type)
	}
	switch item.Severity {
	case "", model.SeverityInfo, model.SeverityMinor, model.SeverityMajor, model.SeverityCritical:
	default:
		return fmt.Errorf("unsupported feedback severity %q", item.Severity)
	}
	return nil
}

// CloseRound records a decision, applies the stage quality gate and moves
// the session accordingly. Closing an already closed round with the same
// decision is a no-op reported as Outcome.Duplicate.
func (m *Machine) CloseRound(s *model.ReviewSession, cfg *model.WorkflowConfig, request *CloseRequest, actor string, now time.Time) (*Outcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	round := s.Round(request.RoundNumber)
	if round != nil && !round.IsOpen() && round.Decision != "" && round.Decision == request.Decision {
		return &Outcome{Round: round, Passed: round.Passed, Duplicate: true}, nil
	}
	if s.Status.IsTerminal() {
		return nil, invalid(s, "closeRound", "session is closed")
	}
	if round == nil {
		return nil, fmt.Errorf("%w: %d on session %s", types.ErrRoundNotFound, request.RoundNumber, s.ID)
	}
	if !round.IsOpen() {
		return nil, invalid(s, "closeRound", fmt.Sprintf("round %d is already closed", round.Number))
	}
	group := ActiveStages(s, cfg)
	stage := stageIn(group, round.Stage)
	if stage == nil {
		return nil, invalid(s, "closeRound", fmt.Sprintf("round %d is not on an active stage", round.Number))
	}
	if len(group) < 2 && round.Number != s.CurrentRound {
		return nil, invalid(s, "closeRound", fmt.Sprintf("round %d is not the current round", round.Number))
	}
	if !request.Decision.IsValid() {
		return nil, fmt.Errorf("unsupported decision %q", request.Decision)
	}
	if err := m.scoring.ValidateRound(request.QualityScore, request.ComplianceScore); err != nil {
		return nil, err
	}

	completedAt := now
	round.CompletedAt = &completedAt
	round.Decision = request.Decision
	round.QualityScore = request.QualityScore
	round.ComplianceScore = request.ComplianceScore
	round.Comments = request.Comments
	round.SystemGenerated = request.System
	passed, err := m.scoring.EvaluateRound(round, stage)
	if err != nil {
		return nil, err
	}
	round.Passed = passed
	touch(s, actor, now)

	outcome := &Outcome{Round: round, Passed: passed}
	switch {
	case request.Decision == model.DecisionReject:
		for _, sibling := range s.OpenRounds() {
			siblingCompletedAt := now
			sibling.CompletedAt = &siblingCompletedAt
		}
		outcome.Events = appendEvent(nil, transition(s, model.StatusRejected, actor, now, "rejected", round.Number))
		s.CompletedAt = &completedAt
		return outcome, nil
	case request.Decision == model.DecisionRequestRevision:
		outcome.Events = appendEvent(nil, transition(s, model.StatusRevisionRequested, actor, now, "revision requested", round.Number))
		return outcome, nil
	case !passed:
		reason := fmt.Sprintf("quality gate %.0f not met", stage.Gate())
		outcome.Events = appendEvent(nil, transition(s, model.StatusRevisionRequested, actor, now, reason, round.Number))
		return outcome, nil
	}
	if groupComplete(s, group) {
		outcome.Events, err = m.advance(s, cfg, group, actor, now, nil, outcome)
		return outcome, err
	}
	outcome.Events = appendEvent(nil, transition(s, waitingStatus(s, group), actor, now, fmt.Sprintf("stage %d approved", stage.Number), round.Number))
	return outcome, nil
}

// ForceApprove closes every unfinished stage of the active group with a
// system approval scored at the stage gate, opening a system round where
// none is open.
func (m *Machine) ForceApprove(s *model.ReviewSession, cfg *model.WorkflowConfig, actor string, now time.Time) (*Outcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, invalid(s, "autoApprove", "session is closed")
	}
	result := &Outcome{}
	for _, stage := range ActiveStages(s, cfg) {
		if StagePassed(s, stage.Number) && s.OpenRound(stage.Number) == nil {
			continue
		}
		round := s.OpenRound(stage.Number)
		if round == nil {
			round = &model.ReviewRound{Number: s.CurrentRound + 1, ReviewerID: actor, Stage: stage.Number, StartedAt: now}
			s.Rounds = append(s.Rounds, round)
			s.CurrentRound = round.Number
			result.Events = appendEvent(result.Events, transition(s, model.StatusInReview, actor, now, "system round started", round.Number))
		}
		gate := stage.Gate()
		outcome, err := m.CloseRound(s, cfg, &CloseRequest{
			RoundNumber:     round.Number,
			Decision:        model.DecisionApprove,
			QualityScore:    gate,
			ComplianceScore: gate,
			Comments:        "auto-approved by escalation",
			System:          true,
		}, actor, now)
		if err != nil {
			return nil, err
		}
		result.Round = outcome.Round
		result.Passed = outcome.Passed
		result.Advanced = result.Advanced || outcome.Advanced
		result.Completed = outcome.Completed
		result.NeedsAssignment = outcome.NeedsAssignment
		result.Events = append(result.Events, outcome.Events...)
		if outcome.Advanced || outcome.Completed {
			break
		}
	}
	return result, nil
}
