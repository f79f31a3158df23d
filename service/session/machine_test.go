package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
)

var start = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func twoStageWorkflow() *model.WorkflowConfig {
	return &model.WorkflowConfig{
		ID:            "wf",
		Version:       1,
		DocumentTypes: []string{"policy"},
		RequiredRoles: []string{"editor", "legal"},
		Stages: []*model.Stage{
			{Number: 1, RequiredRole: "editor", PassingScore: 70},
			{Number: 2, RequiredRole: "legal", PassingScore: 70},
		},
		IsActive: true,
	}
}

func assignment(reviewer string, stage int) *model.ReviewerAssignment {
	return &model.ReviewerAssignment{ReviewerID: reviewer, Stage: stage, Status: model.AssignmentAssigned, AssignedAt: start}
}

func newAssigned(t *testing.T, m *Machine, cfg *model.WorkflowConfig) *model.ReviewSession {
	s, events, err := m.Create(&CreateRequest{ID: "s1", DocumentID: "doc-1", DocumentType: "policy"}, cfg, "author", start)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusPendingAssignment, s.Status)
	_, err = m.Assign(s, cfg, []*model.ReviewerAssignment{assignment("alice", 1)}, nil, "planner", start)
	require.NoError(t, err)
	require.Equal(t, model.StatusAssigned, s.Status)
	return s
}

func statuses(events []*model.Transition) []model.SessionStatus {
	var result []model.SessionStatus
	for _, event := range events {
		result = append(result, event.ToStatus)
	}
	return result
}

func TestMachine_TwoStageApproval(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)

	round, events, err := m.BeginRound(s, cfg, "alice", "alice", start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, round.Number)
	assert.Equal(t, []model.SessionStatus{model.StatusInReview}, statuses(events))
	assert.NotNil(t, s.Assignments[0].AcceptedAt)

	outcome, err := m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 1, Decision: model.DecisionApprove, QualityScore: 80, ComplianceScore: 80}, "alice", start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.True(t, outcome.Advanced)
	assert.True(t, outcome.NeedsAssignment)
	assert.Equal(t, 2, s.CurrentStage)
	assert.Equal(t, model.StatusPendingAssignment, s.Status)
	assert.Equal(t, model.AssignmentCompleted, s.Assignments[0].Status)

	_, err = m.Assign(s, cfg, []*model.ReviewerAssignment{assignment("bob", 2)}, nil, "planner", start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, s.Status)

	_, _, err = m.BeginRound(s, cfg, "alice", "alice", start.Add(3*time.Hour))
	assert.ErrorIs(t, err, types.ErrReviewerNotAssigned)

	round, _, err = m.BeginRound(s, cfg, "bob", "bob", start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, round.Number)

	outcome, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 2, Decision: model.DecisionApprove, QualityScore: 90, ComplianceScore: 95}, "bob", start.Add(4*time.Hour))
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, []model.SessionStatus{model.StatusApproved, model.StatusCompleted}, statuses(outcome.Events))
	assert.Equal(t, model.StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, start.Add(4*time.Hour), *s.CompletedAt)

	before := s.Clone()
	_, _, err = m.BeginRound(s, cfg, "bob", "bob", start.Add(5*time.Hour))
	var transitionErr *types.InvalidStateTransitionError
	assert.ErrorAs(t, err, &transitionErr)
	_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 2, Decision: model.DecisionReject, QualityScore: 90, ComplianceScore: 95}, "bob", start.Add(5*time.Hour))
	assert.ErrorAs(t, err, &transitionErr)
	outcome, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 2, Decision: model.DecisionApprove, QualityScore: 90, ComplianceScore: 95}, "bob", start.Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, before, s.Clone())
}

func TestMachine_CloseRoundDecisions(t *testing.T) {
	testCases := []struct {
		name      string
		decision  model.Decision
		quality   float64
		expected  model.SessionStatus
		terminal  bool
		expectErr bool
	}{
		{name: "reject is terminal", decision: model.DecisionReject, quality: 90, expected: model.StatusRejected, terminal: true},
		{name: "request revision", decision: model.DecisionRequestRevision, quality: 90, expected: model.StatusRevisionRequested},
		{name: "approve below gate", decision: model.DecisionApprove, quality: 65, expected: model.StatusRevisionRequested},
		{name: "approve at gate advances", decision: model.DecisionApprove, quality: 70, expected: model.StatusPendingAssignment},
		{name: "invalid score", decision: model.DecisionApprove, quality: 101, expected: model.StatusInReview, expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := New(nil)
			cfg := twoStageWorkflow()
			s := newAssigned(t, m, cfg)
			_, _, err := m.BeginRound(s, cfg, "alice", "alice", start)
			require.NoError(t, err)

			_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 1, Decision: tc.decision, QualityScore: tc.quality, ComplianceScore: 90}, "alice", start.Add(time.Hour))
			if tc.expectErr {
				var scoreErr *types.InvalidScoreError
				assert.ErrorAs(t, err, &scoreErr)
				assert.True(t, s.Rounds[0].IsOpen())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.expected, s.Status)
			assert.Equal(t, tc.terminal, s.Status.IsTerminal())
		})
	}
}

func TestMachine_RevisionLoop(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)
	for i := 1; i <= 3; i++ {
		round, _, err := m.BeginRound(s, cfg, "alice", "alice", start.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, i, round.Number)
		_, _, err = m.BeginRound(s, cfg, "alice", "alice", start)
		assert.Error(t, err, "one open round per stage")
		_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: i, Decision: model.DecisionRequestRevision, QualityScore: 50, ComplianceScore: 50}, "alice", start.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, model.StatusRevisionRequested, s.Status)
	}
	assert.Equal(t, 3, s.CurrentRound)
	for i, round := range s.Rounds {
		assert.Equal(t, i+1, round.Number)
	}
}

func TestMachine_DuplicateClose(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)
	_, _, err := m.BeginRound(s, cfg, "alice", "alice", start)
	require.NoError(t, err)
	request := &CloseRequest{RoundNumber: 1, Decision: model.DecisionRequestRevision, QualityScore: 60, ComplianceScore: 60}
	_, err = m.CloseRound(s, cfg, request, "alice", start)
	require.NoError(t, err)

	outcome, err := m.CloseRound(s, cfg, request, "alice", start.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.Empty(t, outcome.Events)

	_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 1, Decision: model.DecisionApprove, QualityScore: 90, ComplianceScore: 90}, "alice", start)
	var transitionErr *types.InvalidStateTransitionError
	assert.ErrorAs(t, err, &transitionErr)
	_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 7, Decision: model.DecisionApprove}, "alice", start)
	assert.ErrorIs(t, err, types.ErrRoundNotFound)
}

func TestMachine_Feedback(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)
	_, _, err := m.BeginRound(s, cfg, "alice", "alice", start)
	require.NoError(t, err)

	events, err := m.SubmitFeedback(s, 1, []*model.ReviewFeedback{
		{Type: model.FeedbackClarity, Severity: model.SeverityMajor, Section: "2.1", Comment: "ambiguous"},
		{Type: model.FeedbackFormatting},
	}, "alice", start)
	require.NoError(t, err)
	assert.Equal(t, []model.SessionStatus{model.StatusFeedbackProvided}, statuses(events))
	feedback := s.Rounds[0].Feedback
	require.Len(t, feedback, 2)
	assert.Equal(t, model.SeverityInfo, feedback[1].Severity)
	assert.Equal(t, "alice", feedback[0].CreatedBy)

	_, err = m.SubmitFeedback(s, 1, []*model.ReviewFeedback{{Type: "tone"}}, "alice", start)
	assert.Error(t, err)
	assert.Len(t, s.Rounds[0].Feedback, 2)

	_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: 1, Decision: model.DecisionRequestRevision, QualityScore: 60, ComplianceScore: 60}, "alice", start)
	require.NoError(t, err)
	_, err = m.SubmitFeedback(s, 1, []*model.ReviewFeedback{{Type: model.FeedbackClarity}}, "alice", start)
	assert.ErrorIs(t, err, types.ErrRoundNotOpen)

	item, err := m.UpdateFeedbackStatus(s, feedback[0].ID, model.FeedbackAddressed, "author", start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackAddressed, item.Status)
	_, err = m.UpdateFeedbackStatus(s, feedback[0].ID, model.FeedbackDeferred, "author", start)
	assert.Error(t, err)
	_, err = m.UpdateFeedbackStatus(s, "missing", model.FeedbackAddressed, "author", start)
	assert.ErrorIs(t, err, types.ErrFeedbackNotFound)
}

func TestMachine_Cancel(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)
	_, _, err := m.BeginRound(s, cfg, "alice", "alice", start)
	require.NoError(t, err)
	_, err = m.SubmitFeedback(s, 1, []*model.ReviewFeedback{{Type: model.FeedbackCompleteness}}, "alice", start)
	require.NoError(t, err)

	events, err := m.Cancel(s, "withdrawn", "operator", start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []model.SessionStatus{model.StatusCancelled}, statuses(events))
	assert.False(t, s.Rounds[0].IsOpen())
	assert.False(t, s.Rounds[0].IsDecided())
	assert.Len(t, s.Rounds[0].Feedback, 1)

	_, err = m.Cancel(s, "again", "operator", start)
	assert.Error(t, err)
}

func TestMachine_ActorRequired(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)
	_, _, err := m.BeginRound(s, cfg, "alice", "", start)
	assert.True(t, errors.Is(err, types.ErrActorRequired))
	_, _, err = m.Create(&CreateRequest{DocumentID: "d", DocumentType: "policy"}, cfg, "", start)
	assert.ErrorIs(t, err, types.ErrActorRequired)
	_, _, err = m.Create(&CreateRequest{DocumentID: "d", DocumentType: "invoice"}, cfg, "author", start)
	assert.ErrorIs(t, err, types.ErrDocumentTypeNotSupported)
}

func TestMachine_ParallelGroup(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	cfg.Stages = []*model.Stage{
		{Number: 1, RequiredRole: "legal", IsParallel: true},
		{Number: 2, RequiredRole: "compliance", IsParallel: true},
		{Number: 3, RequiredRole: "editor"},
	}
	s, _, err := m.Create(&CreateRequest{ID: "p1", DocumentID: "doc", DocumentType: "policy"}, cfg, "author", start)
	require.NoError(t, err)
	_, err = m.Assign(s, cfg, []*model.ReviewerAssignment{assignment("lee", 1), assignment("cho", 2)}, nil, "planner", start)
	require.NoError(t, err)

	legal, _, err := m.BeginRound(s, cfg, "lee", "lee", start)
	require.NoError(t, err)
	compliance, _, err := m.BeginRound(s, cfg, "cho", "cho", start)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentRound)

	outcome, err := m.CloseRound(s, cfg, &CloseRequest{RoundNumber: legal.Number, Decision: model.DecisionApprove, QualityScore: 90, ComplianceScore: 90}, "lee", start)
	require.NoError(t, err)
	assert.False(t, outcome.Advanced)
	assert.Equal(t, model.StatusInReview, s.Status)

	outcome, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: compliance.Number, Decision: model.DecisionApprove, QualityScore: 85, ComplianceScore: 85}, "cho", start)
	require.NoError(t, err)
	assert.True(t, outcome.Advanced)
	assert.Equal(t, 3, s.CurrentStage)
}

func TestMachine_RejectClosesParallelRounds(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	cfg.Stages = []*model.Stage{
		{Number: 1, RequiredRole: "legal", IsParallel: true},
		{Number: 2, RequiredRole: "compliance", IsParallel: true},
	}
	s, _, err := m.Create(&CreateRequest{ID: "p2", DocumentID: "doc", DocumentType: "policy"}, cfg, "author", start)
	require.NoError(t, err)
	_, err = m.Assign(s, cfg, []*model.ReviewerAssignment{assignment("lee", 1), assignment("cho", 2)}, nil, "planner", start)
	require.NoError(t, err)
	legal, _, err := m.BeginRound(s, cfg, "lee", "lee", start)
	require.NoError(t, err)
	compliance, _, err := m.BeginRound(s, cfg, "cho", "cho", start)
	require.NoError(t, err)

	closedAt := start.Add(time.Hour)
	_, err = m.CloseRound(s, cfg, &CloseRequest{RoundNumber: legal.Number, Decision: model.DecisionReject, QualityScore: 20, ComplianceScore: 20}, "lee", closedAt)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, s.Status)
	assert.Empty(t, s.OpenRounds())
	sibling := s.Round(compliance.Number)
	require.NotNil(t, sibling.CompletedAt)
	assert.Equal(t, closedAt, *sibling.CompletedAt)
	assert.False(t, sibling.IsDecided())
}

func TestMachine_SkippedGroupAdvances(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	cfg.Stages[0].IsOptional = true
	s, _, err := m.Create(&CreateRequest{ID: "k1", DocumentID: "doc", DocumentType: "policy"}, cfg, "author", start)
	require.NoError(t, err)
	_, err = m.Assign(s, cfg, nil, []int{1}, "planner", start)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentStage)
	assert.Equal(t, model.StatusPendingAssignment, s.Status)
	assert.Equal(t, []int{1}, s.SkippedStages)
}

func TestMachine_ReleaseAndForceApprove(t *testing.T) {
	m := New(nil)
	cfg := twoStageWorkflow()
	s := newAssigned(t, m, cfg)

	released, events, err := m.ReleaseAssignment(s, cfg, "alice", "no response", SystemActor, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentDeclined, released.Status)
	assert.Equal(t, []model.SessionStatus{model.StatusPendingAssignment}, statuses(events))
	assert.Equal(t, []string{"alice"}, Decliners(s, 1))

	_, err = m.Assign(s, cfg, []*model.ReviewerAssignment{assignment("carol", 1)}, nil, "planner", start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, s.Status)

	outcome, err := m.ForceApprove(s, cfg, SystemActor, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, outcome.Advanced)
	require.NotNil(t, outcome.Round)
	assert.True(t, outcome.Round.SystemGenerated)
	assert.EqualValues(t, 70, outcome.Round.QualityScore)
	assert.Equal(t, 2, s.CurrentStage)
}
