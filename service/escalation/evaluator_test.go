package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/revflow/model"
)

var start = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func workflow(rules ...*model.EscalationRule) *model.WorkflowConfig {
	return &model.WorkflowConfig{
		ID:               "wf",
		DocumentTypes:    []string{"policy"},
		RequiredRoles:    []string{"legal"},
		QualityThreshold: 60,
		Stages: []*model.Stage{
			{Number: 1, RequiredRole: "legal"},
			{Number: 2, RequiredRole: "legal"},
		},
		EscalationRules: rules,
		IsActive:        true,
	}
}

func assignedSession() *model.ReviewSession {
	return &model.ReviewSession{
		ID:             "s1",
		Status:         model.StatusAssigned,
		CurrentStage:   1,
		StageEnteredAt: start,
		Assignments: []*model.ReviewerAssignment{
			{ID: "a1", ReviewerID: "slow", Stage: 1, Status: model.AssignmentAssigned, AssignedAt: start},
		},
	}
}

func TestEvaluator_ReminderCap(t *testing.T) {
	rule := &model.EscalationRule{
		ID:                    "overdue",
		Condition:             model.OverdueCondition{},
		Action:                model.EscalateManagerAction{},
		TriggerAfterHours:     2,
		ReminderIntervalHours: 1,
		MaxReminders:          2,
		EscalateTo:            []string{"manager"},
		IsActive:              true,
	}
	cfg := workflow(rule)
	s := assignedSession()
	evaluator := NewEvaluator()

	var fired []string
	suppressed := 0
	for now := start; now.Before(start.Add(12 * time.Hour)); now = now.Add(30 * time.Minute) {
		evaluation := evaluator.Evaluate(s, cfg, now)
		require.Empty(t, evaluation.Errors)
		suppressed += evaluation.Suppressed
		for _, firing := range evaluation.Firings {
			fired = append(fired, now.Sub(start).String()+" "+string(firing.Kind))
		}
		evaluation.Apply(s)
	}
	assert.Equal(t, []string{"2h30m0s reminder", "3h30m0s reminder", "4h30m0s reminder", "5h30m0s action"}, fired)
	assert.Equal(t, 3, suppressed)
	assert.True(t, s.Escalations["overdue"].Exhausted)

	s.CurrentStage = 2
	s.StageEnteredAt = start.Add(12 * time.Hour)
	evaluation := evaluator.Evaluate(s, cfg, start.Add(15*time.Hour))
	require.Len(t, evaluation.Firings, 1)
	assert.Equal(t, FiringReminder, evaluation.Firings[0].Kind)
	assert.Equal(t, 2, evaluation.States["overdue"].Stage)
}

func TestEvaluator_Conditions(t *testing.T) {
	rule := func(condition model.Condition) *model.EscalationRule {
		return &model.EscalationRule{ID: "r", Condition: condition, Action: model.NotifyAction{}, TriggerAfterHours: 4, EscalateTo: []string{"ops"}, IsActive: true}
	}
	accepted := start.Add(time.Hour)
	testCases := []struct {
		name      string
		rule      *model.EscalationRule
		prepare   func(s *model.ReviewSession)
		at        time.Time
		expected  bool
		reviewers []string
	}{
		{name: "overdue before trigger", rule: rule(model.OverdueCondition{}), at: start.Add(4 * time.Hour), expected: false},
		{name: "overdue after trigger", rule: rule(model.OverdueCondition{}), at: start.Add(5 * time.Hour), expected: true},
		{name: "no response", rule: rule(model.NoResponseCondition{}), at: start.Add(5 * time.Hour), expected: true, reviewers: []string{"slow"}},
		{
			name: "accepted assignment responds",
			rule: rule(model.NoResponseCondition{}),
			prepare: func(s *model.ReviewSession) {
				s.Assignments[0].AcceptedAt = &accepted
				s.Assignments[0].Status = model.AssignmentAccepted
			},
			at:       start.Add(5 * time.Hour),
			expected: false,
		},
		{
			name: "quality below workflow threshold",
			rule: rule(model.QualityThresholdCondition{}),
			prepare: func(s *model.ReviewSession) {
				s.Rounds = []*model.ReviewRound{{Number: 1, Stage: 1, CompletedAt: &accepted, Decision: model.DecisionRequestRevision, QualityScore: 55}}
			},
			at:       start.Add(time.Hour),
			expected: true,
		},
		{
			name: "quality above rule threshold",
			rule: rule(model.QualityThresholdCondition{Threshold: 50}),
			prepare: func(s *model.ReviewSession) {
				s.Rounds = []*model.ReviewRound{{Number: 1, Stage: 1, CompletedAt: &accepted, Decision: model.DecisionRequestRevision, QualityScore: 55}}
			},
			at:       start.Add(time.Hour),
			expected: false,
		},
		{
			name:     "custom registered predicate",
			rule:     rule(model.CustomCondition{Name: "urgent"}),
			prepare:  func(s *model.ReviewSession) { s.Priority = model.PriorityUrgent },
			at:       start,
			expected: true,
		},
		{
			name:     "terminal session never fires",
			rule:     rule(model.OverdueCondition{}),
			prepare:  func(s *model.ReviewSession) { s.Status = model.StatusCancelled },
			at:       start.Add(48 * time.Hour),
			expected: false,
		},
	}

	evaluator := NewEvaluator()
	evaluator.RegisterPredicate("urgent", func(s *model.ReviewSession, _ time.Time) bool {
		return s.Priority == model.PriorityUrgent
	})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := assignedSession()
			if tc.prepare != nil {
				tc.prepare(s)
			}
			evaluation := evaluator.Evaluate(s, workflow(tc.rule), tc.at)
			require.Empty(t, evaluation.Errors)
			if !tc.expected {
				assert.Empty(t, evaluation.Firings)
				return
			}
			require.Len(t, evaluation.Firings, 1)
			assert.Equal(t, tc.reviewers, evaluation.Firings[0].Reviewers)
		})
	}
}

func TestEvaluator_UnknownPredicate(t *testing.T) {
	rule := &model.EscalationRule{ID: "x", Condition: model.CustomCondition{Name: "missing"}, Action: model.NotifyAction{}, TriggerAfterHours: 1, EscalateTo: []string{"ops"}, IsActive: true}
	evaluation := NewEvaluator().Evaluate(assignedSession(), workflow(rule), start)
	assert.Len(t, evaluation.Errors, 1)
	assert.Empty(t, evaluation.Firings)
}

func TestEvaluator_DoesNotMutateSession(t *testing.T) {
	rule := &model.EscalationRule{ID: "o", Condition: model.OverdueCondition{}, Action: model.NotifyAction{}, TriggerAfterHours: 1, EscalateTo: []string{"ops"}, IsActive: true}
	s := assignedSession()
	evaluation := NewEvaluator().Evaluate(s, workflow(rule), start.Add(2*time.Hour))
	require.Len(t, evaluation.Firings, 1)
	assert.Nil(t, s.Escalations)
}
