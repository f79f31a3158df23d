package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestWorkflow() *WorkflowConfig {
	return &WorkflowConfig{
		ID:                "policy-review",
		Version:           1,
		DocumentTypes:     []string{"policy"},
		RequiredRoles:     []string{"editor", "legal"},
		MinimumReviewers:  2,
		RequiredApprovals: 1,
		QualityThreshold:  60,
		Stages: []*Stage{
			{Number: 1, RequiredRole: "editor"},
			{Number: 2, RequiredRole: "legal", PassingScore: 80},
		},
		EscalationRules: []*EscalationRule{
			{ID: "overdue", Condition: OverdueCondition{}, Action: NotifyAction{}, TriggerAfterHours: 24, EscalateTo: []string{"manager"}, IsActive: true},
		},
		IsActive: true,
	}
}

func TestWorkflowConfig_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(w *WorkflowConfig)
		expected int
	}{
		{
			name:     "valid",
			mutate:   func(w *WorkflowConfig) {},
			expected: 0,
		},
		{
			name: "missing stage 2 of 3",
			mutate: func(w *WorkflowConfig) {
				w.Stages = []*Stage{{Number: 1, RequiredRole: "editor"}, {Number: 3, RequiredRole: "legal"}}
			},
			expected: 1,
		},
		{
			name: "stages not starting at 1",
			mutate: func(w *WorkflowConfig) {
				w.Stages = []*Stage{{Number: 2, RequiredRole: "editor"}}
			},
			expected: 1,
		},
		{
			name:     "approvals exceed reviewers",
			mutate:   func(w *WorkflowConfig) { w.RequiredApprovals = 3 },
			expected: 1,
		},
		{
			name: "all violations are reported",
			mutate: func(w *WorkflowConfig) {
				w.DocumentTypes = nil
				w.RequiredRoles = nil
				w.EscalationRules[0].TriggerAfterHours = 0
				w.EscalationRules[0].EscalateTo = nil
			},
			expected: 4,
		},
		{
			name:     "duplicate stage numbers",
			mutate:   func(w *WorkflowConfig) { w.Stages[1].Number = 1 },
			expected: 2,
		},
		{
			name:     "passing score out of range",
			mutate:   func(w *WorkflowConfig) { w.Stages[0].PassingScore = 120 },
			expected: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			workflow := newTestWorkflow()
			tc.mutate(workflow)
			assert.Len(t, workflow.Validate(), tc.expected)
		})
	}
}

func TestWorkflowConfig_StageLookups(t *testing.T) {
	workflow := newTestWorkflow()
	workflow.Stages = []*Stage{
		{Number: 3, RequiredRole: "legal"},
		{Number: 1, RequiredRole: "editor"},
		{Number: 2, RequiredRole: "legal"},
	}

	stages := workflow.ApplicableStages("policy")
	require.Len(t, stages, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{stages[0].Number, stages[1].Number, stages[2].Number})
	assert.Empty(t, workflow.ApplicableStages("contract"))

	assert.Equal(t, 2, workflow.NextStage(1).Number)
	assert.Equal(t, 3, workflow.NextStage(2).Number)
	assert.Nil(t, workflow.NextStage(3))
	assert.Equal(t, 1, workflow.FirstStage().Number)
	assert.EqualValues(t, DefaultPassingScore, workflow.Stage(1).Gate())
}

func TestWorkflowConfig_StageGroup(t *testing.T) {
	workflow := newTestWorkflow()
	workflow.Stages = []*Stage{
		{Number: 1, RequiredRole: "editor"},
		{Number: 2, RequiredRole: "legal", IsParallel: true},
		{Number: 3, RequiredRole: "compliance", IsParallel: true},
		{Number: 4, RequiredRole: "editor"},
	}
	assert.Len(t, workflow.StageGroup(1), 1)
	group := workflow.StageGroup(2)
	require.Len(t, group, 2)
	assert.Equal(t, 3, group[1].Number)
	assert.Len(t, workflow.StageGroup(4), 1)
	assert.Nil(t, workflow.StageGroup(9))
}

func TestEscalationRule_YAML(t *testing.T) {
	data := `
id: quality
condition:
  type: quality_threshold
  threshold: 55
action:
  type: escalate_manager
  template: review.escalated
triggerAfterHours: 4
reminderIntervalHours: 2
maxReminders: 2
escalateTo: [manager]
`
	rule := &EscalationRule{}
	require.NoError(t, yaml.Unmarshal([]byte(data), rule))
	assert.Equal(t, QualityThresholdCondition{Threshold: 55}, rule.Condition)
	assert.Equal(t, EscalateManagerAction{Template: "review.escalated"}, rule.Action)
	assert.True(t, rule.IsActive)
	assert.Equal(t, 2, rule.MaxReminders)
	assert.Empty(t, rule.Validate())

	encoded, err := json.Marshal(rule)
	require.NoError(t, err)
	decoded := &EscalationRule{}
	require.NoError(t, json.Unmarshal(encoded, decoded))
	assert.Equal(t, rule, decoded)

	bad := &EscalationRule{}
	assert.Error(t, yaml.Unmarshal([]byte("condition:\n  type: lunar_phase\n"), bad))
}

func TestReviewSession_Clone(t *testing.T) {
	session := &ReviewSession{
		ID: "s1",
		Rounds: []*ReviewRound{
			{Number: 1, Feedback: []*ReviewFeedback{{ID: "f1", Status: FeedbackOpen}}},
		},
		Assignments: []*ReviewerAssignment{{ID: "a1", Status: AssignmentAssigned}},
		Escalations: map[string]*EscalationState{"r": {RuleID: "r", Reminders: 1}},
	}
	clone := session.Clone()
	clone.Rounds[0].Feedback[0].Status = FeedbackAddressed
	clone.Assignments[0].Status = AssignmentDeclined
	clone.Escalations["r"].Reminders = 5

	assert.Equal(t, FeedbackOpen, session.Rounds[0].Feedback[0].Status)
	assert.Equal(t, AssignmentAssigned, session.Assignments[0].Status)
	assert.Equal(t, 1, session.Escalations["r"].Reminders)
}
