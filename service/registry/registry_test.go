package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
)

const workflowsYAML = `
workflows:
  - id: policy-review
    version: 1
    documentTypes: [policy]
    requiredRoles: [editor, legal]
    minimumReviewers: 2
    requiredApprovals: 2
    qualityThreshold: 60
    isActive: true
    automation: {autoAssignment: true, autoEscalation: true, autoNotification: true}
    stages:
      - stageNumber: 1
        requiredRole: editor
      - stageNumber: 2
        requiredRole: legal
        passingScore: 80
    escalationRules:
      - condition: {type: overdue}
        action: {type: notify}
        triggerAfterHours: 24
        reminderIntervalHours: 8
        maxReminders: 2
        escalateTo: [manager]
`

func newWorkflow(id string) *model.WorkflowConfig {
	return &model.WorkflowConfig{
		ID:            id,
		DocumentTypes: []string{"policy"},
		RequiredRoles: []string{"editor"},
		Stages:        []*model.Stage{{Number: 1, RequiredRole: "editor"}},
		IsActive:      true,
	}
}

func TestService_Register(t *testing.T) {
	service := New()
	require.NoError(t, service.Register(newWorkflow("wf")))
	require.NoError(t, service.Register(newWorkflow("wf")))

	latest, err := service.Lookup("wf")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	first, err := service.LookupVersion("wf", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	duplicate := newWorkflow("wf")
	duplicate.Version = 2
	assert.Error(t, service.Register(duplicate))

	inactive := newWorkflow("off")
	inactive.IsActive = false
	require.NoError(t, service.Register(inactive))
	_, err = service.Lookup("off")
	assert.ErrorIs(t, err, types.ErrWorkflowNotFound)
	_, err = service.Lookup("missing")
	assert.ErrorIs(t, err, types.ErrWorkflowNotFound)
}

func TestService_RegisterInvalid(t *testing.T) {
	service := New()
	invalid := newWorkflow("broken")
	invalid.Stages = []*model.Stage{
		{Number: 1, RequiredRole: "editor"},
		{Number: 3, RequiredRole: "legal"},
	}
	invalid.RequiredApprovals = 2
	err := service.Register(invalid)

	var validationErr *types.ConfigValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Len(t, validationErr.Errors, 2)
	assert.Empty(t, service.List())

	result := service.Validate(invalid)
	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 2)
}

func TestService_Load(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	URL := "mem://localhost/revflow/workflows.yaml"
	require.NoError(t, fs.Upload(ctx, URL, file.DefaultFileOsMode, strings.NewReader(workflowsYAML)))

	service := NewWithFS(fs)
	require.NoError(t, service.Load(ctx, URL))
	cfg, err := service.Lookup("policy-review")
	require.NoError(t, err)
	assert.Len(t, cfg.ApplicableStages("policy"), 2)
	assert.EqualValues(t, 80, cfg.NextStage(1).Gate())
	require.Len(t, cfg.EscalationRules, 1)
	assert.Equal(t, "rule-1", cfg.EscalationRules[0].ID)
	assert.Equal(t, model.OverdueCondition{}, cfg.EscalationRules[0].Condition)
}

func TestDecode_SingleDocument(t *testing.T) {
	configs, err := Decode([]byte("id: single\ndocumentTypes: [memo]\nrequiredRoles: [editor]\nstages:\n  - stageNumber: 1\n    requiredRole: editor\n"))
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "single", configs[0].ID)
}
