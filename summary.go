package revflow

import (
	"context"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/scoring"
	"github.com/viant/revflow/service/session"
)

// SessionSummary is a read-only progress report of a session
type SessionSummary struct {
	SessionID    string              `json:"sessionId"`
	DocumentID   string              `json:"documentId"`
	WorkflowID   string              `json:"workflowId"`
	Status       model.SessionStatus `json:"status"`
	CurrentStage int                 `json:"currentStage"`
	StageName    string              `json:"stageName,omitempty"`
	TotalStages  int                 `json:"totalStages"`
	// ActiveStages lists the stage numbers of the current group
	ActiveStages    []int                  `json:"activeStages"`
	Rounds          int                    `json:"rounds"`
	OpenAssignments int                    `json:"openAssignments"`
	OpenFeedback    map[model.Severity]int `json:"openFeedback"`
	Score           *scoring.Score         `json:"score"`
}

// Summary reports stage progress, open feedback and the aggregate score.
func (s *Service) Summary(ctx context.Context, sessionID string) (*SessionSummary, error) {
	aSession, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.registry.LookupVersion(aSession.WorkflowID, aSession.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	score, err := s.scoring.AggregateSessionScore(aSession)
	if err != nil {
		return nil, err
	}
	result := &SessionSummary{
		SessionID:    aSession.ID,
		DocumentID:   aSession.DocumentID,
		WorkflowID:   aSession.WorkflowID,
		Status:       aSession.Status,
		CurrentStage: aSession.CurrentStage,
		TotalStages:  len(cfg.ApplicableStages(aSession.DocumentType)),
		Rounds:       len(aSession.Rounds),
		OpenFeedback: map[model.Severity]int{},
		Score:        score,
	}
	if stage := cfg.Stage(aSession.CurrentStage); stage != nil {
		result.StageName = stage.Name
	}
	for _, stage := range session.ActiveStages(aSession, cfg) {
		result.ActiveStages = append(result.ActiveStages, stage.Number)
		result.OpenAssignments += len(aSession.OpenAssignments(stage.Number))
	}
	for _, round := range aSession.Rounds {
		for _, item := range round.Feedback {
			if item.Status == model.FeedbackOpen {
				result.OpenFeedback[item.Severity]++
			}
		}
	}
	return result, nil
}
