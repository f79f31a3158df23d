package criteria

import (
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/dao"
)

// MatchSession reports whether session satisfies every parameter. Unknown
// parameter names are ignored.
func MatchSession(session *model.ReviewSession, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		values := parameter.Values()
		switch parameter.Name {
		case dao.ParamStatus:
			if !oneOf(string(session.Status), values) {
				return false
			}
		case dao.ParamWorkflowID:
			if !oneOf(session.WorkflowID, values) {
				return false
			}
		case dao.ParamDocumentID:
			if !oneOf(session.DocumentID, values) {
				return false
			}
		case dao.ParamReviewerID:
			if !hasReviewer(session, values) {
				return false
			}
		}
	}
	return true
}

func hasReviewer(session *model.ReviewSession, reviewers []string) bool {
	for _, assignment := range session.Assignments {
		if oneOf(assignment.ReviewerID, reviewers) {
			return true
		}
	}
	return false
}

func oneOf(value string, candidates []string) bool {
	for _, candidate := range candidates {
		if value == candidate {
			return true
		}
	}
	return false
}
