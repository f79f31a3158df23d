package revflow

import (
	"context"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/dao"
	dsession "github.com/viant/revflow/service/dao/session"
)

// storeWorkload counts open assignments across the active sessions of a store
type storeWorkload struct {
	store dsession.Store
}

func (w *storeWorkload) OpenAssignments(ctx context.Context, skip ...string) (map[string]int, error) {
	sessions, err := w.store.List(ctx, dao.NewParameter(dao.ParamStatus, model.ActiveStatuses()...))
	if err != nil {
		return nil, err
	}
	result := map[string]int{}
	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	for _, aSession := range sessions {
		if skipped[aSession.ID] {
			continue
		}
		for _, assignment := range aSession.Assignments {
			if assignment.Status.IsOpen() {
				result[assignment.ReviewerID]++
			}
		}
	}
	return result, nil
}
