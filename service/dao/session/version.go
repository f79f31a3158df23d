// Package session holds the pieces shared by review session stores.
package session

import (
	"sort"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/dao"
)

// Store is the review session persistence contract.
type Store = dao.Service[string, model.ReviewSession]

// NextVersion returns the version to persist for incoming given the stored
// version, or a ConflictError when incoming was loaded at another version.
func NextVersion(incoming *model.ReviewSession, stored int64, exists bool) (int64, error) {
	if !exists {
		stored = 0
	}
	if incoming.Version != stored {
		return 0, &types.ConflictError{SessionID: incoming.ID, Expected: incoming.Version, Actual: stored}
	}
	return stored + 1, nil
}

// Validate checks the entity before persisting.
func Validate(s *model.ReviewSession) error {
	if s == nil {
		return dao.ErrNilEntity
	}
	if s.ID == "" {
		return dao.ErrInvalidID
	}
	return nil
}

// Sort orders sessions by submission time, then id.
func Sort(sessions []*model.ReviewSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].SubmittedAt.Equal(sessions[j].SubmittedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].SubmittedAt.Before(sessions[j].SubmittedAt)
	})
}
