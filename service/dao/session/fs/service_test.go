package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/dao"
)

func TestService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New("mem://localhost/revflow/sessions", nil)
	require.NoError(t, err)

	aSession := &model.ReviewSession{
		ID:         "s1",
		WorkflowID: "wf",
		Status:     model.StatusInReview,
		Rounds:     []*model.ReviewRound{{Number: 1, ReviewerID: "r1", Stage: 1}},
	}
	require.NoError(t, store.Save(ctx, aSession))
	assert.EqualValues(t, 1, aSession.Version)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "r1", loaded.Rounds[0].ReviewerID)
	assert.EqualValues(t, 1, loaded.Version)

	stale := loaded.Clone()
	require.NoError(t, store.Save(ctx, loaded))
	err = store.Save(ctx, stale)
	assert.True(t, types.IsConflict(err))

	listed, err := store.List(ctx, dao.NewParameter(dao.ParamStatus, string(model.StatusInReview)))
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}
