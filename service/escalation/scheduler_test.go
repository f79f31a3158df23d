package escalation

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mux     sync.Mutex
	ids     []string
	visited []string
}

func (f *fakeTarget) ActiveSessionIDs(context.Context) ([]string, error) {
	return f.ids, nil
}

func (f *fakeTarget) Escalate(_ context.Context, sessionID string, _ time.Time) (*Report, error) {
	f.mux.Lock()
	f.visited = append(f.visited, sessionID)
	f.mux.Unlock()
	if sessionID == "broken" {
		return nil, errors.New("store unavailable")
	}
	return &Report{Reminders: 1, Actions: 1, Suppressed: 2}, nil
}

func TestScheduler_Tick(t *testing.T) {
	target := &fakeTarget{ids: []string{"a", "b", "broken", "c"}}
	scheduler := NewScheduler(target, 2, log.New(io.Discard, "", 0))

	tracker, err := scheduler.Tick(context.Background(), start)
	require.NoError(t, err)
	snapshot := tracker.Snapshot()
	assert.Equal(t, 4, snapshot.Sessions)
	assert.Equal(t, 6, snapshot.Fired)
	assert.Equal(t, 3, snapshot.Actions)
	assert.Equal(t, 6, snapshot.Suppressed)
	assert.Equal(t, 1, snapshot.Failed)
	assert.ElementsMatch(t, target.ids, target.visited)
}

func TestScheduler_TickCancelled(t *testing.T) {
	target := &fakeTarget{ids: []string{"a"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScheduler(target, 1, log.New(io.Discard, "", 0)).Tick(ctx, start)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.visited)
}
