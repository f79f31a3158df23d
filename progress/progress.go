package progress

import (
	"context"
	"sync"
	"time"
)

// Delta is an incremental counter change
type Delta struct {
	Sessions   int
	Fired      int
	Reminders  int
	Actions    int
	Suppressed int
	Failed     int
}

// Progress aggregates the counters of one tick. It is safe for concurrent use.
type Progress struct {
	TickAt    time.Time
	StartedAt time.Time

	Sessions   int
	Fired      int
	Reminders  int
	Actions    int
	Suppressed int
	Failed     int

	sync.Mutex
	onChange func(Progress)
}

// Update applies d; the onChange callback receives a copy outside the lock.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.Lock()
	p.Sessions += d.Sessions
	p.Fired += d.Fired
	p.Reminders += d.Reminders
	p.Actions += d.Actions
	p.Suppressed += d.Suppressed
	p.Failed += d.Failed
	snapshot := p.copy()
	cb := p.onChange
	p.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

func (p *Progress) copy() Progress {
	return Progress{
		TickAt:     p.TickAt,
		StartedAt:  p.StartedAt,
		Sessions:   p.Sessions,
		Fired:      p.Fired,
		Reminders:  p.Reminders,
		Actions:    p.Actions,
		Suppressed: p.Suppressed,
		Failed:     p.Failed,
	}
}

// Snapshot returns a copy for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copy()
}

// OnChange registers a callback invoked after every Update.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker embeds a new tracker for the tick at tickAt in a derived context.
func WithNewTracker(ctx context.Context, tickAt time.Time, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{TickAt: tickAt, StartedAt: time.Now(), onChange: onChange}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext returns the tracker carried by ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx applies d to the tracker in ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
