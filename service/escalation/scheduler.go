package escalation

import (
	"context"
	"log"
	"time"

	"github.com/viant/revflow/progress"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent session evaluations in a tick
const DefaultWorkers = 8

// Report summarises the escalation of one session
type Report struct {
	Reminders  int
	Actions    int
	Suppressed int
	// Failed counts actions that could not be executed
	Failed int
}

// Target is the engine the scheduler drives
type Target interface {
	ActiveSessionIDs(ctx context.Context) ([]string, error)
	Escalate(ctx context.Context, sessionID string, now time.Time) (*Report, error)
}

// Scheduler runs one tick across all active sessions. It owns no timer; the
// caller decides when to tick.
type Scheduler struct {
	target  Target
	workers int
	logger  *log.Logger
}

func NewScheduler(target Target, workers int, logger *log.Logger) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{target: target, workers: workers, logger: logger}
}

// Tick escalates every active session at now. Sessions are independent:
// a failing session is logged and counted, and never stops the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (*progress.Progress, error) {
	ctx, tracker := progress.WithNewTracker(ctx, now, nil)
	ids, err := s.target.ActiveSessionIDs(ctx)
	if err != nil {
		return tracker, err
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, id := range ids {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			report, err := s.target.Escalate(groupCtx, id, now)
			if err != nil {
				s.logger.Printf("escalation of session %s failed: %v", id, err)
				progress.UpdateCtx(groupCtx, progress.Delta{Sessions: 1, Failed: 1})
				return nil
			}
			progress.UpdateCtx(groupCtx, progress.Delta{
				Sessions:   1,
				Fired:      report.Reminders + report.Actions,
				Reminders:  report.Reminders,
				Actions:    report.Actions,
				Suppressed: report.Suppressed,
				Failed:     report.Failed,
			})
			return nil
		})
	}
	err = group.Wait()
	snapshot := tracker.Snapshot()
	if snapshot.Fired > 0 || snapshot.Failed > 0 {
		s.logger.Printf("escalation tick %s: sessions=%d reminders=%d actions=%d failed=%d",
			now.Format(time.RFC3339), snapshot.Sessions, snapshot.Reminders, snapshot.Actions, snapshot.Failed)
	}
	return tracker, err
}
