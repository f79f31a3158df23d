package revflow

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/directory"
	"github.com/viant/revflow/service/notify"
	"github.com/viant/revflow/service/planner"
	"github.com/viant/revflow/service/session"
	"github.com/viant/revflow/tracing"
)

// effects are side effects released only after a successful save
type effects struct {
	events        []*model.Transition
	notifications []*notify.Message
	completions   map[string]directory.Completion
	contacts      []string
	// noop skips the save, e.g. for a duplicate close
	noop bool
}

func (e *effects) emit(events ...*model.Transition) {
	e.events = append(e.events, events...)
}

func (e *effects) notify(message *notify.Message) {
	e.notifications = append(e.notifications, message)
}

func (e *effects) complete(reviewerID string, completion directory.Completion) {
	if e.completions == nil {
		e.completions = map[string]directory.Completion{}
	}
	e.completions[reviewerID] = completion
}

type mutation func(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, eff *effects) error

// mutate loads the session under its lock, applies fn to a copy and saves it.
// On error the stored session is untouched and no effect is released.
func (s *Service) mutate(ctx context.Context, operation, sessionID string, fn mutation) (result *model.ReviewSession, err error) {
	ctx, span := tracing.StartSpan(ctx, "revflow."+operation, tracing.KindInternal)
	span.WithAttributes(map[string]string{"session.id": sessionID})
	defer func() { tracing.EndSpan(span, err) }()

	unlock := s.locks.Lock(sessionID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()
	stored, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.registry.LookupVersion(stored.WorkflowID, stored.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	working := stored.Clone()
	eff := &effects{}
	if err = fn(ctx, working, cfg, eff); err != nil {
		return nil, err
	}
	if eff.noop {
		return stored, nil
	}
	if err = s.save(ctx, working); err != nil {
		return nil, err
	}
	s.release(ctx, working, eff)
	locked = false
	unlock()
	s.dispatch(ctx, working.ID, eff.notifications)
	return working.Clone(), nil
}

// release forwards committed effects to the collaborators. Failures are
// logged and never undo the committed state.
func (s *Service) release(ctx context.Context, aSession *model.ReviewSession, eff *effects) {
	if len(eff.events) > 0 {
		auditCtx, cancel := context.WithTimeout(ctx, s.auditTimeout)
		if err := s.audit.Record(auditCtx, eff.events...); err != nil {
			s.logger.Printf("failed to record %d transition(s) of session %s: %v", len(eff.events), aSession.ID, err)
		}
		cancel()
	}
	now := s.nowFn()
	for _, reviewerID := range eff.contacts {
		if err := s.directory.TouchContact(reviewerID, now); err != nil {
			s.logger.Printf("failed to update last contact of %s: %v", reviewerID, err)
		}
	}
	for reviewerID, completion := range eff.completions {
		if err := s.directory.RecordCompletion(ctx, reviewerID, completion); err != nil {
			s.logger.Printf("failed to record completion of %s: %v", reviewerID, err)
		}
	}
}

// dispatch hands messages to the outbox; it runs outside the session lock
// and never waits for buffer space.
func (s *Service) dispatch(ctx context.Context, sessionID string, messages []*notify.Message) {
	for _, message := range messages {
		if err := s.notifier.Notify(ctx, message); err != nil {
			s.logger.Printf("failed to queue %s notification of session %s: %v", message.Template, sessionID, err)
		}
	}
}

// staff plans reviewers for every unstaffed active stage, following skipped
// groups until a group needs a human or the session is done.
func (s *Service) staff(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, exclude []string, actor string, now time.Time, eff *effects) error {
	for i := 0; i <= len(cfg.Stages); i++ {
		if working.Status.IsTerminal() || len(session.Unstaffed(working, cfg)) == 0 {
			return nil
		}
		plan, err := s.planner.Plan(ctx, &planner.Request{Session: working, Config: cfg, Exclude: exclude, At: now})
		if err != nil {
			return err
		}
		if plan.Empty() {
			return nil
		}
		events, err := s.machine.Assign(working, cfg, plan.Assignments, plan.Skipped, actor, now)
		if err != nil {
			return err
		}
		eff.emit(events...)
		for _, assignment := range plan.Assignments {
			eff.contacts = append(eff.contacts, assignment.ReviewerID)
			if !cfg.Automation.AutoNotification {
				continue
			}
			notifiedAt := now
			assignment.NotifiedAt = &notifiedAt
			eff.notify(&notify.Message{
				SessionID:  working.ID,
				Template:   notify.TemplateAssigned,
				Severity:   model.SeverityInfo,
				Recipients: []string{assignment.ReviewerID},
				Subject:    fmt.Sprintf("Review requested: %s (stage %d)", working.DocumentID, assignment.Stage),
				Data:       sessionData(working, assignment.Stage),
			})
		}
	}
	return nil
}

// autoStaff staffs the session when the workflow automates assignment. A
// missing reviewer leaves the session pending and alerts the escalation
// targets; the overdue rules take it from there.
func (s *Service) autoStaff(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, exclude []string, actor string, now time.Time, eff *effects) error {
	if !cfg.Automation.AutoAssignment {
		return nil
	}
	return s.replan(ctx, working, cfg, exclude, actor, now, eff)
}

// replan is autoStaff without the automation switch.
func (s *Service) replan(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, exclude []string, actor string, now time.Time, eff *effects) error {
	err := s.staff(ctx, working, cfg, exclude, actor, now, eff)
	if err == nil || !types.IsNoEligibleReviewer(err) {
		return err
	}
	s.logger.Printf("session %s: %v", working.ID, err)
	eff.notify(&notify.Message{
		SessionID:  working.ID,
		Template:   notify.TemplateNoEligible,
		Severity:   model.SeverityMajor,
		Recipients: escalationTargets(cfg),
		Subject:    err.Error(),
		Data:       sessionData(working, working.CurrentStage),
	})
	return nil
}

func escalationTargets(cfg *model.WorkflowConfig) []string {
	seen := map[string]bool{}
	var result []string
	for _, rule := range cfg.ActiveRules() {
		for _, target := range rule.EscalateTo {
			if !seen[target] {
				seen[target] = true
				result = append(result, target)
			}
		}
	}
	return result
}

func sessionData(aSession *model.ReviewSession, stage int) map[string]string {
	return map[string]string{
		"sessionId":  aSession.ID,
		"documentId": aSession.DocumentID,
		"workflowId": aSession.WorkflowID,
		"status":     string(aSession.Status),
		"stage":      fmt.Sprint(stage),
	}
}
