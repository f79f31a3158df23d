package revflow

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/progress"
	"github.com/viant/revflow/service/dao"
	"github.com/viant/revflow/service/escalation"
	"github.com/viant/revflow/service/notify"
	"github.com/viant/revflow/service/session"
)

// Tick evaluates escalation rules of every active session at now. The
// engine owns no timer: hosts call Tick on their own schedule.
func (s *Service) Tick(ctx context.Context, now time.Time) (*progress.Progress, error) {
	return s.scheduler.Tick(ctx, now)
}

// ActiveSessionIDs lists non-terminal sessions.
func (s *Service) ActiveSessionIDs(ctx context.Context) ([]string, error) {
	sessions, err := s.store.List(ctx, dao.NewParameter(dao.ParamStatus, model.ActiveStatuses()...))
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(sessions))
	for _, aSession := range sessions {
		result = append(result, aSession.ID)
	}
	return result, nil
}

// Escalate fires the due escalation rules of one session. Rules run in
// definition order; a failing action is logged and counted, and the
// remaining rules still run.
func (s *Service) Escalate(ctx context.Context, sessionID string, now time.Time) (*escalation.Report, error) {
	report := &escalation.Report{}
	_, err := s.mutate(ctx, "escalate", sessionID, func(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, eff *effects) error {
		if !cfg.Automation.AutoEscalation {
			eff.noop = true
			return nil
		}
		evaluation := s.evaluator.Evaluate(working, cfg, now)
		for _, err := range evaluation.Errors {
			s.logger.Printf("session %s: %v", working.ID, err)
		}
		report.Suppressed = evaluation.Suppressed
		if !evaluation.Changed() {
			eff.noop = true
			return nil
		}
		evaluation.Apply(working)
		for _, firing := range evaluation.Firings {
			if firing.Kind == escalation.FiringReminder {
				report.Reminders++
				eff.notify(reminder(working, firing))
				continue
			}
			report.Actions++
			if err := s.execute(ctx, working, cfg, firing, now, eff); err != nil {
				report.Failed++
				s.logger.Printf("session %s: escalation rule %s action %s failed: %v", working.ID, firing.RuleID, firing.Rule.Action.Kind(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func reminder(working *model.ReviewSession, firing *escalation.Firing) *notify.Message {
	template := notify.TemplateReminder
	if action, ok := firing.Rule.Action.(model.NotifyAction); ok && action.Template != "" {
		template = action.Template
	}
	data := sessionData(working, working.CurrentStage)
	data["rule"] = firing.RuleID
	data["reminder"] = fmt.Sprint(firing.Reminder)
	return &notify.Message{
		SessionID:  working.ID,
		Template:   template,
		Severity:   model.SeverityInfo,
		Recipients: append(append([]string{}, firing.Rule.EscalateTo...), firing.Reviewers...),
		Subject:    fmt.Sprintf("Reminder %d: %s needs attention (%s)", firing.Reminder, working.DocumentID, firing.Rule.Condition.Kind()),
		Data:       data,
	}
}

// execute runs the terminal action of a rule against the working copy.
func (s *Service) execute(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, firing *escalation.Firing, now time.Time, eff *effects) error {
	data := sessionData(working, working.CurrentStage)
	data["rule"] = firing.RuleID
	switch action := firing.Rule.Action.(type) {
	case model.NotifyAction:
		template := action.Template
		if template == "" {
			template = notify.TemplateReminder
		}
		eff.notify(&notify.Message{SessionID: working.ID, Template: template, Severity: model.SeverityMajor,
			Recipients: firing.Rule.EscalateTo, Subject: fmt.Sprintf("Escalation: %s", working.DocumentID), Data: data})
		return nil
	case model.EscalateManagerAction:
		template := action.Template
		if template == "" {
			template = notify.TemplateEscalated
		}
		eff.notify(&notify.Message{SessionID: working.ID, Template: template, Severity: model.SeverityCritical,
			Recipients: firing.Rule.EscalateTo, Subject: fmt.Sprintf("Escalated to management: %s", working.DocumentID), Data: data})
		return nil
	case model.ReassignAction:
		return s.reassign(ctx, working, cfg, firing, now, eff)
	case model.AutoApproveAction:
		outcome, err := s.machine.ForceApprove(working, cfg, session.SystemActor, now)
		if err != nil {
			return err
		}
		eff.emit(outcome.Events...)
		if outcome.Round != nil {
			s.notifyOutcome(working, outcome.Round, eff)
		}
		if outcome.NeedsAssignment {
			return s.autoStaff(ctx, working, cfg, nil, session.SystemActor, now, eff)
		}
		return nil
	case model.CustomAction:
		handler := action.Handler
		if handler == nil {
			handler = s.actions[action.Name]
		}
		if handler == nil {
			return fmt.Errorf("custom action %q is not registered", action.Name)
		}
		return handler(ctx, working.Clone())
	}
	return fmt.Errorf("unsupported action %T", firing.Rule.Action)
}

// reassign releases the non-responsive reviewers, or for other conditions
// every reviewer of the active group without an open round, and plans
// replacements that exclude them.
func (s *Service) reassign(ctx context.Context, working *model.ReviewSession, cfg *model.WorkflowConfig, firing *escalation.Firing, now time.Time, eff *effects) error {
	reviewers := firing.Reviewers
	if len(reviewers) == 0 {
		for _, stage := range session.ActiveStages(working, cfg) {
			if working.OpenRound(stage.Number) != nil {
				continue
			}
			for _, assignment := range working.OpenAssignments(stage.Number) {
				reviewers = append(reviewers, assignment.ReviewerID)
			}
		}
	}
	if len(reviewers) == 0 {
		return nil
	}
	reason := fmt.Sprintf("reassigned by escalation rule %s", firing.RuleID)
	for _, reviewerID := range reviewers {
		_, events, err := s.machine.ReleaseAssignment(working, cfg, reviewerID, reason, session.SystemActor, now)
		if err != nil {
			return err
		}
		eff.emit(events...)
	}
	return s.replan(ctx, working, cfg, reviewers, session.SystemActor, now, eff)
}
