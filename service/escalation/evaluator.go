// Package escalation decides which escalation rules fire for a session and
// drives periodic ticks across active sessions.
package escalation

import (
	"fmt"
	"sync"
	"time"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/service/session"
)

// FiringKind distinguishes reminders from the terminal rule action
type FiringKind string

const (
	FiringReminder FiringKind = "reminder"
	FiringAction   FiringKind = "action"
)

// Firing is one rule that fired on this evaluation
type Firing struct {
	RuleID string
	Rule   *model.EscalationRule
	Kind   FiringKind
	// Reminder is the 1-based reminder count, zero for the terminal action
	Reminder int
	// Reviewers lists the non-responsive reviewers of a no_response rule
	Reviewers []string
}

// Evaluation is the result of evaluating every active rule of a session.
// States replaces the session's escalation bookkeeping once the firings
// were handled.
type Evaluation struct {
	Firings    []*Firing
	Suppressed int
	States     map[string]*model.EscalationState
	Errors     []error
}

// Changed reports whether the bookkeeping needs to be persisted.
func (e *Evaluation) Changed() bool {
	return len(e.Firings) > 0
}

// Apply stores the new bookkeeping on s.
func (e *Evaluation) Apply(s *model.ReviewSession) {
	s.Escalations = e.States
}

// Evaluator evaluates rule conditions; custom predicates are registered by name
type Evaluator struct {
	mux        sync.RWMutex
	predicates map[string]model.Predicate
}

func NewEvaluator() *Evaluator {
	return &Evaluator{predicates: map[string]model.Predicate{}}
}

// RegisterPredicate makes predicate available to custom conditions named name.
func (e *Evaluator) RegisterPredicate(name string, predicate model.Predicate) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.predicates[name] = predicate
}

func (e *Evaluator) predicate(condition model.CustomCondition) (model.Predicate, error) {
	if condition.Predicate != nil {
		return condition.Predicate, nil
	}
	e.mux.RLock()
	defer e.mux.RUnlock()
	predicate, ok := e.predicates[condition.Name]
	if !ok {
		return nil, fmt.Errorf("custom condition %q is not registered", condition.Name)
	}
	return predicate, nil
}

// Evaluate checks the active rules of cfg against s in definition order. It
// does not modify s.
//
// A rule whose condition holds first sends reminders, at most one per
// reminder interval, until it has sent maxReminders+1 of them; the next
// firing runs the rule action once and exhausts the rule for the stage.
func (e *Evaluator) Evaluate(s *model.ReviewSession, cfg *model.WorkflowConfig, now time.Time) *Evaluation {
	result := &Evaluation{States: map[string]*model.EscalationState{}}
	for key, state := range s.Escalations {
		if state.Stage != s.CurrentStage {
			continue
		}
		clone := *state
		result.States[key] = &clone
	}
	if s.Status.IsTerminal() {
		return result
	}
	for i, rule := range cfg.EscalationRules {
		if rule == nil || !rule.IsActive {
			continue
		}
		key := rule.Key(i)
		holds, reviewers, err := e.holds(rule, s, cfg, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("rule %s: %w", key, err))
			continue
		}
		if !holds {
			continue
		}
		state, ok := result.States[key]
		if !ok {
			state = &model.EscalationState{RuleID: key, Stage: s.CurrentStage}
			result.States[key] = state
		}
		if state.Exhausted {
			continue
		}
		if state.LastFiredAt != nil && now.Sub(*state.LastFiredAt) < rule.ReminderInterval() {
			result.Suppressed++
			continue
		}
		firing := &Firing{RuleID: key, Rule: rule, Reviewers: reviewers}
		if state.Reminders <= rule.MaxReminders {
			state.Reminders++
			firing.Kind = FiringReminder
			firing.Reminder = state.Reminders
		} else {
			firing.Kind = FiringAction
			state.Exhausted = true
		}
		firedAt := now
		state.LastFiredAt = &firedAt
		result.Firings = append(result.Firings, firing)
	}
	return result
}

func (e *Evaluator) holds(rule *model.EscalationRule, s *model.ReviewSession, cfg *model.WorkflowConfig, now time.Time) (bool, []string, error) {
	trigger := rule.TriggerAfter()
	switch condition := rule.Condition.(type) {
	case model.OverdueCondition:
		return now.Sub(s.StageEnteredAt) > trigger, nil, nil
	case model.NoResponseCondition:
		var reviewers []string
		for _, stage := range session.ActiveStages(s, cfg) {
			for _, assignment := range s.OpenAssignments(stage.Number) {
				if assignment.AcceptedAt == nil && now.Sub(assignment.AssignedAt) > trigger {
					reviewers = append(reviewers, assignment.ReviewerID)
				}
			}
		}
		return len(reviewers) > 0, reviewers, nil
	case model.QualityThresholdCondition:
		threshold := condition.Threshold
		if threshold == 0 {
			threshold = cfg.QualityThreshold
		}
		round := latestDecided(s, cfg)
		return round != nil && round.QualityScore < threshold, nil, nil
	case model.CustomCondition:
		predicate, err := e.predicate(condition)
		if err != nil {
			return false, nil, err
		}
		return predicate(s, now), nil, nil
	}
	return false, nil, fmt.Errorf("unsupported condition %T", rule.Condition)
}

// latestDecided returns the latest decided round on the active stage group.
func latestDecided(s *model.ReviewSession, cfg *model.WorkflowConfig) *model.ReviewRound {
	var result *model.ReviewRound
	for _, stage := range session.ActiveStages(s, cfg) {
		if round := s.LatestDecidedRoundForStage(stage.Number); round != nil && (result == nil || round.Number > result.Number) {
			result = round
		}
	}
	return result
}
