package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ConditionKind names an escalation condition variant
type ConditionKind string

const (
	ConditionOverdue          ConditionKind = "overdue"
	ConditionNoResponse       ConditionKind = "no_response"
	ConditionQualityThreshold ConditionKind = "quality_threshold"
	ConditionCustom           ConditionKind = "custom"
)

// ActionKind names an escalation action variant
type ActionKind string

const (
	ActionNotify          ActionKind = "notify"
	ActionReassign        ActionKind = "reassign"
	ActionAutoApprove     ActionKind = "auto_approve"
	ActionEscalateManager ActionKind = "escalate_manager"
	ActionCustom          ActionKind = "custom"
)

// Predicate decides a custom condition. It must not mutate the session.
type Predicate func(session *ReviewSession, now time.Time) bool

// ActionHandler executes a custom action against a session copy.
type ActionHandler func(ctx context.Context, session *ReviewSession) error

// Condition is a closed set of escalation triggers.
type Condition interface {
	Kind() ConditionKind
}

// OverdueCondition fires once the current stage has been active longer than the rule trigger.
type OverdueCondition struct{}

// NoResponseCondition fires when an assignment stays unaccepted longer than the rule trigger.
type NoResponseCondition struct{}

// QualityThresholdCondition fires when the latest closed round scored below Threshold.
// A zero Threshold falls back to the workflow quality threshold.
type QualityThresholdCondition struct {
	Threshold float64
}

// CustomCondition delegates to an injected predicate, resolved by Name when Predicate is nil.
type CustomCondition struct {
	Name      string
	Params    map[string]string
	Predicate Predicate
}

func (OverdueCondition) Kind() ConditionKind          { return ConditionOverdue }
func (NoResponseCondition) Kind() ConditionKind       { return ConditionNoResponse }
func (QualityThresholdCondition) Kind() ConditionKind { return ConditionQualityThreshold }
func (CustomCondition) Kind() ConditionKind           { return ConditionCustom }

// Action is a closed set of escalation remedies.
type Action interface {
	Kind() ActionKind
}

// NotifyAction notifies the rule recipients.
type NotifyAction struct {
	Template string
}

// ReassignAction replaces the non-responsive reviewer.
type ReassignAction struct{}

// AutoApproveAction force-closes open rounds with a system approval.
type AutoApproveAction struct{}

// EscalateManagerAction notifies the rule recipients with elevated severity.
type EscalateManagerAction struct {
	Template string
}

// CustomAction delegates to an injected handler, resolved by Name when Handler is nil.
type CustomAction struct {
	Name    string
	Params  map[string]string
	Handler ActionHandler
}

func (NotifyAction) Kind() ActionKind          { return ActionNotify }
func (ReassignAction) Kind() ActionKind        { return ActionReassign }
func (AutoApproveAction) Kind() ActionKind     { return ActionAutoApprove }
func (EscalateManagerAction) Kind() ActionKind { return ActionEscalateManager }
func (CustomAction) Kind() ActionKind          { return ActionCustom }

// EscalationRule represents a time or condition triggered remedial policy
type EscalationRule struct {
	ID                    string
	Condition             Condition
	Action                Action
	TriggerAfterHours     float64
	ReminderIntervalHours float64
	MaxReminders          int
	EscalateTo            []string
	IsActive              bool
}

// Key returns the rule id or a positional fallback.
func (r *EscalationRule) Key(index int) string {
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("rule-%d", index+1)
}

// TriggerAfter returns the trigger as a duration.
func (r *EscalationRule) TriggerAfter() time.Duration {
	return hours(r.TriggerAfterHours)
}

// ReminderInterval returns the reminder interval as a duration.
func (r *EscalationRule) ReminderInterval() time.Duration {
	return hours(r.ReminderIntervalHours)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Validate returns every violation found in the rule.
func (r *EscalationRule) Validate() []error {
	var issues []error
	if r.TriggerAfterHours <= 0 {
		issues = append(issues, fmt.Errorf("triggerAfterHours must be > 0"))
	}
	if len(r.EscalateTo) == 0 {
		issues = append(issues, fmt.Errorf("escalateTo must not be empty"))
	}
	if r.ReminderIntervalHours < 0 || r.MaxReminders < 0 {
		issues = append(issues, fmt.Errorf("reminder settings must not be negative"))
	}
	switch c := r.Condition.(type) {
	case nil:
		issues = append(issues, fmt.Errorf("condition is required"))
	case QualityThresholdCondition:
		if !validScore(c.Threshold) {
			issues = append(issues, fmt.Errorf("quality threshold %v out of range [0,100]", c.Threshold))
		}
	case CustomCondition:
		if c.Name == "" && c.Predicate == nil {
			issues = append(issues, fmt.Errorf("custom condition requires a name"))
		}
	}
	switch a := r.Action.(type) {
	case nil:
		issues = append(issues, fmt.Errorf("action is required"))
	case CustomAction:
		if a.Name == "" && a.Handler == nil {
			issues = append(issues, fmt.Errorf("custom action requires a name"))
		}
	}
	return issues
}

// conditionSpec is the serialised form of a Condition
type conditionSpec struct {
	Type      ConditionKind     `json:"type" yaml:"type"`
	Threshold float64           `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
	Params    map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// actionSpec is the serialised form of an Action
type actionSpec struct {
	Type     ActionKind        `json:"type" yaml:"type"`
	Template string            `json:"template,omitempty" yaml:"template,omitempty"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

type ruleDocument struct {
	ID                    string         `json:"id,omitempty" yaml:"id,omitempty"`
	Condition             *conditionSpec `json:"condition" yaml:"condition"`
	Action                *actionSpec    `json:"action" yaml:"action"`
	TriggerAfterHours     float64        `json:"triggerAfterHours" yaml:"triggerAfterHours"`
	ReminderIntervalHours float64        `json:"reminderIntervalHours,omitempty" yaml:"reminderIntervalHours,omitempty"`
	MaxReminders          int            `json:"maxReminders,omitempty" yaml:"maxReminders,omitempty"`
	EscalateTo            []string       `json:"escalateTo" yaml:"escalateTo"`
	IsActive              *bool          `json:"isActive,omitempty" yaml:"isActive,omitempty"`
}

func (s *conditionSpec) condition() (Condition, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Type {
	case ConditionOverdue:
		return OverdueCondition{}, nil
	case ConditionNoResponse:
		return NoResponseCondition{}, nil
	case ConditionQualityThreshold:
		return QualityThresholdCondition{Threshold: s.Threshold}, nil
	case ConditionCustom:
		return CustomCondition{Name: s.Name, Params: s.Params}, nil
	}
	return nil, fmt.Errorf("unsupported condition type %q", s.Type)
}

func (s *actionSpec) action() (Action, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Type {
	case ActionNotify:
		return NotifyAction{Template: s.Template}, nil
	case ActionReassign:
		return ReassignAction{}, nil
	case ActionAutoApprove:
		return AutoApproveAction{}, nil
	case ActionEscalateManager:
		return EscalateManagerAction{Template: s.Template}, nil
	case ActionCustom:
		return CustomAction{Name: s.Name, Params: s.Params}, nil
	}
	return nil, fmt.Errorf("unsupported action type %q", s.Type)
}

func specOfCondition(c Condition) *conditionSpec {
	switch v := c.(type) {
	case nil:
		return nil
	case QualityThresholdCondition:
		return &conditionSpec{Type: v.Kind(), Threshold: v.Threshold}
	case CustomCondition:
		return &conditionSpec{Type: v.Kind(), Name: v.Name, Params: v.Params}
	default:
		return &conditionSpec{Type: c.Kind()}
	}
}

func specOfAction(a Action) *actionSpec {
	switch v := a.(type) {
	case nil:
		return nil
	case NotifyAction:
		return &actionSpec{Type: v.Kind(), Template: v.Template}
	case EscalateManagerAction:
		return &actionSpec{Type: v.Kind(), Template: v.Template}
	case CustomAction:
		return &actionSpec{Type: v.Kind(), Name: v.Name, Params: v.Params}
	default:
		return &actionSpec{Type: a.Kind()}
	}
}

func (r *EscalationRule) fromDocument(doc *ruleDocument) error {
	condition, err := doc.Condition.condition()
	if err != nil {
		return err
	}
	action, err := doc.Action.action()
	if err != nil {
		return err
	}
	*r = EscalationRule{
		ID:                    doc.ID,
		Condition:             condition,
		Action:                action,
		TriggerAfterHours:     doc.TriggerAfterHours,
		ReminderIntervalHours: doc.ReminderIntervalHours,
		MaxReminders:          doc.MaxReminders,
		EscalateTo:            doc.EscalateTo,
		IsActive:              doc.IsActive == nil || *doc.IsActive,
	}
	return nil
}

func (r *EscalationRule) document() *ruleDocument {
	active := r.IsActive
	return &ruleDocument{
		ID:                    r.ID,
		Condition:             specOfCondition(r.Condition),
		Action:                specOfAction(r.Action),
		TriggerAfterHours:     r.TriggerAfterHours,
		ReminderIntervalHours: r.ReminderIntervalHours,
		MaxReminders:          r.MaxReminders,
		EscalateTo:            r.EscalateTo,
		IsActive:              &active,
	}
}

// UnmarshalYAML decodes the tagged condition/action variants.
func (r *EscalationRule) UnmarshalYAML(node *yaml.Node) error {
	doc := &ruleDocument{}
	if err := node.Decode(doc); err != nil {
		return err
	}
	return r.fromDocument(doc)
}

// MarshalYAML encodes the rule with tagged condition/action variants.
func (r *EscalationRule) MarshalYAML() (interface{}, error) {
	return r.document(), nil
}

// UnmarshalJSON decodes the tagged condition/action variants.
func (r *EscalationRule) UnmarshalJSON(data []byte) error {
	doc := &ruleDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return err
	}
	return r.fromDocument(doc)
}

// MarshalJSON encodes the rule with tagged condition/action variants.
func (r *EscalationRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}
