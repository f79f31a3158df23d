package model

import (
	"fmt"
	"sort"
)

// DefaultPassingScore applies to stages that do not declare their own gate.
const DefaultPassingScore = 70.0

// WorkflowConfig represents a named, versioned review workflow definition
type WorkflowConfig struct {
	// ID is the unique identifier sessions refer to
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable workflow name
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Version increases every time administrators publish a new revision
	Version int `json:"version" yaml:"version"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// DocumentTypes lists the document types the workflow applies to
	DocumentTypes []string `json:"documentTypes" yaml:"documentTypes"`

	// Stages are ordered checkpoints, numbered from 1
	Stages []*Stage `json:"stages" yaml:"stages"`

	// RequiredRoles lists every role tag the workflow needs
	RequiredRoles []string `json:"requiredRoles" yaml:"requiredRoles"`

	EscalationRules []*EscalationRule `json:"escalationRules,omitempty" yaml:"escalationRules,omitempty"`

	MinimumReviewers  int     `json:"minimumReviewers" yaml:"minimumReviewers"`
	RequiredApprovals int     `json:"requiredApprovals" yaml:"requiredApprovals"`
	QualityThreshold  float64 `json:"qualityThreshold" yaml:"qualityThreshold"`

	Automation Automation `json:"automation" yaml:"automation"`

	IsActive bool `json:"isActive" yaml:"isActive"`
}

// Automation holds workflow automation switches
type Automation struct {
	AutoAssignment   bool `json:"autoAssignment" yaml:"autoAssignment"`
	AutoEscalation   bool `json:"autoEscalation" yaml:"autoEscalation"`
	AutoNotification bool `json:"autoNotification" yaml:"autoNotification"`
}

// Stage represents one checkpoint of a workflow
type Stage struct {
	Number            int      `json:"stageNumber" yaml:"stageNumber"`
	Name              string   `json:"name,omitempty" yaml:"name,omitempty"`
	RequiredRole      string   `json:"requiredRole" yaml:"requiredRole"`
	RequiredExpertise []string `json:"requiredExpertise,omitempty" yaml:"requiredExpertise,omitempty"`
	IsParallel        bool     `json:"isParallel,omitempty" yaml:"isParallel,omitempty"`
	IsOptional        bool     `json:"isOptional,omitempty" yaml:"isOptional,omitempty"`
	CanSkip           bool     `json:"canSkip,omitempty" yaml:"canSkip,omitempty"`
	EstimatedHours    float64  `json:"estimatedHours,omitempty" yaml:"estimatedHours,omitempty"`
	// MaxDays is the stage SLA
	MaxDays      int     `json:"maxDays,omitempty" yaml:"maxDays,omitempty"`
	PassingScore float64 `json:"passingScore,omitempty" yaml:"passingScore,omitempty"`
}

// Gate returns the passing score, falling back to DefaultPassingScore.
func (s *Stage) Gate() float64 {
	if s.PassingScore == 0 {
		return DefaultPassingScore
	}
	return s.PassingScore
}

// Skippable reports whether the stage may be bypassed when nobody can take it.
func (s *Stage) Skippable() bool {
	return s.IsOptional || s.CanSkip
}

// Validate performs a structural validation of the workflow. The returned
// slice is empty when the definition is sound; otherwise it lists every
// violation found.
func (w *WorkflowConfig) Validate() []error {
	var issues []error
	if w.ID == "" {
		issues = append(issues, fmt.Errorf("id is empty"))
	}
	if len(w.DocumentTypes) == 0 {
		issues = append(issues, fmt.Errorf("at least one document type is required"))
	}
	if len(w.RequiredRoles) == 0 {
		issues = append(issues, fmt.Errorf("at least one required role is required"))
	}
	if w.RequiredApprovals > w.MinimumReviewers {
		issues = append(issues, fmt.Errorf("requiredApprovals (%d) exceeds minimumReviewers (%d)", w.RequiredApprovals, w.MinimumReviewers))
	}
	if w.MinimumReviewers < 0 || w.RequiredApprovals < 0 {
		issues = append(issues, fmt.Errorf("reviewer counts must not be negative"))
	}
	if !validScore(w.QualityThreshold) {
		issues = append(issues, fmt.Errorf("qualityThreshold %v out of range [0,100]", w.QualityThreshold))
	}
	issues = append(issues, w.validateStages()...)

	for i, rule := range w.EscalationRules {
		if rule == nil {
			issues = append(issues, fmt.Errorf("escalation rule #%d is nil", i+1))
			continue
		}
		for _, err := range rule.Validate() {
			issues = append(issues, fmt.Errorf("escalation rule %s: %w", rule.Key(i), err))
		}
	}
	return issues
}

func (w *WorkflowConfig) validateStages() []error {
	var issues []error
	if len(w.Stages) == 0 {
		return append(issues, fmt.Errorf("at least one stage is required"))
	}
	numbers := make([]int, 0, len(w.Stages))
	seen := map[int]bool{}
	for i, stage := range w.Stages {
		if stage == nil {
			issues = append(issues, fmt.Errorf("stage #%d is nil", i+1))
			continue
		}
		if seen[stage.Number] {
			issues = append(issues, fmt.Errorf("duplicate stage number %d", stage.Number))
		}
		seen[stage.Number] = true
		numbers = append(numbers, stage.Number)
		if stage.RequiredRole == "" {
			issues = append(issues, fmt.Errorf("stage %d has no required role", stage.Number))
		}
		if !validScore(stage.PassingScore) {
			issues = append(issues, fmt.Errorf("stage %d passingScore %v out of range [0,100]", stage.Number, stage.PassingScore))
		}
		if stage.MaxDays < 0 || stage.EstimatedHours < 0 {
			issues = append(issues, fmt.Errorf("stage %d has negative duration", stage.Number))
		}
	}
	sort.Ints(numbers)
	for i, number := range numbers {
		if number != i+1 {
			issues = append(issues, fmt.Errorf("stage numbers must be contiguous from 1: expected %d, found %d", i+1, number))
			break
		}
	}
	return issues
}

// SupportsDocumentType reports whether the workflow declares documentType.
func (w *WorkflowConfig) SupportsDocumentType(documentType string) bool {
	for _, candidate := range w.DocumentTypes {
		if candidate == documentType {
			return true
		}
	}
	return false
}

// ApplicableStages returns the stages ordered by number, or nil when the
// workflow does not declare documentType.
func (w *WorkflowConfig) ApplicableStages(documentType string) []*Stage {
	if !w.SupportsDocumentType(documentType) {
		return nil
	}
	return w.sortedStages()
}

func (w *WorkflowConfig) sortedStages() []*Stage {
	result := make([]*Stage, 0, len(w.Stages))
	for _, stage := range w.Stages {
		if stage != nil {
			result = append(result, stage)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result
}

// Stage returns the stage with the given number or nil.
func (w *WorkflowConfig) Stage(number int) *Stage {
	for _, stage := range w.Stages {
		if stage != nil && stage.Number == number {
			return stage
		}
	}
	return nil
}

// NextStage returns the first stage numbered above current, or nil past the last stage.
func (w *WorkflowConfig) NextStage(current int) *Stage {
	for _, stage := range w.sortedStages() {
		if stage.Number > current {
			return stage
		}
	}
	return nil
}

// FirstStage returns the lowest numbered stage.
func (w *WorkflowConfig) FirstStage() *Stage {
	return w.NextStage(0)
}

// StageGroup returns the stages that are active together with the stage
// numbered first: a run of consecutive parallel stages, or the single stage.
func (w *WorkflowConfig) StageGroup(first int) []*Stage {
	stage := w.Stage(first)
	if stage == nil {
		return nil
	}
	group := []*Stage{stage}
	if !stage.IsParallel {
		return group
	}
	for next := w.NextStage(stage.Number); next != nil && next.IsParallel; next = w.NextStage(next.Number) {
		group = append(group, next)
	}
	return group
}

// ActiveRules returns the active escalation rules in definition order.
func (w *WorkflowConfig) ActiveRules() []*EscalationRule {
	var result []*EscalationRule
	for _, rule := range w.EscalationRules {
		if rule != nil && rule.IsActive {
			result = append(result, rule)
		}
	}
	return result
}

// Normalize assigns rule identifiers that are missing.
func (w *WorkflowConfig) Normalize() {
	for i, rule := range w.EscalationRules {
		if rule != nil && rule.ID == "" {
			rule.ID = rule.Key(i)
		}
	}
}
