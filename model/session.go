package model

import (
	"math"
	"time"
)

// SessionStatus represents the current state of a review session
type SessionStatus string

const (
	StatusPendingAssignment SessionStatus = "pending_assignment"
	StatusAssigned          SessionStatus = "assigned"
	StatusInReview          SessionStatus = "in_review"
	StatusFeedbackProvided  SessionStatus = "feedback_provided"
	StatusApproved          SessionStatus = "approved"
	StatusRejected          SessionStatus = "rejected"
	StatusRevisionRequested SessionStatus = "revision_requested"
	StatusCompleted         SessionStatus = "completed"
	StatusCancelled         SessionStatus = "cancelled"
)

// IsTerminal reports whether no further rounds may happen.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ActiveStatuses lists every non-terminal status.
func ActiveStatuses() []string {
	return []string{
		string(StatusPendingAssignment), string(StatusAssigned), string(StatusInReview),
		string(StatusFeedbackProvided), string(StatusRevisionRequested),
	}
}

// Priority of a review session
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AssignmentStatus represents the lifecycle of a reviewer assignment
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentDeclined  AssignmentStatus = "declined"
	AssignmentCompleted AssignmentStatus = "completed"
)

// IsOpen reports whether the assignment still counts toward workload.
func (s AssignmentStatus) IsOpen() bool {
	return s == AssignmentAssigned || s == AssignmentAccepted
}

// Decision recorded when a round closes
type Decision string

const (
	DecisionApprove         Decision = "approve"
	DecisionReject          Decision = "reject"
	DecisionRequestRevision Decision = "request_revision"
)

// IsValid reports whether d is a known decision.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestRevision:
		return true
	}
	return false
}

// FeedbackType categorises a feedback item
type FeedbackType string

const (
	FeedbackContentAccuracy      FeedbackType = "content_accuracy"
	FeedbackTechnicalCompliance  FeedbackType = "technical_compliance"
	FeedbackFormatting           FeedbackType = "formatting"
	FeedbackCompleteness         FeedbackType = "completeness"
	FeedbackClarity              FeedbackType = "clarity"
	FeedbackStakeholderAlignment FeedbackType = "stakeholder_alignment"
	FeedbackRegulatoryCompliance FeedbackType = "regulatory_compliance"
)

// Severity of a feedback item or notification
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// FeedbackStatus represents the lifecycle of a feedback item
type FeedbackStatus string

const (
	FeedbackOpen      FeedbackStatus = "open"
	FeedbackAddressed FeedbackStatus = "addressed"
	FeedbackDismissed FeedbackStatus = "dismissed"
	FeedbackDeferred  FeedbackStatus = "deferred"
)

// ReviewSession is the per-document review aggregate
type ReviewSession struct {
	ID              string        `json:"id"`
	DocumentID      string        `json:"documentId"`
	DocumentType    string        `json:"documentType"`
	ContentRef      string        `json:"contentRef,omitempty"`
	WorkflowID      string        `json:"workflowId"`
	WorkflowVersion int           `json:"workflowVersion"`
	Status          SessionStatus `json:"status"`
	Priority        Priority      `json:"priority"`
	DueDate         *time.Time    `json:"dueDate,omitempty"`

	// CurrentStage is the first stage number of the active stage group
	CurrentStage   int       `json:"currentStage"`
	StageEnteredAt time.Time `json:"stageEnteredAt"`
	SkippedStages  []int     `json:"skippedStages,omitempty"`

	Assignments  []*ReviewerAssignment `json:"assignments"`
	Rounds       []*ReviewRound        `json:"rounds"`
	CurrentRound int                   `json:"currentRound"`

	// Escalations keeps reminder bookkeeping keyed by rule id
	Escalations map[string]*EscalationState `json:"escalations,omitempty"`

	SubmittedAt  time.Time  `json:"submittedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
	CreatedBy    string     `json:"createdBy"`
	UpdatedBy    string     `json:"updatedBy"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// Version is the optimistic concurrency sequence maintained by stores
	Version int64 `json:"version"`
}

// ReviewerAssignment binds a reviewer to a stage
type ReviewerAssignment struct {
	ID             string           `json:"id"`
	ReviewerID     string           `json:"reviewerId"`
	Role           string           `json:"role"`
	Stage          int              `json:"stage"`
	Status         AssignmentStatus `json:"status"`
	AssignedAt     time.Time        `json:"assignedAt"`
	NotifiedAt     *time.Time       `json:"notifiedAt,omitempty"`
	AcceptedAt     *time.Time       `json:"acceptedAt,omitempty"`
	DeclinedAt     *time.Time       `json:"declinedAt,omitempty"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	EstimatedHours float64          `json:"estimatedHours"`
}

// ReviewRound is one reviewer's pass through a stage
type ReviewRound struct {
	Number          int               `json:"roundNumber"`
	ReviewerID      string            `json:"reviewerId"`
	Stage           int               `json:"stage"`
	StartedAt       time.Time         `json:"startedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	Feedback        []*ReviewFeedback `json:"feedback,omitempty"`
	Decision        Decision          `json:"decision,omitempty"`
	QualityScore    float64           `json:"qualityScore"`
	ComplianceScore float64           `json:"complianceScore"`
	Comments        string            `json:"comments,omitempty"`
	// Passed records the quality gate outcome at close time
	Passed bool `json:"passed"`
	// SystemGenerated marks rounds closed by escalation, never counted toward reviewer metrics
	SystemGenerated bool `json:"systemGenerated,omitempty"`
}

// IsOpen reports whether the round awaits a decision.
func (r *ReviewRound) IsOpen() bool {
	return r.CompletedAt == nil
}

// IsDecided reports whether the round was closed with a decision (not by cancellation).
func (r *ReviewRound) IsDecided() bool {
	return r.CompletedAt != nil && r.Decision != ""
}

// ReviewFeedback is a single reviewer remark
type ReviewFeedback struct {
	ID         string         `json:"id"`
	Type       FeedbackType   `json:"type"`
	Severity   Severity       `json:"severity"`
	Section    string         `json:"section,omitempty"`
	Line       int            `json:"line,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Status     FeedbackStatus `json:"status"`
	CreatedBy  string         `json:"createdBy"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  *time.Time     `json:"updatedAt,omitempty"`
}

// EscalationState is per-rule reminder bookkeeping for one stage
type EscalationState struct {
	RuleID      string     `json:"ruleId"`
	Stage       int        `json:"stage"`
	Reminders   int        `json:"reminders"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`
	Exhausted   bool       `json:"exhausted"`
}

// Transition is an audit event emitted for every status change
type Transition struct {
	SessionID   string        `json:"sessionId"`
	FromStatus  SessionStatus `json:"fromStatus"`
	ToStatus    SessionStatus `json:"toStatus"`
	Actor       string        `json:"actor"`
	Timestamp   time.Time     `json:"timestamp"`
	Reason      string        `json:"reason,omitempty"`
	Stage       int           `json:"stage"`
	RoundNumber int           `json:"roundNumber,omitempty"`
}

// Round returns the round with the given number or nil.
func (s *ReviewSession) Round(number int) *ReviewRound {
	for _, round := range s.Rounds {
		if round.Number == number {
			return round
		}
	}
	return nil
}

// OpenRound returns the open round on stage or nil.
func (s *ReviewSession) OpenRound(stage int) *ReviewRound {
	for _, round := range s.Rounds {
		if round.Stage == stage && round.IsOpen() {
			return round
		}
	}
	return nil
}

// OpenRounds returns every open round.
func (s *ReviewSession) OpenRounds() []*ReviewRound {
	var result []*ReviewRound
	for _, round := range s.Rounds {
		if round.IsOpen() {
			result = append(result, round)
		}
	}
	return result
}

// LatestRound returns the round numbered CurrentRound.
func (s *ReviewSession) LatestRound() *ReviewRound {
	return s.Round(s.CurrentRound)
}

// LatestDecidedRound returns the most recent round closed with a decision.
func (s *ReviewSession) LatestDecidedRound() *ReviewRound {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if s.Rounds[i].IsDecided() {
			return s.Rounds[i]
		}
	}
	return nil
}

// LatestDecidedRoundForStage returns the most recent decided round on stage.
func (s *ReviewSession) LatestDecidedRoundForStage(stage int) *ReviewRound {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if round := s.Rounds[i]; round.Stage == stage && round.IsDecided() {
			return round
		}
	}
	return nil
}

// OpenAssignments returns open assignments on stage.
func (s *ReviewSession) OpenAssignments(stage int) []*ReviewerAssignment {
	var result []*ReviewerAssignment
	for _, assignment := range s.Assignments {
		if assignment.Stage == stage && assignment.Status.IsOpen() {
			result = append(result, assignment)
		}
	}
	return result
}

// AssignmentFor returns the open assignment of reviewerID among stages, or nil.
func (s *ReviewSession) AssignmentFor(reviewerID string, stages ...int) *ReviewerAssignment {
	for _, assignment := range s.Assignments {
		if assignment.ReviewerID != reviewerID || !assignment.Status.IsOpen() {
			continue
		}
		for _, stage := range stages {
			if assignment.Stage == stage {
				return assignment
			}
		}
	}
	return nil
}

// IsSkipped reports whether stage was bypassed.
func (s *ReviewSession) IsSkipped(stage int) bool {
	for _, skipped := range s.SkippedStages {
		if skipped == stage {
			return true
		}
	}
	return false
}

// Feedback returns the feedback item with id and its round, or nils.
func (s *ReviewSession) Feedback(id string) (*ReviewFeedback, *ReviewRound) {
	for _, round := range s.Rounds {
		for _, item := range round.Feedback {
			if item.ID == id {
				return item, round
			}
		}
	}
	return nil, nil
}

// Clone returns a deep copy, so that mutations can be discarded on failure.
func (s *ReviewSession) Clone() *ReviewSession {
	if s == nil {
		return nil
	}
	ret := *s
	ret.DueDate = cloneTime(s.DueDate)
	ret.CompletedAt = cloneTime(s.CompletedAt)
	ret.SkippedStages = append([]int(nil), s.SkippedStages...)
	ret.Assignments = make([]*ReviewerAssignment, len(s.Assignments))
	for i, assignment := range s.Assignments {
		clone := *assignment
		clone.NotifiedAt = cloneTime(assignment.NotifiedAt)
		clone.AcceptedAt = cloneTime(assignment.AcceptedAt)
		clone.DeclinedAt = cloneTime(assignment.DeclinedAt)
		clone.CompletedAt = cloneTime(assignment.CompletedAt)
		ret.Assignments[i] = &clone
	}
	ret.Rounds = make([]*ReviewRound, len(s.Rounds))
	for i, round := range s.Rounds {
		clone := *round
		clone.CompletedAt = cloneTime(round.CompletedAt)
		clone.Feedback = make([]*ReviewFeedback, len(round.Feedback))
		for j, item := range round.Feedback {
			itemClone := *item
			itemClone.UpdatedAt = cloneTime(item.UpdatedAt)
			clone.Feedback[j] = &itemClone
		}
		ret.Rounds[i] = &clone
	}
	if s.Escalations != nil {
		ret.Escalations = make(map[string]*EscalationState, len(s.Escalations))
		for key, state := range s.Escalations {
			clone := *state
			clone.LastFiredAt = cloneTime(state.LastFiredAt)
			ret.Escalations[key] = &clone
		}
	}
	return &ret
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ret := *t
	return &ret
}

func validScore(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}
