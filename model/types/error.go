package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a review session does not exist.
	ErrSessionNotFound = errors.New("review session not found")
	// ErrWorkflowNotFound is returned when no active workflow matches the requested id.
	ErrWorkflowNotFound = errors.New("workflow config not found")
	// ErrDocumentTypeNotSupported is returned when a workflow declares no stages for a document type.
	ErrDocumentTypeNotSupported = errors.New("document type not supported by workflow")
	// ErrRoundNotFound is returned when a round number is unknown to a session.
	ErrRoundNotFound = errors.New("review round not found")
	// ErrRoundNotOpen is returned when a round has already been closed.
	ErrRoundNotOpen = errors.New("review round is not open")
	// ErrFeedbackNotFound is returned when a feedback id is unknown to a session.
	ErrFeedbackNotFound = errors.New("review feedback not found")
	// ErrReviewerNotFound is returned when a reviewer id is unknown to the directory.
	ErrReviewerNotFound = errors.New("reviewer not found")
	// ErrReviewerNotAssigned is returned when a reviewer has no open assignment on an active stage.
	ErrReviewerNotAssigned = errors.New("reviewer not assigned to an active stage")
	// ErrActorRequired is returned when a mutating call does not identify the acting user.
	ErrActorRequired = errors.New("actor id required")
)

// ConfigValidationError lists every violation found in a workflow definition.
type ConfigValidationError struct {
	Config string
	Errors []error
}

func (e *ConfigValidationError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("workflow config %q is invalid: %s", e.Config, strings.Join(messages, "; "))
}

func (e *ConfigValidationError) Unwrap() []error { return e.Errors }

// NoEligibleReviewerError reports a stage nobody can currently take.
type NoEligibleReviewerError struct {
	SessionID string
	Stage     int
	Role      string
}

func (e *NoEligibleReviewerError) Error() string {
	return fmt.Sprintf("no eligible reviewer with role %q for stage %d of session %s", e.Role, e.Stage, e.SessionID)
}

// InvalidStateTransitionError reports an operation the session's state does not allow.
type InvalidStateTransitionError struct {
	SessionID string
	From      string
	Operation string
	Reason    string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("session %s: %s not allowed in status %s", e.SessionID, e.Operation, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// InvalidScoreError reports a NaN or out of range score.
type InvalidScoreError struct {
	Field string
	Value float64
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("invalid %s score %v: expected a number in [0,100]", e.Field, e.Value)
}

// ConflictError reports an optimistic concurrency violation on save.
type ConflictError struct {
	SessionID string
	Expected  int64
	Actual    int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s was modified concurrently: expected version %d, stored %d", e.SessionID, e.Expected, e.Actual)
}

// NewInvalidTransition is a shorthand for InvalidStateTransitionError.
func NewInvalidTransition(sessionID, from, operation, reason string) error {
	return &InvalidStateTransitionError{SessionID: sessionID, From: from, Operation: operation, Reason: reason}
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsNoEligibleReviewer reports whether err is (or wraps) a NoEligibleReviewerError.
func IsNoEligibleReviewer(err error) bool {
	var target *NoEligibleReviewerError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidStateTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidStateTransitionError
	return errors.As(err, &target)
}

// IsInvalidScore reports whether err is (or wraps) an InvalidScoreError.
func IsInvalidScore(err error) bool {
	var target *InvalidScoreError
	return errors.As(err, &target)
}
