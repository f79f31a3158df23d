// Package notify delivers reviewer and escalation notifications through an
// in-memory outbox.
package notify

import (
	"time"

	"github.com/viant/revflow/model"
)

// Well known templates
const (
	TemplateAssigned        = "review.assigned"
	TemplateReminder        = "review.reminder"
	TemplateEscalated       = "review.escalated"
	TemplateCompleted       = "review.completed"
	TemplateNoEligible      = "review.no_eligible_reviewer"
	TemplateRevisionRequest = "review.revision_requested"
)

// Message is a notification addressed to reviewers or escalation targets
type Message struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	Template   string            `json:"template"`
	Severity   model.Severity    `json:"severity"`
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
