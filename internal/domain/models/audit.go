package models

import (
	"time"
)

// Audit actions emitted by the lifecycle engine.
const (
	ActionProposalCreated   = "PROPOSAL_CREATED"
	ActionProposalDeleted   = "PROPOSAL_DELETED"
	ActionStatusChanged     = "STATUS_CHANGED"
	ActionTransitionFailed  = "TRANSITION_FAILED"
	ActionContentModified   = "CONTENT_MODIFIED"
	ActionContentRolledBack = "CONTENT_ROLLED_BACK"
	ActionCommentCreated    = "COMMENT_CREATED"
	ActionCommentResolved   = "COMMENT_RESOLVED"
)

// AuditEvent is one append-only record in the audit trail. The lifecycle
// engine only emits events; it never reads them back except through the
// admin listing endpoint.
type AuditEvent struct {
	ID           string    `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	ActorID      string    `json:"actor_id" db:"actor_id"`
	Action       string    `json:"action" db:"action"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	OldValue     *string   `json:"old_value,omitempty" db:"old_value"` // JSON
	NewValue     *string   `json:"new_value,omitempty" db:"new_value"` // JSON
}
