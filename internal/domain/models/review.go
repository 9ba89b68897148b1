package models

import (
	"time"
)

// CommentStatus is the resolution state of a review comment.
type CommentStatus string

const (
	CommentOpen     CommentStatus = "open"
	CommentAccepted CommentStatus = "accepted"
	CommentRejected CommentStatus = "rejected"
	CommentDeferred CommentStatus = "deferred"
)

// Valid reports whether s is a known comment status.
func (s CommentStatus) Valid() bool {
	switch s {
	case CommentOpen, CommentAccepted, CommentRejected, CommentDeferred:
		return true
	}
	return false
}

// Resolved reports whether s counts as resolved for the READY gate.
func (s CommentStatus) Resolved() bool {
	return s == CommentAccepted || s == CommentRejected || s == CommentDeferred
}

// RequiresResponse reports whether resolving to s needs a non-empty author
// response. Accepting may omit the reason; rejecting or deferring may not.
func (s CommentStatus) RequiresResponse() bool {
	return s == CommentRejected || s == CommentDeferred
}

// ReviewComment is reviewer feedback attached to a proposal file.
// SelectedForIteration may only be true while Status is accepted; it is
// cleared once a content-generation iteration consumes the comment.
type ReviewComment struct {
	ID                   string        `json:"id" db:"id"`
	ProposalID           string        `json:"proposal_id" db:"proposal_id"`
	ReviewerID           string        `json:"reviewer_id" db:"reviewer_id"`
	FilePath             string        `json:"file_path" db:"file_path"`
	LineStart            *int          `json:"line_start,omitempty" db:"line_start"`
	LineEnd              *int          `json:"line_end,omitempty" db:"line_end"`
	Content              string        `json:"content" db:"content"`
	Status               CommentStatus `json:"status" db:"status"`
	AuthorResponse       *string       `json:"author_response,omitempty" db:"author_response"`
	SelectedForIteration bool          `json:"selected_for_iteration" db:"selected_for_iteration"`
	ParentID             *string       `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt           *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy           *string       `json:"resolved_by,omitempty" db:"resolved_by"`
}

// CommentStats summarizes a proposal's comments by status.
type CommentStats struct {
	ProposalID           string         `json:"proposal_id"`
	Total                int            `json:"total"`
	ByStatus             map[string]int `json:"by_status"`
	SelectedForIteration int            `json:"selected_for_iteration"`
	AllResolved          bool           `json:"all_resolved"`
}
