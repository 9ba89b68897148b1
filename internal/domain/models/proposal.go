package models

import (
	"time"
)

// ProposalStatus is the lifecycle state of a change proposal.
type ProposalStatus string

const (
	StatusDraft  ProposalStatus = "draft"
	StatusReview ProposalStatus = "review"
	StatusReady  ProposalStatus = "ready"
	StatusMerged ProposalStatus = "merged"
)

// Valid reports whether s is a known lifecycle state.
func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusReady, StatusMerged:
		return true
	}
	return false
}

// Editable reports whether proposal content may be modified in this state.
func (s ProposalStatus) Editable() bool {
	return s == StatusDraft || s == StatusReview
}

// PrimaryFile is the content file a proposal must carry before it can be
// submitted for review.
const PrimaryFile = "proposal.md"

// Proposal is a compliance change proposal moving through
// DRAFT -> REVIEW -> READY -> MERGED.
//
// TransitionVersion is an optimistic-lock counter incremented on every
// status change; conflicting transitions lose the compare-and-swap and
// surface ErrConcurrentModification.
type Proposal struct {
	ID        string         `json:"id" db:"id"`
	ProjectID string         `json:"project_id" db:"project_id"`
	AuthorID  string         `json:"author_id" db:"author_id"`
	Name      string         `json:"name" db:"name"` // slug, unique per project
	Status    ProposalStatus `json:"status" db:"status"`
	// MaterializedPath is set only while READY/MERGED; nil otherwise.
	MaterializedPath  *string `json:"materialized_path,omitempty" db:"materialized_path"`
	TransitionVersion int64   `json:"transition_version" db:"transition_version"`
	// TransitionClaimed is set while a transition with side effects
	// (materialization, validation, archival) is in flight. Other
	// transitions see ErrConcurrentModification until it clears.
	TransitionClaimed bool       `json:"-" db:"transition_claimed"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	RetiredAt         *time.Time `json:"retired_at,omitempty" db:"retired_at"`
}
