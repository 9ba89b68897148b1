package models

import (
	"time"
)

// ContentEntry is the current content of one file within a proposal.
// Exactly one entry exists per (proposal_id, file_path); Version equals the
// number of ContentVersion rows for that key.
type ContentEntry struct {
	ID         string    `json:"id" db:"id"`
	ProposalID string    `json:"proposal_id" db:"proposal_id"`
	FilePath   string    `json:"file_path" db:"file_path"` // e.g. "proposal.md", "specs/auth/spec.md"
	Content    string    `json:"content" db:"content"`
	Version    int64     `json:"version" db:"version"`
	UpdatedBy  string    `json:"updated_by" db:"updated_by"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ContentVersion is one immutable row of a file's append-only history.
// Rows are never updated or deleted; a rollback appends a new version whose
// content duplicates an older one.
type ContentVersion struct {
	ID           string    `json:"id" db:"id"`
	ProposalID   string    `json:"proposal_id" db:"proposal_id"`
	FilePath     string    `json:"file_path" db:"file_path"`
	Version      int64     `json:"version" db:"version"`
	Content      string    `json:"content" db:"content"`
	AuthorID     string    `json:"author_id" db:"author_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ChangeReason *string   `json:"change_reason,omitempty" db:"change_reason"`
}

// VersionMeta is version-history metadata without the content payload, for
// listing histories cheaply.
type VersionMeta struct {
	ID           string    `json:"id" db:"id"`
	FilePath     string    `json:"file_path" db:"file_path"`
	Version      int64     `json:"version" db:"version"`
	AuthorID     string    `json:"author_id" db:"author_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ChangeReason *string   `json:"change_reason,omitempty" db:"change_reason"`
}

// Snapshot is a consistent point-in-time view of all content entries for a
// proposal, keyed by file path.
type Snapshot map[string]string
