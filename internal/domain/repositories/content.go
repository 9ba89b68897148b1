package repositories

import (
	"context"

	"specflow/internal/domain/models"
)

// ContentRepository persists current content entries and their append-only
// version history. Writes participate in the context-carried transaction so
// the version append and the entry upsert commit atomically.
type ContentRepository interface {
	GetEntry(ctx context.Context, proposalID, filePath string) (*models.ContentEntry, error)
	ListEntries(ctx context.Context, proposalID string) ([]models.ContentEntry, error)

	// UpsertEntry writes the current content for (proposalID, filePath),
	// creating the entry at version 1 or replacing it at the given version.
	UpsertEntry(ctx context.Context, entry *models.ContentEntry) error

	// AppendVersion inserts one immutable history row.
	AppendVersion(ctx context.Context, v *models.ContentVersion) error

	// ListVersions returns history metadata ordered oldest to newest.
	ListVersions(ctx context.Context, proposalID, filePath string) ([]models.VersionMeta, error)
	GetVersion(ctx context.Context, proposalID, filePath string, version int64) (*models.ContentVersion, error)

	// Snapshot returns a single consistent view of all current entries.
	Snapshot(ctx context.Context, proposalID string) (models.Snapshot, error)

	// DeleteAllByProposal removes entries and history; used only when a DRAFT
	// proposal is deleted.
	DeleteAllByProposal(ctx context.Context, proposalID string) error
}
