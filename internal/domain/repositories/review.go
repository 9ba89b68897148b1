package repositories

import (
	"context"

	"specflow/internal/domain/models"
)

// CommentFilter narrows comment listings.
type CommentFilter struct {
	Status   *models.CommentStatus
	FilePath string
	Offset   int
	Limit    int
}

// ReviewRepository persists review comments.
type ReviewRepository interface {
	Create(ctx context.Context, c *models.ReviewComment) error
	GetByID(ctx context.Context, id, proposalID string) (*models.ReviewComment, error)
	ListByProposal(ctx context.Context, proposalID string, filter *CommentFilter) ([]models.ReviewComment, error)
	Update(ctx context.Context, c *models.ReviewComment) error
	Delete(ctx context.Context, id, proposalID string) error
	HasReplies(ctx context.Context, id string) (bool, error)

	// ListOpenIDs returns the ids of comments still blocking the READY gate.
	ListOpenIDs(ctx context.Context, proposalID string) ([]string, error)

	// ListSelectedForIteration returns accepted comments marked for the next
	// generation iteration, optionally narrowed to one file.
	ListSelectedForIteration(ctx context.Context, proposalID, filePath string) ([]models.ReviewComment, error)

	// ClearSelection unmarks comments consumed by an iteration.
	ClearSelection(ctx context.Context, ids []string) error

	CountByStatus(ctx context.Context, proposalID string) (map[models.CommentStatus]int, error)
	CountSelected(ctx context.Context, proposalID string) (int, error)
	DeleteAllByProposal(ctx context.Context, proposalID string) error
}
