package repositories

import (
	"context"

	"specflow/internal/domain/models"
)

// UsageRepository persists per-request LLM usage records.
type UsageRepository interface {
	Record(ctx context.Context, u *models.LLMUsage) error

	// ListByProposal returns usage records for a proposal, newest first.
	ListByProposal(ctx context.Context, proposalID string) ([]models.LLMUsage, error)
}
