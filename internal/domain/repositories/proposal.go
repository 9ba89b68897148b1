package repositories

import (
	"context"

	"specflow/internal/domain/models"
)

// ProposalFilter narrows proposal listings.
type ProposalFilter struct {
	Status *models.ProposalStatus
	Search string
	Offset int
	Limit  int
}

// ProposalRepository persists change proposals.
type ProposalRepository interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	GetByName(ctx context.Context, projectID, name string) (*models.Proposal, error)
	ListByProject(ctx context.Context, projectID string, filter *ProposalFilter) ([]models.Proposal, error)

	// UpdateStatus performs the optimistic-lock status transition: the row is
	// updated only when its transition_version still equals expectedVersion,
	// and transition_version is incremented in the same statement. Returns
	// domain.ErrConcurrentModification if the compare-and-swap loses.
	// materializedPath is written as given (nil clears it).
	UpdateStatus(ctx context.Context, id string, expectedVersion int64, status models.ProposalStatus, materializedPath *string) (*models.Proposal, error)

	// ClaimTransition marks the proposal as having a transition in flight.
	// The claim is taken only when transition_version still equals
	// expectedVersion and no other claim is held; otherwise
	// domain.ErrConcurrentModification. The version is not bumped, so the
	// holder's eventual UpdateStatus still races nothing.
	ClaimTransition(ctx context.Context, id string, expectedVersion int64) (*models.Proposal, error)

	// ReleaseTransition drops a claim without committing a transition.
	// Committing via UpdateStatus releases the claim in the same statement.
	ReleaseTransition(ctx context.Context, id string) error

	Touch(ctx context.Context, id string) error

	// Delete hard-deletes a proposal row; only DRAFT proposals may be
	// hard-deleted (enforced by the service). Retire soft-retires.
	Delete(ctx context.Context, id string) error
	Retire(ctx context.Context, id string) error
}
