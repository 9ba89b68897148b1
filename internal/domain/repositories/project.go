package repositories

import (
	"context"

	"specflow/internal/domain/models"
)

// ProjectRepository persists projects.
type ProjectRepository interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	SoftDelete(ctx context.Context, id string) error
}
