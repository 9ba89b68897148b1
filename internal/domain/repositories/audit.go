package repositories

import (
	"context"

	"specflow/internal/domain/models"
)

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Offset       int
	Limit        int
}

// AuditRepository is the append-only audit sink. The engine only appends;
// listing exists for the admin endpoint.
type AuditRepository interface {
	Append(ctx context.Context, e *models.AuditEvent) error
	List(ctx context.Context, filter *AuditFilter) ([]models.AuditEvent, error)
}
