package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// AuditRecorder appends events to the audit trail. When called inside a
// transaction the append commits or rolls back with the operation it
// describes.
type AuditRecorder struct {
	auditRepo repositories.AuditRepository
	logger    *slog.Logger
}

func NewAuditRecorder(auditRepo repositories.AuditRepository, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{auditRepo: auditRepo, logger: logger}
}

// Record appends one event. oldValue and newValue are serialized to JSON;
// nil values are omitted.
func (r *AuditRecorder) Record(ctx context.Context, actorID, action, resourceType, resourceID string, oldValue, newValue any) error {
	event := &models.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}

	var err error
	if event.OldValue, err = marshalValue(oldValue); err != nil {
		return fmt.Errorf("marshaling audit old value: %w", err)
	}
	if event.NewValue, err = marshalValue(newValue); err != nil {
		return fmt.Errorf("marshaling audit new value: %w", err)
	}

	if err := r.auditRepo.Append(ctx, event); err != nil {
		return fmt.Errorf("appending audit event %s: %w", action, err)
	}

	r.logger.Debug("audit event recorded",
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"actor_id", actorID,
	)
	return nil
}

// List returns audit events for the admin endpoint.
func (r *AuditRecorder) List(ctx context.Context, filter *repositories.AuditFilter) ([]models.AuditEvent, error) {
	return r.auditRepo.List(ctx, filter)
}

func marshalValue(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
