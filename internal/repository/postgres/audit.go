package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// PostgresAuditRepository implements the AuditRepository interface
type PostgresAuditRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(config *RepositoryConfig) repositories.AuditRepository {
	return &PostgresAuditRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Append inserts one audit event
func (r *PostgresAuditRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, timestamp, actor_id, action, resource_type, resource_id, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.tables.AuditEvents)

	exec := GetExecutor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		e.ID,
		e.Timestamp,
		e.ActorID,
		e.Action,
		e.ResourceType,
		e.ResourceID,
		e.OldValue,
		e.NewValue,
	)

	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	return nil
}

// List returns audit events newest first
func (r *PostgresAuditRepository) List(ctx context.Context, filter *repositories.AuditFilter) ([]models.AuditEvent, error) {
	query := fmt.Sprintf(`
		SELECT id, timestamp, actor_id, action, resource_type, resource_id, old_value, new_value
		FROM %s
		WHERE 1=1
	`, r.tables.AuditEvents)
	var args []interface{}

	if filter != nil {
		if filter.ActorID != "" {
			args = append(args, filter.ActorID)
			query += fmt.Sprintf(" AND actor_id = $%d", len(args))
		}
		if filter.Action != "" {
			args = append(args, filter.Action)
			query += fmt.Sprintf(" AND action = $%d", len(args))
		}
		if filter.ResourceType != "" {
			args = append(args, filter.ResourceType)
			query += fmt.Sprintf(" AND resource_type = $%d", len(args))
		}
		if filter.ResourceID != "" {
			args = append(args, filter.ResourceID)
			query += fmt.Sprintf(" AND resource_id = $%d", len(args))
		}
	}

	query += " ORDER BY timestamp DESC"

	limit := 100
	if filter != nil && filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter != nil && filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.ActorID,
			&e.Action,
			&e.ResourceType,
			&e.ResourceID,
			&e.OldValue,
			&e.NewValue,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
