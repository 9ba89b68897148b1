package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// PostgresUsageRepository implements the UsageRepository interface
type PostgresUsageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewUsageRepository creates a new LLM usage repository
func NewUsageRepository(config *RepositoryConfig) repositories.UsageRepository {
	return &PostgresUsageRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const usageColumns = `id, actor_id, proposal_id, provider, model, input_tokens, output_tokens, total_tokens, operation, success, error_message, duration_ms, created_at`

// Record inserts one usage record
func (r *PostgresUsageRepository) Record(ctx context.Context, u *models.LLMUsage) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.tables.LLMUsage, usageColumns)

	exec := GetExecutor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		u.ID,
		u.ActorID,
		u.ProposalID,
		u.Provider,
		u.Model,
		u.InputTokens,
		u.OutputTokens,
		u.TotalTokens,
		u.Operation,
		u.Success,
		u.ErrorMessage,
		u.DurationMS,
		u.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("record llm usage: %w", err)
	}

	return nil
}

// ListByProposal returns usage records for a proposal, newest first
func (r *PostgresUsageRepository) ListByProposal(ctx context.Context, proposalID string) ([]models.LLMUsage, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE proposal_id = $1 ORDER BY created_at DESC
	`, usageColumns, r.tables.LLMUsage)

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list llm usage: %w", err)
	}
	defer rows.Close()

	var records []models.LLMUsage
	for rows.Next() {
		var u models.LLMUsage
		err := rows.Scan(
			&u.ID,
			&u.ActorID,
			&u.ProposalID,
			&u.Provider,
			&u.Model,
			&u.InputTokens,
			&u.OutputTokens,
			&u.TotalTokens,
			&u.Operation,
			&u.Success,
			&u.ErrorMessage,
			&u.DurationMS,
			&u.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan llm usage: %w", err)
		}
		records = append(records, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate llm usage: %w", err)
	}

	return records, nil
}
