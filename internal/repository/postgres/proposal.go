package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// PostgresProposalRepository implements the ProposalRepository interface
type PostgresProposalRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(config *RepositoryConfig) repositories.ProposalRepository {
	return &PostgresProposalRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const proposalColumns = `id, project_id, author_id, name, status, materialized_path, transition_version, transition_claimed, created_at, updated_at, retired_at`

func scanProposal(row interface {
	Scan(dest ...interface{}) error
}) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.AuthorID,
		&p.Name,
		&p.Status,
		&p.MaterializedPath,
		&p.TransitionVersion,
		&p.TransitionClaimed,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.RetiredAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create creates a new proposal
func (r *PostgresProposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, project_id, author_id, name, status, transition_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		p.ID,
		p.ProjectID,
		p.AuthorID,
		p.Name,
		p.Status,
		p.TransitionVersion,
		p.CreatedAt,
		p.UpdatedAt,
	)

	if err != nil {
		if isPgDuplicateError(err) {
			return fmt.Errorf("proposal '%s' already exists in this project: %w", p.Name, domain.ErrConflict)
		}
		if isPgForeignKeyError(err) {
			return fmt.Errorf("project %s: %w", p.ProjectID, domain.ErrNotFound)
		}
		return fmt.Errorf("create proposal: %w", err)
	}

	return nil
}

// GetByID retrieves a proposal by ID
func (r *PostgresProposalRepository) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE id = $1 AND retired_at IS NULL
	`, proposalColumns, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	p, err := scanProposal(exec.QueryRow(ctx, query, id))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("proposal %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}

	return p, nil
}

// GetByName retrieves a proposal by (project, name)
func (r *PostgresProposalRepository) GetByName(ctx context.Context, projectID, name string) (*models.Proposal, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE project_id = $1 AND name = $2 AND retired_at IS NULL
	`, proposalColumns, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	p, err := scanProposal(exec.QueryRow(ctx, query, projectID, name))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("proposal %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get proposal by name: %w", err)
	}

	return p, nil
}

// ListByProject lists proposals for a project with optional filters
func (r *PostgresProposalRepository) ListByProject(ctx context.Context, projectID string, filter *repositories.ProposalFilter) ([]models.Proposal, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE project_id = $1 AND retired_at IS NULL
	`, proposalColumns, r.tables.Proposals)
	args := []interface{}{projectID}

	if filter != nil {
		if filter.Status != nil {
			args = append(args, *filter.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
		}
	}

	query += " ORDER BY updated_at DESC"

	if filter != nil {
		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}

	return proposals, nil
}

// UpdateStatus performs the compare-and-swap status transition. The WHERE
// clause on transition_version is the optimistic lock: a concurrent
// transition that committed first leaves RowsAffected at zero.
func (r *PostgresProposalRepository) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status models.ProposalStatus, materializedPath *string) (*models.Proposal, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, materialized_path = $2, transition_version = transition_version + 1, transition_claimed = FALSE, updated_at = NOW()
		WHERE id = $3 AND transition_version = $4 AND retired_at IS NULL
		RETURNING %s
	`, r.tables.Proposals, proposalColumns)

	exec := GetExecutor(ctx, r.pool)
	p, err := scanProposal(exec.QueryRow(ctx, query, status, materializedPath, id, expectedVersion))
	if err != nil {
		if isPgNoRowsError(err) {
			// Either the row is gone or another transition won the race;
			// both surface as a lost optimistic lock.
			return nil, fmt.Errorf("proposal %s transition: %w", id, domain.ErrConcurrentModification)
		}
		return nil, fmt.Errorf("update proposal status: %w", err)
	}

	return p, nil
}

// ClaimTransition takes the transition claim. The claim blocks other
// side-effecting transitions without bumping transition_version, so the
// holder's commit still passes its own compare-and-swap.
func (r *PostgresProposalRepository) ClaimTransition(ctx context.Context, id string, expectedVersion int64) (*models.Proposal, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET transition_claimed = TRUE
		WHERE id = $1 AND transition_version = $2 AND transition_claimed = FALSE AND retired_at IS NULL
		RETURNING %s
	`, r.tables.Proposals, proposalColumns)

	exec := GetExecutor(ctx, r.pool)
	p, err := scanProposal(exec.QueryRow(ctx, query, id, expectedVersion))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("proposal %s transition claim: %w", id, domain.ErrConcurrentModification)
		}
		return nil, fmt.Errorf("claim transition: %w", err)
	}

	return p, nil
}

// ReleaseTransition drops the transition claim without committing
func (r *PostgresProposalRepository) ReleaseTransition(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET transition_claimed = FALSE WHERE id = $1
	`, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	if _, err := exec.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("release transition: %w", err)
	}

	return nil
}

// Touch bumps the proposal's updated_at timestamp
func (r *PostgresProposalRepository) Touch(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET updated_at = NOW() WHERE id = $1 AND retired_at IS NULL
	`, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	result, err := exec.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("touch proposal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("proposal %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// Delete hard-deletes a proposal row
func (r *PostgresProposalRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	result, err := exec.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("proposal %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// Retire soft-retires a proposal past DRAFT
func (r *PostgresProposalRepository) Retire(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET retired_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND retired_at IS NULL
	`, r.tables.Proposals)

	exec := GetExecutor(ctx, r.pool)
	result, err := exec.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("retire proposal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("proposal %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
