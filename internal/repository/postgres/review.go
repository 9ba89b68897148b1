package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// PostgresReviewRepository implements the ReviewRepository interface
type PostgresReviewRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(config *RepositoryConfig) repositories.ReviewRepository {
	return &PostgresReviewRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const commentColumns = `id, proposal_id, reviewer_id, file_path, line_start, line_end, content, status, author_response, selected_for_iteration, parent_id, created_at, resolved_at, resolved_by`

func scanComment(row interface {
	Scan(dest ...interface{}) error
}) (*models.ReviewComment, error) {
	var c models.ReviewComment
	err := row.Scan(
		&c.ID,
		&c.ProposalID,
		&c.ReviewerID,
		&c.FilePath,
		&c.LineStart,
		&c.LineEnd,
		&c.Content,
		&c.Status,
		&c.AuthorResponse,
		&c.SelectedForIteration,
		&c.ParentID,
		&c.CreatedAt,
		&c.ResolvedAt,
		&c.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create creates a new review comment
func (r *PostgresReviewRepository) Create(ctx context.Context, c *models.ReviewComment) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, proposal_id, reviewer_id, file_path, line_start, line_end, content, status, selected_for_iteration, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		c.ID,
		c.ProposalID,
		c.ReviewerID,
		c.FilePath,
		c.LineStart,
		c.LineEnd,
		c.Content,
		c.Status,
		c.SelectedForIteration,
		c.ParentID,
		c.CreatedAt,
	)

	if err != nil {
		if isPgForeignKeyError(err) {
			return fmt.Errorf("proposal %s: %w", c.ProposalID, domain.ErrNotFound)
		}
		return fmt.Errorf("create comment: %w", err)
	}

	return nil
}

// GetByID retrieves a comment scoped to a proposal
func (r *PostgresReviewRepository) GetByID(ctx context.Context, id, proposalID string) (*models.ReviewComment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE id = $1 AND proposal_id = $2
	`, commentColumns, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	c, err := scanComment(exec.QueryRow(ctx, query, id, proposalID))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}

	return c, nil
}

// ListByProposal lists comments for a proposal, threads grouped first
func (r *PostgresReviewRepository) ListByProposal(ctx context.Context, proposalID string, filter *repositories.CommentFilter) ([]models.ReviewComment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE proposal_id = $1
	`, commentColumns, r.tables.ReviewComments)
	args := []interface{}{proposalID}

	if filter != nil {
		if filter.Status != nil {
			args = append(args, *filter.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filter.FilePath != "" {
			args = append(args, filter.FilePath)
			query += fmt.Sprintf(" AND file_path = $%d", len(args))
		}
	}

	query += " ORDER BY parent_id ASC NULLS FIRST, created_at ASC"

	if filter != nil {
		limit := filter.Limit
		if limit <= 0 {
			limit = 100
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
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []models.ReviewComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// Update updates an existing comment
func (r *PostgresReviewRepository) Update(ctx context.Context, c *models.ReviewComment) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, line_start = $2, line_end = $3, status = $4,
		    author_response = $5, selected_for_iteration = $6,
		    resolved_at = $7, resolved_by = $8
		WHERE id = $9 AND proposal_id = $10
	`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	result, err := exec.Exec(ctx, query,
		c.Content,
		c.LineStart,
		c.LineEnd,
		c.Status,
		c.AuthorResponse,
		c.SelectedForIteration,
		c.ResolvedAt,
		c.ResolvedBy,
		c.ID,
		c.ProposalID,
	)

	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("comment %s: %w", c.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete deletes a comment
func (r *PostgresReviewRepository) Delete(ctx context.Context, id, proposalID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND proposal_id = $2`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	result, err := exec.Exec(ctx, query, id, proposalID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// HasReplies reports whether any comment references this one as parent
func (r *PostgresReviewRepository) HasReplies(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE parent_id = $1)`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	var exists bool
	if err := exec.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check replies: %w", err)
	}

	return exists, nil
}

// ListOpenIDs returns the ids of comments still blocking the READY gate
func (r *PostgresReviewRepository) ListOpenIDs(ctx context.Context, proposalID string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE proposal_id = $1 AND status = $2
		ORDER BY created_at ASC
	`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, proposalID, models.CommentOpen)
	if err != nil {
		return nil, fmt.Errorf("list open comments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan comment id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open comments: %w", err)
	}

	return ids, nil
}

// ListSelectedForIteration returns accepted comments marked for iteration
func (r *PostgresReviewRepository) ListSelectedForIteration(ctx context.Context, proposalID, filePath string) ([]models.ReviewComment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE proposal_id = $1 AND status = $2 AND selected_for_iteration = TRUE
	`, commentColumns, r.tables.ReviewComments)
	args := []interface{}{proposalID, models.CommentAccepted}

	if filePath != "" {
		args = append(args, filePath)
		query += fmt.Sprintf(" AND file_path = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list selected comments: %w", err)
	}
	defer rows.Close()

	var comments []models.ReviewComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selected comments: %w", err)
	}

	return comments, nil
}

// ClearSelection unmarks comments consumed by an iteration
func (r *PostgresReviewRepository) ClearSelection(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s SET selected_for_iteration = FALSE WHERE id = ANY($1)
	`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	if _, err := exec.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("clear comment selection: %w", err)
	}

	return nil
}

// CountByStatus counts a proposal's comments grouped by status
func (r *PostgresReviewRepository) CountByStatus(ctx context.Context, proposalID string) (map[models.CommentStatus]int, error) {
	query := fmt.Sprintf(`
		SELECT status, COUNT(*) FROM %s WHERE proposal_id = $1 GROUP BY status
	`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.CommentStatus]int)
	for rows.Next() {
		var status models.CommentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan comment count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment counts: %w", err)
	}

	return counts, nil
}

// CountSelected counts comments currently selected for iteration
func (r *PostgresReviewRepository) CountSelected(ctx context.Context, proposalID string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE proposal_id = $1 AND selected_for_iteration = TRUE
	`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	var count int
	if err := exec.QueryRow(ctx, query, proposalID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count selected comments: %w", err)
	}

	return count, nil
}

// DeleteAllByProposal deletes all comments for a proposal
func (r *PostgresReviewRepository) DeleteAllByProposal(ctx context.Context, proposalID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE proposal_id = $1`, r.tables.ReviewComments)

	exec := GetExecutor(ctx, r.pool)
	if _, err := exec.Exec(ctx, query, proposalID); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}

	return nil
}
