package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// PostgresContentRepository implements the ContentRepository interface
type PostgresContentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewContentRepository creates a new content repository
func NewContentRepository(config *RepositoryConfig) repositories.ContentRepository {
	return &PostgresContentRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// GetEntry retrieves the current content for a file
func (r *PostgresContentRepository) GetEntry(ctx context.Context, proposalID, filePath string) (*models.ContentEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, proposal_id, file_path, content, version, updated_by, updated_at
		FROM %s
		WHERE proposal_id = $1 AND file_path = $2
	`, r.tables.ContentEntries)

	exec := GetExecutor(ctx, r.pool)
	var e models.ContentEntry
	err := exec.QueryRow(ctx, query, proposalID, filePath).Scan(
		&e.ID,
		&e.ProposalID,
		&e.FilePath,
		&e.Content,
		&e.Version,
		&e.UpdatedBy,
		&e.UpdatedAt,
	)

	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("content %s: %w", filePath, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get content entry: %w", err)
	}

	return &e, nil
}

// ListEntries lists all current content entries for a proposal
func (r *PostgresContentRepository) ListEntries(ctx context.Context, proposalID string) ([]models.ContentEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, proposal_id, file_path, content, version, updated_by, updated_at
		FROM %s
		WHERE proposal_id = $1
		ORDER BY file_path ASC
	`, r.tables.ContentEntries)

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list content entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ContentEntry
	for rows.Next() {
		var e models.ContentEntry
		err := rows.Scan(
			&e.ID,
			&e.ProposalID,
			&e.FilePath,
			&e.Content,
			&e.Version,
			&e.UpdatedBy,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan content entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content entries: %w", err)
	}

	return entries, nil
}

// UpsertEntry writes the current content for (proposal_id, file_path)
func (r *PostgresContentRepository) UpsertEntry(ctx context.Context, entry *models.ContentEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, proposal_id, file_path, content, version, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (proposal_id, file_path)
		DO UPDATE SET content = EXCLUDED.content, version = EXCLUDED.version,
		              updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, r.tables.ContentEntries)

	exec := GetExecutor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		entry.ID,
		entry.ProposalID,
		entry.FilePath,
		entry.Content,
		entry.Version,
		entry.UpdatedBy,
		entry.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("upsert content entry: %w", err)
	}

	return nil
}

// AppendVersion inserts one immutable history row
func (r *PostgresContentRepository) AppendVersion(ctx context.Context, v *models.ContentVersion) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, proposal_id, file_path, version, content, author_id, created_at, change_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.tables.ContentVersions)

	exec := GetExecutor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		v.ID,
		v.ProposalID,
		v.FilePath,
		v.Version,
		v.Content,
		v.AuthorID,
		v.CreatedAt,
		v.ChangeReason,
	)

	if err != nil {
		if isPgDuplicateError(err) {
			// The (proposal, path, version) unique index makes a lost
			// read-modify-write race visible instead of silent.
			return fmt.Errorf("version %d for %s: %w", v.Version, v.FilePath, domain.ErrConflict)
		}
		return fmt.Errorf("append content version: %w", err)
	}

	return nil
}

// ListVersions returns history metadata ordered oldest to newest
func (r *PostgresContentRepository) ListVersions(ctx context.Context, proposalID, filePath string) ([]models.VersionMeta, error) {
	query := fmt.Sprintf(`
		SELECT id, file_path, version, author_id, created_at, change_reason
		FROM %s
		WHERE proposal_id = $1 AND file_path = $2
		ORDER BY version ASC
	`, r.tables.ContentVersions)

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, proposalID, filePath)
	if err != nil {
		return nil, fmt.Errorf("list content versions: %w", err)
	}
	defer rows.Close()

	var versions []models.VersionMeta
	for rows.Next() {
		var v models.VersionMeta
		err := rows.Scan(
			&v.ID,
			&v.FilePath,
			&v.Version,
			&v.AuthorID,
			&v.CreatedAt,
			&v.ChangeReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan content version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content versions: %w", err)
	}

	return versions, nil
}

// GetVersion retrieves a specific version including content
func (r *PostgresContentRepository) GetVersion(ctx context.Context, proposalID, filePath string, version int64) (*models.ContentVersion, error) {
	query := fmt.Sprintf(`
		SELECT id, proposal_id, file_path, version, content, author_id, created_at, change_reason
		FROM %s
		WHERE proposal_id = $1 AND file_path = $2 AND version = $3
	`, r.tables.ContentVersions)

	exec := GetExecutor(ctx, r.pool)
	var v models.ContentVersion
	err := exec.QueryRow(ctx, query, proposalID, filePath, version).Scan(
		&v.ID,
		&v.ProposalID,
		&v.FilePath,
		&v.Version,
		&v.Content,
		&v.AuthorID,
		&v.CreatedAt,
		&v.ChangeReason,
	)

	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("version %d of %s: %w", version, filePath, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get content version: %w", err)
	}

	return &v, nil
}

// Snapshot returns all current entries as a single consistent read
func (r *PostgresContentRepository) Snapshot(ctx context.Context, proposalID string) (models.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT file_path, content
		FROM %s
		WHERE proposal_id = $1
		ORDER BY file_path ASC
	`, r.tables.ContentEntries)

	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("snapshot content: %w", err)
	}
	defer rows.Close()

	snapshot := make(models.Snapshot)
	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshot[path] = content
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}

	return snapshot, nil
}

// DeleteAllByProposal removes entries and history for a proposal
func (r *PostgresContentRepository) DeleteAllByProposal(ctx context.Context, proposalID string) error {
	exec := GetExecutor(ctx, r.pool)

	versionsQuery := fmt.Sprintf(`DELETE FROM %s WHERE proposal_id = $1`, r.tables.ContentVersions)
	if _, err := exec.Exec(ctx, versionsQuery, proposalID); err != nil {
		return fmt.Errorf("delete content versions: %w", err)
	}

	entriesQuery := fmt.Sprintf(`DELETE FROM %s WHERE proposal_id = $1`, r.tables.ContentEntries)
	if _, err := exec.Exec(ctx, entriesQuery, proposalID); err != nil {
		return fmt.Errorf("delete content entries: %w", err)
	}

	return nil
}
