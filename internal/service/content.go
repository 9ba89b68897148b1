package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
	"specflow/internal/materialize"
	"specflow/internal/metrics"
)

// ContentService manages proposal file content and its append-only version
// history. Every successful write produces exactly one history row; a failed
// write produces none.
type ContentService struct {
	proposalRepo repositories.ProposalRepository
	contentRepo  repositories.ContentRepository
	txManager    repositories.TransactionManager
	audit        *AuditRecorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewContentService(
	proposalRepo repositories.ProposalRepository,
	contentRepo repositories.ContentRepository,
	txManager repositories.TransactionManager,
	audit *AuditRecorder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ContentService {
	return &ContentService{
		proposalRepo: proposalRepo,
		contentRepo:  contentRepo,
		txManager:    txManager,
		audit:        audit,
		metrics:      m,
		logger:       logger,
	}
}

// Write saves content for one file and appends the matching history row in
// the same transaction. The proposal must be editable and actorID must be
// its author.
func (s *ContentService) Write(ctx context.Context, proposalID, filePath, content, actorID string, changeReason *string) (*models.ContentEntry, error) {
	normalized, err := materialize.ValidateFilePath(filePath)
	if err != nil {
		s.metrics.ContentWrites.WithLabelValues("rejected").Inc()
		return nil, err
	}

	proposal, err := s.checkWritable(ctx, proposalID, actorID, "edit content of")
	if err != nil {
		s.metrics.ContentWrites.WithLabelValues("rejected").Inc()
		return nil, err
	}

	var entry *models.ContentEntry
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		entry, err = s.writeTx(txCtx, proposal, normalized, content, actorID, changeReason)
		return err
	})
	if err != nil {
		s.metrics.ContentWrites.WithLabelValues("rejected").Inc()
		return nil, err
	}

	s.metrics.ContentWrites.WithLabelValues("ok").Inc()
	s.logger.Info("content written",
		"proposal_id", proposalID,
		"file_path", normalized,
		"version", entry.Version,
	)
	return entry, nil
}

// writeTx performs the entry upsert and history append. It must run inside
// a transaction.
func (s *ContentService) writeTx(ctx context.Context, proposal *models.Proposal, filePath, content, actorID string, changeReason *string) (*models.ContentEntry, error) {
	existing, err := s.contentRepo.GetEntry(ctx, proposal.ID, filePath)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	var version int64 = 1
	if existing != nil {
		version = existing.Version + 1
	}

	now := time.Now()
	entry := &models.ContentEntry{
		ID:         uuid.NewString(),
		ProposalID: proposal.ID,
		FilePath:   filePath,
		Content:    content,
		Version:    version,
		UpdatedBy:  actorID,
		UpdatedAt:  now,
	}
	if existing != nil {
		entry.ID = existing.ID
	}

	if err := s.contentRepo.AppendVersion(ctx, &models.ContentVersion{
		ID:           uuid.NewString(),
		ProposalID:   proposal.ID,
		FilePath:     filePath,
		Version:      version,
		Content:      content,
		AuthorID:     actorID,
		CreatedAt:    now,
		ChangeReason: changeReason,
	}); err != nil {
		return nil, err
	}
	if err := s.contentRepo.UpsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.proposalRepo.Touch(ctx, proposal.ID); err != nil {
		return nil, err
	}

	return entry, s.audit.Record(ctx, actorID, models.ActionContentModified, "proposal_content", proposal.ID,
		map[string]any{"file_path": filePath, "version": version - 1},
		map[string]any{"file_path": filePath, "version": version},
	)
}

// Read returns the current content of one file.
func (s *ContentService) Read(ctx context.Context, proposalID, filePath string) (*models.ContentEntry, error) {
	normalized, err := materialize.ValidateFilePath(filePath)
	if err != nil {
		return nil, err
	}
	return s.contentRepo.GetEntry(ctx, proposalID, normalized)
}

// ListEntries returns all current files of a proposal.
func (s *ContentService) ListEntries(ctx context.Context, proposalID string) ([]models.ContentEntry, error) {
	return s.contentRepo.ListEntries(ctx, proposalID)
}

// ListVersions returns a file's history metadata, oldest first.
func (s *ContentService) ListVersions(ctx context.Context, proposalID, filePath string) ([]models.VersionMeta, error) {
	normalized, err := materialize.ValidateFilePath(filePath)
	if err != nil {
		return nil, err
	}
	return s.contentRepo.ListVersions(ctx, proposalID, normalized)
}

// GetVersion returns one historical version including its content.
func (s *ContentService) GetVersion(ctx context.Context, proposalID, filePath string, version int64) (*models.ContentVersion, error) {
	normalized, err := materialize.ValidateFilePath(filePath)
	if err != nil {
		return nil, err
	}
	return s.contentRepo.GetVersion(ctx, proposalID, normalized, version)
}

// Rollback restores a historical version by appending it as a new version.
// History is never rewritten.
func (s *ContentService) Rollback(ctx context.Context, proposalID, filePath string, version int64, actorID string) (*models.ContentEntry, error) {
	normalized, err := materialize.ValidateFilePath(filePath)
	if err != nil {
		return nil, err
	}

	proposal, err := s.checkWritable(ctx, proposalID, actorID, "roll back content of")
	if err != nil {
		return nil, err
	}

	target, err := s.contentRepo.GetVersion(ctx, proposalID, normalized, version)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("Rollback to version %d", version)
	var entry *models.ContentEntry
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		entry, err = s.writeTx(txCtx, proposal, normalized, target.Content, actorID, &reason)
		if err != nil {
			return err
		}
		return s.audit.Record(txCtx, actorID, models.ActionContentRolledBack, "proposal_content", proposalID,
			map[string]any{"file_path": normalized, "version": version},
			map[string]any{"file_path": normalized, "version": entry.Version},
		)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("content rolled back",
		"proposal_id", proposalID,
		"file_path", normalized,
		"restored_version", version,
		"new_version", entry.Version,
	)
	return entry, nil
}

// Snapshot returns a consistent view of all current files.
func (s *ContentService) Snapshot(ctx context.Context, proposalID string) (models.Snapshot, error) {
	return s.contentRepo.Snapshot(ctx, proposalID)
}

// checkWritable loads the proposal and verifies that actorID may modify its
// content right now.
func (s *ContentService) checkWritable(ctx context.Context, proposalID, actorID, action string) (*models.Proposal, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.Status.Editable() {
		return nil, &domain.InvalidStateError{Status: string(proposal.Status), Action: action}
	}
	if proposal.AuthorID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the proposal author can modify its content"}
	}
	return proposal, nil
}
