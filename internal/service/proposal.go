package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

// CreateProposalRequest creates a change proposal.
type CreateProposalRequest struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

const (
	seedProposalTemplate = `# %s

## Why

%s

## What Changes

- TBD

## Impact

- TBD
`
	seedTasksTemplate = `# Tasks: %s

## 1. Implementation

- [ ] 1.1 TBD
`
)

// ProposalService manages proposal records. Lifecycle transitions live in
// LifecycleService; this service covers creation, lookup, and removal.
type ProposalService struct {
	proposalRepo repositories.ProposalRepository
	contentRepo  repositories.ContentRepository
	reviewRepo   repositories.ReviewRepository
	txManager    repositories.TransactionManager
	audit        *AuditRecorder
	logger       *slog.Logger
}

func NewProposalService(
	proposalRepo repositories.ProposalRepository,
	contentRepo repositories.ContentRepository,
	reviewRepo repositories.ReviewRepository,
	txManager repositories.TransactionManager,
	audit *AuditRecorder,
	logger *slog.Logger,
) *ProposalService {
	return &ProposalService{
		proposalRepo: proposalRepo,
		contentRepo:  contentRepo,
		reviewRepo:   reviewRepo,
		txManager:    txManager,
		audit:        audit,
		logger:       logger,
	}
}

// Create makes a DRAFT proposal seeded with skeleton content files. The
// proposal row, the seed files, their first history rows, and the audit
// event commit together.
func (s *ProposalService) Create(ctx context.Context, projectID, authorID string, req *CreateProposalRequest) (*models.Proposal, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Match(slugPattern)),
		validation.Field(&req.Title, validation.Required, validation.Length(1, 300)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := time.Now()
	proposal := &models.Proposal{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		AuthorID:  authorID,
		Name:      req.Name,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	reason := "Initial creation"
	seeds := map[string]string{
		models.PrimaryFile: fmt.Sprintf(seedProposalTemplate, req.Title, req.Description),
		"tasks.md":         fmt.Sprintf(seedTasksTemplate, req.Title),
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.proposalRepo.Create(txCtx, proposal); err != nil {
			return err
		}
		for filePath, content := range seeds {
			if err := s.seedFile(txCtx, proposal, filePath, content, authorID, &reason); err != nil {
				return err
			}
		}
		return s.audit.Record(txCtx, authorID, models.ActionProposalCreated, "proposal", proposal.ID,
			nil, map[string]any{"name": proposal.Name, "project_id": projectID})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("proposal created", "proposal_id", proposal.ID, "name", proposal.Name)
	return proposal, nil
}

func (s *ProposalService) seedFile(ctx context.Context, proposal *models.Proposal, filePath, content, authorID string, reason *string) error {
	now := time.Now()
	if err := s.contentRepo.AppendVersion(ctx, &models.ContentVersion{
		ID:           uuid.NewString(),
		ProposalID:   proposal.ID,
		FilePath:     filePath,
		Version:      1,
		Content:      content,
		AuthorID:     authorID,
		CreatedAt:    now,
		ChangeReason: reason,
	}); err != nil {
		return err
	}
	return s.contentRepo.UpsertEntry(ctx, &models.ContentEntry{
		ID:         uuid.NewString(),
		ProposalID: proposal.ID,
		FilePath:   filePath,
		Content:    content,
		Version:    1,
		UpdatedBy:  authorID,
		UpdatedAt:  now,
	})
}

// Get returns one proposal.
func (s *ProposalService) Get(ctx context.Context, id string) (*models.Proposal, error) {
	return s.proposalRepo.GetByID(ctx, id)
}

// GetByName returns a proposal by its slug within a project.
func (s *ProposalService) GetByName(ctx context.Context, projectID, name string) (*models.Proposal, error) {
	return s.proposalRepo.GetByName(ctx, projectID, name)
}

// List returns a project's proposals.
func (s *ProposalService) List(ctx context.Context, projectID string, filter *repositories.ProposalFilter) ([]models.Proposal, error) {
	return s.proposalRepo.ListByProject(ctx, projectID, filter)
}

// Delete hard-deletes a DRAFT proposal with all its content, history, and
// comments. Anything past DRAFT must be retired instead.
func (s *ProposalService) Delete(ctx context.Context, id, actorID string) error {
	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if proposal.AuthorID != actorID {
		return &domain.ForbiddenError{Message: "only the proposal author can delete it"}
	}
	if proposal.Status != models.StatusDraft {
		return &domain.InvalidStateError{Status: string(proposal.Status), Action: "delete"}
	}

	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.reviewRepo.DeleteAllByProposal(txCtx, id); err != nil {
			return err
		}
		if err := s.contentRepo.DeleteAllByProposal(txCtx, id); err != nil {
			return err
		}
		if err := s.proposalRepo.Delete(txCtx, id); err != nil {
			return err
		}
		return s.audit.Record(txCtx, actorID, models.ActionProposalDeleted, "proposal", id,
			map[string]any{"name": proposal.Name, "status": proposal.Status}, nil)
	})
}

// Retire soft-retires a proposal, hiding it from listings while keeping
// its history.
func (s *ProposalService) Retire(ctx context.Context, id, actorID string) error {
	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if proposal.AuthorID != actorID {
		return &domain.ForbiddenError{Message: "only the proposal author can retire it"}
	}
	return s.proposalRepo.Retire(ctx, id)
}
