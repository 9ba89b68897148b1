package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
	"specflow/internal/materialize"
	"specflow/internal/metrics"
	"specflow/internal/speccli"
)

// validatorAttempts is the total number of times a transiently failing
// validator run is attempted before the transition gives up.
const validatorAttempts = 3

// LifecycleService drives proposals through
// DRAFT -> REVIEW -> READY -> MERGED. Every transition is a
// compare-and-swap on the proposal's transition version, so of any number
// of concurrent attempts exactly one wins.
type LifecycleService struct {
	proposalRepo repositories.ProposalRepository
	projectRepo  repositories.ProjectRepository
	contentRepo  repositories.ContentRepository
	reviews      *ReviewService
	materializer *materialize.Materializer
	validator    speccli.Validator
	txManager    repositories.TransactionManager
	audit        *AuditRecorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewLifecycleService(
	proposalRepo repositories.ProposalRepository,
	projectRepo repositories.ProjectRepository,
	contentRepo repositories.ContentRepository,
	reviews *ReviewService,
	materializer *materialize.Materializer,
	validator speccli.Validator,
	txManager repositories.TransactionManager,
	audit *AuditRecorder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		proposalRepo: proposalRepo,
		projectRepo:  projectRepo,
		contentRepo:  contentRepo,
		reviews:      reviews,
		materializer: materializer,
		validator:    validator,
		txManager:    txManager,
		audit:        audit,
		metrics:      m,
		logger:       logger,
	}
}

// Submit moves a DRAFT proposal into REVIEW. The primary file must carry
// content before review can begin.
func (s *LifecycleService) Submit(ctx context.Context, proposalID, actorID string) (*models.Proposal, error) {
	proposal, err := s.loadForTransition(ctx, proposalID, actorID, models.StatusDraft, "submit")
	if err != nil {
		return nil, err
	}

	entry, err := s.contentRepo.GetEntry(ctx, proposalID, models.PrimaryFile)
	if err != nil {
		if isNotFound(err) {
			return nil, s.failTransition(ctx, proposal, actorID, models.StatusReview,
				&domain.ValidationError{Message: "proposal.md has no content"})
		}
		return nil, err
	}
	if strings.TrimSpace(entry.Content) == "" {
		return nil, s.failTransition(ctx, proposal, actorID, models.StatusReview,
			&domain.ValidationError{Message: "proposal.md has no content"})
	}

	return s.commitTransition(ctx, proposal, actorID, models.StatusReview, nil)
}

// ReturnToDraft moves a REVIEW proposal back to DRAFT for rework.
func (s *LifecycleService) ReturnToDraft(ctx context.Context, proposalID, actorID string) (*models.Proposal, error) {
	proposal, err := s.loadForTransition(ctx, proposalID, actorID, models.StatusReview, "return to draft")
	if err != nil {
		return nil, err
	}
	return s.commitTransition(ctx, proposal, actorID, models.StatusDraft, nil)
}

// MarkReady moves a REVIEW proposal into READY. The content snapshot is
// materialized durably under the project root and validated there; only a
// passing validation commits the transition. Any failure removes the
// materialized tree, so the filesystem never holds a tree for a proposal
// that is not READY or MERGED.
//
// The transition claim is taken before any disk writes: the materialized
// tree at <root>/openspec/changes/<name> is shared per proposal, so a
// second attempt must lose before it can materialize over, or delete, a
// tree the first attempt is still validating.
func (s *LifecycleService) MarkReady(ctx context.Context, proposalID, actorID string) (*models.Proposal, error) {
	proposal, err := s.loadForTransition(ctx, proposalID, actorID, models.StatusReview, "mark ready")
	if err != nil {
		return nil, err
	}
	proposal, err = s.proposalRepo.ClaimTransition(ctx, proposalID, proposal.TransitionVersion)
	if err != nil {
		return nil, err
	}

	if err := s.reviews.CanAdvanceToReady(ctx, proposalID); err != nil {
		s.releaseClaim(ctx, proposalID)
		var unresolved *domain.UnresolvedCommentsError
		if errors.As(err, &unresolved) {
			return nil, s.failTransition(ctx, proposal, actorID, models.StatusReady, err)
		}
		return nil, err
	}

	project, err := s.projectRepo.GetByID(ctx, proposal.ProjectID)
	if err != nil {
		s.releaseClaim(ctx, proposalID)
		return nil, err
	}
	snapshot, err := s.contentRepo.Snapshot(ctx, proposalID)
	if err != nil {
		s.releaseClaim(ctx, proposalID)
		return nil, err
	}

	// Once disk writes begin the operation must run to a clean end state
	// even if the caller goes away.
	opCtx := context.WithoutCancel(ctx)

	path, err := s.materializer.MaterializeDurable(opCtx, project.LocalPath, proposal.Name, snapshot)
	if err != nil {
		s.metrics.MaterializationFailures.Inc()
		s.releaseClaim(opCtx, proposalID)
		return nil, s.failTransition(opCtx, proposal, actorID, models.StatusReady, err)
	}

	result, err := s.validator.Validate(opCtx, project.LocalPath, proposal.Name)
	if err != nil {
		s.removeTree(path, project.LocalPath)
		s.releaseClaim(opCtx, proposalID)
		if speccli.IsTransient(err) {
			err = &domain.ValidatorUnavailableError{Attempts: validatorAttempts, Last: err}
		}
		return nil, s.failTransition(opCtx, proposal, actorID, models.StatusReady, err)
	}
	if !result.Passed {
		s.removeTree(path, project.LocalPath)
		s.releaseClaim(opCtx, proposalID)
		return nil, s.failTransition(opCtx, proposal, actorID, models.StatusReady, &domain.ValidationFailedError{
			Errors:   result.Errors,
			Warnings: result.Warnings,
			Output:   result.Output,
		})
	}

	updated, err := s.commitTransition(opCtx, proposal, actorID, models.StatusReady, &path)
	if err != nil {
		s.removeTree(path, project.LocalPath)
		s.releaseClaim(opCtx, proposalID)
		return nil, err
	}
	return updated, nil
}

// Merge moves a READY proposal into MERGED, archiving the materialized
// tree through the validation CLI. Merging requires admin authority.
func (s *LifecycleService) Merge(ctx context.Context, proposalID string, claims *models.Claims) (*models.Proposal, error) {
	if !claims.IsAdmin() {
		return nil, &domain.ForbiddenError{Message: "merging requires admin authority"}
	}
	actorID := claims.GetActorID()

	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != models.StatusReady {
		return nil, &domain.InvalidStateError{Status: string(proposal.Status), Action: "merge"}
	}
	proposal, err = s.proposalRepo.ClaimTransition(ctx, proposalID, proposal.TransitionVersion)
	if err != nil {
		return nil, err
	}

	project, err := s.projectRepo.GetByID(ctx, proposal.ProjectID)
	if err != nil {
		s.releaseClaim(ctx, proposalID)
		return nil, err
	}

	opCtx := context.WithoutCancel(ctx)

	if err := s.validator.Archive(opCtx, project.LocalPath, proposal.Name); err != nil {
		s.releaseClaim(opCtx, proposalID)
		if speccli.IsTransient(err) {
			err = &domain.ValidatorUnavailableError{Attempts: validatorAttempts, Last: err}
		}
		return nil, s.failTransition(opCtx, proposal, actorID, models.StatusMerged, err)
	}

	updated, err := s.commitTransition(opCtx, proposal, actorID, models.StatusMerged, proposal.MaterializedPath)
	if err != nil {
		s.releaseClaim(opCtx, proposalID)
		return nil, err
	}
	return updated, nil
}

// ValidateDraft runs the validator against a throwaway staging of the
// current content. No state changes; the proposal may be in any editable
// status.
func (s *LifecycleService) ValidateDraft(ctx context.Context, proposalID, actorID string) (*speccli.Result, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.Status.Editable() {
		return nil, &domain.InvalidStateError{Status: string(proposal.Status), Action: "validate a draft of"}
	}

	snapshot, err := s.contentRepo.Snapshot(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	tree, err := s.materializer.StageEphemeral(ctx, proposal.Name, snapshot)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result, err := s.validator.Validate(ctx, tree.Root, proposal.Name)
	if err != nil {
		if speccli.IsTransient(err) {
			return nil, &domain.ValidatorUnavailableError{Attempts: validatorAttempts, Last: err}
		}
		return nil, err
	}
	return result, nil
}

// loadForTransition loads the proposal and checks status and authorship
// for a transition initiated by the author.
func (s *LifecycleService) loadForTransition(ctx context.Context, proposalID, actorID string, from models.ProposalStatus, action string) (*models.Proposal, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != from {
		return nil, &domain.InvalidStateError{Status: string(proposal.Status), Action: action}
	}
	if proposal.TransitionClaimed {
		return nil, fmt.Errorf("proposal %s has a transition in flight: %w", proposalID, domain.ErrConcurrentModification)
	}
	if proposal.AuthorID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the proposal author can " + action}
	}
	return proposal, nil
}

// releaseClaim drops the transition claim after an aborted transition. A
// failed release leaves the proposal blocked for further transitions.
func (s *LifecycleService) releaseClaim(ctx context.Context, proposalID string) {
	if err := s.proposalRepo.ReleaseTransition(ctx, proposalID); err != nil {
		s.logger.Error("failed to release transition claim", "proposal_id", proposalID, "error", err)
	}
}

// commitTransition performs the optimistic-lock status update and records
// the outcome. The status row and the audit event commit atomically.
func (s *LifecycleService) commitTransition(ctx context.Context, proposal *models.Proposal, actorID string, to models.ProposalStatus, materializedPath *string) (*models.Proposal, error) {
	var updated *models.Proposal
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.proposalRepo.UpdateStatus(txCtx, proposal.ID, proposal.TransitionVersion, to, materializedPath)
		if err != nil {
			return err
		}
		return s.audit.Record(txCtx, actorID, models.ActionStatusChanged, "proposal", proposal.ID,
			map[string]any{"status": proposal.Status},
			map[string]any{"status": to, "transition_version": updated.TransitionVersion},
		)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrConcurrentModification) {
			outcome = "conflict"
		}
		s.metrics.Transitions.WithLabelValues(string(to), outcome).Inc()
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(to), "ok").Inc()
	s.logger.Info("proposal transitioned",
		"proposal_id", proposal.ID,
		"from", proposal.Status,
		"to", to,
		"transition_version", updated.TransitionVersion,
	)
	return updated, nil
}

// failTransition records a rejected transition attempt and returns the
// rejection unchanged. The audit append is best-effort: the rejection is
// the caller's answer either way.
func (s *LifecycleService) failTransition(ctx context.Context, proposal *models.Proposal, actorID string, to models.ProposalStatus, cause error) error {
	s.metrics.Transitions.WithLabelValues(string(to), outcomeLabel(cause)).Inc()

	if auditErr := s.audit.Record(ctx, actorID, models.ActionTransitionFailed, "proposal", proposal.ID,
		map[string]any{"status": proposal.Status},
		map[string]any{"attempted": to, "error": cause.Error()},
	); auditErr != nil {
		s.logger.Error("failed to audit rejected transition",
			"proposal_id", proposal.ID,
			"error", auditErr,
		)
	}

	// Gate and validator rejections are expected business outcomes.
	level := slog.LevelWarn
	switch outcomeLabel(cause) {
	case "unresolved_comments", "validation_failed":
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "transition rejected",
		"proposal_id", proposal.ID,
		"from", proposal.Status,
		"attempted", to,
		"error", cause,
	)
	return cause
}

func (s *LifecycleService) removeTree(path, root string) {
	if err := s.materializer.Remove(path, root); err != nil {
		s.logger.Error("failed to remove materialized tree", "path", path, "error", err)
	}
}

func outcomeLabel(err error) string {
	var (
		unresolved  *domain.UnresolvedCommentsError
		valFailed   *domain.ValidationFailedError
		unavailable *domain.ValidatorUnavailableError
	)
	switch {
	case errors.As(err, &unresolved):
		return "unresolved_comments"
	case errors.As(err, &valFailed):
		return "validation_failed"
	case errors.As(err, &unavailable):
		return "validator_unavailable"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}
