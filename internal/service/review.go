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
	"specflow/internal/materialize"
)

// CreateCommentRequest creates one review comment or reply.
type CreateCommentRequest struct {
	FilePath  string  `json:"file_path"`
	LineStart *int    `json:"line_start,omitempty"`
	LineEnd   *int    `json:"line_end,omitempty"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parent_id,omitempty"`
}

// ResolveCommentRequest resolves an open comment. Response is required when
// Status is rejected or deferred.
type ResolveCommentRequest struct {
	Status   models.CommentStatus `json:"status"`
	Response *string              `json:"response,omitempty"`
}

// ReviewService manages review comments and gates the READY transition on
// their resolution.
type ReviewService struct {
	proposalRepo repositories.ProposalRepository
	reviewRepo   repositories.ReviewRepository
	txManager    repositories.TransactionManager
	audit        *AuditRecorder
	logger       *slog.Logger
}

func NewReviewService(
	proposalRepo repositories.ProposalRepository,
	reviewRepo repositories.ReviewRepository,
	txManager repositories.TransactionManager,
	audit *AuditRecorder,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		proposalRepo: proposalRepo,
		reviewRepo:   reviewRepo,
		txManager:    txManager,
		audit:        audit,
		logger:       logger,
	}
}

// CreateComment attaches reviewer feedback to a proposal file. Comments can
// only be created while the proposal is under review.
func (s *ReviewService) CreateComment(ctx context.Context, proposalID, reviewerID string, req *CreateCommentRequest) (*models.ReviewComment, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.FilePath, validation.Required),
		validation.Field(&req.Content, validation.Required, validation.Length(1, 10000)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if req.LineStart != nil && req.LineEnd != nil && *req.LineEnd < *req.LineStart {
		return nil, &domain.ValidationError{Message: "line_end must not precede line_start"}
	}

	normalized, err := materialize.ValidateFilePath(req.FilePath)
	if err != nil {
		return nil, err
	}

	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != models.StatusReview {
		return nil, &domain.InvalidStateError{Status: string(proposal.Status), Action: "comment on"}
	}
	// The author answers feedback through resolution and replies, not by
	// opening comments on their own proposal.
	if proposal.AuthorID == reviewerID && req.ParentID == nil {
		return nil, &domain.ForbiddenError{Message: "the proposal author cannot open comments on their own proposal"}
	}

	if req.ParentID != nil {
		parent, err := s.reviewRepo.GetByID(ctx, *req.ParentID, proposalID)
		if err != nil {
			return nil, err
		}
		if parent.ParentID != nil {
			return nil, &domain.ValidationError{Message: "replies cannot be nested"}
		}
	}

	comment := &models.ReviewComment{
		ID:         uuid.NewString(),
		ProposalID: proposalID,
		ReviewerID: reviewerID,
		FilePath:   normalized,
		LineStart:  req.LineStart,
		LineEnd:    req.LineEnd,
		Content:    req.Content,
		Status:     models.CommentOpen,
		ParentID:   req.ParentID,
		CreatedAt:  time.Now(),
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.reviewRepo.Create(txCtx, comment); err != nil {
			return err
		}
		return s.audit.Record(txCtx, reviewerID, models.ActionCommentCreated, "review_comment", comment.ID,
			nil, map[string]any{"proposal_id": proposalID, "file_path": normalized})
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetComment returns one comment.
func (s *ReviewService) GetComment(ctx context.Context, proposalID, commentID string) (*models.ReviewComment, error) {
	return s.reviewRepo.GetByID(ctx, commentID, proposalID)
}

// ListComments returns a proposal's comments, threads first.
func (s *ReviewService) ListComments(ctx context.Context, proposalID string, filter *repositories.CommentFilter) ([]models.ReviewComment, error) {
	return s.reviewRepo.ListByProposal(ctx, proposalID, filter)
}

// UpdateComment edits the body of an open comment. Only the reviewer who
// wrote it may edit it.
func (s *ReviewService) UpdateComment(ctx context.Context, proposalID, commentID, actorID, content string) (*models.ReviewComment, error) {
	if err := validation.Validate(content, validation.Required, validation.Length(1, 10000)); err != nil {
		return nil, fmt.Errorf("%w: content: %v", domain.ErrValidation, err)
	}

	comment, err := s.reviewRepo.GetByID(ctx, commentID, proposalID)
	if err != nil {
		return nil, err
	}
	if comment.ReviewerID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the comment's reviewer can edit it"}
	}
	if comment.Status != models.CommentOpen {
		return nil, &domain.InvalidStateError{Status: string(comment.Status), Action: "edit"}
	}

	comment.Content = content
	if err := s.reviewRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment removes an open comment. Only the reviewer who wrote it may
// delete it, and only while it has no replies.
func (s *ReviewService) DeleteComment(ctx context.Context, proposalID, commentID, actorID string) error {
	comment, err := s.reviewRepo.GetByID(ctx, commentID, proposalID)
	if err != nil {
		return err
	}
	if comment.ReviewerID != actorID {
		return &domain.ForbiddenError{Message: "only the comment's reviewer can delete it"}
	}
	if comment.Status != models.CommentOpen {
		return &domain.InvalidStateError{Status: string(comment.Status), Action: "delete"}
	}
	hasReplies, err := s.reviewRepo.HasReplies(ctx, commentID)
	if err != nil {
		return err
	}
	if hasReplies {
		return &domain.ValidationError{Message: "cannot delete a comment with replies"}
	}
	return s.reviewRepo.Delete(ctx, commentID, proposalID)
}

// ResolveComment records the author's decision on an open comment.
// Accepting selects the comment for the next iteration; rejecting or
// deferring requires a response explaining why.
func (s *ReviewService) ResolveComment(ctx context.Context, proposalID, commentID, actorID string, req *ResolveCommentRequest) (*models.ReviewComment, error) {
	if !req.Status.Valid() || !req.Status.Resolved() {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid resolution status %q", req.Status)}
	}
	if req.Status.RequiresResponse() && (req.Response == nil || *req.Response == "") {
		return nil, fmt.Errorf("%w: resolving as %s requires a response", domain.ErrMissingReason, req.Status)
	}

	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.AuthorID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the proposal author can resolve comments"}
	}

	comment, err := s.reviewRepo.GetByID(ctx, commentID, proposalID)
	if err != nil {
		return nil, err
	}
	if comment.Status != models.CommentOpen {
		return nil, &domain.InvalidStateError{Status: string(comment.Status), Action: "resolve"}
	}

	now := time.Now()
	oldStatus := comment.Status
	comment.Status = req.Status
	comment.AuthorResponse = req.Response
	comment.ResolvedAt = &now
	comment.ResolvedBy = &actorID
	comment.SelectedForIteration = req.Status == models.CommentAccepted

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.reviewRepo.Update(txCtx, comment); err != nil {
			return err
		}
		return s.audit.Record(txCtx, actorID, models.ActionCommentResolved, "review_comment", commentID,
			map[string]any{"status": oldStatus},
			map[string]any{"status": req.Status, "selected_for_iteration": comment.SelectedForIteration})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("comment resolved",
		"proposal_id", proposalID,
		"comment_id", commentID,
		"status", req.Status,
	)
	return comment, nil
}

// ReopenComment returns a resolved comment to open, clearing the
// resolution and any iteration selection.
func (s *ReviewService) ReopenComment(ctx context.Context, proposalID, commentID, actorID string) (*models.ReviewComment, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.AuthorID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the proposal author can reopen comments"}
	}

	comment, err := s.reviewRepo.GetByID(ctx, commentID, proposalID)
	if err != nil {
		return nil, err
	}
	if comment.Status == models.CommentOpen {
		return nil, &domain.InvalidStateError{Status: string(comment.Status), Action: "reopen"}
	}

	comment.Status = models.CommentOpen
	comment.AuthorResponse = nil
	comment.ResolvedAt = nil
	comment.ResolvedBy = nil
	comment.SelectedForIteration = false

	if err := s.reviewRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// SetIterationSelection marks or unmarks an accepted comment for the next
// content-generation iteration.
func (s *ReviewService) SetIterationSelection(ctx context.Context, proposalID, commentID, actorID string, selected bool) (*models.ReviewComment, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.AuthorID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the proposal author can select comments for iteration"}
	}

	comment, err := s.reviewRepo.GetByID(ctx, commentID, proposalID)
	if err != nil {
		return nil, err
	}
	if comment.Status != models.CommentAccepted {
		return nil, &domain.InvalidStateError{Status: string(comment.Status), Action: "select for iteration"}
	}

	comment.SelectedForIteration = selected
	if err := s.reviewRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Stats summarizes a proposal's comments by status.
func (s *ReviewService) Stats(ctx context.Context, proposalID string) (*models.CommentStats, error) {
	counts, err := s.reviewRepo.CountByStatus(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	selected, err := s.reviewRepo.CountSelected(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	stats := &models.CommentStats{
		ProposalID:           proposalID,
		ByStatus:             make(map[string]int, len(counts)),
		SelectedForIteration: selected,
	}
	for status, n := range counts {
		stats.Total += n
		stats.ByStatus[string(status)] = n
	}
	stats.AllResolved = counts[models.CommentOpen] == 0
	return stats, nil
}

// CanAdvanceToReady reports whether the READY gate is clear. Any open
// comment blocks the transition and is named in the returned error.
func (s *ReviewService) CanAdvanceToReady(ctx context.Context, proposalID string) error {
	openIDs, err := s.reviewRepo.ListOpenIDs(ctx, proposalID)
	if err != nil {
		return err
	}
	if len(openIDs) > 0 {
		return &domain.UnresolvedCommentsError{BlockingIDs: openIDs}
	}
	return nil
}
