package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
	"specflow/internal/llm"
)

// IterateRequest asks the generation engine to revise one file.
type IterateRequest struct {
	Instructions string   `json:"instructions"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// IterationResult reports one completed revision.
type IterationResult struct {
	Content           string `json:"content"`
	FilePath          string `json:"file_path"`
	Version           int64  `json:"version"`
	Model             string `json:"model"`
	InputTokens       int64  `json:"input_tokens"`
	OutputTokens      int64  `json:"output_tokens"`
	CommentsAddressed int    `json:"comments_addressed"`
}

// IterationService revises proposal content with an LLM, feeding it the
// accepted reviewer comments selected for iteration.
type IterationService struct {
	proposalRepo repositories.ProposalRepository
	reviewRepo   repositories.ReviewRepository
	usageRepo    repositories.UsageRepository
	content      *ContentService
	generator    llm.Generator
	prompts      *llm.PromptRegistry
	defaultModel string
	logger       *slog.Logger
}

func NewIterationService(
	proposalRepo repositories.ProposalRepository,
	reviewRepo repositories.ReviewRepository,
	usageRepo repositories.UsageRepository,
	content *ContentService,
	generator llm.Generator,
	prompts *llm.PromptRegistry,
	defaultModel string,
	logger *slog.Logger,
) *IterationService {
	return &IterationService{
		proposalRepo: proposalRepo,
		reviewRepo:   reviewRepo,
		usageRepo:    usageRepo,
		content:      content,
		generator:    generator,
		prompts:      prompts,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Iterate regenerates one file from its current content, the accepted
// comments selected for iteration, and the author's instructions. The
// revised content is saved as a new version and the consumed comments are
// unselected.
func (s *IterationService) Iterate(ctx context.Context, proposalID, filePath, actorID string, req *IterateRequest) (*IterationResult, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.Status.Editable() {
		return nil, &domain.InvalidStateError{Status: string(proposal.Status), Action: "iterate on"}
	}
	if proposal.AuthorID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the proposal author can trigger iteration"}
	}

	entry, err := s.content.Read(ctx, proposalID, filePath)
	if err != nil {
		return nil, err
	}

	selected, err := s.reviewRepo.ListSelectedForIteration(ctx, proposalID, entry.FilePath)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 && req.Instructions == "" {
		return nil, &domain.ValidationError{Message: "no accepted comments or instructions provided for iteration"}
	}

	prompt, err := s.prompts.RenderIterate(llm.IteratePromptData{
		CurrentContent:     entry.Content,
		AcceptedComments:   formatComments(selected),
		AuthorInstructions: req.Instructions,
	})
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	started := time.Now()
	resp, err := s.generator.Generate(ctx, &llm.GenerateRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   8192,
		Temperature: req.Temperature,
	})
	if err != nil {
		s.recordFailure(ctx, proposalID, actorID, model, err, started)
		s.logger.Error("iteration generation failed", "proposal_id", proposalID, "error", err)
		return nil, err
	}
	s.recordSuccess(ctx, proposalID, actorID, resp, started)

	reason := "LLM iteration: addressed reviewer feedback"
	if req.Instructions != "" {
		reason = "LLM iteration: " + truncate(req.Instructions, 100)
	}
	updated, err := s.content.Write(ctx, proposalID, entry.FilePath, strings.TrimSpace(resp.Content), actorID, &reason)
	if err != nil {
		return nil, err
	}

	if len(selected) > 0 {
		ids := make([]string, len(selected))
		for i, c := range selected {
			ids[i] = c.ID
		}
		if err := s.reviewRepo.ClearSelection(ctx, ids); err != nil {
			s.logger.Error("failed to clear iteration selection", "proposal_id", proposalID, "error", err)
		}
	}

	s.logger.Info("iteration complete",
		"proposal_id", proposalID,
		"file_path", entry.FilePath,
		"version", updated.Version,
		"comments_addressed", len(selected),
	)
	return &IterationResult{
		Content:           updated.Content,
		FilePath:          updated.FilePath,
		Version:           updated.Version,
		Model:             resp.Model,
		InputTokens:       resp.InputTokens,
		OutputTokens:      resp.OutputTokens,
		CommentsAddressed: len(selected),
	}, nil
}

// Usage returns the recorded LLM usage for a proposal, newest first.
func (s *IterationService) Usage(ctx context.Context, proposalID string) ([]models.LLMUsage, error) {
	if _, err := s.proposalRepo.GetByID(ctx, proposalID); err != nil {
		return nil, err
	}
	return s.usageRepo.ListByProposal(ctx, proposalID)
}

func (s *IterationService) recordSuccess(ctx context.Context, proposalID, actorID string, resp *llm.GenerateResponse, started time.Time) {
	s.record(ctx, &models.LLMUsage{
		ID:           uuid.New().String(),
		ActorID:      actorID,
		ProposalID:   &proposalID,
		Provider:     s.generator.Name(),
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.InputTokens + resp.OutputTokens,
		Operation:    models.UsageOpIterate,
		Success:      true,
		DurationMS:   time.Since(started).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	})
}

func (s *IterationService) recordFailure(ctx context.Context, proposalID, actorID, model string, cause error, started time.Time) {
	msg := cause.Error()
	s.record(ctx, &models.LLMUsage{
		ID:           uuid.New().String(),
		ActorID:      actorID,
		ProposalID:   &proposalID,
		Provider:     s.generator.Name(),
		Model:        model,
		Operation:    models.UsageOpIterate,
		Success:      false,
		ErrorMessage: &msg,
		DurationMS:   time.Since(started).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	})
}

// record appends a usage row best-effort; accounting never blocks the
// iteration outcome.
func (s *IterationService) record(ctx context.Context, u *models.LLMUsage) {
	if err := s.usageRepo.Record(ctx, u); err != nil {
		s.logger.Error("failed to record llm usage", "proposal_id", u.ProposalID, "error", err)
	}
}

func formatComments(comments []models.ReviewComment) string {
	if len(comments) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range comments {
		fmt.Fprintf(&sb, "%d. %s", i+1, c.Content)
		if c.LineStart != nil {
			fmt.Fprintf(&sb, " (lines %d", *c.LineStart)
			if c.LineEnd != nil && *c.LineEnd != *c.LineStart {
				fmt.Fprintf(&sb, "-%d", *c.LineEnd)
			}
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
