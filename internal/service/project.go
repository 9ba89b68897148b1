package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CreateProjectRequest creates a project.
type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description,omitempty"`
	LocalPath   string  `json:"local_path"`
}

// UpdateProjectRequest updates mutable project fields.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ProjectService manages the parent resource proposals belong to. Every
// project's LocalPath must live under projectsRoot; an empty root skips
// the containment check.
type ProjectService struct {
	projectRepo  repositories.ProjectRepository
	projectsRoot string
	logger       *slog.Logger
}

func NewProjectService(projectRepo repositories.ProjectRepository, projectsRoot string, logger *slog.Logger) *ProjectService {
	return &ProjectService{projectRepo: projectRepo, projectsRoot: projectsRoot, logger: logger}
}

// Create registers a project. LocalPath must be absolute and contained
// in the configured projects root; materialized proposal trees are
// written beneath it.
func (s *ProjectService) Create(ctx context.Context, ownerID string, req *CreateProjectRequest) (*models.Project, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&req.Slug, validation.Required, validation.Match(slugPattern)),
		validation.Field(&req.LocalPath, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !filepath.IsAbs(req.LocalPath) {
		return nil, &domain.ValidationError{Message: "local_path must be absolute"}
	}
	if err := s.checkUnderRoot(req.LocalPath); err != nil {
		return nil, err
	}

	now := time.Now()
	project := &models.Project{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		LocalPath:   filepath.Clean(req.LocalPath),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", project.ID, "slug", project.Slug)
	return project, nil
}

// checkUnderRoot rejects a LocalPath that escapes the projects root.
func (s *ProjectService) checkUnderRoot(localPath string) error {
	if s.projectsRoot == "" {
		return nil
	}
	rel, err := filepath.Rel(s.projectsRoot, filepath.Clean(localPath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &domain.ValidationError{
			Message: fmt.Sprintf("local_path must be under %s", s.projectsRoot),
		}
	}
	return nil
}

// Get returns one project.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	return s.projectRepo.GetByID(ctx, id)
}

// List returns the caller's projects.
func (s *ProjectService) List(ctx context.Context, ownerID string) ([]models.Project, error) {
	return s.projectRepo.ListByOwner(ctx, ownerID)
}

// Update changes a project's name or description.
func (s *ProjectService) Update(ctx context.Context, id, actorID string, req *UpdateProjectRequest) (*models.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != actorID {
		return nil, &domain.ForbiddenError{Message: "only the project owner can update it"}
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, &domain.ValidationError{Message: "name cannot be empty"}
		}
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	project.UpdatedAt = time.Now()

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Delete soft-deletes a project.
func (s *ProjectService) Delete(ctx context.Context, id, actorID string) error {
	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if project.OwnerID != actorID {
		return &domain.ForbiddenError{Message: "only the project owner can delete it"}
	}
	return s.projectRepo.SoftDelete(ctx, id)
}
