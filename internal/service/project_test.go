package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specflow/internal/domain"
)

func newProjectService(t *testing.T, projectsRoot string) *ProjectService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProjectService(newFakeProjectRepo(), projectsRoot, logger)
}

func TestCreateProjectEnforcesProjectsRoot(t *testing.T) {
	root := t.TempDir()
	svc := newProjectService(t, root)
	ctx := context.Background()

	project, err := svc.Create(ctx, "owner-1", &CreateProjectRequest{
		Name:      "Compliance Docs",
		Slug:      "compliance-docs",
		LocalPath: filepath.Join(root, "compliance-docs"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "compliance-docs"), project.LocalPath)

	cases := []struct {
		name      string
		localPath string
	}{
		{"outside the root", "/tmp/elsewhere"},
		{"escapes via dot-dot", filepath.Join(root, "..", "escape")},
		{"sibling with root prefix", root + "-evil/docs"},
		{"relative path", "compliance-docs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "owner-1", &CreateProjectRequest{
				Name:      "Escapee",
				Slug:      "escapee",
				LocalPath: tc.localPath,
			})
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreateProjectValidatesSlug(t *testing.T) {
	root := t.TempDir()
	svc := newProjectService(t, root)
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner-1", &CreateProjectRequest{
		Name:      "Bad Slug",
		Slug:      "Not A Slug",
		LocalPath: filepath.Join(root, "bad-slug"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
