package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
)

func TestWriteVersionsAreStrictlyIncreasing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	contents := []string{"first", "second", "third"}
	for i, c := range contents {
		entry, err := env.content.Write(ctx, proposal.ID, "specs/auth/spec.md", c, "author-1", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), entry.Version)
	}

	versions, err := env.content.ListVersions(ctx, proposal.ID, "specs/auth/spec.md")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, meta := range versions {
		assert.Equal(t, int64(i+1), meta.Version)
	}

	entry, err := env.content.Read(ctx, proposal.ID, "specs/auth/spec.md")
	require.NoError(t, err)
	assert.Equal(t, "third", entry.Content)
	assert.Equal(t, int64(3), entry.Version)
}

func TestWriteRejectedLeavesNoHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	tests := []struct {
		name     string
		filePath string
		actorID  string
		wantErr  error
		setup    func(t *testing.T)
	}{
		{
			name:     "traversal path",
			filePath: "../escape.md",
			actorID:  "author-1",
			wantErr:  domain.ErrPathTraversal,
		},
		{
			name:     "non-author",
			filePath: "notes.md",
			actorID:  "someone-else",
			wantErr:  domain.ErrForbidden,
		},
		{
			name:     "merged proposal",
			filePath: "notes.md",
			actorID:  "author-1",
			wantErr:  domain.ErrInvalidState,
			setup: func(t *testing.T) {
				_, err := env.proposalRepo.UpdateStatus(ctx, proposal.ID, proposal.TransitionVersion, models.StatusMerged, nil)
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			_, err := env.content.Write(ctx, proposal.ID, tt.filePath, "content", tt.actorID, nil)
			require.ErrorIs(t, err, tt.wantErr)

			_, err = env.content.Read(ctx, proposal.ID, "notes.md")
			assert.ErrorIs(t, err, domain.ErrNotFound)
			versions, err := env.content.ListVersions(ctx, proposal.ID, "notes.md")
			require.NoError(t, err)
			assert.Empty(t, versions)
		})
	}
}

func TestRollbackRestoresExactContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	original := "# Spec\n\nThe policy applies to all documents.\n"
	_, err := env.content.Write(ctx, proposal.ID, "specs/policy/spec.md", original, "author-1", nil)
	require.NoError(t, err)
	_, err = env.content.Write(ctx, proposal.ID, "specs/policy/spec.md", "edited beyond repair", "author-1", nil)
	require.NoError(t, err)

	entry, err := env.content.Rollback(ctx, proposal.ID, "specs/policy/spec.md", 1, "author-1")
	require.NoError(t, err)
	assert.Equal(t, original, entry.Content)
	assert.Equal(t, int64(3), entry.Version, "rollback appends, never rewrites")

	restored, err := env.content.GetVersion(ctx, proposal.ID, "specs/policy/spec.md", 3)
	require.NoError(t, err)
	assert.Equal(t, original, restored.Content)
	require.NotNil(t, restored.ChangeReason)
	assert.Equal(t, "Rollback to version 1", *restored.ChangeReason)

	// the overwritten version is still in history
	v2, err := env.content.GetVersion(ctx, proposal.ID, "specs/policy/spec.md", 2)
	require.NoError(t, err)
	assert.Equal(t, "edited beyond repair", v2.Content)
}

func TestRollbackToMissingVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	_, err := env.content.Rollback(ctx, proposal.ID, models.PrimaryFile, 42, "author-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProposalCreationSeedsContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	entries, err := env.content.ListEntries(ctx, proposal.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	snapshot, err := env.content.Snapshot(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Contains(t, snapshot, models.PrimaryFile)
	assert.Contains(t, snapshot, "tasks.md")
	assert.Contains(t, snapshot[models.PrimaryFile], "Add retention policy")
}
