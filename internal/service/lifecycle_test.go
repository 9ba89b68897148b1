package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/materialize"
	"specflow/internal/speccli"
)

func adminClaims(subject string) *models.Claims {
	return &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Role:             "admin",
	}
}

func userClaims(subject string) *models.Claims {
	return &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Role:             "authenticated",
	}
}

func TestSubmitRequiresPrimaryFileContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	_, err := env.content.Write(ctx, proposal.ID, models.PrimaryFile, "   \n\t", "author-1", nil)
	require.NoError(t, err)

	_, err = env.lifecycle.Submit(ctx, proposal.ID, "author-1")
	require.ErrorIs(t, err, domain.ErrValidation)

	reloaded, err := env.proposals.Get(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, reloaded.Status)
	assert.Equal(t, proposal.TransitionVersion, reloaded.TransitionVersion)
}

func TestSubmitAndReturnToDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	submitted, err := env.lifecycle.Submit(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, submitted.Status)
	assert.Equal(t, proposal.TransitionVersion+1, submitted.TransitionVersion)

	returned, err := env.lifecycle.ReturnToDraft(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, returned.Status)
	assert.Equal(t, submitted.TransitionVersion+1, returned.TransitionVersion)
}

func TestSubmitAuthorOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	_, err := env.lifecycle.Submit(ctx, proposal.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestMarkReadyBlockedByOpenComments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")
	submitForReview(t, env, proposal, "author-1")

	comment, err := env.reviews.CreateComment(ctx, proposal.ID, "reviewer-1", &CreateCommentRequest{
		FilePath: models.PrimaryFile,
		Content:  "missing the rollout plan",
	})
	require.NoError(t, err)

	_, err = env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	var unresolved *domain.UnresolvedCommentsError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{comment.ID}, unresolved.BlockingIDs)
	assert.Zero(t, env.validator.validations, "validator must not run while the gate is closed")

	_, err = env.reviews.ResolveComment(ctx, proposal.ID, comment.ID, "author-1", &ResolveCommentRequest{
		Status: models.CommentAccepted,
	})
	require.NoError(t, err)

	ready, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, ready.Status)
	require.NotNil(t, ready.MaterializedPath)

	// the tree is on disk with the current content
	data, err := os.ReadFile(filepath.Join(*ready.MaterializedPath, models.PrimaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Add retention policy")
}

func TestMarkReadyValidationFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")
	reviewed := submitForReview(t, env, proposal, "author-1")

	env.validator.result = &speccli.Result{
		Passed: false,
		Errors: []string{"error: requirement has no scenarios"},
		Output: "error: requirement has no scenarios",
	}

	_, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	var failed *domain.ValidationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, []string{"error: requirement has no scenarios"}, failed.Errors)

	reloaded, err := env.proposals.Get(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, reloaded.Status)
	assert.Equal(t, reviewed.TransitionVersion, reloaded.TransitionVersion)
	assert.Nil(t, reloaded.MaterializedPath)

	// the rejected tree is gone
	treePath := filepath.Join(project.LocalPath, materialize.ChangesDir, proposal.Name)
	_, statErr := os.Stat(treePath)
	assert.True(t, os.IsNotExist(statErr))

	// a fixed-up retry goes through: the failed attempt held nothing back
	env.validator.result = &speccli.Result{Passed: true}
	ready, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, ready.Status)
}

func TestMarkReadyValidatorUnavailableRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")
	submitForReview(t, env, proposal, "author-1")

	env.validator.validateErr = &speccli.TransientError{Err: errors.New("signal: killed")}

	_, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	var unavailable *domain.ValidatorUnavailableError
	require.ErrorAs(t, err, &unavailable)

	reloaded, err := env.proposals.Get(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, reloaded.Status)

	treePath := filepath.Join(project.LocalPath, materialize.ChangesDir, proposal.Name)
	_, statErr := os.Stat(treePath)
	assert.True(t, os.IsNotExist(statErr))
}

// blockingValidator parks Validate calls until released, holding a
// transition mid-flight with its claim taken.
type blockingValidator struct {
	entered chan struct{}
	release chan struct{}
}

func (v *blockingValidator) Validate(ctx context.Context, root, name string) (*speccli.Result, error) {
	v.entered <- struct{}{}
	<-v.release
	return &speccli.Result{Passed: true}, nil
}

func (v *blockingValidator) Archive(ctx context.Context, root, name string) error { return nil }

func TestConcurrentMarkReadyExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")
	submitForReview(t, env, proposal, "author-1")

	gate := &blockingValidator{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	env.lifecycle.validator = gate

	winner := make(chan error, 1)
	go func() {
		_, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
		winner <- err
	}()
	<-gate.entered

	// The first attempt is validating with the claim held. The second must
	// lose before it can materialize over, or delete, the shared tree.
	_, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	close(gate.release)
	require.NoError(t, <-winner)
	assert.Empty(t, gate.entered, "the losing attempt must never reach the validator")

	reloaded, err := env.proposals.Get(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, reloaded.Status)
	require.NotNil(t, reloaded.MaterializedPath)

	// the winner's tree survived the loser
	data, err := os.ReadFile(filepath.Join(*reloaded.MaterializedPath, models.PrimaryFile))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestMergeRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")
	submitForReview(t, env, proposal, "author-1")
	_, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.NoError(t, err)

	_, err = env.lifecycle.Merge(ctx, proposal.ID, userClaims("author-1"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Zero(t, env.validator.archives)

	merged, err := env.lifecycle.Merge(ctx, proposal.ID, adminClaims("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusMerged, merged.Status)
	assert.NotNil(t, merged.MaterializedPath)
	assert.Equal(t, 1, env.validator.archives)
}

func TestMergeRequiresReadyStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	_, err := env.lifecycle.Merge(ctx, proposal.ID, adminClaims("admin-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestMergeArchiveFaultLeavesReady(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")
	submitForReview(t, env, proposal, "author-1")
	ready, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.NoError(t, err)

	env.validator.archiveErr = &speccli.TransientError{Err: errors.New("context deadline exceeded")}

	_, err = env.lifecycle.Merge(ctx, proposal.ID, adminClaims("admin-1"))
	var unavailable *domain.ValidatorUnavailableError
	require.ErrorAs(t, err, &unavailable)

	reloaded, err := env.proposals.Get(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, reloaded.Status)
	assert.Equal(t, ready.TransitionVersion, reloaded.TransitionVersion)

	// once the archiver recovers the merge goes through
	env.validator.archiveErr = nil
	merged, err := env.lifecycle.Merge(ctx, proposal.ID, adminClaims("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusMerged, merged.Status)
}

func TestValidateDraftLeavesNoState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	result, err := env.lifecycle.ValidateDraft(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 1, env.validator.validations)

	reloaded, err := env.proposals.Get(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, reloaded.Status)
	assert.Equal(t, proposal.TransitionVersion, reloaded.TransitionVersion)

	// nothing durable was written under the project root
	_, statErr := os.Stat(filepath.Join(project.LocalPath, materialize.ChangesDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFullLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.createProject(t, "author-1")
	proposal := env.createProposal(t, project.ID, "author-1")

	_, err := env.content.Write(ctx, proposal.ID, "specs/retention/spec.md",
		"## ADDED Requirements\n\n### Requirement: Retention enforcement\n", "author-1", nil)
	require.NoError(t, err)

	submitted, err := env.lifecycle.Submit(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusReview, submitted.Status)

	comment, err := env.reviews.CreateComment(ctx, proposal.ID, "reviewer-1", &CreateCommentRequest{
		FilePath: "specs/retention/spec.md",
		Content:  "name the retention classes explicitly",
	})
	require.NoError(t, err)

	_, err = env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.ErrorAs(t, err, new(*domain.UnresolvedCommentsError))

	_, err = env.reviews.ResolveComment(ctx, proposal.ID, comment.ID, "author-1", &ResolveCommentRequest{
		Status: models.CommentAccepted,
	})
	require.NoError(t, err)

	ready, err := env.lifecycle.MarkReady(ctx, proposal.ID, "author-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusReady, ready.Status)
	require.NotNil(t, ready.MaterializedPath)

	for _, file := range []string{models.PrimaryFile, "tasks.md", "specs/retention/spec.md"} {
		_, statErr := os.Stat(filepath.Join(*ready.MaterializedPath, file))
		assert.NoError(t, statErr, file)
	}

	// READY content is frozen
	_, err = env.content.Write(ctx, proposal.ID, models.PrimaryFile, "late edit", "author-1", nil)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	merged, err := env.lifecycle.Merge(ctx, proposal.ID, adminClaims("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusMerged, merged.Status)

	actions := env.auditRepo.actions()
	assert.Contains(t, actions, models.ActionProposalCreated)
	assert.Contains(t, actions, models.ActionCommentCreated)
	assert.Contains(t, actions, models.ActionTransitionFailed)
	assert.Contains(t, actions, models.ActionCommentResolved)
	assert.Contains(t, actions, models.ActionStatusChanged)
}
