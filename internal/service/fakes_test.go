package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
	"specflow/internal/materialize"
	"specflow/internal/metrics"
	"specflow/internal/speccli"
)

// In-memory repository fakes. They honor the same error contracts as the
// postgres implementations so services can be exercised without a database.

type fakeTxManager struct{}

func (fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type fakeProposalRepo struct {
	mu        sync.Mutex
	proposals map[string]models.Proposal
}

func newFakeProposalRepo() *fakeProposalRepo {
	return &fakeProposalRepo{proposals: make(map[string]models.Proposal)}
}

func (r *fakeProposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.proposals {
		if existing.ProjectID == p.ProjectID && existing.Name == p.Name {
			return &domain.ConflictError{Message: "proposal already exists", ResourceType: "proposal", ResourceID: existing.ID}
		}
	}
	r.proposals[p.ID] = *p
	return nil
}

func (r *fakeProposalRepo) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok || p.RetiredAt != nil {
		return nil, &domain.NotFoundError{Message: "proposal not found"}
	}
	cp := p
	return &cp, nil
}

func (r *fakeProposalRepo) GetByName(ctx context.Context, projectID, name string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.proposals {
		if p.ProjectID == projectID && p.Name == name && p.RetiredAt == nil {
			cp := p
			return &cp, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "proposal not found"}
}

func (r *fakeProposalRepo) ListByProject(ctx context.Context, projectID string, filter *repositories.ProposalFilter) ([]models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Proposal
	for _, p := range r.proposals {
		if p.ProjectID != projectID || p.RetiredAt != nil {
			continue
		}
		if filter != nil && filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter != nil && filter.Search != "" && !strings.Contains(p.Name, filter.Search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeProposalRepo) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status models.ProposalStatus, materializedPath *string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok || p.RetiredAt != nil {
		return nil, &domain.NotFoundError{Message: "proposal not found"}
	}
	if p.TransitionVersion != expectedVersion {
		return nil, domain.ErrConcurrentModification
	}
	p.Status = status
	p.MaterializedPath = materializedPath
	p.TransitionVersion++
	p.TransitionClaimed = false
	r.proposals[id] = p
	cp := p
	return &cp, nil
}

func (r *fakeProposalRepo) ClaimTransition(ctx context.Context, id string, expectedVersion int64) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok || p.RetiredAt != nil {
		return nil, &domain.NotFoundError{Message: "proposal not found"}
	}
	if p.TransitionVersion != expectedVersion || p.TransitionClaimed {
		return nil, domain.ErrConcurrentModification
	}
	p.TransitionClaimed = true
	r.proposals[id] = p
	cp := p
	return &cp, nil
}

func (r *fakeProposalRepo) ReleaseTransition(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil
	}
	p.TransitionClaimed = false
	r.proposals[id] = p
	return nil
}

func (r *fakeProposalRepo) Touch(ctx context.Context, id string) error { return nil }

func (r *fakeProposalRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.proposals, id)
	return nil
}

func (r *fakeProposalRepo) Retire(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return &domain.NotFoundError{Message: "proposal not found"}
	}
	now := p.UpdatedAt
	p.RetiredAt = &now
	r.proposals[id] = p
	return nil
}

type contentKey struct{ proposalID, filePath string }

type fakeContentRepo struct {
	mu       sync.Mutex
	entries  map[contentKey]models.ContentEntry
	versions []models.ContentVersion
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{entries: make(map[contentKey]models.ContentEntry)}
}

func (r *fakeContentRepo) GetEntry(ctx context.Context, proposalID, filePath string) (*models.ContentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[contentKey{proposalID, filePath}]
	if !ok {
		return nil, &domain.NotFoundError{Message: "content not found"}
	}
	cp := e
	return &cp, nil
}

func (r *fakeContentRepo) ListEntries(ctx context.Context, proposalID string) ([]models.ContentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ContentEntry
	for k, e := range r.entries {
		if k.proposalID == proposalID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (r *fakeContentRepo) UpsertEntry(ctx context.Context, entry *models.ContentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[contentKey{entry.ProposalID, entry.FilePath}] = *entry
	return nil
}

func (r *fakeContentRepo) AppendVersion(ctx context.Context, v *models.ContentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.versions {
		if existing.ProposalID == v.ProposalID && existing.FilePath == v.FilePath && existing.Version == v.Version {
			return &domain.ConflictError{Message: "version already exists", ResourceType: "content_version", ResourceID: existing.ID}
		}
	}
	r.versions = append(r.versions, *v)
	return nil
}

func (r *fakeContentRepo) ListVersions(ctx context.Context, proposalID, filePath string) ([]models.VersionMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.VersionMeta
	for _, v := range r.versions {
		if v.ProposalID == proposalID && v.FilePath == filePath {
			out = append(out, models.VersionMeta{
				ID:           v.ID,
				FilePath:     v.FilePath,
				Version:      v.Version,
				AuthorID:     v.AuthorID,
				CreatedAt:    v.CreatedAt,
				ChangeReason: v.ChangeReason,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *fakeContentRepo) GetVersion(ctx context.Context, proposalID, filePath string, version int64) (*models.ContentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.ProposalID == proposalID && v.FilePath == filePath && v.Version == version {
			cp := v
			return &cp, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "version not found"}
}

func (r *fakeContentRepo) Snapshot(ctx context.Context, proposalID string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(models.Snapshot)
	for k, e := range r.entries {
		if k.proposalID == proposalID {
			snapshot[k.filePath] = e.Content
		}
	}
	return snapshot, nil
}

func (r *fakeContentRepo) DeleteAllByProposal(ctx context.Context, proposalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		if k.proposalID == proposalID {
			delete(r.entries, k)
		}
	}
	kept := r.versions[:0]
	for _, v := range r.versions {
		if v.ProposalID != proposalID {
			kept = append(kept, v)
		}
	}
	r.versions = kept
	return nil
}

type fakeReviewRepo struct {
	mu       sync.Mutex
	comments map[string]models.ReviewComment
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{comments: make(map[string]models.ReviewComment)}
}

func (r *fakeReviewRepo) Create(ctx context.Context, c *models.ReviewComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[c.ID] = *c
	return nil
}

func (r *fakeReviewRepo) GetByID(ctx context.Context, id, proposalID string) (*models.ReviewComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok || c.ProposalID != proposalID {
		return nil, &domain.NotFoundError{Message: "comment not found"}
	}
	cp := c
	return &cp, nil
}

func (r *fakeReviewRepo) ListByProposal(ctx context.Context, proposalID string, filter *repositories.CommentFilter) ([]models.ReviewComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReviewComment
	for _, c := range r.comments {
		if c.ProposalID != proposalID {
			continue
		}
		if filter != nil && filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter != nil && filter.FilePath != "" && c.FilePath != filter.FilePath {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeReviewRepo) Update(ctx context.Context, c *models.ReviewComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.comments[c.ID]; !ok {
		return &domain.NotFoundError{Message: "comment not found"}
	}
	r.comments[c.ID] = *c
	return nil
}

func (r *fakeReviewRepo) Delete(ctx context.Context, id, proposalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.comments, id)
	return nil
}

func (r *fakeReviewRepo) HasReplies(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.comments {
		if c.ParentID != nil && *c.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReviewRepo) ListOpenIDs(ctx context.Context, proposalID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.comments {
		if c.ProposalID == proposalID && c.Status == models.CommentOpen {
			out = append(out, c.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeReviewRepo) ListSelectedForIteration(ctx context.Context, proposalID, filePath string) ([]models.ReviewComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReviewComment
	for _, c := range r.comments {
		if c.ProposalID != proposalID || c.Status != models.CommentAccepted || !c.SelectedForIteration {
			continue
		}
		if filePath != "" && c.FilePath != filePath {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeReviewRepo) ClearSelection(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if c, ok := r.comments[id]; ok {
			c.SelectedForIteration = false
			r.comments[id] = c
		}
	}
	return nil
}

func (r *fakeReviewRepo) CountByStatus(ctx context.Context, proposalID string) (map[models.CommentStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.CommentStatus]int)
	for _, c := range r.comments {
		if c.ProposalID == proposalID {
			counts[c.Status]++
		}
	}
	return counts, nil
}

func (r *fakeReviewRepo) CountSelected(ctx context.Context, proposalID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.comments {
		if c.ProposalID == proposalID && c.SelectedForIteration {
			n++
		}
	}
	return n, nil
}

func (r *fakeReviewRepo) DeleteAllByProposal(ctx context.Context, proposalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.comments {
		if c.ProposalID == proposalID {
			delete(r.comments, id)
		}
	}
	return nil
}

type fakeProjectRepo struct {
	mu       sync.Mutex
	projects map[string]models.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[string]models.Project)}
}

func (r *fakeProjectRepo) Create(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = *p
	return nil
}

func (r *fakeProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.DeletedAt != nil {
		return nil, &domain.NotFoundError{Message: "project not found"}
	}
	cp := p
	return &cp, nil
}

func (r *fakeProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Project
	for _, p := range r.projects {
		if p.OwnerID == ownerID && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) Update(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = *p
	return nil
}

func (r *fakeProjectRepo) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return &domain.NotFoundError{Message: "project not found"}
	}
	now := p.UpdatedAt
	p.DeletedAt = &now
	r.projects[id] = p
	return nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *fakeAuditRepo) Append(ctx context.Context, e *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, filter *repositories.AuditFilter) ([]models.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditEvent
	for _, e := range r.events {
		if filter != nil {
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type fakeUsageRepo struct {
	mu      sync.Mutex
	records []models.LLMUsage
}

func (r *fakeUsageRepo) Record(ctx context.Context, u *models.LLMUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *u)
	return nil
}

func (r *fakeUsageRepo) ListByProposal(ctx context.Context, proposalID string) ([]models.LLMUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LLMUsage
	for i := len(r.records) - 1; i >= 0; i-- {
		u := r.records[i]
		if u.ProposalID != nil && *u.ProposalID == proposalID {
			out = append(out, u)
		}
	}
	return out, nil
}

// stubValidator returns canned outcomes and records calls.
type stubValidator struct {
	mu          sync.Mutex
	result      *speccli.Result
	validateErr error
	archiveErr  error
	validations int
	archives    int
}

func (v *stubValidator) Validate(ctx context.Context, root, name string) (*speccli.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validations++
	if v.validateErr != nil {
		return nil, v.validateErr
	}
	if v.result != nil {
		return v.result, nil
	}
	return &speccli.Result{Passed: true, Output: "Change is valid"}, nil
}

func (v *stubValidator) Archive(ctx context.Context, root, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.archives++
	return v.archiveErr
}

// testEnv wires every service against the in-memory fakes, a stub
// validator, and a real materializer rooted in a temp directory.
type testEnv struct {
	proposalRepo *fakeProposalRepo
	projectRepo  *fakeProjectRepo
	contentRepo  *fakeContentRepo
	reviewRepo   *fakeReviewRepo
	auditRepo    *fakeAuditRepo
	usageRepo    *fakeUsageRepo
	validator    *stubValidator

	proposals *ProposalService
	content   *ContentService
	reviews   *ReviewService
	lifecycle *LifecycleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	tx := fakeTxManager{}

	env := &testEnv{
		proposalRepo: newFakeProposalRepo(),
		projectRepo:  newFakeProjectRepo(),
		contentRepo:  newFakeContentRepo(),
		reviewRepo:   newFakeReviewRepo(),
		auditRepo:    &fakeAuditRepo{},
		usageRepo:    &fakeUsageRepo{},
		validator:    &stubValidator{},
	}
	audit := NewAuditRecorder(env.auditRepo, logger)
	env.proposals = NewProposalService(env.proposalRepo, env.contentRepo, env.reviewRepo, tx, audit, logger)
	env.content = NewContentService(env.proposalRepo, env.contentRepo, tx, audit, m, logger)
	env.reviews = NewReviewService(env.proposalRepo, env.reviewRepo, tx, audit, logger)
	env.lifecycle = NewLifecycleService(
		env.proposalRepo, env.projectRepo, env.contentRepo, env.reviews,
		materialize.NewMaterializer(logger), env.validator, tx, audit, m, logger,
	)
	return env
}

func (env *testEnv) createProject(t *testing.T, ownerID string) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      "Compliance Docs",
		Slug:      "compliance-docs",
		LocalPath: t.TempDir(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, env.projectRepo.Create(context.Background(), project))
	return project
}

func (env *testEnv) createProposal(t *testing.T, projectID, authorID string) *models.Proposal {
	t.Helper()
	proposal, err := env.proposals.Create(context.Background(), projectID, authorID, &CreateProposalRequest{
		Name:        "add-retention-policy",
		Title:       "Add retention policy",
		Description: "Documents must not outlive their retention class.",
	})
	require.NoError(t, err)
	return proposal
}
