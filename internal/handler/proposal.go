package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
	"specflow/internal/httputil"
	"specflow/internal/service"
)

// ProposalHandler handles proposal CRUD and lifecycle HTTP requests
type ProposalHandler struct {
	proposals *service.ProposalService
	lifecycle *service.LifecycleService
	iteration *service.IterationService
	logger    *slog.Logger
}

func NewProposalHandler(
	proposals *service.ProposalService,
	lifecycle *service.LifecycleService,
	iteration *service.IterationService,
	logger *slog.Logger,
) *ProposalHandler {
	return &ProposalHandler{
		proposals: proposals,
		lifecycle: lifecycle,
		iteration: iteration,
		logger:    logger,
	}
}

// CreateProposal makes a DRAFT proposal with seeded content
// POST /api/projects/{id}/proposals
func (h *ProposalHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project ID is required")
		return
	}

	var req service.CreateProposalRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	proposal, err := h.proposals.Create(r.Context(), projectID, httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, proposal)
}

// ListProposals returns a project's proposals
// GET /api/projects/{id}/proposals
func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project ID is required")
		return
	}

	filter := &repositories.ProposalFilter{
		Search: r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.ProposalStatus(raw)
		if !status.Valid() {
			httputil.RespondError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			httputil.RespondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	proposals, err := h.proposals.List(r.Context(), projectID, filter)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, proposals)
}

// GetProposal returns one proposal
// GET /api/proposals/{id}
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.proposals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, proposal)
}

// DeleteProposal hard-deletes a DRAFT proposal
// DELETE /api/proposals/{id}
func (h *ProposalHandler) DeleteProposal(w http.ResponseWriter, r *http.Request) {
	if err := h.proposals.Delete(r.Context(), r.PathValue("id"), httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetireProposal soft-retires a proposal, hiding it from listings
// POST /api/proposals/{id}/retire
func (h *ProposalHandler) RetireProposal(w http.ResponseWriter, r *http.Request) {
	if err := h.proposals.Retire(r.Context(), r.PathValue("id"), httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit moves DRAFT -> REVIEW
// POST /api/proposals/{id}/submit
func (h *ProposalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.lifecycle.Submit(r.Context(), r.PathValue("id"), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, proposal)
}

// ReturnToDraft moves REVIEW -> DRAFT
// POST /api/proposals/{id}/return-to-draft
func (h *ProposalHandler) ReturnToDraft(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.lifecycle.ReturnToDraft(r.Context(), r.PathValue("id"), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, proposal)
}

// MarkReady moves REVIEW -> READY after materialization and validation
// POST /api/proposals/{id}/mark-ready
func (h *ProposalHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.lifecycle.MarkReady(r.Context(), r.PathValue("id"), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, proposal)
}

// Merge moves READY -> MERGED; requires admin authority
// POST /api/proposals/{id}/merge
func (h *ProposalHandler) Merge(w http.ResponseWriter, r *http.Request) {
	claims := httputil.GetClaims(r)
	if claims == nil {
		httputil.RespondError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	proposal, err := h.lifecycle.Merge(r.Context(), r.PathValue("id"), claims)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, proposal)
}

// ValidateDraft runs the validator against an ephemeral staging of the
// current content; no state changes
// POST /api/proposals/{id}/validate-draft
func (h *ProposalHandler) ValidateDraft(w http.ResponseWriter, r *http.Request) {
	result, err := h.lifecycle.ValidateDraft(r.Context(), r.PathValue("id"), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// Iterate revises one file with the LLM
// POST /api/proposals/{id}/iterate/{path...}
func (h *ProposalHandler) Iterate(w http.ResponseWriter, r *http.Request) {
	filePath := r.PathValue("path")
	if filePath == "" {
		httputil.RespondError(w, http.StatusBadRequest, "file path is required")
		return
	}

	var req service.IterateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.iteration.Iterate(r.Context(), r.PathValue("id"), filePath, httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// Usage lists the proposal's recorded LLM usage
// GET /api/proposals/{id}/usage
func (h *ProposalHandler) Usage(w http.ResponseWriter, r *http.Request) {
	records, err := h.iteration.Usage(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, records)
}
