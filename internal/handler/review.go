package handler

import (
	"log/slog"
	"net/http"

	"specflow/internal/domain/models"
	"specflow/internal/domain/repositories"
	"specflow/internal/httputil"
	"specflow/internal/service"
)

// ReviewHandler handles review comment HTTP requests
type ReviewHandler struct {
	reviews *service.ReviewService
	logger  *slog.Logger
}

func NewReviewHandler(reviews *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// CreateComment attaches reviewer feedback
// POST /api/proposals/{id}/comments
func (h *ReviewHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviews.CreateComment(r.Context(), r.PathValue("id"), httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, comment)
}

// ListComments returns a proposal's comments
// GET /api/proposals/{id}/comments
func (h *ReviewHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	filter := &repositories.CommentFilter{
		FilePath: r.URL.Query().Get("file_path"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.CommentStatus(raw)
		if !status.Valid() {
			httputil.RespondError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = &status
	}

	comments, err := h.reviews.ListComments(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, comments)
}

// UpdateComment edits the body of an open comment
// PATCH /api/proposals/{id}/comments/{commentID}
func (h *ReviewHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviews.UpdateComment(r.Context(), r.PathValue("id"), r.PathValue("commentID"),
		httputil.GetUserID(r), req.Content)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, comment)
}

// DeleteComment removes an open comment with no replies
// DELETE /api/proposals/{id}/comments/{commentID}
func (h *ReviewHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.reviews.DeleteComment(r.Context(), r.PathValue("id"), r.PathValue("commentID"), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveComment records the author's decision on an open comment
// POST /api/proposals/{id}/comments/{commentID}/resolve
func (h *ReviewHandler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	var req service.ResolveCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviews.ResolveComment(r.Context(), r.PathValue("id"), r.PathValue("commentID"),
		httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, comment)
}

// ReopenComment returns a resolved comment to open
// POST /api/proposals/{id}/comments/{commentID}/reopen
func (h *ReviewHandler) ReopenComment(w http.ResponseWriter, r *http.Request) {
	comment, err := h.reviews.ReopenComment(r.Context(), r.PathValue("id"), r.PathValue("commentID"),
		httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, comment)
}

type selectCommentRequest struct {
	Selected bool `json:"selected"`
}

// SelectComment marks or unmarks an accepted comment for iteration
// POST /api/proposals/{id}/comments/{commentID}/select
func (h *ReviewHandler) SelectComment(w http.ResponseWriter, r *http.Request) {
	var req selectCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviews.SetIterationSelection(r.Context(), r.PathValue("id"), r.PathValue("commentID"),
		httputil.GetUserID(r), req.Selected)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, comment)
}

// CommentStats summarizes a proposal's comments by status
// GET /api/proposals/{id}/comments/stats
func (h *ReviewHandler) CommentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reviews.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, stats)
}
