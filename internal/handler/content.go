package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"specflow/internal/httputil"
	"specflow/internal/service"
)

// ContentHandler handles proposal content HTTP requests
type ContentHandler struct {
	content *service.ContentService
	logger  *slog.Logger
}

func NewContentHandler(content *service.ContentService, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{content: content, logger: logger}
}

type writeContentRequest struct {
	Content      string  `json:"content"`
	ChangeReason *string `json:"change_reason,omitempty"`
}

// ListFiles returns all current files of a proposal
// GET /api/proposals/{id}/content
func (h *ContentHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := h.content.ListEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entries)
}

// GetFile returns the current content of one file
// GET /api/proposals/{id}/content/{path...}
func (h *ContentHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	entry, err := h.content.Read(r.Context(), r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entry)
}

// WriteFile saves new content as the file's next version
// PUT /api/proposals/{id}/content/{path...}
func (h *ContentHandler) WriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeContentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.content.Write(r.Context(), r.PathValue("id"), r.PathValue("path"),
		req.Content, httputil.GetUserID(r), req.ChangeReason)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entry)
}

// ListVersions returns a file's history metadata, oldest first
// GET /api/proposals/{id}/versions/{path...}
func (h *ContentHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.content.ListVersions(r.Context(), r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, versions)
}

// GetVersion returns one historical version with content
// GET /api/proposals/{id}/version/{version}/{path...}
func (h *ContentHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(r.PathValue("version"), 10, 64)
	if err != nil || version < 1 {
		httputil.RespondError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	v, err := h.content.GetVersion(r.Context(), r.PathValue("id"), r.PathValue("path"), version)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, v)
}

type rollbackRequest struct {
	Version int64 `json:"version"`
}

// Rollback appends a historical version as the file's newest version
// POST /api/proposals/{id}/rollback/{path...}
func (h *ContentHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version < 1 {
		httputil.RespondError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	entry, err := h.content.Rollback(r.Context(), r.PathValue("id"), r.PathValue("path"),
		req.Version, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entry)
}
