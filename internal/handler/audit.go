package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"specflow/internal/domain/repositories"
	"specflow/internal/httputil"
	"specflow/internal/service"
)

// AuditHandler serves the audit trail to admins
type AuditHandler struct {
	audit  *service.AuditRecorder
	logger *slog.Logger
}

func NewAuditHandler(audit *service.AuditRecorder, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ListEvents returns audit events, newest first
// GET /api/audit
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	claims := httputil.GetClaims(r)
	if claims == nil || !claims.IsAdmin() {
		httputil.RespondError(w, http.StatusForbidden, "audit access requires admin authority")
		return
	}

	q := r.URL.Query()
	filter := &repositories.AuditFilter{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			httputil.RespondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	events, err := h.audit.List(r.Context(), filter)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, events)
}
