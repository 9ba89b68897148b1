package handler

import (
	"errors"
	"net/http"

	"specflow/internal/domain"
	"specflow/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var (
		unresolved  *domain.UnresolvedCommentsError
		valFailed   *domain.ValidationFailedError
		unavailable *domain.ValidatorUnavailableError
	)

	switch {
	case errors.As(err, &unresolved):
		httputil.RespondErrorWithExtras(w, unresolved.StatusCode(), unresolved.Error(), map[string]interface{}{
			"blocking_comment_ids": unresolved.BlockingIDs,
		})
	case errors.As(err, &valFailed):
		httputil.RespondErrorWithExtras(w, valFailed.StatusCode(), valFailed.Error(), map[string]interface{}{
			"errors":   valFailed.Errors,
			"warnings": valFailed.Warnings,
		})
	case errors.As(err, &unavailable):
		httputil.RespondError(w, unavailable.StatusCode(), unavailable.Error())
	case errors.Is(err, domain.ErrMissingReason):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	default:
		var httpErr domain.HTTPError
		if errors.As(err, &httpErr) {
			httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
			return
		}
		switch {
		case errors.Is(err, domain.ErrValidation):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrUnauthorized):
			httputil.RespondError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, domain.ErrForbidden):
			httputil.RespondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, domain.ErrConflict):
			httputil.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInvalidState):
			httputil.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrPathTraversal):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}
