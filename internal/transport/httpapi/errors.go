package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tableside/internal/dispatch"
	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

// Коды ошибок в ответах API.
const (
	CodeInvalidBody      = "INVALID_BODY"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeDedupConflict    = "DEDUP_CONFLICT"
	CodeOrderNotFound    = "ORDER_NOT_FOUND"
	CodeServerBusy       = "SERVER_BUSY"
	CodeInternal         = "INTERNAL"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{ErrorCode: code, Message: message})
}

// classifyError сопоставляет ошибку сервиса HTTP-статусу и коду.
func classifyError(err error) (int, string) {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest, CodeValidationFailed
	case domain.IsNotFound(err):
		return http.StatusNotFound, CodeOrderNotFound
	case domain.IsConflict(err):
		return http.StatusConflict, CodeDedupConflict
	case errors.Is(err, dispatch.ErrBusy),
		errors.Is(err, dispatch.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeServerBusy
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)

	entry := h.logger.WithError(err).WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"error_code": code,
	})
	message := err.Error()
	if status >= http.StatusInternalServerError {
		if status == http.StatusInternalServerError {
			entry.Error("request failed")
			message = "internal error"
		} else {
			entry.Warn("request rejected")
		}
	} else {
		entry.Debug("request failed")
	}

	writeError(w, status, code, message)
}
