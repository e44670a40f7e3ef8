package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/handlers/render"
	"github.com/nkiryanov/courier/internal/logger"
)

// renderError writes the service error with the status code its kind maps to
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrOrderNotFound),
		errors.Is(err, apperrors.ErrWalletNotFound),
		errors.Is(err, apperrors.ErrChannelNotFound),
		errors.Is(err, apperrors.ErrTransactionNotFound),
		errors.Is(err, apperrors.ErrEffectNotFound):
		render.ServiceError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, apperrors.ErrConcurrentModification):
		render.ServiceError(w, "order no longer available", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidTransition):
		render.ServiceError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, apperrors.ErrNotParticipant):
		render.ServiceError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, apperrors.ErrBadRequest),
		errors.Is(err, apperrors.ErrInvalidAmount):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)
	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
