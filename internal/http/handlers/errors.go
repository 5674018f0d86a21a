package handlers

import (
	"errors"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/llm"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/service"
)

func badRequest(err error) error {
	return apperr.New(apperr.CodeBadRequest, err.Error())
}

// mapErr translates service errors into the uniform error envelope. Handlers
// validate user input before calling into services, so anything that falls
// through to the default case is a genuine server-side failure.
func (h *Handlers) mapErr(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, repository.ErrKeyNotFound),
		errors.Is(err, repository.ErrKeyInactive):
		return apperr.New(apperr.CodeUnauthorized, "invalid or inactive API key")
	case errors.Is(err, repository.ErrInsufficientCredits):
		return apperr.New(apperr.CodeInsufficientCredits, "insufficient credits").
			WithSuggestion("top up the key before retrying")
	case errors.Is(err, service.ErrBlocked):
		return apperr.New(apperr.CodeBlocked, "target site blocked the request")
	case errors.Is(err, service.ErrNotFound):
		return apperr.New(apperr.CodeNotFound, "resource not found")
	case errors.Is(err, service.ErrNotReady):
		return apperr.New(apperr.CodeNotReady, "job has not finished yet").
			WithSuggestion("poll the job until it reaches a terminal status")
	case errors.Is(err, service.ErrQueueUnavailable):
		return apperr.New(apperr.CodeQueueUnavailable, "job queue unavailable")
	case errors.Is(err, llm.ErrCircuitOpen):
		return apperr.New(apperr.CodeProviderUnavailable, "extraction provider temporarily unavailable")
	}

	h.logger.Error("request failed", "error", err)
	return apperr.New(apperr.CodeServerError, "internal error")
}
