package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/thribhuvan003/task-flow-main/internal/assistant"
	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/taskstore"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps engine errors to HTTP statuses. A rolled back mutation
// reports the status of its cause.
func statusFor(err error) int {
	var (
		ve *domain.ValidationError
		re *domain.RemoteRejectedError
		te *domain.TransportError
	)
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, taskstore.ErrUnknownTask):
		return http.StatusNotFound
	case errors.As(err, &re), errors.Is(err, taskstore.ErrStaleView):
		return http.StatusConflict
	case errors.As(err, &te):
		return http.StatusBadGateway
	case errors.Is(err, taskstore.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, assistant.ErrQuotaExhausted):
		return http.StatusPaymentRequired
	case errors.Is(err, assistant.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
