package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case domain.IsQuotaExceeded(err):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrToolNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Internal errors are logged and hidden from the caller.
func (h *Handler) fail(c echo.Context, err error) error {
	status := StatusFor(err)
	resp := domain.ErrorResponse{Success: false, Message: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Message = verr.Message
		resp.Errors = verr.Fields
	}
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		resp.Message = "Internal server error"
	case http.StatusBadGateway:
		h.logger.Warn().Err(err).Str("path", c.Path()).Msg("model call failed")
		resp.Message = domain.ErrModelUnavailable.Error()
	case http.StatusTooManyRequests:
		resp.Message = quotaMessage(err)
	}
	return c.JSON(status, resp)
}

func quotaMessage(err error) string {
	if errors.Is(err, domain.ErrDailyQuotaExceeded) {
		return domain.ErrDailyQuotaExceeded.Error()
	}
	return domain.ErrMonthlyQuotaExceeded.Error()
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Message: msg})
}
