package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/concierge/internal/auth"
	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// AccessTokenParam carries the bearer token on websocket upgrades, where browsers cannot set headers.
const AccessTokenParam = "access_token"

// RequireAuth verifies the bearer token and stores the caller identity in the request context.
func (h *Handler) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil && c.IsWebSocket() && c.QueryParam(AccessTokenParam) != "" {
			token, err = c.QueryParam(AccessTokenParam), nil
		}
		if err != nil {
			return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Message: "Missing or invalid Authorization header"})
		}

		id, err := h.tokens.Verify(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Message: "Invalid or expired token"})
		}

		c.SetRequest(c.Request().WithContext(domain.WithIdentity(c.Request().Context(), id)))
		return next(c)
	}
}

func identity(c echo.Context) domain.Identity {
	id, _ := domain.IdentityFromContext(c.Request().Context())
	return id
}
