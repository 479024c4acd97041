// Package v1 provides the HTTP handlers of the /v1 API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/internal/auth"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	tokens  *auth.TokenService
	logger  zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, tokens *auth.TokenService, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		tokens:  tokens,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the API routes. limiter guards the routes that reach the agent or a tool.
func (h *Handler) RegisterRoutes(e *echo.Echo, limiter echo.MiddlewareFunc) {
	e.GET("/health", h.Health)

	e.GET("/v1", h.GetConfig, h.RequireAuth)
	e.GET("/v1/welcome", h.Welcome, h.RequireAuth, limiter)
	e.GET("/v1/usage", h.GetUsage, h.RequireAuth)

	// Agent API
	e.POST("/v1/agent", h.CallAgent, h.RequireAuth, limiter)
	e.POST("/v1/agent/stream", h.StreamAgent, h.RequireAuth, limiter)

	// Tool API
	e.POST("/v1/call", h.CallTool, h.RequireAuth, limiter)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":     true,
		"status": "healthy",
	})
}

// GetConfig lists the registered tools.
func (h *Handler) GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.APIResponse{
		Success: true,
		Data:    domain.ConfigResponse{Tools: h.service.ToolNames()},
	})
}

// Welcome returns the main menu.
func (h *Handler) Welcome(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.APIResponse{Success: true, Data: service.Welcome()})
}

// GetUsage returns the caller's usage counters.
func (h *Handler) GetUsage(c echo.Context) error {
	snap, err := h.service.Usage(c.Request().Context(), identity(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, domain.APIResponse{Success: true, Data: snap})
}
