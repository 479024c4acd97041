package v1

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// CallTool runs one tool directly.
// POST /v1/call
func (h *Handler) CallTool(c echo.Context) error {
	var req domain.CallToolRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Body must be a JSON object")
	}
	if req.Tool == "" {
		return badRequest(c, `Missing "tool" (string).`)
	}
	if params := bytes.TrimSpace(req.Params); len(params) == 0 || params[0] != '{' {
		return badRequest(c, `Missing "params" (object).`)
	}

	result, err := h.service.CallTool(c.Request().Context(), identity(c), req.Tool, req.Params)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, domain.APIResponse{
		Success: true,
		Data:    domain.CallToolResponse{Tool: req.Tool, Result: result},
	})
}
