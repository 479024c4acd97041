package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// CallAgent answers the last message of the conversation.
// POST /v1/agent
func (h *Handler) CallAgent(c echo.Context) error {
	req, err := bindAgentRequest(c)
	if err != nil {
		return h.fail(c, err)
	}

	res, err := h.service.CallAgent(c.Request().Context(), identity(c), req.Messages)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, domain.APIResponse{Success: true, Data: res.Response})
}

// StreamAgent answers the last message as server-sent events.
// POST /v1/agent/stream
func (h *Handler) StreamAgent(c echo.Context) error {
	req, err := bindAgentRequest(c)
	if err != nil {
		return h.fail(c, err)
	}

	sink := &sseSink{c: c}
	err = h.service.StreamAgent(c.Request().Context(), identity(c), req.Messages, sink)
	if err != nil && !sink.started {
		return h.fail(c, err)
	}
	if err != nil {
		// The error event, if any, is already on the wire.
		h.logger.Debug().Err(err).Msg("stream ended early")
	}
	return nil
}

func bindAgentRequest(c echo.Context) (*domain.AgentRequest, error) {
	var req domain.AgentRequest
	if err := c.Bind(&req); err != nil {
		return nil, domain.NewValidationError("Messages array is required",
			domain.FieldError{Field: "messages", Message: "must be an array of {role, content}"})
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// sseSink writes stream events as server-sent events. Headers go out with the first event,
// so a request rejected before streaming still gets a plain JSON error.
type sseSink struct {
	c       echo.Context
	started bool
}

func (s *sseSink) Send(ctx context.Context, ev domain.StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}

	w := s.c.Response()
	if !s.started {
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set(echo.HeaderCacheControl, "no-cache")
		w.Header().Set(echo.HeaderConnection, "keep-alive")
		w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
