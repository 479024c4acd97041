package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// ErrStreamClosed is returned when writing after the terminal event.
var ErrStreamClosed = errors.New("stream already closed")

// Sink delivers stream events to one client.
type Sink interface {
	Send(ctx context.Context, event domain.StreamEvent) error
}

// emitter writes one agent stream to a sink: start first, exactly one terminal event last,
// nothing after a terminal event or a failed write.
type emitter struct {
	sink       Sink
	delay      time.Duration
	chunkRunes int
	now        func() time.Time

	closed  bool
	sinkErr error
	tokens  int
	partial strings.Builder
}

func newEmitter(sink Sink, delay time.Duration, chunkRunes int, now func() time.Time) *emitter {
	return &emitter{sink: sink, delay: delay, chunkRunes: chunkRunes, now: now}
}

func (e *emitter) send(ctx context.Context, typ domain.EventType, data any) error {
	if e.sinkErr != nil {
		return e.sinkErr
	}
	if e.closed {
		return ErrStreamClosed
	}
	if err := e.sink.Send(ctx, domain.StreamEvent{Type: typ, Data: data}); err != nil {
		e.sinkErr = err
		e.closed = true
		return err
	}
	if typ.Terminal() {
		e.closed = true
	}
	return nil
}

// ToolCall implements Observer.
func (e *emitter) ToolCall(ctx context.Context, name string, args any) error {
	return e.send(ctx, domain.EventTypeToolCall, domain.ToolCallEventData{
		Name:      name,
		Args:      args,
		Timestamp: e.now(),
	})
}

// Delta implements Observer.
func (e *emitter) Delta(ctx context.Context, delta string) error {
	if e.tokens > 0 && e.delay > 0 {
		if err := sleep(ctx, e.delay); err != nil {
			return err
		}
	}
	e.tokens++
	e.partial.WriteString(delta)
	return e.send(ctx, domain.EventTypeToken, domain.TokenEventData{
		Delta:     delta,
		Partial:   e.partial.String(),
		Timestamp: e.now(),
	})
}

// chunk replays a complete text as token events.
func (e *emitter) chunk(ctx context.Context, text string) error {
	for _, part := range llm.SplitRunes(text, e.chunkRunes) {
		if err := e.Delta(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

// fail sends the error event unless the stream is already closed or the client is gone.
func (e *emitter) fail(ctx context.Context, err error) {
	if e.closed || ctx.Err() != nil {
		return
	}
	data := domain.ErrorEventData{Code: ErrorCode(err), Message: err.Error(), Timestamp: e.now()}
	_ = e.send(ctx, domain.EventTypeError, data)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrorCode classifies err for error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrDailyQuotaExceeded):
		return "daily_quota_exceeded"
	case errors.Is(err, domain.ErrMonthlyQuotaExceeded):
		return "monthly_quota_exceeded"
	case errors.Is(err, domain.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return "invalid_request"
	}
	return "internal_error"
}

// StreamAgent answers the last turn of history as a stream of events written to sink.
// Errors returned before the start event (quota, validation) leave the sink untouched, so
// the transport can still answer with a plain error response.
func (s *Service) StreamAgent(ctx context.Context, id domain.Identity, history []domain.ConversationTurn, sink Sink) error {
	release, err := s.admission.Admit(ctx, id.ID)
	if err != nil {
		return err
	}
	defer release()

	started := s.now()
	em := newEmitter(sink, s.cfg.Stream.TokenDelay, s.cfg.Stream.ChunkRunes, s.now)
	if err := em.send(ctx, domain.EventTypeStart, domain.StartEventData{
		Message:   "Processing your request...",
		RequestID: "req_" + uuid.New().String()[:8],
		Timestamp: started,
	}); err != nil {
		return err
	}

	res, err := s.agent.Run(ctx, id, history, em)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("agent stream failed")
		em.fail(ctx, err)
		return err
	}

	if !res.Streamed && res.Response.Type == domain.ResponseTypeText {
		if err := em.chunk(ctx, res.Response.Content); err != nil {
			return err
		}
	}

	return em.send(ctx, domain.EventTypeComplete, domain.CompleteEventData{
		Message:  res.Response.Text(),
		Response: res.Response,
		Usage: domain.UsageData{
			TotalTokens:      res.Usage.Total(),
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			DurationMs:       int(s.now().Sub(started).Milliseconds()),
		},
		ToolCalls: res.ToolCalls,
		Timestamp: s.now(),
	})
}
