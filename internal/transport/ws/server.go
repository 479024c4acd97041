// Package ws serves agent streams over websocket connections.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/service"
)

// Server handles websocket connections. Each text message is an agent request
// ({"messages": [...]}) answered by the same events as the SSE endpoint.
type Server struct {
	service  *service.Service
	cfg      config.WSConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new websocket server.
func NewServer(svc *service.Service, cfg config.WSConfig, logger zerolog.Logger) *Server {
	return &Server{
		service: svc,
		cfg:     cfg,
		logger:  logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the connection and serves requests until the client leaves.
// The caller identity must already be in the request context.
func (s *Server) HandleWebSocket(c echo.Context) error {
	id, ok := domain.IdentityFromContext(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Message: domain.ErrUnauthenticated.Error()})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade websocket")
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	incoming := make(chan []byte)
	sink := &connSink{conn: conn, writeTimeout: s.cfg.WriteTimeout}
	go s.readPump(ctx, cancel, conn, incoming)
	go s.pingPump(ctx, cancel, sink)

	s.logger.Debug().Str("user_id", id.ID).Msg("websocket connected")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-incoming:
			s.handleMessage(ctx, sink, id, msg)
			if sink.failed() != nil {
				return nil
			}
		}
	}
}

// pingPump keeps the peer's pongs coming while a request is being served.
func (s *Server) pingPump(ctx context.Context, cancel context.CancelFunc, sink *connSink) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				cancel()
				return
			}
		}
	}
}

// readPump reads messages until the connection fails, then cancels ctx.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, incoming chan<- []byte) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		select {
		case incoming <- message:
		case <-ctx.Done():
			return
		}
		// The hand-off waits for the previous request to finish.
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

// handleMessage answers one agent request. Requests rejected before the stream starts are
// answered with a single error event.
func (s *Server) handleMessage(ctx context.Context, sink *connSink, id domain.Identity, data []byte) {
	var req domain.AgentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(ctx, sink, "invalid_message", "invalid JSON message")
		return
	}
	if err := req.Validate(); err != nil {
		s.sendError(ctx, sink, "invalid_request", err.Error())
		return
	}

	sink.sent = 0
	err := s.service.StreamAgent(ctx, id, req.Messages, sink)
	if err == nil {
		return
	}
	if sink.sent == 0 && sink.failed() == nil && ctx.Err() == nil {
		s.sendError(ctx, sink, service.ErrorCode(err), err.Error())
		return
	}
	s.logger.Debug().Err(err).Str("user_id", id.ID).Msg("stream ended early")
}

func (s *Server) sendError(ctx context.Context, sink *connSink, code, message string) {
	_ = sink.Send(ctx, domain.StreamEvent{
		Type: domain.EventTypeError,
		Data: domain.ErrorEventData{Code: code, Message: message, Timestamp: time.Now()},
	})
}

// connSink writes stream events as JSON text messages. Writes are serialized since pings
// go out from their own goroutine.
type connSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	sent         int // written by the serving goroutine only

	mu  sync.Mutex
	err error
}

func (s *connSink) Send(ctx context.Context, ev domain.StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.err = err
		return err
	}
	s.sent++
	return nil
}

func (s *connSink) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.err = err
		return err
	}
	return nil
}

func (s *connSink) failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
