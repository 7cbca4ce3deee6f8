package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

// Session is the pipeline the editors drive. *pipeline.Orchestrator implements it.
type Session interface {
	SetSource(source string) error
	SetOptions(minify session.MinifyMode, entry session.EntryStrategy, transpile bool) error
	SetView(view session.View) error
	Snapshot() *pipeline.Snapshot
}

// HandlerConfig holds websocket settings
type HandlerConfig struct {
	PingInterval     time.Duration
	MessageSizeLimit int64
	ReadBufferSize   int
	WriteBufferSize  int
}

// DefaultHandlerConfig returns the defaults used when no config is given
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:     30 * time.Second,
		MessageSizeLimit: 1024 * 1024,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// RealtimeHandler handles WebSocket connections
type RealtimeHandler struct {
	manager *Manager
	session Session
	cfg     HandlerConfig
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(manager *Manager, sess Session, cfg HandlerConfig) *RealtimeHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultHandlerConfig().PingInterval
	}
	return &RealtimeHandler{
		manager: manager,
		session: sess,
		cfg:     cfg,
	}
}

// HandleWebSocket handles WebSocket upgrade and communication
func (h *RealtimeHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	if limit := h.manager.maxConnections; limit > 0 && h.manager.GetConnectionCount() >= limit {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": ErrTooManyConnections.Error(),
		})
	}

	return websocket.New(h.handleConnection, websocket.Config{
		ReadBufferSize:  h.cfg.ReadBufferSize,
		WriteBufferSize: h.cfg.WriteBufferSize,
	})(c)
}

// handleConnection handles an individual WebSocket connection
func (h *RealtimeHandler) handleConnection(c *websocket.Conn) {
	connectionID := uuid.New().String()

	connection, err := h.manager.AddConnection(connectionID, c)
	if err != nil {
		_ = c.WriteJSON(ServerMessage{Type: MessageTypeError, Error: err.Error()})
		_ = c.Close()
		return
	}
	defer h.manager.RemoveConnection(connectionID)

	if h.cfg.MessageSizeLimit > 0 {
		c.SetReadLimit(h.cfg.MessageSizeLimit)
	}

	h.sendInitialState(connection)

	done := make(chan struct{})
	defer close(done)
	go h.heartbeat(connection, done)

	for {
		var msg ClientMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", connectionID).Msg("WebSocket error")
			}
			return
		}

		h.handleMessage(connection, msg)
	}
}

func (h *RealtimeHandler) heartbeat(conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.SendMessage(ServerMessage{Type: MessageTypeHeartbeat}); err != nil {
				log.Debug().Err(err).Str("connection_id", conn.ID).Msg("Heartbeat failed")
				return
			}
		}
	}
}

// sendInitialState brings a freshly connected editor up to date
func (h *RealtimeHandler) sendInitialState(conn *Connection) {
	snap := h.session.Snapshot()
	if snap == nil {
		return
	}

	for _, msg := range []ServerMessage{
		{Type: MessageTypeSnapshot, Payload: snap},
		{Type: MessageTypeMarkers, Payload: snap.Markers},
		{Type: MessageTypeFragment, Payload: FragmentPayload{Fragment: snap.Fragment}},
	} {
		if err := conn.SendMessage(msg); err != nil {
			log.Debug().Err(err).Str("connection_id", conn.ID).Msg("Failed to send initial state")
			return
		}
	}
}

// handleMessage processes a client message
func (h *RealtimeHandler) handleMessage(conn *Connection, msg ClientMessage) {
	if msg.Type == MessageTypeHeartbeat {
		_ = conn.SendMessage(ServerMessage{Type: MessageTypeHeartbeat})
		return
	}

	if err := h.apply(msg); err != nil {
		if h.manager.metrics != nil {
			h.manager.metrics.RecordRealtimeError("invalid_message")
		}
		_ = conn.SendMessage(ServerMessage{Type: MessageTypeError, Error: err.Error()})
		return
	}

	_ = conn.SendMessage(ServerMessage{
		Type:    MessageTypeAck,
		Payload: map[string]interface{}{"type": msg.Type},
	})
}

func (h *RealtimeHandler) apply(msg ClientMessage) error {
	switch msg.Type {
	case MessageTypeEdit:
		var p EditPayload
		if err := decodePayload(msg, &p); err != nil {
			return err
		}
		return h.session.SetSource(p.Source)

	case MessageTypeOptions:
		var p OptionsPayload
		if err := decodePayload(msg, &p); err != nil {
			return err
		}
		minify, err := session.ParseMinifyMode(p.Minify)
		if err != nil {
			return err
		}
		entry, err := session.ParseEntryStrategy(p.EntryStrategy)
		if err != nil {
			return err
		}
		return h.session.SetOptions(minify, entry, p.Transpile)

	case MessageTypeView:
		var p ViewPayload
		if err := decodePayload(msg, &p); err != nil {
			return err
		}
		view, err := session.ParseView(p.View)
		if err != nil {
			return err
		}
		return h.session.SetView(view)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func decodePayload(msg ClientMessage, v interface{}) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%s: payload is required", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", msg.Type, err)
	}
	return nil
}

// GetStats returns realtime statistics
func (h *RealtimeHandler) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"connections": h.manager.GetConnectionCount(),
		"mounted":     h.manager.mapper != nil && h.manager.mapper.Attached(),
	}
}
