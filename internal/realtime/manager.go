package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/observability"
	"github.com/fluxbase-eu/playground/internal/pubsub"
)

// ErrTooManyConnections is returned when the connection limit is reached
var ErrTooManyConnections = errors.New("too many realtime connections")

// Manager manages all WebSocket connections. While at least one client is
// connected it is mounted on the diagnostics mapper as the editing surface.
type Manager struct {
	ctx            context.Context
	ps             pubsub.PubSub
	mapper         *diagnostics.Mapper
	metrics        *observability.Metrics
	connections    map[string]*Connection
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	mu             sync.RWMutex
	mountMu        sync.Mutex
	maxConnections int
	connCfg        ConnectionConfig
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithPubSub forwards pipeline snapshots and fragments to clients
func WithPubSub(ps pubsub.PubSub) ManagerOption {
	return func(m *Manager) {
		m.ps = ps
	}
}

// WithMapper mounts the manager as the mapper's surface while clients are connected
func WithMapper(mapper *diagnostics.Mapper) ManagerOption {
	return func(m *Manager) {
		m.mapper = mapper
	}
}

// WithMetrics records connection and message metrics
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithMaxConnections limits concurrent clients (0 = unlimited)
func WithMaxConnections(n int) ManagerOption {
	return func(m *Manager) {
		m.maxConnections = n
	}
}

// WithConnectionConfig sets the per-client queue size and write timeout
func WithConnectionConfig(cfg ConnectionConfig) ManagerOption {
	return func(m *Manager) {
		m.connCfg = cfg
	}
}

// NewManager creates a new connection manager
func NewManager(ctx context.Context, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		connections: make(map[string]*Connection),
		ctx:         ctx,
		cancel:      cancel,
		connCfg:     DefaultConnectionConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the pipeline channels. Without a pub/sub backend it
// does nothing.
func (m *Manager) Start() error {
	if m.ps == nil {
		return nil
	}

	snapshots, err := m.ps.Subscribe(m.ctx, pubsub.SnapshotChannel)
	if err != nil {
		return err
	}
	fragments, err := m.ps.Subscribe(m.ctx, pubsub.FragmentChannel)
	if err != nil {
		return err
	}

	m.wg.Add(2)
	go m.forward(snapshots, func(msg pubsub.Message) ServerMessage {
		return ServerMessage{Type: MessageTypeSnapshot, Payload: json.RawMessage(msg.Payload)}
	})
	go m.forward(fragments, func(msg pubsub.Message) ServerMessage {
		return ServerMessage{Type: MessageTypeFragment, Payload: FragmentPayload{Fragment: string(msg.Payload)}}
	})

	log.Info().Msg("Realtime hub subscribed to pipeline channels")
	return nil
}

func (m *Manager) forward(ch <-chan pubsub.Message, convert func(pubsub.Message) ServerMessage) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.Broadcast(convert(msg))
		}
	}
}

// AddConnection registers a new WebSocket connection
func (m *Manager) AddConnection(id string, conn Socket) (*Connection, error) {
	m.mu.Lock()
	if m.maxConnections > 0 && len(m.connections) >= m.maxConnections {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordRealtimeError("connection_limit")
		}
		return nil, ErrTooManyConnections
	}
	connection := NewConnection(id, conn, m.connCfg)
	m.connections[id] = connection
	m.mu.Unlock()

	m.syncMount()
	m.updateMetrics()

	log.Info().Str("connection_id", id).Msg("New WebSocket connection")
	return connection, nil
}

// RemoveConnection removes and closes a WebSocket connection
func (m *Manager) RemoveConnection(id string) {
	m.mu.Lock()
	connection, exists := m.connections[id]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.connections, id)
	m.mu.Unlock()

	_ = connection.Close()

	m.syncMount()
	m.updateMetrics()

	log.Info().Str("connection_id", id).Msg("WebSocket connection closed")
}

// syncMount attaches the manager to the mapper while clients are connected
// and detaches it once the last one leaves
func (m *Manager) syncMount() {
	if m.mapper == nil {
		return
	}

	m.mountMu.Lock()
	defer m.mountMu.Unlock()

	if m.GetConnectionCount() > 0 {
		if !m.mapper.Attached() {
			m.mapper.Attach(m)
			log.Debug().Msg("Editing surface mounted")
		}
		return
	}
	if m.mapper.Attached() {
		m.mapper.Detach()
		log.Debug().Msg("Editing surface unmounted")
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Broadcast queues a message on every connection and returns how many
// accepted it. It never waits on a client's socket, so it is safe to call
// from the pipeline loop.
func (m *Manager) Broadcast(message ServerMessage) int {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		err := conn.Enqueue(message)
		switch {
		case err == nil:
		case errors.Is(err, ErrMessageDropped):
			log.Debug().
				Str("connection_id", conn.ID).
				Str("type", string(message.Type)).
				Msg("Slow client skipped a message")
			if m.metrics != nil {
				m.metrics.RecordRealtimeError("send_dropped")
			}
		default:
			log.Debug().
				Err(err).
				Str("connection_id", conn.ID).
				Str("type", string(message.Type)).
				Msg("Failed to send message to connection")
			if m.metrics != nil {
				m.metrics.RecordRealtimeError("send_failed")
			}
			continue
		}
		sent++
		if m.metrics != nil {
			m.metrics.RecordRealtimeMessage(string(message.Type))
		}
	}

	return sent
}

// SetMarkers queues markers for every connected editor without waiting for
// their sockets
func (m *Manager) SetMarkers(markers []diagnostics.Marker) error {
	if markers == nil {
		markers = []diagnostics.Marker{}
	}
	if m.Broadcast(ServerMessage{Type: MessageTypeMarkers, Payload: markers}) == 0 {
		return ErrNoClients
	}
	return nil
}

func (m *Manager) updateMetrics() {
	if m.metrics == nil {
		return
	}
	m.metrics.UpdateRealtimeStats(m.GetConnectionCount())
}

// Shutdown closes every connection and stops forwarding pipeline events
func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.Lock()
	connsToClose := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		connsToClose = append(connsToClose, conn)
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()

	for _, conn := range connsToClose {
		_ = conn.Close()
		log.Info().Str("connection_id", conn.ID).Msg("Closed connection during shutdown")
	}

	m.syncMount()
	m.wg.Wait()
}

var _ diagnostics.Surface = (*Manager)(nil)
