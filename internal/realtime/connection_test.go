package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSocket records written messages
type mockSocket struct {
	mu        sync.Mutex
	messages  []ServerMessage
	deadlines []time.Time
	closed    int
	failNext  bool
}

func (m *mockSocket) WriteJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("broken pipe")
	}
	m.messages = append(m.messages, v.(ServerMessage))
	return nil
}

func (m *mockSocket) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadlines = append(m.deadlines, t)
	return nil
}

func (m *mockSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockSocket) Messages() []ServerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ServerMessage{}, m.messages...)
}

func (m *mockSocket) ofType(t MessageType) []ServerMessage {
	var out []ServerMessage
	for _, msg := range m.Messages() {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockSocket) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// stalledSocket blocks every write until released or closed, like a client
// that stopped reading
type stalledSocket struct {
	mockSocket
	release chan struct{}
	once    sync.Once
}

func newStalledSocket() *stalledSocket {
	return &stalledSocket{release: make(chan struct{})}
}

func (s *stalledSocket) WriteJSON(v interface{}) error {
	<-s.release
	return s.mockSocket.WriteJSON(v)
}

func (s *stalledSocket) unblock() {
	s.once.Do(func() { close(s.release) })
}

func (s *stalledSocket) Close() error {
	s.unblock()
	return s.mockSocket.Close()
}

func testConnectionConfig() ConnectionConfig {
	return ConnectionConfig{QueueSize: 2, WriteTimeout: time.Second}
}

func TestNewConnection(t *testing.T) {
	sock := &mockSocket{}
	conn := NewConnection("conn1", sock, ConnectionConfig{})
	defer conn.Close()

	assert.Equal(t, "conn1", conn.ID)
	assert.Same(t, sock, conn.Conn)
	assert.False(t, conn.ConnectedAt.IsZero())
	assert.Equal(t, DefaultQueueSize, cap(conn.queue))
}

func TestConnection_SendMessage(t *testing.T) {
	sock := &mockSocket{}
	conn := NewConnection("conn1", sock, testConnectionConfig())
	defer conn.Close()

	before := time.Now()
	require.NoError(t, conn.SendMessage(ServerMessage{Type: MessageTypeHeartbeat}))
	require.Len(t, sock.Messages(), 1)
	assert.Equal(t, MessageTypeHeartbeat, sock.Messages()[0].Type)

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.Len(t, sock.deadlines, 1)
	assert.WithinDuration(t, before.Add(time.Second), sock.deadlines[0], 500*time.Millisecond)
}

func TestConnection_NoDeadlineWithoutTimeout(t *testing.T) {
	sock := &mockSocket{}
	conn := NewConnection("conn1", sock, ConnectionConfig{})
	defer conn.Close()

	require.NoError(t, conn.SendMessage(ServerMessage{Type: MessageTypeHeartbeat}))
	sock.mu.Lock()
	defer sock.mu.Unlock()
	assert.Empty(t, sock.deadlines)
}

func TestConnection_Close(t *testing.T) {
	sock := &mockSocket{}
	conn := NewConnection("conn1", sock, testConnectionConfig())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, sock.Closed())

	err := conn.SendMessage(ServerMessage{Type: MessageTypeHeartbeat})
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.Enqueue(ServerMessage{Type: MessageTypeHeartbeat}), ErrConnectionClosed)
	assert.Empty(t, sock.Messages())
}

func TestConnection_ConcurrentSends(t *testing.T) {
	sock := &mockSocket{}
	conn := NewConnection("conn1", sock, testConnectionConfig())
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.SendMessage(ServerMessage{Type: MessageTypeHeartbeat})
		}()
	}
	wg.Wait()

	assert.Len(t, sock.Messages(), 50)
}

func TestConnection_EnqueueDelivers(t *testing.T) {
	sock := &mockSocket{}
	conn := NewConnection("conn1", sock, testConnectionConfig())
	defer conn.Close()

	require.NoError(t, conn.Enqueue(ServerMessage{Type: MessageTypeSnapshot}))
	require.NoError(t, conn.Enqueue(ServerMessage{Type: MessageTypeMarkers}))

	require.Eventually(t, func() bool { return len(sock.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := sock.Messages()
	assert.Equal(t, MessageTypeSnapshot, msgs[0].Type)
	assert.Equal(t, MessageTypeMarkers, msgs[1].Type)
}

func TestConnection_EnqueueNeverBlocksOnStalledClient(t *testing.T) {
	sock := newStalledSocket()
	conn := NewConnection("conn1", sock, testConnectionConfig())
	defer conn.Close()

	// the writer takes the first message and blocks inside the socket
	require.NoError(t, conn.Enqueue(ServerMessage{Type: MessageTypeSnapshot, Payload: 0}))
	require.Eventually(t, func() bool { return conn.Queued() == 0 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	var dropped int
	go func() {
		defer close(done)
		for i := 1; i <= 10; i++ {
			if errors.Is(conn.Enqueue(ServerMessage{Type: MessageTypeSnapshot, Payload: i}), ErrMessageDropped) {
				dropped++
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a stalled client")
	}
	assert.Equal(t, 8, dropped)
	assert.Equal(t, 2, conn.Queued())

	// once the client reads again it gets the newest messages
	sock.unblock()
	require.Eventually(t, func() bool { return len(sock.Messages()) == 3 }, time.Second, 5*time.Millisecond)
	msgs := sock.Messages()
	assert.Equal(t, 0, msgs[0].Payload)
	assert.Equal(t, 9, msgs[1].Payload)
	assert.Equal(t, 10, msgs[2].Payload)
}

func TestConnection_WriteFailureClosesConnection(t *testing.T) {
	sock := &mockSocket{failNext: true}
	conn := NewConnection("conn1", sock, testConnectionConfig())

	require.NoError(t, conn.Enqueue(ServerMessage{Type: MessageTypeSnapshot}))
	require.Eventually(t, func() bool { return sock.Closed() == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, conn.Enqueue(ServerMessage{Type: MessageTypeSnapshot}), ErrConnectionClosed)
}
