package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

type fakeSession struct {
	mu      sync.Mutex
	state   session.State
	calls   []string
	failErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: session.Default()}
}

func (f *fakeSession) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failErr
}

func (f *fakeSession) SetSource(source string) error {
	f.state = f.state.WithSource(source)
	return f.record("source")
}

func (f *fakeSession) SetOptions(minify session.MinifyMode, entry session.EntryStrategy, transpile bool) error {
	f.state = f.state.WithOptions(minify, entry, transpile)
	return f.record("options")
}

func (f *fakeSession) SetView(view session.View) error {
	f.state = f.state.WithView(view)
	return f.record("view")
}

func (f *fakeSession) Snapshot() *pipeline.Snapshot {
	return &pipeline.Snapshot{
		Generation: 2,
		State:      f.state,
		Fragment:   "#seed",
		Phase:      pipeline.PhaseIdle,
		Markers:    []diagnostics.Marker{{Severity: diagnostics.SeverityError, Message: "boom", StartLineNumber: 1, StartColumn: 1, EndLineNumber: 1, EndColumn: 2}},
	}
}

func newTestHandler(t *testing.T) (*RealtimeHandler, *fakeSession, *Connection, *mockSocket) {
	t.Helper()
	manager := NewManager(context.Background())
	sess := newFakeSession()
	h := NewRealtimeHandler(manager, sess, DefaultHandlerConfig())

	sock := &mockSocket{}
	conn, err := manager.AddConnection("conn1", sock)
	require.NoError(t, err)
	return h, sess, conn, sock
}

func clientMessage(t *testing.T, typ MessageType, payload interface{}) ClientMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return ClientMessage{Type: typ, Payload: raw}
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       func(t *testing.T) ClientMessage
		wantType  MessageType
		wantCall  string
		wantState func(t *testing.T, s session.State)
	}{
		{
			name:     "edit",
			msg:      func(t *testing.T) ClientMessage { return clientMessage(t, MessageTypeEdit, EditPayload{Source: "let a = 1"}) },
			wantType: MessageTypeAck,
			wantCall: "source",
			wantState: func(t *testing.T, s session.State) {
				assert.Equal(t, "let a = 1", s.Source)
			},
		},
		{
			name: "options",
			msg: func(t *testing.T) ClientMessage {
				return clientMessage(t, MessageTypeOptions, OptionsPayload{Minify: "simplify", EntryStrategy: "hook", Transpile: true})
			},
			wantType: MessageTypeAck,
			wantCall: "options",
			wantState: func(t *testing.T, s session.State) {
				assert.Equal(t, session.MinifySimplify, s.Minify)
				assert.Equal(t, session.EntryHook, s.EntryStrategy)
				assert.True(t, s.Transpile)
			},
		},
		{
			name:     "legacy view name",
			msg:      func(t *testing.T) ClientMessage { return clientMessage(t, MessageTypeView, ViewPayload{View: "chunks"}) },
			wantType: MessageTypeAck,
			wantCall: "view",
			wantState: func(t *testing.T, s session.State) {
				assert.Equal(t, session.ViewBundles, s.View)
			},
		},
		{
			name: "invalid minify",
			msg: func(t *testing.T) ClientMessage {
				return clientMessage(t, MessageTypeOptions, OptionsPayload{Minify: "aggressive", EntryStrategy: "smart"})
			},
			wantType: MessageTypeError,
		},
		{
			name:     "missing payload",
			msg:      func(t *testing.T) ClientMessage { return ClientMessage{Type: MessageTypeEdit} },
			wantType: MessageTypeError,
		},
		{
			name:     "malformed payload",
			msg:      func(t *testing.T) ClientMessage { return ClientMessage{Type: MessageTypeView, Payload: json.RawMessage(`[1]`)} },
			wantType: MessageTypeError,
		},
		{
			name:     "unknown type",
			msg:      func(t *testing.T) ClientMessage { return ClientMessage{Type: "subscribe"} },
			wantType: MessageTypeError,
		},
		{
			name:     "heartbeat",
			msg:      func(t *testing.T) ClientMessage { return ClientMessage{Type: MessageTypeHeartbeat} },
			wantType: MessageTypeHeartbeat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sess, conn, sock := newTestHandler(t)

			h.handleMessage(conn, tt.msg(t))

			msgs := sock.Messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantType, msgs[0].Type)
			if tt.wantType == MessageTypeError {
				assert.NotEmpty(t, msgs[0].Error)
			}
			if tt.wantCall != "" {
				assert.Equal(t, []string{tt.wantCall}, sess.calls)
			} else {
				assert.Empty(t, sess.calls)
			}
			if tt.wantState != nil {
				tt.wantState(t, sess.state)
			}
		})
	}
}

func TestHandleMessage_SessionError(t *testing.T) {
	h, sess, conn, sock := newTestHandler(t)
	sess.failErr = errors.New("source is not valid UTF-8")

	h.handleMessage(conn, clientMessage(t, MessageTypeEdit, EditPayload{Source: "x"}))

	msgs := sock.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageTypeError, msgs[0].Type)
	assert.Equal(t, "source is not valid UTF-8", msgs[0].Error)
}

func TestSendInitialState(t *testing.T) {
	h, _, conn, sock := newTestHandler(t)

	h.sendInitialState(conn)

	msgs := sock.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, MessageTypeSnapshot, msgs[0].Type)
	assert.Equal(t, uint64(2), msgs[0].Payload.(*pipeline.Snapshot).Generation)
	assert.Equal(t, MessageTypeMarkers, msgs[1].Type)
	assert.Len(t, msgs[1].Payload, 1)
	assert.Equal(t, FragmentPayload{Fragment: "#seed"}, msgs[2].Payload)
}

func TestHandleWebSocket_RequiresUpgrade(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	app := fiber.New()
	app.Get("/ws", h.HandleWebSocket)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestGetStats(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	stats := h.GetStats()
	assert.Equal(t, 1, stats["connections"])
	assert.Equal(t, false, stats["mounted"])
}
