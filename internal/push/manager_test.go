package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// socketServer upgrades connections, records join frames, and lets the
// test push envelopes to the most recent client.
type socketServer struct {
	srv   *httptest.Server
	dials atomic.Int64
	joins chan domain.Envelope
	conns chan *websocket.Conn
	token string
}

func newSocketServer(t *testing.T, token string) *socketServer {
	t.Helper()
	s := &socketServer{
		joins: make(chan domain.Envelope, 8),
		conns: make(chan *websocket.Conn, 8),
		token: token,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.URL.Query().Get("token") != s.token {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.dials.Add(1)
		s.conns <- conn
		go func() {
			for {
				var env domain.Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				s.joins <- env
			}
		}()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *socketServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func waitEnvelope(t *testing.T, ch chan domain.Envelope) domain.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return domain.Envelope{}
	}
}

func TestAttachWithoutCredential(t *testing.T) {
	events := make(chan domain.Envelope, 1)
	m := NewManager(&config.SocketConfig{URL: "ws://localhost:1/socket", Token: ""}, events, nil)

	err := m.Attach(t.Context(), "job-1")
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestAttachJoinsRoomAndForwardsEvents(t *testing.T) {
	server := newSocketServer(t, "tok")
	events := make(chan domain.Envelope, 8)
	m := NewManager(&config.SocketConfig{URL: server.url(), Token: "tok"}, events, nil)
	defer m.Detach()

	require.NoError(t, m.Attach(t.Context(), "job-1"))
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, "job-1", m.JobID())

	// The first frame the server sees is the join for the job's room.
	join := waitEnvelope(t, server.joins)
	assert.Equal(t, domain.EventJoinJob, join.Event)
	var payload domain.JoinPayload
	require.NoError(t, join.Decode(&payload))
	assert.Equal(t, "job-1", payload.JobID)

	// Server frames come through the event sink in arrival order.
	conn := <-server.conns
	env, err := domain.NewEnvelope(domain.EventJobLog, domain.LogEvent{Level: "info", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	got := waitEnvelope(t, events)
	assert.Equal(t, domain.EventJobLog, got.Event)
}

func TestAttachSameJobIsIdempotent(t *testing.T) {
	server := newSocketServer(t, "tok")
	events := make(chan domain.Envelope, 8)
	m := NewManager(&config.SocketConfig{URL: server.url(), Token: "tok"}, events, nil)
	defer m.Detach()

	require.NoError(t, m.Attach(t.Context(), "job-1"))
	require.NoError(t, m.Attach(t.Context(), "job-1"))
	require.NoError(t, m.Attach(t.Context(), "job-1"))

	assert.Equal(t, int64(1), server.dials.Load())
}

func TestAttachNewJobReplacesOldRoom(t *testing.T) {
	server := newSocketServer(t, "tok")
	events := make(chan domain.Envelope, 8)
	m := NewManager(&config.SocketConfig{URL: server.url(), Token: "tok"}, events, nil)
	defer m.Detach()

	require.NoError(t, m.Attach(t.Context(), "job-1"))
	waitEnvelope(t, server.joins)

	require.NoError(t, m.Attach(t.Context(), "job-2"))
	assert.Equal(t, "job-2", m.JobID())
	assert.Equal(t, int64(2), server.dials.Load())
}

func TestDetachIsIdempotent(t *testing.T) {
	server := newSocketServer(t, "tok")
	events := make(chan domain.Envelope, 8)
	m := NewManager(&config.SocketConfig{URL: server.url(), Token: "tok"}, events, nil)

	// Detach before any attach is a no-op.
	m.Detach()
	assert.Equal(t, StateDisconnected, m.State())

	require.NoError(t, m.Attach(t.Context(), "job-1"))
	m.Detach()
	m.Detach()

	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, "", m.JobID())
}

func TestAttachConnectFailureIsNonFatal(t *testing.T) {
	events := make(chan domain.Envelope, 1)
	m := NewManager(&config.SocketConfig{URL: "ws://127.0.0.1:1/socket", Token: "tok"}, events, nil)

	err := m.Attach(t.Context(), "job-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCredential)
	// The manager is reusable after a failed dial.
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, "", m.JobID())
}

func TestAttachCancelledContext(t *testing.T) {
	server := newSocketServer(t, "tok")
	events := make(chan domain.Envelope, 1)
	m := NewManager(&config.SocketConfig{URL: server.url(), Token: "tok"}, events, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Attach(ctx, "job-1")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestServerCloseDegradesToDisconnected(t *testing.T) {
	server := newSocketServer(t, "tok")
	events := make(chan domain.Envelope, 8)
	m := NewManager(&config.SocketConfig{URL: server.url(), Token: "tok"}, events, nil)

	require.NoError(t, m.Attach(t.Context(), "job-1"))
	conn := <-server.conns
	conn.Close()

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond, "manager did not reset after server close")
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
}
