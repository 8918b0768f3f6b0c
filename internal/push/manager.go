// Package push manages the job-scoped push channel: it opens a websocket
// while a job is running, joins the job's room, and forwards server events
// verbatim to the reconciler. It holds no business state beyond the
// transport handle.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
)

// ErrNoCredential is returned by Attach when no bearer credential is
// configured. Callers degrade to poll-only mode; this is never escalated
// to the operator.
var ErrNoCredential = errors.New("no push channel credential")

// ConnState is the derived connection state. It exists only while a job
// is running.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns the websocket handle for the lifetime of one attachment.
// The handle is created on Attach and destroyed on Detach; there is no
// package-level transport state.
type Manager struct {
	url   string
	token string
	log   *logger.Logger

	// events receives every server frame in arrival order.
	events chan<- domain.Envelope

	mu     sync.Mutex
	state  ConnState
	conn   *websocket.Conn
	jobID  string
	cancel context.CancelFunc
}

// NewManager creates a manager that forwards server frames to events.
func NewManager(cfg *config.SocketConfig, events chan<- domain.Envelope, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Manager{
		url:    cfg.URL,
		token:  cfg.Token,
		events: events,
		log:    log.WithField(logger.FieldComponent, "push"),
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// JobID returns the job the manager is currently attached to, if any.
func (m *Manager) JobID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobID
}

// Attach opens the push channel for a running job and joins its room.
// Without a credential no connection attempt is made and ErrNoCredential
// is returned. A connect failure is returned to the caller, who treats it
// as non-fatal; polling remains the source of truth either way.
func (m *Manager) Attach(ctx context.Context, jobID string) error {
	if m.token == "" {
		return ErrNoCredential
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		already := m.jobID
		m.mu.Unlock()
		if already == jobID {
			return nil
		}
		// Attached to a previous job; tear that down first.
		m.Detach()
		m.mu.Lock()
	}
	m.state = StateConnecting
	m.jobID = jobID
	m.mu.Unlock()

	dialURL, err := m.dialURL()
	if err != nil {
		m.reset()
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		m.reset()
		return fmt.Errorf("push channel connect failed: %w", err)
	}

	// The owning view may have been torn down while the dial was in
	// flight; do not keep state alive in that case.
	if ctx.Err() != nil {
		conn.Close()
		m.reset()
		return ctx.Err()
	}

	join, err := domain.NewEnvelope(domain.EventJoinJob, domain.JoinPayload{JobID: jobID})
	if err != nil {
		conn.Close()
		m.reset()
		return err
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		m.reset()
		return fmt.Errorf("failed to join job room: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.state = StateConnected
	m.conn = conn
	m.cancel = cancel
	m.mu.Unlock()

	m.log.WithField(logger.FieldJobID, jobID).Info("Push channel attached")
	go m.readLoop(loopCtx, conn, jobID)
	return nil
}

// Detach leaves the job room and closes the transport. Safe to call when
// already disconnected.
func (m *Manager) Detach() {
	m.mu.Lock()
	conn := m.conn
	jobID := m.jobID
	cancel := m.cancel
	m.state = StateDisconnected
	m.conn = nil
	m.jobID = ""
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return
	}

	if leave, err := domain.NewEnvelope(domain.EventLeaveJob, domain.JoinPayload{JobID: jobID}); err == nil {
		// Best effort; the close below is what matters.
		_ = conn.WriteJSON(leave)
	}
	conn.Close()
	m.log.WithField(logger.FieldJobID, jobID).Info("Push channel detached")
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, jobID string) {
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			// Expected when Detach closed the connection under us.
			if ctx.Err() == nil {
				m.log.WithField(logger.FieldJobID, jobID).
					Warnf("Push channel read failed, degrading to poll-only: %v", err)
				m.reset()
			}
			return
		}
		select {
		case m.events <- env:
		case <-ctx.Done():
			return
		}
	}
}

// reset drops any transport state without touching the connection; used
// on paths where the connection is already closed or never opened.
func (m *Manager) reset() {
	m.mu.Lock()
	m.state = StateDisconnected
	m.conn = nil
	m.jobID = ""
	m.cancel = nil
	m.mu.Unlock()
}

// dialURL appends the auth handshake parameter to the socket URL.
func (m *Manager) dialURL() (string, error) {
	u, err := url.Parse(m.url)
	if err != nil {
		return "", fmt.Errorf("invalid socket url %q: %w", m.url, err)
	}
	q := u.Query()
	q.Set("token", m.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
