package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
)

// SocketHub tracks push channel connections and the job room each one has
// joined. Events for a job are delivered only to observers in that job's
// room.
type SocketHub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]bool
	conns map[*websocket.Conn]string
}

// NewSocketHub creates an empty hub.
func NewSocketHub(log *logger.Logger) *SocketHub {
	if log == nil {
		log = logger.GetDefault()
	}
	return &SocketHub{
		log:   log.WithField(logger.FieldComponent, "socket"),
		rooms: make(map[string]map[*websocket.Conn]bool),
		conns: make(map[*websocket.Conn]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the gin handler for the socket endpoint. The bearer
// credential arrives as the token handshake query parameter; a missing or
// wrong token is rejected before the upgrade.
func (h *SocketHub) Handler(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" && c.Query("token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warnf("Socket upgrade failed: %v", err)
			return
		}
		go h.readLoop(conn)
	}
}

// readLoop consumes join_job / leave_job frames until the peer goes away.
func (h *SocketHub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		var payload domain.JoinPayload
		if err := env.Decode(&payload); err != nil || payload.JobID == "" {
			continue
		}

		switch env.Event {
		case domain.EventJoinJob:
			h.join(conn, payload.JobID)
		case domain.EventLeaveJob:
			h.leave(conn, payload.JobID)
		}
	}
}

func (h *SocketHub) join(conn *websocket.Conn, jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// One room per connection; joining a new job implies leaving the old.
	if old, ok := h.conns[conn]; ok && old != jobID {
		delete(h.rooms[old], conn)
	}
	if h.rooms[jobID] == nil {
		h.rooms[jobID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[jobID][conn] = true
	h.conns[conn] = jobID
	h.log.WithField(logger.FieldJobID, jobID).Debug("Observer joined job room")
}

func (h *SocketHub) leave(conn *websocket.Conn, jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[jobID]; ok {
		delete(room, conn)
	}
	if h.conns[conn] == jobID {
		delete(h.conns, conn)
	}
}

func (h *SocketHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if jobID, ok := h.conns[conn]; ok {
		if room, ok := h.rooms[jobID]; ok {
			delete(room, conn)
		}
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

// Publish delivers an event to every observer in the job's room. Dead
// connections are dropped on write failure.
func (h *SocketHub) Publish(jobID string, env domain.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[jobID]
	for conn := range room {
		if err := conn.WriteJSON(env); err != nil {
			h.log.Warnf("Dropping dead observer: %v", err)
			delete(room, conn)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// RoomSize reports how many observers are joined to a job's room.
func (h *SocketHub) RoomSize(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[jobID])
}
