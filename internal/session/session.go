// Package session implements the per-room SSE hub: session identity,
// a monotone event-id ring buffer, subscriber fan-out and
// at-most-one-connection-per-session enforcement (spec.md §4.4),
// grounded on pkg/events/manager.go's ConnectionManager/Connection
// design in the teacher, adapted from WebSocket+Postgres-NOTIFY fan-out
// to an in-process ring buffer written over SSE.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/masc-dev/masc/internal/room"
)

// MinRingSize is the floor on retained events per room (spec.md §4.4
// "minimum 256 per room").
const MinRingSize = 256

// KeepAliveInterval is how often a `: ping` comment is written to an
// idle SSE connection (spec.md §4.4).
const KeepAliveInterval = 30 * time.Second

// ringEntry is one retained, already-encoded SSE event.
type ringEntry struct {
	id   int64
	kind string
	data []byte
}

// Connection is a single subscriber's outbound SSE channel. The
// transport layer (C5) owns the actual http.ResponseWriter/Flusher and
// drains Out in its own goroutine, matching the teacher's "sends
// happen outside the lock" discipline in ConnectionManager.Broadcast.
type Connection struct {
	SessionID string
	Agent     string
	Out       chan []byte
	Done      chan struct{}
	closeOnce sync.Once
}

// Close shuts the connection down, safe to call more than once (mirrors
// unregisterConnection's idempotent cleanup in the teacher).
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// Session is one client's identity: protocol version negotiated on
// initialize (sticky thereafter), the agent bound via X-MASC-Agent, and
// the id of the last event served for Last-Event-ID replay (spec.md §4.4).
type Session struct {
	ID              string
	ProtocolVersion string
	Agent           string
	LastEventID     int64

	mu   sync.Mutex
	conn *Connection
}

// Hub owns one room's ring buffer and subscriber table. It implements
// room.Publisher so a *room.Room can fan events out through it directly
// (spec.md §4.2, §4.4).
type Hub struct {
	RoomName string

	mu       sync.RWMutex
	sessions map[string]*Session
	nextID   int64
	ring     []ringEntry
	ringSize int
}

// NewHub creates a Hub with ringSize retained events, clamped up to
// MinRingSize (spec.md §4.4).
func NewHub(roomName string, ringSize int) *Hub {
	if ringSize < MinRingSize {
		ringSize = MinRingSize
	}
	return &Hub{
		RoomName: roomName,
		sessions: make(map[string]*Session),
		ringSize: ringSize,
	}
}

// NewSessionID allocates an opaque random session identifier (spec.md
// §4.4 "opaque random string allocated on first contact").
func NewSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// GetOrCreateSession returns the existing session for id, or creates
// one if id is new (honouring a client-supplied mcp-session-id). If id
// is empty, a fresh opaque id is allocated.
func (h *Hub) GetOrCreateSession(id string) *Session {
	if id == "" {
		id = NewSessionID()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id}
	h.sessions[id] = s
	return s
}

// LookupSession returns the session for id, if it exists.
func (h *Hub) LookupSession(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// TerminateSession removes a session entirely, closing any live
// connection (spec.md §4.5 "DELETE /mcp: Terminate session").
func (h *Hub) TerminateSession(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if ok {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	}
}

// Subscribe registers conn as the live connection for s, closing and
// replacing any previous connection so at most one stays open per
// session (spec.md §4.4 "at-most-one-connection-per-session").
func (h *Hub) Subscribe(s *Session, conn *Connection) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Unsubscribe clears s's connection if it is still conn (a session that
// has already moved on to a newer connection must not have that newer
// connection torn down by a stale cleanup).
func (h *Hub) Unsubscribe(s *Session, conn *Connection) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

// ReplaySince returns every retained event with id > afterID, in order,
// for a reconnecting client's Last-Event-ID replay (spec.md §4.4).
// Events evicted from the ring are permanently lost to that session.
func (h *Hub) ReplaySince(afterID int64) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out [][]byte
	for _, e := range h.ring {
		if e.id > afterID {
			out = append(out, e.data)
		}
	}
	return out
}

// NextEventID returns the id that will be assigned to the next
// published event, for priming a fresh subscription (spec.md §4.4
// "a priming event carrying ... the next event id").
func (h *Hub) NextEventID() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextID + 1
}

// Publish implements room.Publisher: it encodes evt as an SSE frame,
// appends it to the ring (evicting the oldest entry if full), and
// fans it out to every matching live connection (spec.md §4.2's
// broadcast requirement, via §4.4's event numbering).
func (h *Hub) Publish(_ context.Context, evt room.Event) {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		slog.Error("session: marshal event payload failed", "kind", evt.Kind, "error", err)
		return
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	frame := encodeSSE(id, evt.Kind, data)
	h.ring = append(h.ring, ringEntry{id: id, kind: evt.Kind, data: frame})
	if len(h.ring) > h.ringSize {
		h.ring = h.ring[len(h.ring)-h.ringSize:]
	}
	targets := make(map[string]bool, len(evt.Targets))
	for _, t := range evt.Targets {
		targets[t] = true
	}
	conns := make([]*Connection, 0, len(h.sessions))
	for _, s := range h.sessions {
		s.mu.Lock()
		c := s.conn
		agent := s.Agent
		s.mu.Unlock()
		if c == nil {
			continue
		}
		if len(targets) > 0 && !targets[agent] {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		select {
		case c.Out <- frame:
		case <-c.Done:
		default:
			// Slow consumer: drop rather than block the publisher, matching
			// the teacher's "sends happen outside the lock, a stuck writer
			// must not stall the rest of the room".
			slog.Warn("session: dropping event for slow connection", "session", c.SessionID)
		}
	}
}

// SendToSession writes a raw frame directly to one session's live
// connection, bypassing the ring and the target-filtered broadcast in
// Publish. Used for the legacy POST /messages flow, where a JSON-RPC
// response is delivered over that session's own SSE stream rather than
// room-wide (spec.md §4.5 "legacy client→server message").
func (h *Hub) SendToSession(sessionID string, frame []byte) bool {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return false
	}
	select {
	case c.Out <- frame:
		return true
	case <-c.Done:
		return false
	default:
		return false
	}
}

// encodeSSE formats one `text/event-stream` frame.
func encodeSSE(id int64, kind string, data []byte) []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, kind, data))
}

// EncodeMessageFrame formats an arbitrary JSON-able payload as an SSE
// frame tagged with kind, stamped with the hub's next event id without
// consuming it — used for direct point-to-point replies (legacy
// POST-with-SSE-accept and /messages) that aren't part of the room's
// replayable broadcast history.
func (h *Hub) EncodeMessageFrame(kind string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return encodeSSE(h.NextEventID(), kind, data), nil
}

// PrimingFrame is the first frame written to a new subscription, carrying
// the retry interval and next event id on the SSE id: field so a
// browser EventSource's automatic Last-Event-ID tracking picks it up on
// reconnect (spec.md §6 "retry: 3000\nid: <next>\n\n").
func PrimingFrame(retryMS int, nextEventID int64) []byte {
	return []byte(fmt.Sprintf("retry: %d\nid: %d\n\n", retryMS, nextEventID))
}

// EndpointFrame advertises the legacy companion POST URL (spec.md §4.4
// "for the legacy endpoint variant, an endpoint event").
func EndpointFrame(messagesURL string) []byte {
	return []byte(fmt.Sprintf("event: endpoint\ndata: %s\n\n", messagesURL))
}

// KeepAliveComment is written every KeepAliveInterval to idle
// connections (spec.md §4.4 "`: ping\n\n`").
var KeepAliveComment = []byte(": ping\n\n")
