package transport

import (
	"io"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/masc-dev/masc/internal/auth"
	"github.com/masc-dev/masc/internal/jsonrpc"
	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/session"
	"github.com/masc-dev/masc/internal/tools"
)

// HealthResponse mirrors the shape of pkg/api/handler_health.go's
// payload, generalized from a single DB health check to a
// storage-backend-agnostic one (spec.md §4.5 "GET /health: Liveness
// (version, backend)").
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Rooms   int            `json:"rooms"`
	Backend map[string]any `json:"backend"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	backends := make(map[string]any, len(s.rooms))
	status := "healthy"
	for name, rc := range s.rooms {
		backends[name] = rc.BackendKind
	}
	if len(s.rooms) == 0 {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  status,
		Version: s.version,
		Rooms:   len(s.rooms),
		Backend: backends,
	})
}

// resolveIdentity applies auth.Resolve when the room has auth enabled,
// or grants a trusted worker role from a bare X-MASC-Agent header when
// it doesn't (spec.md §4.9 "off by default").
func resolveIdentity(r *http.Request, rc *RoomContext) (auth.Identity, error) {
	if rc.AuthEnabled {
		return auth.Resolve(r.Context(), rc.Room, r.Header)
	}
	agent := r.Header.Get(auth.HeaderAgent)
	if agent == "" {
		return auth.Identity{Role: room.RoleReader}, nil
	}
	return auth.Identity{Agent: agent, Role: room.RoleWorker}, nil
}

func (s *Server) callContext(r *http.Request, rc *RoomContext, id auth.Identity, sessionID string) tools.CallContext {
	return tools.CallContext{
		Ctx:           r.Context(),
		Room:          rc.Room,
		SessionID:     sessionID,
		Agent:         id.Agent,
		Role:          id.Role,
		Capabilities:  tools.RoleCapabilities(id.Role),
		ServerVersion: s.version,
		BackendKind:   rc.BackendKind,
		Mode:          rc.Mode,
	}
}

// mcpGetHandler serves GET /mcp: subscribe to the Streamable-HTTP SSE
// stream (spec.md §4.4 subscription sequence).
func (s *Server) mcpGetHandler(c *echo.Context) error {
	return s.serveSSE(c, false)
}

// legacySSEHandler serves GET /sse: the same subscription, plus the
// legacy endpoint-advertisement event.
func (s *Server) legacySSEHandler(c *echo.Context) error {
	return s.serveSSE(c, true)
}

func (s *Server) serveSSE(c *echo.Context, legacy bool) error {
	req := c.Request()
	rc, roomName := s.roomFor(req)
	if rc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown room "+roomName)
	}

	id, err := resolveIdentity(req, rc)
	if err != nil {
		return writeRPCError(c, http.StatusUnauthorized, jsonrpc.CodeInvalidRequest, err.Error())
	}

	sess := rc.Hub.GetOrCreateSession(sessionIDFrom(req))
	sess.Agent = id.Agent

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set(HeaderSessionID, sess.ID)
	w.WriteHeader(http.StatusOK)

	conn := &session.Connection{
		SessionID: sess.ID,
		Agent:     id.Agent,
		Out:       make(chan []byte, 32),
		Done:      make(chan struct{}),
	}
	rc.Hub.Subscribe(sess, conn)
	defer rc.Hub.Unsubscribe(sess, conn)

	writeFrame(w, session.PrimingFrame(primingRetryMS, rc.Hub.NextEventID()))

	if afterID, ok := parseLastEventID(req); ok {
		for _, frame := range rc.Hub.ReplaySince(afterID) {
			writeFrame(w, frame)
		}
	}

	if legacy {
		writeFrame(w, session.EndpointFrame("/messages?session_id="+sess.ID))
	}

	ticker := time.NewTicker(session.KeepAliveInterval)
	defer ticker.Stop()

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done:
			return nil
		case frame, ok := <-conn.Out:
			if !ok {
				return nil
			}
			writeFrame(w, frame)
		case <-ticker.C:
			writeFrame(w, session.KeepAliveComment)
		}
	}
}

// mcpPostHandler serves POST /mcp: a JSON-RPC request, answered either
// as a JSON body or, with Accept: text/event-stream, as a single SSE
// event (spec.md §4.4 "POST-with-SSE-accept").
func (s *Server) mcpPostHandler(c *echo.Context) error {
	req := c.Request()
	rc, roomName := s.roomFor(req)
	if rc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown room "+roomName)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return writeParseError(c, err.Error())
	}

	reqs, isBatch, err := jsonrpc.Parse(body)
	if err != nil {
		return writeParseError(c, err.Error())
	}

	id, err := resolveIdentity(req, rc)
	if err != nil {
		return writeRPCError(c, http.StatusUnauthorized, jsonrpc.CodeInvalidRequest, err.Error())
	}
	sessionID := sessionIDFrom(req)
	cc := s.callContext(req, rc, id, sessionID)

	responses := make([]*jsonrpc.Response, 0, len(reqs))
	for _, r := range reqs {
		if resp := rc.RPC.Handle(cc, r); resp != nil {
			responses = append(responses, resp)
		}
	}

	wantsSSE := acceptsEventStream(req)

	if len(responses) == 0 {
		return c.NoContent(http.StatusAccepted)
	}

	if wantsSSE && !isBatch {
		w := c.Response()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		frame, err := rc.Hub.EncodeMessageFrame("message", responses[0])
		if err != nil {
			return err
		}
		writeFrame(w, frame)
		return nil
	}

	if isBatch {
		return c.JSON(http.StatusOK, responses)
	}
	return c.JSON(http.StatusOK, responses[0])
}

// mcpDeleteHandler serves DELETE /mcp: terminate the session named by
// Mcp-Session-Id (spec.md §4.5).
func (s *Server) mcpDeleteHandler(c *echo.Context) error {
	req := c.Request()
	rc, roomName := s.roomFor(req)
	if rc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown room "+roomName)
	}
	id := sessionIDFrom(req)
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing session id")
	}
	rc.Hub.TerminateSession(id)
	return c.NoContent(http.StatusNoContent)
}

// legacyMessagesHandler serves POST /messages?session_id=…: the legacy
// client→server half of the dual-endpoint transport. The JSON-RPC
// response is delivered asynchronously over that session's already-open
// SSE stream, and this handler itself answers 202 immediately.
func (s *Server) legacyMessagesHandler(c *echo.Context) error {
	req := c.Request()
	rc, roomName := s.roomFor(req)
	if rc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown room "+roomName)
	}

	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing session_id")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return writeParseError(c, err.Error())
	}
	reqs, _, err := jsonrpc.Parse(body)
	if err != nil {
		return writeParseError(c, err.Error())
	}

	id, err := resolveIdentity(req, rc)
	if err != nil {
		return writeRPCError(c, http.StatusUnauthorized, jsonrpc.CodeInvalidRequest, err.Error())
	}
	cc := s.callContext(req, rc, id, sessionID)

	for _, r := range reqs {
		resp := rc.RPC.Handle(cc, r)
		if resp == nil {
			continue
		}
		frame, err := rc.Hub.EncodeMessageFrame("message", resp)
		if err != nil {
			continue
		}
		rc.Hub.SendToSession(sessionID, frame)
	}

	return c.NoContent(http.StatusAccepted)
}

func acceptsEventStream(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if v == "text/event-stream" {
			return true
		}
	}
	return false
}

func writeParseError(c *echo.Context, message string) error {
	return c.JSON(http.StatusOK, jsonrpc.ParseErrorResponse(message))
}
