// Package transport implements the HTTP surface: Streamable-HTTP
// `/mcp`, legacy `/sse` + `/messages`, and `/health`, grounded on
// pkg/api/server.go's Echo-based Server (route registration,
// Start/StartWithListener/Shutdown shape) and pkg/api/middleware.go's
// security-headers middleware (spec.md §4.5).
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/masc-dev/masc/internal/auth"
	"github.com/masc-dev/masc/internal/jsonrpc"
	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/session"
	"github.com/masc-dev/masc/internal/tools"
)

// Headers the Streamable-HTTP transport reads/writes (spec.md §4.4, §4.5).
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "MCP-Protocol-Version"
	HeaderLastEventID     = "Last-Event-ID"
	HeaderRoom            = "X-MASC-Room"
)

// DefaultRoomName is used when a caller doesn't name a room explicitly.
const DefaultRoomName = "default"

// primingRetryMS is advertised to SSE clients as the reconnect backoff.
const primingRetryMS = 15000

// RoomContext bundles everything one coordination room needs to serve
// requests: its domain state, SSE hub, and tool dispatch stack.
type RoomContext struct {
	Room        *room.Room
	Hub         *session.Hub
	Registry    *tools.Registry
	Dispatcher  *tools.Dispatcher
	RPC         *jsonrpc.Handler
	AuthEnabled bool
	BackendKind string
	Mode        tools.ModeConfig
}

// Server is the HTTP transport, hosting one or more rooms keyed by name.
type Server struct {
	echo           *echo.Echo
	httpServer     *http.Server
	version        string
	allowedOrigins []string
	rooms          map[string]*RoomContext
	shuttingDown   atomic.Bool
	drainDeadline  time.Duration
}

// NewServer builds a Server. allowedOrigins is the DNS-rebinding
// defence allowlist (spec.md §4.5); an empty Origin header is always
// permitted (non-browser clients).
func NewServer(version string, allowedOrigins []string) *Server {
	s := &Server{
		echo:           echo.New(),
		version:        version,
		allowedOrigins: allowedOrigins,
		rooms:          make(map[string]*RoomContext),
		drainDeadline:  30 * time.Second,
	}
	s.setupRoutes()
	return s
}

// AddRoom registers a room under name, reachable via the X-MASC-Room header.
func (s *Server) AddRoom(name string, rc *RoomContext) {
	s.rooms[name] = rc
}

func (s *Server) roomFor(r *http.Request) (*RoomContext, string) {
	name := r.Header.Get(HeaderRoom)
	if name == "" {
		name = DefaultRoomName
	}
	rc, ok := s.rooms[name]
	if !ok {
		return nil, name
	}
	return rc, name
}

func (s *Server) setupRoutes() {
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	s.echo.OPTIONS("/*", s.corsPreflightHandler)

	s.echo.GET("/mcp", s.gated(s.mcpGetHandler))
	s.echo.POST("/mcp", s.gated(s.mcpPostHandler))
	s.echo.DELETE("/mcp", s.gated(s.mcpDeleteHandler))
	s.echo.GET("/sse", s.gated(s.legacySSEHandler))
	s.echo.POST("/messages", s.gated(s.legacyMessagesHandler))
}

// securityHeaders mirrors pkg/api/middleware.go's fixed response
// header set.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// gated wraps an MCP-like handler with the shutdown/origin/protocol
// version checks spec.md §4.5 requires ahead of every such endpoint.
func (s *Server) gated(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.shuttingDown.Load() {
			return writeRPCError(c, http.StatusServiceUnavailable, jsonrpc.CodeInternal, "server shutting down")
		}
		if err := s.checkOrigin(c.Request()); err != nil {
			return writeRPCError(c, http.StatusForbidden, jsonrpc.CodeInvalidRequest, err.Error())
		}
		if err := s.checkProtocolVersion(c.Request()); err != nil {
			return writeRPCError(c, http.StatusBadRequest, jsonrpc.CodeInvalidRequest, err.Error())
		}
		return h(c)
	}
}

func (s *Server) corsPreflightHandler(c *echo.Context) error {
	h := c.Response().Header()
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.HeaderAgent+", "+HeaderSessionID+", "+HeaderProtocolVersion+", "+HeaderLastEventID)
	origin := c.Request().Header.Get("Origin")
	if origin != "" && s.originAllowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	return c.NoContent(http.StatusNoContent)
}

func writeRPCError(c *echo.Context, status, code int, message string) error {
	return c.JSON(status, jsonrpc.Response{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &jsonrpc.Error{Code: code, Message: message},
	})
}

// Start serves addr (blocking). Mirrors pkg/api/server.go's Start.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, used by tests
// that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown implements spec.md §4.5's graceful sequence: reject new
// requests (the shuttingDown flag, checked by gated), broadcast a
// shutdown notification to every room's subscribers, then defer to
// http.Server.Shutdown's bounded drain of in-flight requests. Safe to
// call more than once; later calls are no-ops once the listener is
// already closed.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	for name, rc := range s.rooms {
		slog.Info("transport: broadcasting shutdown", "room", name)
		rc.Room.BroadcastShutdown(ctx, "server shutting down")
	}
	if s.httpServer == nil {
		return nil
	}
	drainCtx, cancel := context.WithTimeout(ctx, s.drainDeadline)
	defer cancel()
	return s.httpServer.Shutdown(drainCtx)
}

func writeFrame(w http.ResponseWriter, frame []byte) {
	_, _ = w.Write(frame)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sessionIDFrom(r *http.Request) string {
	if id := r.Header.Get(HeaderSessionID); id != "" {
		return id
	}
	return r.URL.Query().Get("session_id")
}

func parseLastEventID(r *http.Request) (int64, bool) {
	raw := r.Header.Get(HeaderLastEventID)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func trimmedOrigin(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Origin"))
}
