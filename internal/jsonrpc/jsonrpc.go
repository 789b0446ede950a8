// Package jsonrpc implements JSON-RPC 2.0 envelope parsing and
// dispatch over the tool registry, generalizing
// adamavenir-mini-msg/internal/mcp/server.go's single-request
// rpcRequest/rpcResponse stdio loop to HTTP batches (spec.md §4.6).
package jsonrpc

import (
	"encoding/json"
	"errors"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/tools"
)

// Standard JSON-RPC 2.0 error codes. The transport's origin and
// protocol-version gates reuse CodeInvalidRequest; there are no
// transport-specific codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// SupportedProtocolVersions is the set spec.md §4.5 names; the last
// entry is the default used when a client omits the header.
var SupportedProtocolVersions = []string{"2024-11-05", "2025-03-26", "2025-11-25"}

// DefaultProtocolVersion is returned by initialize when a caller
// doesn't request one.
const DefaultProtocolVersion = "2025-11-25"

// Request is one JSON-RPC 2.0 call. ID is raw so a JSON `null`,
// number, string or absent id can all be told apart, matching the
// teacher's use of json.RawMessage for the same reason.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether req carries no id (so no response is
// ever sent for it), per JSON-RPC 2.0 semantics.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is one JSON-RPC 2.0 reply envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ParseErrorResponse builds the fixed `id: null` envelope spec.md §4.6
// mandates for a request body that fails to parse at all.
func ParseErrorResponse(message string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &Error{Code: CodeParseError, Message: message},
	}
}

// Parse decodes body as either a single Request or a batch. A JSON
// syntax error or a non-object/non-array top level is reported as a
// parse failure; an empty batch array is also returned as an error.
// The HTTP handlers answer every Parse error, an empty batch included,
// with the -32700 parse-error envelope (ParseErrorResponse).
func Parse(body []byte) (batch []Request, isBatch bool, err error) {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) == 0 {
		return nil, false, errors.New("empty request body")
	}
	if trimmed[0] == '[' {
		var reqs []Request
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, true, err
		}
		if len(reqs) == 0 {
			return nil, true, errors.New("empty batch")
		}
		return reqs, true, nil
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, err
	}
	return []Request{req}, false, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}

// Handler dispatches one decoded Request against cc and the tool
// dispatcher, returning the Response to write (nil for notifications,
// which never get one).
type Handler struct {
	Dispatcher *tools.Dispatcher
	Registry   *tools.Registry
}

// NewHandler builds a Handler bound to a registry/dispatcher pair
// produced by tools.Build.
func NewHandler(registry *tools.Registry, dispatcher *tools.Dispatcher) *Handler {
	return &Handler{Dispatcher: dispatcher, Registry: registry}
}

// Handle processes a single request, including the initialize method,
// and returns nil when req is a notification.
func (h *Handler) Handle(cc tools.CallContext, req Request) *Response {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return errorResponse(req, CodeInvalidRequest, "unsupported jsonrpc version")
	}

	var result any
	var callErr error

	switch req.Method {
	case "initialize":
		result, callErr = h.handleInitialize(cc, req.Params)
	case "":
		callErr = errors.New("missing method")
	default:
		var args map[string]any
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &args); err != nil {
				if req.IsNotification() {
					return nil
				}
				return errorResponse(req, CodeInvalidParams, "invalid params: "+err.Error())
			}
		}
		result, callErr = h.Dispatcher.Dispatch(cc, req.Method, args)
	}

	if req.IsNotification() {
		return nil
	}
	if callErr != nil {
		return errorResponse(req, codeFor(callErr), callErr.Error())
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// handleInitialize negotiates the protocol version (falling back to
// the default when the client omits or mis-requests one) and reports
// capabilities plus the session's enabled tool set (spec.md §4.6).
func (h *Handler) handleInitialize(cc tools.CallContext, raw json.RawMessage) (any, error) {
	version := DefaultProtocolVersion
	if len(raw) > 0 {
		var params struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		if err := json.Unmarshal(raw, &params); err == nil && params.ProtocolVersion != "" {
			if supportedVersion(params.ProtocolVersion) {
				version = params.ProtocolVersion
			}
		}
	}

	enabled := h.Registry.ListEnabled(cc.Mode)
	names := make([]string, 0, len(enabled))
	for _, t := range enabled {
		names = append(names, t.Name)
	}

	return map[string]any{
		"protocolVersion": version,
		"serverInfo": map[string]any{
			"name":    "masc",
			"version": cc.ServerVersion,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"enabledTools": names,
	}, nil
}

func supportedVersion(v string) bool {
	for _, s := range SupportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

func errorResponse(req Request, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &Error{Code: code, Message: message},
	}
}

// codeFor maps a merrors taxonomy value onto the closest JSON-RPC 2.0
// code, defaulting to -32603 (internal) for anything undistinguished
// (spec.md §7 "every domain error has exactly one wire representation").
func codeFor(err error) int {
	switch {
	case errors.Is(err, merrors.ErrMethodNotFound):
		return CodeMethodNotFound
	case merrors.IsValidation(err):
		return CodeInvalidParams
	case errors.Is(err, merrors.ErrForbidden), errors.Is(err, merrors.ErrUnauthorized):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}
