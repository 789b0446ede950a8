package transport

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/masc-dev/masc/internal/jsonrpc"
)

// checkOrigin validates the Origin header against the allowlist
// (spec.md §4.5 "DNS-rebinding defence"). A request with no Origin
// header at all is allowed through — non-browser clients never send
// one.
func (s *Server) checkOrigin(r *http.Request) error {
	origin := trimmedOrigin(r)
	if origin == "" {
		return nil
	}
	if s.originAllowed(origin) {
		return nil
	}
	return fmt.Errorf("origin %q is not allowed", origin)
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.allowedOrigins) == 0 {
		return isLocalhostOrigin(origin)
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

// isLocalhostOrigin is the default allowlist when the operator hasn't
// configured one: only loopback origins, matching the teacher's
// InsecureSkipVerify-for-local-dev posture made safe by default here.
func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// checkProtocolVersion validates MCP-Protocol-Version against the
// supported set, defaulting to latest when the header is absent
// (spec.md §4.5).
func (s *Server) checkProtocolVersion(r *http.Request) error {
	v := r.Header.Get(HeaderProtocolVersion)
	if v == "" {
		return nil
	}
	for _, supported := range jsonrpc.SupportedProtocolVersions {
		if supported == v {
			return nil
		}
	}
	return fmt.Errorf("unsupported MCP-Protocol-Version %q", v)
}
