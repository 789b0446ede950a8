// Package auth resolves an inbound request's agent identity and role
// against the room's credential store, following the header-priority
// extraction idiom of pkg/api/auth.go's extractAuthor in the teacher,
// generalized from a single fixed header to a bearer token plus the
// X-MASC-Agent identity header (spec.md §4.4, §4.9).
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/room"
)

// HeaderAgent names the agent identity header, the spec's equivalent of
// the teacher's X-Forwarded-User (spec.md §4.4).
const HeaderAgent = "X-MASC-Agent"

// HeaderToken carries the bearer credential. A caller that sends
// X-MASC-Agent without it is rejected with ErrUnauthorized; only a
// caller with no X-MASC-Agent header resolves to an anonymous reader.
const HeaderToken = "Authorization"

// Identity is the resolved caller for one request.
type Identity struct {
	Agent string
	Role  room.AgentRole
}

// HashToken produces the stable digest stored as AuthCredential.TokenHash.
// Tokens are never stored or logged in the clear (spec.md §4.9).
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Resolve extracts the agent name and bearer token from headers and
// checks them against room's credential store. A missing agent header
// resolves to an anonymous reader with no claimable capabilities beyond
// CanReadState (spec.md §4.9).
func Resolve(ctx context.Context, r *room.Room, header http.Header) (Identity, error) {
	agent := header.Get(HeaderAgent)
	if agent == "" {
		return Identity{Agent: "", Role: room.RoleReader}, nil
	}

	token := extractBearer(header.Get(HeaderToken))
	if token == "" {
		return Identity{}, merrors.ErrUnauthorized
	}

	cred, err := r.GetCredential(ctx, agent)
	if err != nil {
		return Identity{}, err
	}
	if time.Now().After(cred.ExpiresAt) {
		return Identity{}, merrors.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(cred.TokenHash)) != 1 {
		return Identity{}, merrors.ErrUnauthorized
	}
	return Identity{Agent: agent, Role: cred.Role}, nil
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}
