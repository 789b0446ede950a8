package tools

import (
	"time"

	"github.com/masc-dev/masc/internal/room"
)

// AuthTools returns the credential-management operations backing C9's
// role/token lookup (spec.md §4.9). Hashing and token issuance
// mechanics live in internal/auth; these tools expose the durable
// credential record through the room so an admin agent can provision
// peers without out-of-band access to the storage backend.
func AuthTools() []Tool {
	return []Tool{
		{
			Name:       "issue_credential",
			Category:   CategoryAuth,
			Capability: CanAdmin,
			Schema: Schema{
				{Name: "agent_name", Type: TypeString, Required: true},
				{Name: "token_hash", Type: TypeString, Required: true},
				{Name: "role", Type: TypeString, Required: true, Enum: []string{"reader", "worker", "admin"}},
				{Name: "ttl_seconds", Type: TypeInt},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				ttl := durationSecondsArg(args, "ttl_seconds")
				if ttl <= 0 {
					ttl = 24 * time.Hour
				}
				now := time.Now()
				cred := room.AuthCredential{
					AgentName: stringArg(args, "agent_name"),
					TokenHash: stringArg(args, "token_hash"),
					Role:      room.AgentRole(stringArg(args, "role")),
					IssuedAt:  now,
					ExpiresAt: now.Add(ttl),
				}
				if err := cc.Room.PutCredential(cc.Ctx, cred); err != nil {
					return nil, err
				}
				return cred, nil
			},
		},
		{
			Name:       "get_credential",
			Category:   CategoryAuth,
			Capability: CanAdmin,
			Schema:     Schema{{Name: "agent_name", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.GetCredential(cc.Ctx, stringArg(args, "agent_name"))
			},
		},
	}
}
