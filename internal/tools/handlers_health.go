package tools

import "time"

// HealthTools returns the liveness operation exposed both as a JSON-RPC
// tool and, separately, as the plain GET /health HTTP endpoint handled
// directly by internal/transport (spec.md §6).
func HealthTools() []Tool {
	return []Tool{
		{
			Name:       "health",
			Category:   CategoryHealth,
			Capability: CanReadState,
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return map[string]any{
					"status":    "ok",
					"version":   cc.ServerVersion,
					"backend":   cc.BackendKind,
					"server_time": time.Now().UTC(),
				}, nil
			},
		},
	}
}
