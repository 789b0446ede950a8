package tools

import "github.com/masc-dev/masc/internal/ratelimit"

// RateLimitTools returns introspection over the C9 token-bucket gate:
// callers can check their own remaining headroom before attempting a
// burst of calls (spec.md §4.9).
func RateLimitTools(gate *ratelimit.Gate) []Tool {
	return []Tool{
		{
			Name:       "rate_limit_status",
			Category:   CategoryRateLimit,
			Capability: CanReadState,
			Schema:     Schema{{Name: "category", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				category := stringArg(args, "category")
				role := string(cc.Role)
				return map[string]any{
					"agent":           cc.Agent,
					"category":        category,
					"allowed_now":    gate.Peek(cc.Agent, category, role),
					"retry_after_ms": gate.RetryAfter(cc.Agent, category, role).Milliseconds(),
				}, nil
			},
		},
	}
}
