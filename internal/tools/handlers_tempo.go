package tools

import (
	"time"

	"github.com/masc-dev/masc/internal/tempo"
)

// TempoTools exposes the adaptive background sweep's current interval
// and an admin override, honoured until the loop next recomputes it
// from task urgency (spec.md §4.8).
func TempoTools(loop *tempo.Loop) []Tool {
	return []Tool{
		{
			Name:       "tempo_status",
			Category:   CategoryTempo,
			Capability: CanReadState,
			Schema:     Schema{},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return map[string]any{
					"current_interval_seconds": loop.CurrentInterval().Seconds(),
				}, nil
			},
		},
		{
			Name:       "set_tempo_interval",
			Category:   CategoryTempo,
			Capability: CanAdmin,
			Schema:     Schema{{Name: "seconds", Type: TypeInt, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				seconds := intArg(args, "seconds")
				loop.SetOverride(time.Duration(seconds) * time.Second)
				return map[string]any{"override_seconds": seconds}, nil
			},
		},
	}
}
