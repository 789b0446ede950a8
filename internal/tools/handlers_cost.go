package tools

import "github.com/masc-dev/masc/internal/room"

// CostTools returns the token-cost ledger operations backing the
// external collaborator sink named in SPEC_FULL.md §6 ("log_cost(agent,
// model, tokens_in, tokens_out, cost)").
func CostTools() []Tool {
	return []Tool{
		{
			Name:       "log_cost",
			Category:   CategoryCost,
			Capability: CanBroadcast,
			Schema: Schema{
				{Name: "agent", Type: TypeString, Required: true},
				{Name: "model", Type: TypeString, Required: true},
				{Name: "tokens_in", Type: TypeInt, Required: true},
				{Name: "tokens_out", Type: TypeInt, Required: true},
				{Name: "cost", Type: TypeFloat, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				entry := room.CostLedgerEntry{
					Agent:     stringArg(args, "agent"),
					Model:     stringArg(args, "model"),
					TokensIn:  int64(intArg(args, "tokens_in")),
					TokensOut: int64(intArg(args, "tokens_out")),
					Cost:      floatArg(args, "cost"),
				}
				if err := cc.Room.AppendCostEntry(cc.Ctx, entry); err != nil {
					return nil, err
				}
				return map[string]any{"ok": true}, nil
			},
		},
		{
			Name:       "list_cost",
			Category:   CategoryCost,
			Capability: CanReadState,
			Schema:     Schema{{Name: "agent", Type: TypeString}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ListCostEntries(cc.Ctx, stringArg(args, "agent"))
			},
		},
	}
}
