package tools

// VotingTools returns the lightweight consensus operations (spec.md §3).
func VotingTools() []Tool {
	return []Tool{
		{
			Name:       "open_vote",
			Category:   CategoryVoting,
			Capability: CanBroadcast,
			Schema:     Schema{{Name: "topic", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.OpenVote(cc.Ctx, stringArg(args, "topic"))
			},
		},
		{
			Name:       "ballot",
			Category:   CategoryVoting,
			Capability: CanBroadcast,
			Schema: Schema{
				{Name: "vote_id", Type: TypeString, Required: true},
				{Name: "agent", Type: TypeString, Required: true},
				{Name: "choice", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Ballot(cc.Ctx, stringArg(args, "vote_id"), stringArg(args, "agent"), stringArg(args, "choice"))
			},
		},
		{
			Name:       "close_vote",
			Category:   CategoryVoting,
			Capability: CanManageAgents,
			Schema:     Schema{{Name: "vote_id", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.CloseVote(cc.Ctx, stringArg(args, "vote_id"))
			},
		},
	}
}
