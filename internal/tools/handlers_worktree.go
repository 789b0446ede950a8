package tools

// WorktreeTools returns the isolated-worktree metadata operations
// (spec.md Glossary "worktree").
func WorktreeTools() []Tool {
	return []Tool{
		{
			Name:       "register_worktree",
			Category:   CategoryWorktree,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "agent", Type: TypeString, Required: true},
				{Name: "path", Type: TypeString, Required: true},
				{Name: "branch", Type: TypeString},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.RegisterWorktree(cc.Ctx, stringArg(args, "agent"), stringArg(args, "path"), stringArg(args, "branch"))
			},
		},
		{
			Name:       "list_worktrees",
			Category:   CategoryWorktree,
			Capability: CanReadState,
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ListWorktrees(cc.Ctx)
			},
		},
	}
}
