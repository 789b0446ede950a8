package tools

import "github.com/masc-dev/masc/internal/room"

// CoreTools returns the join/task/lock operations. Every built-in mode,
// minimal included, enables the whole core category; a custom mode shows
// them only when its category list includes core (spec.md §4.2, §4.4).
func CoreTools() []Tool {
	return []Tool{
		{
			Name:       "join",
			Category:   CategoryCore,
			Capability: CanReadState,
			Schema: Schema{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "capabilities", Type: TypeList},
				{Name: "role", Type: TypeString, Enum: []string{"reader", "worker", "admin"}},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				caps := toStringSlice(args["capabilities"])
				role := room.AgentRole(stringArg(args, "role"))
				return cc.Room.Join(cc.Ctx, stringArg(args, "name"), caps, role)
			},
		},
		{
			Name:       "heartbeat",
			Category:   CategoryCore,
			Capability: CanReadState,
			Schema:     Schema{{Name: "name", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				name := stringArg(args, "name")
				if err := cc.Room.Heartbeat(cc.Ctx, name); err != nil {
					return nil, err
				}
				return map[string]any{"ok": true}, nil
			},
		},
		{
			Name:       "leave",
			Category:   CategoryCore,
			Capability: CanReadState,
			Schema:     Schema{{Name: "name", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				name := stringArg(args, "name")
				if err := cc.Room.Leave(cc.Ctx, name); err != nil {
					return nil, err
				}
				return map[string]any{"ok": true}, nil
			},
		},
		{
			Name:       "list_agents",
			Category:   CategoryCore,
			Capability: CanReadState,
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ListAgents(cc.Ctx)
			},
		},
		{
			Name:       "add_task",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "title", Type: TypeString, Required: true},
				{Name: "priority", Type: TypeInt},
				{Name: "plan", Type: TypeString},
				{Name: "deliverable", Type: TypeString},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.AddTask(cc.Ctx, stringArg(args, "title"), intArg(args, "priority"),
					stringArg(args, "plan"), stringArg(args, "deliverable"))
			},
		},
		{
			Name:       "list_tasks",
			Category:   CategoryCore,
			Capability: CanReadState,
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ListTasks(cc.Ctx)
			},
		},
		{
			Name:       "get_task",
			Category:   CategoryCore,
			Capability: CanReadState,
			Schema:     Schema{{Name: "id", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.GetTask(cc.Ctx, stringArg(args, "id"))
			},
		},
		{
			Name:       "claim",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "id", Type: TypeString, Required: true},
				{Name: "agent", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Claim(cc.Ctx, stringArg(args, "id"), stringArg(args, "agent"))
			},
		},
		{
			Name:       "claim_next",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema:     Schema{{Name: "agent", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ClaimNext(cc.Ctx, stringArg(args, "agent"))
			},
		},
		{
			Name:       "start",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "id", Type: TypeString, Required: true},
				{Name: "agent", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Start(cc.Ctx, stringArg(args, "id"), stringArg(args, "agent"))
			},
		},
		{
			Name:       "done",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "id", Type: TypeString, Required: true},
				{Name: "agent", Type: TypeString, Required: true},
				{Name: "notes", Type: TypeString},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Done(cc.Ctx, stringArg(args, "id"), stringArg(args, "agent"), stringArg(args, "notes"))
			},
		},
		{
			Name:       "cancel",
			Category:   CategoryCore,
			Capability: CanManageAgents,
			Schema: Schema{
				{Name: "id", Type: TypeString, Required: true},
				{Name: "reason", Type: TypeString},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Cancel(cc.Ctx, stringArg(args, "id"), stringArg(args, "reason"))
			},
		},
		{
			Name:       "acquire_lock",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "path", Type: TypeString, Required: true},
				{Name: "owner", Type: TypeString, Required: true},
				{Name: "ttl_seconds", Type: TypeInt},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				ttl := durationSecondsArg(args, "ttl_seconds")
				return cc.Room.AcquireLock(cc.Ctx, stringArg(args, "path"), stringArg(args, "owner"), ttl)
			},
		},
		{
			Name:       "release_lock",
			Category:   CategoryCore,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "path", Type: TypeString, Required: true},
				{Name: "owner", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				if err := cc.Room.ReleaseLock(cc.Ctx, stringArg(args, "path"), stringArg(args, "owner")); err != nil {
					return nil, err
				}
				return map[string]any{"ok": true}, nil
			},
		},
	}
}
