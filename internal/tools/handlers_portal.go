package tools

// PortalTools returns the topic-subscription operations (spec.md §3).
func PortalTools() []Tool {
	return []Tool{
		{
			Name:       "subscribe",
			Category:   CategoryPortal,
			Capability: CanBroadcast,
			Schema: Schema{
				{Name: "agent", Type: TypeString, Required: true},
				{Name: "topic", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Subscribe(cc.Ctx, stringArg(args, "agent"), stringArg(args, "topic"))
			},
		},
		{
			Name:       "unsubscribe",
			Category:   CategoryPortal,
			Capability: CanBroadcast,
			Schema:     Schema{{Name: "id", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				if err := cc.Room.Unsubscribe(cc.Ctx, stringArg(args, "id")); err != nil {
					return nil, err
				}
				return map[string]any{"ok": true}, nil
			},
		},
		{
			Name:       "list_subscriptions",
			Category:   CategoryPortal,
			Capability: CanReadState,
			Schema:     Schema{{Name: "topic", Type: TypeString}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ListSubscriptions(cc.Ctx, stringArg(args, "topic"))
			},
		},
	}
}
