package tools

// CommunicationTools returns the broadcast/history operations (spec.md
// §4.2, §4.5).
func CommunicationTools() []Tool {
	return []Tool{
		{
			Name:       "broadcast",
			Category:   CategoryCommunication,
			Capability: CanBroadcast,
			Schema: Schema{
				{Name: "sender", Type: TypeString, Required: true},
				{Name: "content", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Broadcast(cc.Ctx, stringArg(args, "sender"), stringArg(args, "content"))
			},
		},
		{
			Name:       "recent_messages",
			Category:   CategoryCommunication,
			Capability: CanReadState,
			Schema:     Schema{{Name: "after_seq", Type: TypeInt}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Recent(cc.Ctx, uint64(intArg(args, "after_seq")))
			},
		},
	}
}
