package tools

// DiscoveryTools returns introspection operations: the enabled tool set
// for a session's mode, and identity/capability self-lookup (spec.md
// §4.3 "list_tools").
func DiscoveryTools(reg *Registry) []Tool {
	return []Tool{
		{
			Name:       "list_tools",
			Category:   CategoryDiscovery,
			Capability: CanReadState,
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				enabled := reg.ListEnabled(cc.Mode)
				names := make([]map[string]any, 0, len(enabled))
				for _, t := range enabled {
					names = append(names, map[string]any{
						"name":     t.Name,
						"category": t.Category,
					})
				}
				return names, nil
			},
		},
		{
			Name:       "whoami",
			Category:   CategoryDiscovery,
			Capability: CanReadState,
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				caps := make([]string, 0, len(cc.Capabilities))
				for c, ok := range cc.Capabilities {
					if ok {
						caps = append(caps, string(c))
					}
				}
				return map[string]any{
					"agent":        cc.Agent,
					"role":         cc.Role,
					"session_id":   cc.SessionID,
					"capabilities": caps,
				}, nil
			},
		},
	}
}
