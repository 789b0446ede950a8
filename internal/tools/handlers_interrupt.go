package tools

import "github.com/masc-dev/masc/internal/room"

// InterruptTools returns the checkpoint state-machine operations
// (spec.md §4.7): save/interrupt/approve/reject/branch/revert/pending.
func InterruptTools() []Tool {
	return []Tool{
		{
			Name:       "save_checkpoint",
			Category:   CategoryInterrupt,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "task_id", Type: TypeString, Required: true},
				{Name: "step", Type: TypeInt, Required: true},
				{Name: "action", Type: TypeString, Required: true},
				{Name: "state", Type: TypeString},
				{Name: "author", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Save(cc.Ctx, stringArg(args, "task_id"), intArg(args, "step"),
					stringArg(args, "action"), stringArg(args, "state"), stringArg(args, "author"))
			},
		},
		{
			Name:       "interrupt_checkpoint",
			Category:   CategoryInterrupt,
			Capability: CanManageAgents,
			Schema: Schema{
				{Name: "id", Type: TypeString, Required: true},
				{Name: "message", Type: TypeString},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Interrupt(cc.Ctx, stringArg(args, "id"), stringArg(args, "message"))
			},
		},
		{
			Name:       "approve_checkpoint",
			Category:   CategoryInterrupt,
			Capability: CanManageAgents,
			Schema:     Schema{{Name: "task_id", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Approve(cc.Ctx, stringArg(args, "task_id"))
			},
		},
		{
			Name:       "approve_checkpoint_edited",
			Category:   CategoryInterrupt,
			Capability: CanManageAgents,
			Schema: Schema{
				{Name: "task_id", Type: TypeString, Required: true},
				{Name: "edited_state", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ApproveEdited(cc.Ctx, stringArg(args, "task_id"), stringArg(args, "edited_state"))
			},
		},
		{
			Name:       "reject_checkpoint",
			Category:   CategoryInterrupt,
			Capability: CanManageAgents,
			Schema: Schema{
				{Name: "task_id", Type: TypeString, Required: true},
				{Name: "reason", Type: TypeString},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Reject(cc.Ctx, stringArg(args, "task_id"), stringArg(args, "reason"))
			},
		},
		{
			Name:       "branch_checkpoint",
			Category:   CategoryInterrupt,
			Capability: CanClaim,
			Schema: Schema{
				{Name: "parent_id", Type: TypeString, Required: true},
				{Name: "branch_name", Type: TypeString, Required: true},
				{Name: "author", Type: TypeString, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Branch(cc.Ctx, stringArg(args, "parent_id"), stringArg(args, "branch_name"), stringArg(args, "author"))
			},
		},
		{
			Name:       "revert_checkpoint",
			Category:   CategoryInterrupt,
			Capability: CanManageAgents,
			Schema: Schema{
				{Name: "task_id", Type: TypeString, Required: true},
				{Name: "target_step", Type: TypeInt, Required: true},
			},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.Revert(cc.Ctx, stringArg(args, "task_id"), intArg(args, "target_step"))
			},
		},
		{
			Name:       "list_checkpoints",
			Category:   CategoryInterrupt,
			Capability: CanReadState,
			Schema:     Schema{{Name: "task_id", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				return cc.Room.ListCheckpoints(cc.Ctx, stringArg(args, "task_id"))
			},
		},
		{
			Name:       "pending_checkpoints",
			Category:   CategoryInterrupt,
			Capability: CanReadState,
			Schema:     Schema{{Name: "timeout_min", Type: TypeInt}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				timeoutMin := intArg(args, "timeout_min")
				if timeoutMin == 0 {
					timeoutMin = room.DefaultPendingTimeoutMinutes
				}
				return cc.Room.Pending(cc.Ctx, timeoutMin)
			},
		},
	}
}
