package room

import "context"

// Event kinds, matching the strings already passed to (*Room).publish
// throughout this package (spec.md §9 "every domain mutation ... emits
// at least one notification").
const (
	EventMessage  = "message"
	EventMention  = "mention"
	EventProgress = "progress"
	EventShutdown = "shutdown"
)

// BroadcastShutdown emits the shutdown notification the transport layer
// (C5) sends once to every connected session immediately before
// entering its drain window (spec.md §5 graceful shutdown).
func (r *Room) BroadcastShutdown(ctx context.Context, reason string) {
	r.publish(ctx, EventShutdown, map[string]any{"reason": reason})
}
