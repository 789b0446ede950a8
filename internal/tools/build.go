package tools

import (
	"github.com/masc-dev/masc/internal/ratelimit"
	"github.com/masc-dev/masc/internal/tempo"
)

// Build assembles the full Registry and Dispatcher from every category
// module. Discovery's list_tools handler closes over the same *Registry
// it is appended to, via Registry.appendTools, so it always sees the
// fully-populated tool set rather than a stale snapshot.
func Build(gate *ratelimit.Gate, loop *tempo.Loop) (*Registry, *Dispatcher) {
	base := []Tool{}
	base = append(base, CoreTools()...)
	base = append(base, CommunicationTools()...)
	base = append(base, PortalTools()...)
	base = append(base, WorktreeTools()...)
	base = append(base, HealthTools()...)
	base = append(base, VotingTools()...)
	base = append(base, InterruptTools()...)
	base = append(base, CostTools()...)
	base = append(base, AuthTools()...)
	base = append(base, RateLimitTools(gate)...)
	base = append(base, EncryptionTools()...)
	base = append(base, TempoTools(loop)...)

	registry := NewRegistry(base)
	registry.appendTools(DiscoveryTools(registry))

	dispatcher := NewDispatcher(
		&RateLimitResolver{Registry: registry, Gate: gate},
		&RegistryResolver{Registry: registry},
	)
	return registry, dispatcher
}
