package tools

import (
	"fmt"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/ratelimit"
)

// Resolver inspects a tool name and either handles it or declines,
// letting the Dispatcher try the next resolver in the chain (spec.md
// §4.3 "dispatch chain ... lets the registry grow by adding resolver
// modules without touching a central switch").
type Resolver interface {
	Resolve(cc CallContext, name string, args map[string]any) (result any, matched bool, err error)
}

// RegistryResolver is the tail resolver: it looks the tool up in a
// Registry, validates arguments and checks the capability gate, then
// invokes the handler. Every category's tools are registered into one
// Registry, so in practice this single resolver is both the bulk
// handler and the tail — other Resolvers may be chained in front of it
// to intercept specific tool names (e.g. a future encryption-aware
// pre-processor) before falling through here.
type RegistryResolver struct {
	Registry *Registry
}

func (r *RegistryResolver) Resolve(cc CallContext, name string, args map[string]any) (any, bool, error) {
	tool, ok := r.Registry.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	if err := Validate(tool.Schema, args); err != nil {
		return nil, true, err
	}
	if !cc.Capabilities[tool.Capability] {
		return nil, true, &merrors.PermissionDenied{Required: string(tool.Capability)}
	}
	result, err := tool.Handler(cc, args)
	return result, true, err
}

// rateLimitCategory maps a tool category onto one of the three budget
// pools spec.md §4.9 names explicitly (general, broadcast, task-ops);
// everything not named falls into "general".
func rateLimitCategory(c Category) string {
	switch c {
	case CategoryCommunication:
		return "broadcast"
	case CategoryCore:
		return "task-ops"
	default:
		return "general"
	}
}

// RateLimitResolver sits in front of RegistryResolver and enforces the
// C9 token-bucket gate before a tool handler runs. It never handles a
// tool itself (matched is always false when allowed), so the chain
// always falls through to the registry.
type RateLimitResolver struct {
	Registry *Registry
	Gate     *ratelimit.Gate
}

func (r *RateLimitResolver) Resolve(cc CallContext, name string, _ map[string]any) (any, bool, error) {
	tool, ok := r.Registry.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	category := rateLimitCategory(tool.Category)
	agent := cc.Agent
	if agent == "" {
		agent = "anonymous"
	}
	if r.Gate.Allow(agent, category, string(cc.Role)) {
		return nil, false, nil
	}
	retry := r.Gate.RetryAfter(agent, category, string(cc.Role))
	return nil, true, &merrors.RateLimited{RetryAfterSeconds: retry.Seconds()}
}

// Dispatcher tries each Resolver in order, returning the first match's
// result or error. If no resolver matches, the call fails with
// MethodNotFound (spec.md §4.3).
type Dispatcher struct {
	chain []Resolver
}

// NewDispatcher builds a Dispatcher from resolvers, tried in the given
// order.
func NewDispatcher(resolvers ...Resolver) *Dispatcher {
	return &Dispatcher{chain: resolvers}
}

// Dispatch runs name(args) through the resolver chain.
func (d *Dispatcher) Dispatch(cc CallContext, name string, args map[string]any) (any, error) {
	for _, resolver := range d.chain {
		result, matched, err := resolver.Resolve(cc, name, args)
		if matched {
			return result, err
		}
	}
	return nil, fmt.Errorf("%w: %q", merrors.ErrMethodNotFound, name)
}
