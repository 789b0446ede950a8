// Package tools implements the tool registry and resolver-chain
// dispatcher: a name maps to a schema, a required capability, a
// category and a handler, and handlers are organised as a chain of
// resolver modules rather than one central switch (spec.md §4.3),
// grounded on pkg/api/handlers.go's flat, reflection-free handler
// registration in the teacher.
package tools

import (
	"context"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/room"
)

// Category groups related tools for mode-gated visibility (spec.md §4.3).
type Category string

const (
	CategoryCore          Category = "core"
	CategoryCommunication Category = "communication"
	CategoryPortal        Category = "portal"
	CategoryWorktree      Category = "worktree"
	CategoryHealth        Category = "health"
	CategoryDiscovery     Category = "discovery"
	CategoryVoting        Category = "voting"
	CategoryInterrupt     Category = "interrupt"
	CategoryCost          Category = "cost"
	CategoryAuth          Category = "auth"
	CategoryRateLimit     Category = "rate_limit"
	CategoryEncryption    Category = "encryption"
	CategoryTempo         Category = "tempo"
)

// Capability is a single permission a tool may require (spec.md §4.3,
// §4.9). Roles imply a capability set: reader ⊂ worker ⊂ admin.
type Capability string

const (
	CanReadState    Capability = "CanReadState"
	CanClaim        Capability = "CanClaim"
	CanBroadcast    Capability = "CanBroadcast"
	CanManageAgents Capability = "CanManageAgents"
	CanAdmin        Capability = "CanAdmin"
)

// RoleCapabilities returns the capability set granted to role, reader ⊂
// worker ⊂ admin (spec.md §4.9).
func RoleCapabilities(r room.AgentRole) map[Capability]bool {
	caps := map[Capability]bool{CanReadState: true}
	if r == room.RoleWorker || r == room.RoleAdmin {
		caps[CanClaim] = true
		caps[CanBroadcast] = true
	}
	if r == room.RoleAdmin {
		caps[CanManageAgents] = true
		caps[CanAdmin] = true
	}
	return caps
}

// Mode gates which categories are visible to a session (spec.md §4.3).
type Mode string

const (
	ModeFull     Mode = "full"
	ModeStandard Mode = "standard"
	ModeMinimal  Mode = "minimal"
	ModeSolo     Mode = "solo"
	ModeParallel Mode = "parallel"
	ModeCustom   Mode = "custom"
)

// ModeConfig resolves to an enabled-category set; Custom is only
// consulted when Mode == ModeCustom.
type ModeConfig struct {
	Mode   Mode
	Custom []Category
}

var standardCategories = []Category{
	CategoryCore, CategoryCommunication, CategoryHealth, CategoryDiscovery,
}

var minimalCategories = []Category{CategoryCore, CategoryHealth}

var soloCategories = []Category{
	CategoryCore, CategoryCommunication, CategoryHealth, CategoryDiscovery, CategoryWorktree,
}

var parallelCategories = []Category{
	CategoryCore, CategoryCommunication, CategoryPortal, CategoryWorktree,
	CategoryHealth, CategoryDiscovery, CategoryVoting, CategoryInterrupt,
}

var fullCategories = []Category{
	CategoryCore, CategoryCommunication, CategoryPortal, CategoryWorktree,
	CategoryHealth, CategoryDiscovery, CategoryVoting, CategoryInterrupt,
	CategoryCost, CategoryAuth, CategoryRateLimit, CategoryEncryption, CategoryTempo,
}

// Enabled reports the set of categories visible under this mode.
func (m ModeConfig) Enabled() map[Category]bool {
	var list []Category
	switch m.Mode {
	case ModeStandard:
		list = standardCategories
	case ModeMinimal:
		list = minimalCategories
	case ModeSolo:
		list = soloCategories
	case ModeParallel:
		list = parallelCategories
	case ModeCustom:
		list = m.Custom
	case ModeFull, "":
		list = fullCategories
	default:
		list = fullCategories
	}
	set := make(map[Category]bool, len(list))
	for _, c := range list {
		set[c] = true
	}
	return set
}

// FieldType tags the semantic type of a schema Field (spec.md §4.3
// "semantic type").
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeList   FieldType = "list"
)

// Field describes one argument a tool accepts.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Enum     []string // empty means unconstrained
}

// Schema is the ordered list of fields a tool's arguments must satisfy.
type Schema []Field

// CallContext is passed to every handler: the room the call targets,
// the caller's identity, its granted capabilities, and ambient server
// metadata (version, backend kind) used by the health/discovery tools.
type CallContext struct {
	Ctx          context.Context
	Room         *room.Room
	SessionID    string
	Agent        string
	Role         room.AgentRole
	Capabilities map[Capability]bool
	ServerVersion string
	BackendKind   string
	Mode          ModeConfig
	EncryptionKey []byte
}

// Handler executes a validated tool call and returns a JSON-marshalable
// result.
type Handler func(cc CallContext, args map[string]any) (any, error)

// Tool is one entry in the registry (spec.md §4.3).
type Tool struct {
	Name       string
	Schema     Schema
	Capability Capability
	Category   Category
	Handler    Handler
}

// Registry is the immutable, read-only-after-startup tool table
// (spec.md §5 "the tool registry is read-only after startup").
type Registry struct {
	tools []Tool
	byName map[string]Tool
}

// NewRegistry builds a Registry from the given tools, normally the
// per-category tool lists that Build collects.
func NewRegistry(tools []Tool) *Registry {
	reg := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		reg.tools = append(reg.tools, t)
		reg.byName[t.Name] = t
	}
	return reg
}

// appendTools adds tools to an already-constructed Registry. Used only
// during startup wiring (Build) to add the discovery tools, which need
// a reference to the Registry they themselves are registered into; the
// registry is otherwise read-only after startup (spec.md §5).
func (r *Registry) appendTools(tools []Tool) {
	for _, t := range tools {
		r.tools = append(r.tools, t)
		r.byName[t.Name] = t
	}
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// ListEnabled returns every tool whose category is enabled under mode,
// in registration order (spec.md §4.3 "list_tools").
func (r *Registry) ListEnabled(mode ModeConfig) []Tool {
	enabled := mode.Enabled()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if enabled[t.Category] {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks args against schema: required fields present, types
// matching, enum membership, and rejects unknown fields, returning a
// ValidationError naming the offending field on the first violation
// (spec.md §4.3 "InvalidParams with the offending field").
func Validate(schema Schema, args map[string]any) error {
	known := make(map[string]Field, len(schema))
	for _, f := range schema {
		known[f.Name] = f
		v, present := args[f.Name]
		if !present {
			if f.Required {
				return merrors.InvalidParams(f.Name, "required field missing")
			}
			continue
		}
		if err := validateType(f, v); err != nil {
			return err
		}
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			return merrors.InvalidParams(name, "unknown field")
		}
	}
	return nil
}

func validateType(f Field, v any) error {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return merrors.InvalidParams(f.Name, "must be a string")
		}
		if len(f.Enum) > 0 && !stringInSlice(s, f.Enum) {
			return merrors.InvalidParams(f.Name, "must be one of "+joinEnum(f.Enum))
		}
	case TypeInt, TypeFloat:
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			return merrors.InvalidParams(f.Name, "must be numeric")
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return merrors.InvalidParams(f.Name, "must be a boolean")
		}
	case TypeList:
		if _, ok := v.([]any); !ok {
			return merrors.InvalidParams(f.Name, "must be a list")
		}
	}
	return nil
}

func stringInSlice(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func joinEnum(list []string) string {
	out := ""
	for i, v := range list {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
