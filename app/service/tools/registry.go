package tools

import (
	"context"
	"sync"
	"time"

	"pawdesk/app/client/llm"

	"github.com/samber/oops"
)

// CallContext carries the session-scoped facts a handler needs to build a
// business response. Facts hold whatever identity data the conversation has
// established so far (customer name, phone, appointment id).
type CallContext struct {
	TenantID       string
	ConversationID string
	Timezone       string
	Facts          map[string]string
}

// SelectionOption is one choice presented to the user when a business
// ambiguity (several locations, several groomers) blocks an action.
type SelectionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Selection is the needs_selection outcome shape: the action cannot complete
// until the user picks one of Options. Params preserves the original request
// so it can be replayed once the choice arrives.
type Selection struct {
	Kind    string            `json:"kind"`
	Options []SelectionOption `json:"options"`
	Params  map[string]any    `json:"params,omitempty"`
}

// Result is a structured tool outcome. Exactly one of Data or NeedsSelection
// is normally set.
type Result struct {
	Data           any        `json:"data,omitempty"`
	NeedsSelection *Selection `json:"needs_selection,omitempty"`
}

// Handler executes one tool. Implementations live outside this engine
// (business services, MCP servers); the engine only routes calls to them.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any, call CallContext) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args map[string]any, call CallContext) (*Result, error)

func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any, call CallContext) (*Result, error) {
	return f(ctx, args, call)
}

// Spec declares everything the engine needs to know about one tool.
type Spec struct {
	Name        string
	Description string
	// Parameters is the JSON schema advertised to reasoning backends.
	Parameters map[string]any
	// Rules maps argument names to validator rule strings ("required", "oneof=...").
	Rules map[string]any
	// Requires lists tool names whose results must exist before this tool runs.
	Requires []string
	// InjectArgs synthesizes arguments for this tool from already-known
	// session facts when it is auto-injected as a prerequisite. Returning
	// false means the facts on hand are not enough; injection never guesses.
	InjectArgs func(facts map[string]string) (map[string]any, bool)
	// Timeout bounds one handler invocation. Zero means the registry default.
	Timeout time.Duration
	// Cacheable marks read-only tools whose results may be reused within TTL.
	Cacheable bool
	TTL       time.Duration
	// CacheKeyFields is the argument subset that defines cache identity.
	CacheKeyFields []string

	Handler Handler
}

const defaultTimeout = 10 * time.Second

func (s Spec) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return defaultTimeout
}

// Registry is a pure lookup table of tool specs. Registration happens during
// startup; lookups are concurrent afterwards.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]Spec),
	}
}

func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return oops.Errorf("tool spec has no name")
	}
	if spec.Handler == nil {
		return oops.With("tool", spec.Name).Errorf("tool spec has no handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return oops.With("tool", spec.Name).Errorf("tool already registered")
	}
	r.specs[spec.Name] = spec

	return nil
}

func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	return spec, ok
}

// Schemas returns function-calling schemas for every registered tool.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]llm.ToolSchema, 0, len(r.specs))
	for _, spec := range r.specs {
		params := spec.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, llm.ToolSchema{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		})
	}

	return result
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}

	return names
}
