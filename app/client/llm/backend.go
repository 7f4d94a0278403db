package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history handed to a backend.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a backend's request to run one tool. Injected marks calls
// synthesized by the dependency resolver rather than requested by a backend.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Injected  bool           `json:"injected,omitempty"`
}

// ToolSchema describes one tool to the backend in function-calling form.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is what a backend produced for one reasoning pass: free text,
// tool-call requests, or (from a misbehaving backend) neither.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

func (r *Response) Empty() bool {
	return r == nil || (r.Content == "" && len(r.ToolCalls) == 0)
}

// Backend is an interchangeable reasoning backend. Implementations must not
// leak provider-specific errors to callers beyond the error return.
type Backend interface {
	Invoke(ctx context.Context, systemPrompt string, history []Message, tools []ToolSchema) (*Response, error)
	Name() string
}
