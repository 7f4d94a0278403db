package conversation

import (
	"sync"
	"time"

	"pawdesk/app/client/llm"
	"pawdesk/app/service/executor"
	"pawdesk/app/service/tools"
)

// Provider names the reasoning backend currently responsible for a turn.
type Provider string

const (
	ProviderReasoning Provider = "reasoning"
	ProviderFallback  Provider = "fallback"
	ProviderExecution Provider = "execution-agent"
)

// PendingSelection captures a disambiguation question waiting for the
// user's answer, with the original request so it can be replayed.
type PendingSelection struct {
	Selection tools.Selection
	ToolName  string
	CreatedAt time.Time
}

// State is the per-conversation working set. (TenantID, ConversationID) is
// the durable key; everything else is rebuilt or mutated turn by turn.
// Access is serialized per conversation by the manager's keyed locks.
type State struct {
	TenantID       string
	ConversationID string

	Messages []llm.Message
	// Facts are session-scoped identity data handlers may rely on
	// (customer_name, customer_phone, timezone).
	Facts map[string]string
	// Satisfied names tools that completed successfully this conversation;
	// the resolver treats them as met prerequisites.
	Satisfied map[string]bool

	ActiveProvider   Provider
	PendingToolCalls []llm.ToolCall
	LastToolResults  []executor.CallResult
	Selection        *PendingSelection

	UpdatedAt time.Time
}

func newState(tenantID, conversationID string) *State {
	return &State{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Facts:          map[string]string{},
		Satisfied:      map[string]bool{},
		ActiveProvider: ProviderReasoning,
		UpdatedAt:      time.Now(),
	}
}

func (s *State) append(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// manager holds conversation states and one lock per conversation so two
// turns of the same conversation never interleave. Different conversations
// proceed independently.
type manager struct {
	mu     sync.Mutex
	states map[stateKey]*managed
}

type stateKey struct {
	tenantID       string
	conversationID string
}

type managed struct {
	state *State
	lock  sync.Mutex
}

func newManager() *manager {
	return &manager{
		states: make(map[stateKey]*managed),
	}
}

// acquire returns the conversation state with its turn lock held. The caller
// must release when the turn completes.
func (m *manager) acquire(tenantID, conversationID string) (*State, func()) {
	m.mu.Lock()
	k := stateKey{tenantID, conversationID}
	entry, ok := m.states[k]
	if !ok {
		entry = &managed{state: newState(tenantID, conversationID)}
		m.states[k] = entry
	}
	m.mu.Unlock()

	entry.lock.Lock()
	return entry.state, entry.lock.Unlock
}

// sweep drops conversations idle beyond the retention window.
func (m *manager) sweep(retention time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, entry := range m.states {
		if time.Since(entry.state.UpdatedAt) > retention {
			delete(m.states, k)
			removed++
		}
	}

	return removed
}
