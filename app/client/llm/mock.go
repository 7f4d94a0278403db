package llm

import (
	"context"
	"fmt"
	"sync"
)

var _ Backend = (*ScriptedBackend)(nil)

// ScriptedBackend returns a pre-defined sequence of responses. Useful for
// testing multi-turn routing without a live model.
type ScriptedBackend struct {
	mu        sync.Mutex
	name      string
	responses []*Response
	Err       error
	CallCount int
	// LastHistory captures the history of the most recent Invoke for assertions.
	LastHistory []Message
}

func NewScriptedBackend(name string, responses ...*Response) *ScriptedBackend {
	return &ScriptedBackend{
		name:      name,
		responses: responses,
	}
}

func (s *ScriptedBackend) Name() string {
	return s.name
}

func (s *ScriptedBackend) Invoke(_ context.Context, _ string, history []Message, _ []ToolSchema) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.LastHistory = append([]Message(nil), history...)

	if s.Err != nil {
		return nil, s.Err
	}

	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted backend %s: no more responses", s.name)
	}

	next := s.responses[0]
	s.responses = s.responses[1:]

	return next, nil
}

func (s *ScriptedBackend) AddResponse(r *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
}
