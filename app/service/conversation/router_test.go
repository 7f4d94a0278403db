package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionFromReasoning(t *testing.T) {
	cases := []struct {
		name string
		sig  turnSignal
		want routerState
	}{
		{
			name: "plain text reply ends the turn",
			sig:  turnSignal{hasText: true, trusted: true},
			want: stateEnd,
		},
		{
			name: "tool calls go to execution",
			sig:  turnSignal{hasToolCalls: true, trusted: true},
			want: stateExecuting,
		},
		{
			name: "hybrid routing hands tool calls to the second backend",
			sig:  turnSignal{hasToolCalls: true, trusted: true, hybridExecution: true, fallbackAvailable: true},
			want: stateFallbackReasoning,
		},
		{
			name: "hybrid without a fallback executes directly",
			sig:  turnSignal{hasToolCalls: true, trusted: true, hybridExecution: true},
			want: stateExecuting,
		},
		{
			name: "backend error falls back",
			sig:  turnSignal{backendErr: true, fallbackAvailable: true},
			want: stateFallbackReasoning,
		},
		{
			name: "backend error without fallback ends",
			sig:  turnSignal{backendErr: true},
			want: stateEnd,
		},
		{
			name: "empty response falls back",
			sig:  turnSignal{trusted: true, fallbackAvailable: true},
			want: stateFallbackReasoning,
		},
		{
			name: "untrusted claim falls back",
			sig:  turnSignal{hasText: true, trusted: false, fallbackAvailable: true},
			want: stateFallbackReasoning,
		},
		{
			name: "untrusted claim without fallback ends",
			sig:  turnSignal{hasText: true, trusted: false},
			want: stateEnd,
		},
		{
			name: "tool intent without tool calls falls back",
			sig:  turnSignal{hasText: true, trusted: true, toolIntent: true, fallbackAvailable: true},
			want: stateFallbackReasoning,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transition(stateReasoning, tc.sig))
		})
	}
}

func TestTransitionFromFallbackReasoning(t *testing.T) {
	assert.Equal(t, stateExecuting,
		transition(stateFallbackReasoning, turnSignal{hasToolCalls: true, trusted: true}))
	assert.Equal(t, stateEnd,
		transition(stateFallbackReasoning, turnSignal{hasText: true, trusted: true}))
	assert.Equal(t, stateEnd,
		transition(stateFallbackReasoning, turnSignal{backendErr: true}))
}

func TestTransitionFromExecuting(t *testing.T) {
	assert.Equal(t, stateFinalizing, transition(stateExecuting, turnSignal{}))
}

func TestTransitionFromFinalizing(t *testing.T) {
	assert.Equal(t, stateEnd,
		transition(stateFinalizing, turnSignal{hasText: true, trusted: true}))
	assert.Equal(t, stateExecuting,
		transition(stateFinalizing, turnSignal{hasToolCalls: true, trusted: true}))
	assert.Equal(t, stateFallbackReasoning,
		transition(stateFinalizing, turnSignal{hasText: true, trusted: false, fallbackAvailable: true}))
	assert.Equal(t, stateEnd,
		transition(stateFinalizing, turnSignal{hasText: true, trusted: false}))
	assert.Equal(t, stateEnd,
		transition(stateFinalizing, turnSignal{backendErr: true}))
}
