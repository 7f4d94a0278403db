package conversation

// routerState is one node of the per-turn state machine.
type routerState string

const (
	stateReasoning         routerState = "REASONING"
	stateFallbackReasoning routerState = "FALLBACK_REASONING"
	stateExecuting         routerState = "EXECUTING"
	stateFinalizing        routerState = "FINALIZING"
	stateEnd               routerState = "END"
)

// turnSignal carries everything a transition may depend on: the backend
// output shape, the confirmation-safety verdict, and routing configuration.
type turnSignal struct {
	backendErr   bool
	hasToolCalls bool
	hasText      bool
	// trusted is false when the reply claims a completed action without a
	// matching successful tool result this turn.
	trusted bool
	// toolIntent is true when the user's message matches tool-requiring
	// intent patterns.
	toolIntent bool
	// hybridExecution designates the secondary backend for the
	// execution-oriented reasoning pass.
	hybridExecution   bool
	fallbackAvailable bool
}

// transition is the pure routing function: (state, signal) -> next state.
// It decides where the turn goes; what to say on END is the service's job.
func transition(state routerState, sig turnSignal) routerState {
	switch state {
	case stateReasoning:
		switch {
		case sig.backendErr:
			if sig.fallbackAvailable {
				return stateFallbackReasoning
			}
			return stateEnd
		case sig.hasToolCalls:
			if sig.hybridExecution && sig.fallbackAvailable {
				return stateFallbackReasoning
			}
			return stateExecuting
		case !sig.hasText:
			// Backend produced neither text nor tool calls.
			if sig.fallbackAvailable {
				return stateFallbackReasoning
			}
			return stateEnd
		case !sig.trusted, sig.toolIntent:
			// Untrusted confirmation claim, or free text where the user's
			// request plainly needs tools.
			if sig.fallbackAvailable {
				return stateFallbackReasoning
			}
			return stateEnd
		default:
			return stateEnd
		}

	case stateFallbackReasoning:
		if !sig.backendErr && sig.hasToolCalls {
			return stateExecuting
		}
		return stateEnd

	case stateExecuting:
		return stateFinalizing

	case stateFinalizing:
		switch {
		case sig.backendErr:
			return stateEnd
		case sig.hasToolCalls:
			// Backend wants another round of tools over the fresh results.
			return stateExecuting
		case !sig.trusted && sig.fallbackAvailable:
			// Hallucinated confirmation: force a re-reasoning pass on the
			// other backend instead of showing the claim.
			return stateFallbackReasoning
		default:
			return stateEnd
		}
	}

	return stateEnd
}
