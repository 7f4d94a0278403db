package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pawdesk/app/client/llm"
	"pawdesk/app/config"
	"pawdesk/app/service/executor"
	"pawdesk/app/service/metrics"
	"pawdesk/app/service/resolver"
	"pawdesk/app/service/tools"

	_ "embed"

	"github.com/samber/do"
)

//go:embed system_prompt.txt
var systemPromptTemplate string

const (
	genericApology = "Sorry, I wasn't able to complete that just now. Could you try again in a moment?"
	clarifyApology = "Sorry, I didn't quite catch that. Could you rephrase?"

	// Bound on tool-execution rounds within one turn.
	maxExecRounds = 3
)

// Backends bundles the two reasoning backends a deployment runs with.
// Fallback may be nil.
type Backends struct {
	Primary  llm.Backend
	Fallback llm.Backend
}

// Service is the turn router: per inbound turn it picks a reasoning backend,
// drives the state machine through tool execution, and guards the final
// reply with the confirmation-safety check.
type Service struct {
	cfg      *config.Config
	registry *tools.Registry
	resolver *resolver.Service
	executor *executor.Service
	sink     metrics.Sink
	backends Backends
	detector ConfirmationClaimDetector

	conversations *manager
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:           do.MustInvoke[*config.Config](di),
		registry:      do.MustInvoke[*tools.Registry](di),
		resolver:      do.MustInvoke[*resolver.Service](di),
		executor:      do.MustInvoke[*executor.Service](di),
		sink:          do.MustInvoke[metrics.Sink](di),
		backends:      do.MustInvoke[Backends](di),
		detector:      newRegexClaimDetector(),
		conversations: newManager(),
	}, nil
}

// NewWithDeps constructs the service without the DI container. Tests use it.
func NewWithDeps(cfg *config.Config, registry *tools.Registry, res *resolver.Service, exec *executor.Service, sink metrics.Sink, backends Backends) *Service {
	return &Service{
		cfg:           cfg,
		registry:      registry,
		resolver:      res,
		executor:      exec,
		sink:          sink,
		backends:      backends,
		detector:      newRegexClaimDetector(),
		conversations: newManager(),
	}
}

// ProcessTurn handles one inbound user message end to end and returns the
// user-facing reply. Turns of the same conversation are serialized; a raw
// backend error never makes it into the reply.
func (s *Service) ProcessTurn(ctx context.Context, tenantID, conversationID, userText string) (string, error) {
	state, release := s.conversations.acquire(tenantID, conversationID)
	defer release()

	s.expireStaleSelection(state)

	state.append(llm.Message{Role: llm.RoleUser, Content: userText})

	reply := s.runTurn(ctx, state, userText)

	state.append(llm.Message{Role: llm.RoleAssistant, Content: reply})
	state.Messages = pruneMessages(state.Messages, s.cfg.Orchestrator.MaxHistoryTurns)

	return reply, nil
}

// runTurn drives the state machine for one turn.
func (s *Service) runTurn(ctx context.Context, state *State, userText string) string {
	current := stateReasoning
	provider := s.backends.Primary
	state.ActiveProvider = ProviderReasoning
	state.LastToolResults = nil

	toolIntent := requiresTools(userText)
	execRounds := 0

	var resp *llm.Response

	for {
		switch current {
		case stateReasoning, stateFallbackReasoning, stateFinalizing:
			var err error
			resp, err = s.reason(ctx, state, provider)
			if err != nil {
				slog.Error("Reasoning pass failed",
					"tenant_id", state.TenantID,
					"conversation_id", state.ConversationID,
					"provider", provider.Name(),
					"error", err,
				)
			}

			sig := s.signalFor(state, provider, resp, err, toolIntent && current == stateReasoning)
			next := transition(current, sig)

			switch next {
			case stateFallbackReasoning:
				provider = s.backends.Fallback
				if current == stateReasoning && s.cfg.Orchestrator.HybridExecution {
					state.ActiveProvider = ProviderExecution
				} else {
					state.ActiveProvider = ProviderFallback
				}
			case stateEnd:
				if err != nil || resp.Empty() {
					if err == nil {
						return clarifyApology
					}
					return genericApology
				}
				if !sig.trusted {
					slog.Warn("Suppressed unverified confirmation claim",
						"tenant_id", state.TenantID,
						"conversation_id", state.ConversationID,
						"provider", provider.Name(),
					)
					return genericApology
				}
				return strings.TrimSpace(resp.Content)
			}

			current = next

		case stateExecuting:
			if execRounds >= maxExecRounds {
				slog.Warn("Tool round limit reached",
					"tenant_id", state.TenantID,
					"conversation_id", state.ConversationID,
				)
				return genericApology
			}
			execRounds++

			s.execute(ctx, state, resp)

			current = transition(stateExecuting, turnSignal{})
			// The primary backend turns tool results into the reply.
			provider = s.backends.Primary
			state.ActiveProvider = ProviderReasoning
		}
	}
}

func (s *Service) signalFor(state *State, provider llm.Backend, resp *llm.Response, err error, toolIntent bool) turnSignal {
	sig := turnSignal{
		backendErr:        err != nil,
		hybridExecution:   s.cfg.Orchestrator.HybridExecution,
		fallbackAvailable: s.backends.Fallback != nil && provider != s.backends.Fallback,
		trusted:           true,
	}

	if err != nil || resp == nil {
		return sig
	}

	sig.hasToolCalls = len(resp.ToolCalls) > 0
	sig.hasText = strings.TrimSpace(resp.Content) != ""
	sig.toolIntent = toolIntent && !sig.hasToolCalls

	if sig.hasText && !sig.hasToolCalls {
		claims := s.detector.ClaimsCompletion(resp.Content)
		sig.trusted = !claims || s.actionSucceeded(state.LastToolResults)
	}

	return sig
}

// actionSucceeded reports whether a mutating tool completed successfully in
// the given results. Cacheable tools are read-only and prove nothing.
func (s *Service) actionSucceeded(results []executor.CallResult) bool {
	for _, r := range results {
		if !r.Success() {
			continue
		}
		if spec, ok := s.registry.Get(r.ToolName); ok && !spec.Cacheable {
			return true
		}
	}
	return false
}

func (s *Service) reason(ctx context.Context, state *State, provider llm.Backend) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Orchestrator.ReasonTimeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Invoke(ctx, s.buildSystemPrompt(state), state.Messages, s.registry.Schemas())

	pass := metrics.ReasoningPass{
		TenantID:       state.TenantID,
		ConversationID: state.ConversationID,
		MessageCount:   len(state.Messages),
		Duration:       time.Since(start),
		Success:        err == nil,
		Provider:       provider.Name(),
	}
	if resp != nil {
		pass.ToolCallCount = len(resp.ToolCalls)
	}
	s.sink.RecordReasoningPass(pass)

	return resp, err
}

// execute resolves the requested calls into waves, runs them, and appends
// the request/result pair to the conversation history.
func (s *Service) execute(ctx context.Context, state *State, resp *llm.Response) {
	waves := s.resolver.Resolve(resolver.Input{
		TenantID:       state.TenantID,
		ConversationID: state.ConversationID,
		Calls:          resp.ToolCalls,
		Facts:          state.Facts,
		Satisfied:      state.Satisfied,
	})

	// The assistant message carries every call, injected prerequisites
	// included, so each tool result references a recorded request.
	var allCalls []llm.ToolCall
	for _, wave := range waves {
		allCalls = append(allCalls, wave...)
	}
	state.PendingToolCalls = allCalls
	state.append(llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: allCalls,
	})

	results := s.executor.ExecuteWaves(ctx, tools.CallContext{
		TenantID:       state.TenantID,
		ConversationID: state.ConversationID,
		Timezone:       state.Facts["timezone"],
		Facts:          state.Facts,
	}, waves)

	for _, r := range results {
		state.append(llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: r.CallID,
			Content:    toolResultContent(r),
		})

		if !r.Success() {
			continue
		}

		state.Satisfied[r.ToolName] = true
		s.harvestFacts(state, r)

		if r.Result != nil && r.Result.NeedsSelection != nil {
			state.Selection = &PendingSelection{
				Selection: *r.Result.NeedsSelection,
				ToolName:  r.ToolName,
				CreatedAt: time.Now(),
			}
		} else if state.Selection != nil && state.Selection.ToolName == r.ToolName {
			// The pending choice was consumed by a successful call.
			state.Selection = nil
		}
	}

	state.LastToolResults = results
	state.PendingToolCalls = nil
}

// harvestFacts lifts identity data out of successful results into the
// session facts, so later turns can auto-inject prerequisite calls.
func (s *Service) harvestFacts(state *State, r executor.CallResult) {
	data, ok := r.Result.Data.(map[string]any)
	if !ok {
		return
	}

	for _, key := range []string{"customer_id", "customer_name", "customer_phone", "timezone"} {
		if v, ok := data[key].(string); ok && v != "" {
			state.Facts[key] = v
		}
	}
}

// toolResultContent renders one result as the structured tool message fed
// back to the backend. Errors become correctable content, never stack traces.
func toolResultContent(r executor.CallResult) string {
	if r.Err != nil {
		payload := map[string]any{
			"error": r.Err.Error(),
		}
		if code := tools.CodeOf(r.Err); code != "" {
			payload["code"] = code
		}
		encoded, _ := json.Marshal(payload)
		return string(encoded)
	}

	encoded, err := json.Marshal(r.Result)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(encoded)
}

func (s *Service) buildSystemPrompt(state *State) string {
	facts := "(none)"
	if len(state.Facts) > 0 {
		var b strings.Builder
		for k, v := range state.Facts {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
		facts = strings.TrimRight(b.String(), "\n")
	}

	reminder := ""
	if state.Selection != nil {
		var options []string
		for _, o := range state.Selection.Selection.Options {
			options = append(options, fmt.Sprintf("%s (%s)", o.Label, o.ID))
		}
		reminder = fmt.Sprintf(
			"The user was previously asked to choose a %s for %s: %s. Interpret their next reply as that choice and retry the action with it.",
			state.Selection.Selection.Kind,
			state.Selection.ToolName,
			strings.Join(options, ", "),
		)
	}

	timezone := state.Facts["timezone"]
	if timezone == "" {
		timezone = "unknown"
	}

	templateValues := map[string]any{
		"now":                time.Now().Format("2006-01-02 15:04"),
		"timezone":           timezone,
		"facts":              facts,
		"selection_reminder": reminder,
	}

	prompt := systemPromptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	return prompt
}

func (s *Service) expireStaleSelection(state *State) {
	if state.Selection == nil {
		return
	}
	if time.Since(state.Selection.CreatedAt) > s.cfg.Orchestrator.SelectionStaleness {
		slog.Debug("Dropping stale pending selection",
			"tenant_id", state.TenantID,
			"conversation_id", state.ConversationID,
			"tool", state.Selection.ToolName,
		)
		state.Selection = nil
	}
}

// RunSweepLoop drops idle conversations until ctx is done.
func (s *Service) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Orchestrator.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.conversations.sweep(s.cfg.Orchestrator.ConversationRetention); removed > 0 {
				slog.Debug("Swept idle conversations", "removed", removed)
			}
		}
	}
}

func (s *Service) Close() error {
	return nil
}
