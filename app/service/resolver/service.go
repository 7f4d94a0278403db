package resolver

import (
	"log/slog"
	"strings"

	"pawdesk/app/client/llm"
	"pawdesk/app/service/tools"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"github.com/samber/do"
)

// Service turns a flat batch of requested tool calls into ordered execution
// waves, synthesizing missing prerequisite calls when the conversation
// already holds the facts to build them. Injection never guesses.
type Service struct {
	registry *tools.Registry
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		registry: do.MustInvoke[*tools.Registry](di),
	}, nil
}

func NewWithRegistry(registry *tools.Registry) *Service {
	return &Service{registry: registry}
}

// Input is one batch to resolve. Facts are the session facts known so far;
// Satisfied names tools that already ran successfully this conversation, so
// their prerequisites need no re-run.
type Input struct {
	TenantID       string
	ConversationID string
	Calls          []llm.ToolCall
	Facts          map[string]string
	Satisfied      map[string]bool
}

// Resolve returns the execution waves. Calls inside one wave have all their
// dependencies met by earlier waves (or by prior conversation state) and may
// run concurrently. A declared dependency that can neither be satisfied nor
// injected is logged as a hard error and the dependent call proceeds anyway,
// so the failure surfaces in the handler instead of vanishing.
func (s *Service) Resolve(in Input) [][]llm.ToolCall {
	batch := append([]llm.ToolCall(nil), in.Calls...)

	requested := map[string]bool{}
	for _, call := range batch {
		requested[call.Name] = true
	}

	// Injection pass: prepend prerequisites that are missing from the batch,
	// unknown to the conversation, and derivable from known facts.
	var injected []llm.ToolCall
	for _, call := range batch {
		spec, ok := s.registry.Get(call.Name)
		if !ok {
			continue
		}
		for _, dep := range spec.Requires {
			if requested[dep] || in.Satisfied[dep] {
				continue
			}

			depSpec, ok := s.registry.Get(dep)
			if ok && depSpec.InjectArgs != nil {
				if args, can := depSpec.InjectArgs(in.Facts); can {
					injected = append(injected, llm.ToolCall{
						ID:        injectedCallID(),
						Name:      dep,
						Arguments: args,
						Injected:  true,
					})
					requested[dep] = true
					slog.Info("Injected prerequisite tool call",
						"tenant_id", in.TenantID,
						"conversation_id", in.ConversationID,
						"tool", dep,
						"for", call.Name,
					)
					continue
				}
			}

			slog.Error("Tool dependency cannot be satisfied or injected, proceeding unmet",
				"tenant_id", in.TenantID,
				"conversation_id", in.ConversationID,
				"tool", call.Name,
				"dependency", dep,
			)
		}
	}

	batch = append(injected, batch...)

	return s.partition(in, batch)
}

// partition groups the batch into waves by iterating to a fixed point: a
// call is scheduled once every dependency it declares has a satisfying call
// in an earlier wave. With acyclic declarations this always drains; a
// leftover means a dependency cycle, which is a configuration defect.
func (s *Service) partition(in Input, batch []llm.ToolCall) [][]llm.ToolCall {
	scheduled := map[string]bool{}
	for name := range in.Satisfied {
		scheduled[name] = true
	}

	inBatch := map[string]bool{}
	for _, call := range batch {
		inBatch[call.Name] = true
	}

	pending := batch
	var waves [][]llm.ToolCall

	for len(pending) > 0 {
		var wave, rest []llm.ToolCall

		for _, call := range pending {
			if s.depsMet(call, scheduled, inBatch) {
				wave = append(wave, call)
			} else {
				rest = append(rest, call)
			}
		}

		if len(wave) == 0 {
			// Dependency cycle between the remaining calls.
			slog.Error("Dependency cycle in tool declarations, executing leftovers in one wave",
				"tenant_id", in.TenantID,
				"tools", strings.Join(pie.Map(rest, func(c llm.ToolCall) string { return c.Name }), ","),
			)
			waves = append(waves, rest)
			break
		}

		for _, call := range wave {
			scheduled[call.Name] = true
		}

		waves = append(waves, wave)
		pending = rest
	}

	return waves
}

func (s *Service) depsMet(call llm.ToolCall, scheduled, inBatch map[string]bool) bool {
	spec, ok := s.registry.Get(call.Name)
	if !ok {
		return true
	}

	for _, dep := range spec.Requires {
		if scheduled[dep] {
			continue
		}
		if inBatch[dep] {
			// Satisfying call exists but has not been scheduled yet.
			return false
		}
		// Unmet and not in the batch: already logged during injection,
		// the call proceeds without it.
	}

	return true
}

// injectedCallID returns a synthesized call identifier short enough for any
// backend's tool-call-id limits.
func injectedCallID() string {
	return "inj_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
