package resolver

import (
	"context"
	"testing"

	"pawdesk/app/client/llm"
	"pawdesk/app/service/tools"

	"github.com/elliotchance/pie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler() tools.Handler {
	return tools.HandlerFunc(func(_ context.Context, _ map[string]any, _ tools.CallContext) (*tools.Result, error) {
		return &tools.Result{Data: "ok"}, nil
	})
}

func testRegistry(t *testing.T, specs ...tools.Spec) *tools.Registry {
	t.Helper()

	registry := tools.NewRegistry()
	for _, spec := range specs {
		if spec.Handler == nil {
			spec.Handler = noopHandler()
		}
		require.NoError(t, registry.Register(spec))
	}

	return registry
}

func waveNames(waves [][]llm.ToolCall) [][]string {
	return pie.Map(waves, func(wave []llm.ToolCall) []string {
		return pie.Map(wave, func(c llm.ToolCall) string { return c.Name })
	})
}

func TestIndependentCallsShareOneWave(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{Name: "list_services"},
		tools.Spec{Name: "list_locations"},
	)
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls: []llm.ToolCall{
			{ID: "a", Name: "list_services"},
			{ID: "b", Name: "list_locations"},
		},
	})

	require.Len(t, waves, 1)
	assert.ElementsMatch(t, []string{"list_services", "list_locations"}, waveNames(waves)[0])
}

func TestDependencyOrdersWaves(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{Name: "list_appointments"},
		tools.Spec{Name: "cancel_appointment", Requires: []string{"list_appointments"}},
	)
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls: []llm.ToolCall{
			{ID: "a", Name: "cancel_appointment"},
			{ID: "b", Name: "list_appointments"},
		},
	})

	require.Len(t, waves, 2)
	assert.Equal(t, []string{"list_appointments"}, waveNames(waves)[0])
	assert.Equal(t, []string{"cancel_appointment"}, waveNames(waves)[1])
}

func TestSatisfiedDependencySkipsInjection(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{Name: "list_appointments"},
		tools.Spec{Name: "reschedule_appointment", Requires: []string{"list_appointments"}},
	)
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID:  "acme",
		Calls:     []llm.ToolCall{{ID: "a", Name: "reschedule_appointment"}},
		Satisfied: map[string]bool{"list_appointments": true},
	})

	require.Len(t, waves, 1)
	assert.Equal(t, []string{"reschedule_appointment"}, waveNames(waves)[0])
}

func TestPrerequisiteInjectedFromFacts(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{
			Name: "list_appointments",
			InjectArgs: func(facts map[string]string) (map[string]any, bool) {
				phone, ok := facts["customer_phone"]
				if !ok {
					return nil, false
				}
				return map[string]any{"customer_phone": phone}, true
			},
		},
		tools.Spec{Name: "reschedule_appointment", Requires: []string{"list_appointments"}},
	)
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls:    []llm.ToolCall{{ID: "a", Name: "reschedule_appointment"}},
		Facts:    map[string]string{"customer_phone": "+15551234567"},
	})

	require.Len(t, waves, 2)

	injected := waves[0][0]
	assert.Equal(t, "list_appointments", injected.Name)
	assert.True(t, injected.Injected)
	assert.Equal(t, "+15551234567", injected.Arguments["customer_phone"])
	assert.NotEmpty(t, injected.ID)
	assert.LessOrEqual(t, len(injected.ID), 40)

	assert.Equal(t, []string{"reschedule_appointment"}, waveNames(waves)[1])
}

func TestInjectionNeverGuesses(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{
			Name: "list_appointments",
			InjectArgs: func(facts map[string]string) (map[string]any, bool) {
				_, ok := facts["customer_phone"]
				return map[string]any{}, ok
			},
		},
		tools.Spec{Name: "reschedule_appointment", Requires: []string{"list_appointments"}},
	)
	svc := NewWithRegistry(registry)

	// no facts on hand: the dependent call proceeds alone, unmet
	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls:    []llm.ToolCall{{ID: "a", Name: "reschedule_appointment"}},
	})

	require.Len(t, waves, 1)
	assert.Equal(t, []string{"reschedule_appointment"}, waveNames(waves)[0])
}

func TestDiamondDependency(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{Name: "lookup_customer"},
		tools.Spec{Name: "get_pet_records", Requires: []string{"lookup_customer"}},
		tools.Spec{Name: "list_appointments"},
		tools.Spec{Name: "cancel_appointment", Requires: []string{"list_appointments"}},
	)
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls: []llm.ToolCall{
			{ID: "a", Name: "get_pet_records"},
			{ID: "b", Name: "cancel_appointment"},
			{ID: "c", Name: "lookup_customer"},
			{ID: "d", Name: "list_appointments"},
		},
	})

	require.Len(t, waves, 2)
	assert.ElementsMatch(t, []string{"lookup_customer", "list_appointments"}, waveNames(waves)[0])
	assert.ElementsMatch(t, []string{"get_pet_records", "cancel_appointment"}, waveNames(waves)[1])
}

func TestCycleFallsBackToSingleWave(t *testing.T) {
	registry := testRegistry(t,
		tools.Spec{Name: "tool_a", Requires: []string{"tool_b"}},
		tools.Spec{Name: "tool_b", Requires: []string{"tool_a"}},
	)
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls: []llm.ToolCall{
			{ID: "a", Name: "tool_a"},
			{ID: "b", Name: "tool_b"},
		},
	})

	require.Len(t, waves, 1)
	assert.ElementsMatch(t, []string{"tool_a", "tool_b"}, waveNames(waves)[0])
}

func TestUnknownToolPassesThrough(t *testing.T) {
	registry := testRegistry(t, tools.Spec{Name: "list_services"})
	svc := NewWithRegistry(registry)

	waves := svc.Resolve(Input{
		TenantID: "acme",
		Calls:    []llm.ToolCall{{ID: "a", Name: "made_up_tool"}},
	})

	require.Len(t, waves, 1)
	assert.Equal(t, []string{"made_up_tool"}, waveNames(waves)[0])
}
