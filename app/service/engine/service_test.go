package engine

import (
	"context"
	"testing"
	"time"

	"pawdesk/app/client/llm"
	"pawdesk/app/config"
	"pawdesk/app/service/breaker"
	"pawdesk/app/service/convcache"
	"pawdesk/app/service/conversation"
	"pawdesk/app/service/executor"
	"pawdesk/app/service/metrics"
	"pawdesk/app/service/queue"
	"pawdesk/app/service/resolver"
	"pawdesk/app/service/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, replies ...string) (*Service, *queue.Service) {
	t.Helper()

	cfg := &config.Config{
		Orchestrator: config.Orchestrator{
			MaxHistoryTurns: 30,
			ReasonTimeout:   5 * time.Second,
		},
	}

	responses := make([]*llm.Response, 0, len(replies))
	for _, r := range replies {
		responses = append(responses, &llm.Response{Content: r})
	}
	primary := llm.NewScriptedBackend("primary", responses...)

	registry := tools.NewRegistry()
	exec := executor.NewWithDeps(
		registry,
		breaker.NewWithOptions(3, 30*time.Second, 10*time.Minute),
		convcache.NewWithOptions(10*time.Minute),
		metrics.NoopSink{},
		0,
		time.Millisecond,
	)
	convSvc := conversation.NewWithDeps(
		cfg,
		registry,
		resolver.NewWithRegistry(registry),
		exec,
		metrics.NoopSink{},
		conversation.Backends{Primary: primary},
	)

	queueSvc, err := queue.New(nil)
	require.NoError(t, err)

	return &Service{
		cfg:             cfg,
		queueSvc:        queueSvc,
		conversationSvc: convSvc,
		workers:         make(map[workerKey]*worker),
	}, queueSvc
}

func TestTurnsOfOneConversationKeepOrder(t *testing.T) {
	svc, queueSvc := newTestEngine(t, "reply one", "reply two", "reply three")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	channels := make([]chan string, 3)
	for i, text := range []string{"first", "second", "third"} {
		channels[i] = make(chan string, 1)
		queueSvc.Add(queue.Message{
			TenantID:       "acme",
			ConversationID: "c1",
			Text:           text,
			ReplyCh:        channels[i],
		})
	}

	for i, want := range []string{"reply one", "reply two", "reply three"} {
		select {
		case got := <-channels[i]:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reply %d", i)
		}
	}
}

func TestConversationsRunIndependently(t *testing.T) {
	svc, queueSvc := newTestEngine(t, "hello a", "hello b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	chA := make(chan string, 1)
	chB := make(chan string, 1)
	queueSvc.Add(queue.Message{TenantID: "acme", ConversationID: "a", Text: "hi", ReplyCh: chA})
	queueSvc.Add(queue.Message{TenantID: "acme", ConversationID: "b", Text: "hi", ReplyCh: chB})

	replies := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-chA:
			replies[r] = true
		case r := <-chB:
			replies[r] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for replies")
		}
	}

	assert.Len(t, replies, 2)
}
