package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pawdesk/app/config"
	"pawdesk/app/service/conversation"
	"pawdesk/app/service/queue"

	"github.com/samber/do"
)

const (
	workerBuffer  = 16
	workerIdleTTL = time.Minute
)

// Service pulls inbound messages off the queue and feeds them to the turn
// router. Each conversation gets its own serial worker so two turns of one
// conversation never interleave; different conversations run concurrently.
type Service struct {
	cfg             *config.Config
	queueSvc        *queue.Service
	conversationSvc *conversation.Service

	mu      sync.Mutex
	workers map[workerKey]*worker
}

type workerKey struct {
	tenantID       string
	conversationID string
}

type worker struct {
	ch chan queue.Message
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:             do.MustInvoke[*config.Config](di),
		queueSvc:        do.MustInvoke[*queue.Service](di),
		conversationSvc: do.MustInvoke[*conversation.Service](di),
		workers:         make(map[workerKey]*worker),
	}, nil
}

func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
		}
	}
}

// dispatch hands the message to its conversation's worker, starting one if
// needed. The per-worker channel preserves arrival order.
func (s *Service) dispatch(ctx context.Context, msg queue.Message) {
	k := workerKey{msg.TenantID, msg.ConversationID}

	s.mu.Lock()
	w, ok := s.workers[k]
	if !ok {
		w = &worker{ch: make(chan queue.Message, workerBuffer)}
		s.workers[k] = w
		go s.runWorker(ctx, k, w)
	}

	select {
	case w.ch <- msg:
	default:
		slog.Warn("Conversation backlog is full, dropping message",
			"tenant_id", msg.TenantID,
			"conversation_id", msg.ConversationID,
		)
	}
	s.mu.Unlock()
}

func (s *Service) runWorker(ctx context.Context, k workerKey, w *worker) {
	idle := time.NewTimer(workerIdleTTL)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			delete(s.workers, k)
			s.mu.Unlock()
			return

		case msg := <-w.ch:
			s.process(ctx, msg)
			idle.Reset(workerIdleTTL)

		case <-idle.C:
			// Deregister under the lock so a concurrent dispatch either
			// lands in the channel before we check, or starts a new worker.
			s.mu.Lock()
			if len(w.ch) == 0 {
				delete(s.workers, k)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(workerIdleTTL)
		}
	}
}

func (s *Service) process(ctx context.Context, msg queue.Message) {
	start := time.Now()

	reply, err := s.conversationSvc.ProcessTurn(ctx, msg.TenantID, msg.ConversationID, msg.Text)
	if err != nil {
		slog.Error("ProcessTurn error",
			"tenant_id", msg.TenantID,
			"conversation_id", msg.ConversationID,
			"error", err,
		)
		return
	}

	if msg.ReplyCh != nil {
		select {
		case msg.ReplyCh <- reply:
		default:
			// Caller gave up waiting.
		}
	}

	slog.Info("Processed turn",
		"tenant_id", msg.TenantID,
		"conversation_id", msg.ConversationID,
		"duration", time.Since(start),
	)
}
