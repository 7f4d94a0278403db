package queue

import (
	"log/slog"

	"github.com/samber/do"
)

const bufferSize = 256

var _ do.Shutdownable = (*Service)(nil)

// Service is the inbound message queue between the webhook layer and the
// engine. Enqueueing never blocks; overflow is dropped with a warning.
type Service struct {
	queue chan Message
}

// Message is one inbound user turn. ReplyCh, when set, receives the
// user-facing reply so a synchronous caller can wait for it.
type Message struct {
	TenantID       string
	ConversationID string
	Text           string
	ReplyCh        chan string
}

func New(_ *do.Injector) (*Service, error) {
	return &Service{
		queue: make(chan Message, bufferSize),
	}, nil
}

func (s *Service) Add(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			// Shutdown closed the channel under a late producer.
		}
	}()

	select {
	case s.queue <- msg:
	default:
		slog.Warn("message queue is full",
			"tenant_id", msg.TenantID,
			"conversation_id", msg.ConversationID,
		)
	}
}

func (s *Service) Channel() <-chan Message {
	return s.queue
}

func (s *Service) Shutdown() error {
	close(s.queue)

	return nil
}
