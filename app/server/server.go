package server

import (
	"context"
	"time"

	"pawdesk/app/config"
	"pawdesk/app/service/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

const replyTimeout = 90 * time.Second

// Service is the inbound webhook surface: platforms POST user messages
// here, the turn router produces the reply.
type Service struct {
	cfg      *config.Config
	queueSvc *queue.Service
	app      *fiber.App
}

type inboundMessage struct {
	Text string `json:"text"`
}

func New(di *do.Injector) (*Service, error) {
	s := &Service{
		cfg:      do.MustInvoke[*config.Config](di),
		queueSvc: do.MustInvoke[*queue.Service](di),
	}

	s.app = s.buildApp()

	return s, nil
}

func (s *Service) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          replyTimeout + 5*time.Second,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Post("/v1/tenants/:tenant/conversations/:conversation/messages", s.handleMessage)

	return app
}

func (s *Service) handleMessage(c *fiber.Ctx) error {
	var body inboundMessage
	if err := c.BodyParser(&body); err != nil || body.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be a JSON object with a non-empty text field",
		})
	}

	replyCh := make(chan string, 1)
	s.queueSvc.Add(queue.Message{
		TenantID:       c.Params("tenant"),
		ConversationID: c.Params("conversation"),
		Text:           body.Text,
		ReplyCh:        replyCh,
	})

	select {
	case reply := <-replyCh:
		return c.JSON(fiber.Map{"reply": reply})
	case <-time.After(replyTimeout):
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "queued",
		})
	}
}

func (s *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.app.ShutdownWithTimeout(5 * time.Second)
	}()

	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Service) Shutdown() error {
	return s.app.Shutdown()
}
