package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pawdesk/app/config"
	"pawdesk/app/service/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Service, *queue.Service) {
	t.Helper()

	queueSvc, err := queue.New(nil)
	require.NoError(t, err)

	s := &Service{
		cfg:      &config.Config{},
		queueSvc: queueSvc,
	}
	s.app = s.buildApp()

	return s, queueSvc
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMessageRequiresText(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/v1/tenants/acme/conversations/c1/messages",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMessageEnqueuedWithReplyChannel(t *testing.T) {
	s, queueSvc := newTestServer(t)

	// answer the queued message like the engine would
	go func() {
		msg := <-queueSvc.Channel()
		msg.ReplyCh <- "Hello " + msg.TenantID + "/" + msg.ConversationID
	}()

	req := httptest.NewRequest("POST", "/v1/tenants/acme/conversations/c1/messages",
		strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req, int(10*time.Second/time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
