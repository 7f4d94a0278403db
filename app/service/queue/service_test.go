package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndReceive(t *testing.T) {
	svc, err := New(nil)
	require.NoError(t, err)

	svc.Add(Message{TenantID: "acme", ConversationID: "c1", Text: "hello"})

	msg := <-svc.Channel()
	assert.Equal(t, "acme", msg.TenantID)
	assert.Equal(t, "hello", msg.Text)
}

func TestOverflowDoesNotBlock(t *testing.T) {
	svc, err := New(nil)
	require.NoError(t, err)

	for i := 0; i < bufferSize+10; i++ {
		svc.Add(Message{TenantID: "acme", ConversationID: "c1", Text: "x"})
	}

	assert.Len(t, svc.queue, bufferSize)
}

func TestAddAfterShutdownIsSafe(t *testing.T) {
	svc, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, svc.Shutdown())

	assert.NotPanics(t, func() {
		svc.Add(Message{TenantID: "acme", ConversationID: "c1", Text: "late"})
	})
}
