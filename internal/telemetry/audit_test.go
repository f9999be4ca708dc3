package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/observability"
)

type capturePublisher struct {
	keys   []string
	events []any
}

func (c *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	c.keys = append(c.keys, routingKey)
	c.events = append(c.events, event)
	return nil
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	e := NewAuditEmitter(pub, "audit.chat", "chat-core", "test")

	ctx := observability.WithRequestID(context.Background(), "req-1")
	e.Emit(ctx, LevelInfo, "approved request 7", 3)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "audit.chat", pub.keys[0])
	env := pub.events[0].(AuditEnvelope)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "req-1", env.RequestID)
	require.NotNil(t, env.ActorID)
	assert.Equal(t, "3", *env.ActorID)
	assert.Equal(t, "approved request 7", env.Payload.Text)
}

func TestEmitSystemActorAndNilEmitter(t *testing.T) {
	pub := &capturePublisher{}
	NewAuditEmitter(pub, "audit.chat", "chat-core", "test").Emit(context.Background(), LevelWarn, "x", 0)
	require.Len(t, pub.events, 1)
	assert.Nil(t, pub.events[0].(AuditEnvelope).ActorID)

	var nilEmitter *AuditEmitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), LevelInfo, "x", 1) })
}
