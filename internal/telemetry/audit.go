package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"

	"chat-core/internal/observability"
)

// Audit levels.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Auditor records privileged actions such as admin approvals.
type Auditor interface {
	Emit(ctx context.Context, level, text string, actorID int)
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	ActorID       *string      `json:"actor_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes an audit record. The request id comes from ctx; actorID <= 0 means system.
func (e *AuditEmitter) Emit(ctx context.Context, level, text string, actorID int) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := e.envelope(ctx, level, text, actorID)
	log.Printf("audit emit: level=%s request_id=%s actor_id=%d text=%q", level, envelope.RequestID, actorID, text)

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}

func (e *AuditEmitter) envelope(ctx context.Context, level, text string, actorID int) AuditEnvelope {
	var actor *string
	if actorID > 0 {
		s := strconv.Itoa(actorID)
		actor = &s
	}
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     observability.RequestIDFromContext(ctx),
		ActorID:       actor,
		Payload: AuditPayload{
			Level: level,
			Text:  text,
		},
	}
}
