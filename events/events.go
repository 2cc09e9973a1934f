package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type is the routing key of an audit event.
type Type string

const (
	ClientRegistered Type = "client.registered"
	ClientDeleted    Type = "client.deleted"
	ConsentGranted   Type = "consent.granted"
	ConsentRevoked   Type = "consent.revoked"
	TokenRevoked     Type = "token.revoked"
)

// Event is an audit record. It never carries secrets or token values.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ClientID   string         `json:"client_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

func New(t Type, clientID, userID string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		ClientID:   clientID,
		UserID:     userID,
	}
}

// With returns a copy of e carrying an extra data field.
func (e Event) With(key string, value any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to publish audit event")
	}
}

// LogPublisher writes events to the global logger.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.Info().
		Str("event_id", e.ID).
		Str("event", string(e.Type)).
		Str("client_id", e.ClientID).
		Str("user_id", e.UserID).
		Fields(e.Data).
		Msg("audit")
	return nil
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
