// Package notify publishes session updates to the per-company realtime channel consumed by
// frontends.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// ActionUpdate is the only action emitted for session changes.
const ActionUpdate = "update"

// Publisher delivers an event to a channel. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
	// Close releases resources. Safe to call more than once.
	Close() error
}

// ChannelKey is the channel of every session event of a company.
func ChannelKey(companyID int64) string {
	return fmt.Sprintf("company-%d-mainchannel", companyID)
}

// SessionEventName is the event name of session updates for a company.
func SessionEventName(companyID int64) string {
	return fmt.Sprintf("company-%d-whatsappSession", companyID)
}

// SessionUpdate is the payload of a session event.
type SessionUpdate struct {
	Action  string           `json:"action"`
	Session *domain.Whatsapp `json:"session"`
}

// PublishSession publishes the current record of w to its company channel.
func PublishSession(ctx context.Context, p Publisher, w *domain.Whatsapp) error {
	if p == nil || w == nil {
		return nil
	}
	return p.Publish(ctx, ChannelKey(w.CompanyID), SessionEventName(w.CompanyID), SessionUpdate{Action: ActionUpdate, Session: w})
}

// Envelope is the wire form written by the Kafka and Redis publishers.
type Envelope struct {
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

func encodeEnvelope(channel, event string, payload any, now time.Time) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: encode payload: %w", err)
	}
	return json.Marshal(Envelope{Channel: channel, Event: event, Payload: body, CreatedAt: now.UTC()})
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
func (Nop) Close() error                                       { return nil }
