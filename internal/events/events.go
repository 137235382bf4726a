// Package events carries outbound notifications about session lifecycle changes.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/interview-engine/internal/models"
)

// Type identifies what happened to a session
type Type string

const (
	SessionCreated   Type = "session.created"
	SessionCompleted Type = "session.completed"
	SessionDeleted   Type = "session.deleted"
)

// Event is one session lifecycle notification.
// Session is a snapshot after the change and is nil for deletions.
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	SessionID  string          `json:"session_id"`
	OwnerID    string          `json:"owner_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Session    *models.Session `json:"session,omitempty"`
}

// New builds an event for a session snapshot
func New(t Type, s *models.Session, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		SessionID:  s.ID,
		OwnerID:    s.OwnerID,
		OccurredAt: at,
		Session:    s.Clone(),
	}
}

// NewDeleted builds a deletion event, which carries no snapshot
func NewDeleted(sessionID, ownerID string, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       SessionDeleted,
		SessionID:  sessionID,
		OwnerID:    ownerID,
		OccurredAt: at,
	}
}

// Publisher emits events
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber streams one owner's events until the returned cancel func is called
// or ctx is done. The channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (<-chan Event, func(), error)
}

// Broker both publishes and delivers events
type Broker interface {
	Publisher
	Subscriber
}

// Nop discards every event
type Nop struct{}

// Publish does nothing
func (Nop) Publish(ctx context.Context, e Event) error {
	return nil
}

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

// Publish fans e out to all publishers
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
