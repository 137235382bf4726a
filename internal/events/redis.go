package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker delivers events across instances with Redis pub/sub.
// Each owner has its own channel.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker creates a Redis-backed broker
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client: client,
		prefix: "interview:sessions:",
	}
}

// Channel returns the pub/sub channel carrying ownerID's events
func (b *RedisBroker) Channel(ownerID string) string {
	return b.prefix + ownerID
}

// Publish sends e to its owner's channel
func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.Channel(e.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe listens on ownerID's channel
func (b *RedisBroker) Subscribe(ctx context.Context, ownerID string) (<-chan Event, func(), error) {
	ps := b.client.Subscribe(ctx, b.Channel(ownerID))

	// Wait for the subscription confirmation so no event published after we return is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					slog.Warn("discarding malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- e:
				default:
					slog.Warn("dropping event for slow subscriber", "owner_id", ownerID, "event_type", e.Type)
				}
			}
		}
	}()

	return out, cancel, nil
}
