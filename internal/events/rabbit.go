package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultRabbitBuffer      = 256
	defaultRabbitDialTimeout = 2 * time.Second
	rabbitPublishTimeout     = 5 * time.Second
	rabbitRedialBackoff      = 5 * time.Second
)

// ErrSinkClosed is returned by Publish after Close
var ErrSinkClosed = errors.New("event sink closed")

// RabbitSink mirrors events into a durable RabbitMQ queue for downstream record keeping.
// Publish only enqueues; a background worker owns the connection, dials lazily and
// re-dials after failures. Events are dropped when the queue is full.
type RabbitSink struct {
	url         string
	queue       string
	dialTimeout time.Duration

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Owned by the worker goroutine
	conn       *amqp.Connection
	ch         *amqp.Channel
	lastFailed time.Time
}

// RabbitOption configures a RabbitSink
type RabbitOption func(*RabbitSink)

// WithRabbitDialTimeout bounds the TCP connect and AMQP handshake
func WithRabbitDialTimeout(d time.Duration) RabbitOption {
	return func(s *RabbitSink) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithRabbitBuffer sets how many events may wait for the worker
func WithRabbitBuffer(n int) RabbitOption {
	return func(s *RabbitSink) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// NewRabbitSink creates a sink publishing to queue and starts its worker
func NewRabbitSink(url, queue string, opts ...RabbitOption) *RabbitSink {
	s := &RabbitSink{
		url:         url,
		queue:       queue,
		dialTimeout: defaultRabbitDialTimeout,
		events:      make(chan Event, defaultRabbitBuffer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Publish hands e to the worker without blocking
func (s *RabbitSink) Publish(ctx context.Context, e Event) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.events <- e:
	default:
		slog.Warn("dropping event, rabbitmq queue is backed up",
			"queue", s.queue,
			"event_id", e.ID,
			"event_type", e.Type,
		)
	}
	return nil
}

func (s *RabbitSink) run() {
	defer s.wg.Done()
	defer s.reset()

	for {
		select {
		case <-s.done:
			if n := len(s.events); n > 0 {
				slog.Warn("rabbitmq sink closed with pending events", "queue", s.queue, "pending", n)
			}
			return
		case e := <-s.events:
			if err := s.send(e); err != nil {
				slog.Warn("failed to mirror event",
					"queue", s.queue,
					"event_id", e.ID,
					"event_type", e.Type,
					"error", err,
				)
			}
		}
	}
}

// send publishes one persistent JSON message
func (s *RabbitSink) send(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := s.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rabbitPublishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
	if err != nil {
		s.reset()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("event mirrored to queue", "queue", s.queue, "event_id", e.ID, "event_type", e.Type)
	return nil
}

// channel returns an open channel, dialing and declaring the queue if needed.
// After a failed dial it refuses to re-dial until the backoff has passed.
func (s *RabbitSink) channel() (*amqp.Channel, error) {
	if s.conn != nil && !s.conn.IsClosed() && s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.reset()

	if !s.lastFailed.IsZero() && time.Since(s.lastFailed) < rabbitRedialBackoff {
		return nil, errors.New("rabbitmq unavailable, waiting before reconnecting")
	}

	ch, err := s.dial()
	if err != nil {
		s.lastFailed = time.Now()
		return nil, err
	}
	s.lastFailed = time.Time{}
	return ch, nil
}

func (s *RabbitSink) dial() (*amqp.Channel, error) {
	conn, err := amqp.DialConfig(s.url, amqp.Config{
		Dial:      amqp.DefaultDial(s.dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", s.queue, err)
	}

	s.conn = conn
	s.ch = ch
	return ch, nil
}

func (s *RabbitSink) reset() {
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close stops the worker and closes the connection
func (s *RabbitSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}
