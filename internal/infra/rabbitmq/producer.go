package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"elverra-membership/internal/domain/ports/adapter"
)

// channel is the part of *amqp.Channel the producer uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventProducer publishes domain events to a durable topic exchange, routed
// by event name (subscription.activated, payment.completed, ...).
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	reopen   func() (channel, error)
	exchange string
	declared bool
	log      *zerolog.Logger
}

var _ adapter.EventPublisher = (*EventProducer)(nil)

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

// NewEventProducer dials the broker with a bounded timeout.
func NewEventProducer(amqpURL, exchange string, logger *zerolog.Logger) (*EventProducer, error) {
	clean, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	open := func() (channel, error) { return conn.Channel() }
	ch, err := open()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p := newProducer(ch, open, exchange, logger)
	p.conn = conn
	return p, nil
}

func newProducer(ch channel, reopen func() (channel, error), exchange string, logger *zerolog.Logger) *EventProducer {
	return &EventProducer{ch: ch, reopen: reopen, exchange: exchange, log: logger}
}

func (p *EventProducer) Publish(ctx context.Context, e adapter.Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Type:         e.Name,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.publishLocked(ctx, e.Name, msg)
	if err == nil || p.reopen == nil {
		return err
	}
	// one retry on a fresh channel; a closed channel does not recover by itself
	p.log.Warn().Err(err).Str("event", e.Name).Msg("publish failed; reopening channel")
	ch, cerr := p.reopen()
	if cerr != nil {
		return fmt.Errorf("reopen amqp channel: %w", cerr)
	}
	p.ch, p.declared = ch, false
	return p.publishLocked(ctx, e.Name, msg)
}

func (p *EventProducer) publishLocked(ctx context.Context, key string, msg amqp.Publishing) error {
	if !p.declared {
		if err := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		p.declared = true
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

// Close releases the channel and connection.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NoopPublisher drops events. It is used when no broker is configured.
type NoopPublisher struct {
	log *zerolog.Logger
}

var _ adapter.EventPublisher = (*NoopPublisher)(nil)

func NewNoopPublisher(logger *zerolog.Logger) *NoopPublisher { return &NoopPublisher{log: logger} }

func (p *NoopPublisher) Publish(_ context.Context, e adapter.Event) error {
	p.log.Debug().Str("event", e.Name).Str("aggregate_id", e.AggregateID).Msg("event publishing disabled")
	return nil
}
