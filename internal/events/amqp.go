package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// DefaultExchange is the topic exchange used when none is configured.
const DefaultExchange = "voxcall.events"

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// closer is the underlying connection.
type closer interface {
	Close() error
}

// dialFunc opens a channel with the exchange declared.
type dialFunc func() (channel, closer, error)

// AMQPPublisher publishes events as persistent JSON messages on a durable
// topic exchange. A broken channel is re-dialled on the next publish.
type AMQPPublisher struct {
	exchange   string
	routingKey string
	dial       dialFunc

	mu   sync.Mutex
	ch   channel
	conn closer
}

var _ Publisher = (*AMQPPublisher)(nil)

// AMQPOption configures an [AMQPPublisher].
type AMQPOption func(*AMQPPublisher)

// WithExchange overrides [DefaultExchange].
func WithExchange(name string) AMQPOption {
	return func(p *AMQPPublisher) {
		if name != "" {
			p.exchange = name
		}
	}
}

// WithRoutingKey overrides [RoutingKeyCallEnded].
func WithRoutingKey(key string) AMQPOption {
	return func(p *AMQPPublisher) {
		if key != "" {
			p.routingKey = key
		}
	}
}

// NewAMQPPublisher connects to url and declares the exchange.
func NewAMQPPublisher(url string, opts ...AMQPOption) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("events: amqp url must not be empty")
	}
	p := &AMQPPublisher{exchange: DefaultExchange, routingKey: RoutingKeyCallEnded}
	for _, o := range opts {
		o(p)
	}
	p.dial = func() (channel, closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("events: dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("events: open channel: %w", err)
		}
		if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("events: declare exchange %q: %w", p.exchange, err)
		}
		return ch, conn, nil
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with p.mu held or before p is shared.
func (p *AMQPPublisher) connect() error {
	ch, conn, err := p.dial()
	if err != nil {
		return err
	}
	p.ch, p.conn = ch, conn
	return nil
}

// PublishCallEnded implements [Publisher].
func (p *AMQPPublisher) PublishCallEnded(ctx context.Context, ev CallEnded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    ev.StreamID,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	if err := p.ch.Publish(p.exchange, p.routingKey, false, false, msg); err != nil {
		slog.Warn("events: publish failed, reconnecting", "exchange", p.exchange, "err", err)
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
		if err := p.ch.Publish(p.exchange, p.routingKey, false, false, msg); err != nil {
			return fmt.Errorf("events: publish: %w", err)
		}
	}
	return nil
}

// Check reports whether the broker is reachable, re-dialling when the
// channel was dropped.
func (p *AMQPPublisher) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return nil
	}
	return p.connect()
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *AMQPPublisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}
