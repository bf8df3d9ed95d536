// Package amqpad publishes selection events to RabbitMQ. The connection is
// opened on first use and reopened after a failed publish.
package amqpad

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"quotedesk/internal/adapters/observability"
	"quotedesk/internal/domain"
)

const OptionSelectedQueue = "quote.option.selected"

// dialTimeout bounds the TCP connect and the AMQP handshake.
const dialTimeout = 2 * time.Second

type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url string) *Publisher { return &Publisher{url: url} }

func (p *Publisher) PublishOptionSelected(ctx context.Context, ev domain.OptionSelectedEvent) error {
	msg, err := encode(ev, time.Now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, msg)
	observability.ObservePublish(OptionSelectedQueue, err)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", OptionSelectedQueue, err)
	}
	return nil
}

func (p *Publisher) publishLocked(ctx context.Context, msg amqp.Publishing) error {
	if p.ch == nil || p.ch.IsClosed() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.openLocked(); err != nil {
			return err
		}
	}
	return p.ch.PublishWithContext(ctx,
		"",                  // default exchange
		OptionSelectedQueue, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		msg,
	)
}

func (p *Publisher) openLocked() error {
	p.resetLocked()
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(OptionSelectedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	log.Info().Str("queue", OptionSelectedQueue).Msg("amqp publisher connected")
	return nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

func encode(ev domain.OptionSelectedEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		MessageId:    ev.QuoteID + ":" + ev.OptionID + ":" + ev.SelectedAt.UTC().Format(time.RFC3339Nano),
		Type:         OptionSelectedQueue,
		Body:         body,
	}, nil
}

// Noop drops events; used when no broker is configured.
type Noop struct{}

func (Noop) PublishOptionSelected(context.Context, domain.OptionSelectedEvent) error { return nil }
