package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/ai-chat/internal/chat"
)

const publishTimeout = 5 * time.Second

// Publisher sends turn events to a durable queue. A single AMQP channel is
// not safe for concurrent publishes, so calls are serialized. A closed
// channel or connection is redialed on the next publish.
type Publisher struct {
	mu    sync.Mutex
	url   string
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		return nil, errors.New("rabbitmq: queue name required")
	}
	p := &Publisher{url: url, queue: queue}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials and declares the queues. Callers hold p.mu or own p.
func (p *Publisher) connect() error {
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := declareQueues(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) healthy() bool {
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}

func (p *Publisher) PublishTurn(ctx context.Context, ev chat.TurnEvent) error {
	msg, err := turnPublishing(ev)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.healthy() {
		if err := p.connect(); err != nil {
			return fmt.Errorf("rabbitmq reconnect: %w", err)
		}
	}
	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		msg,
	)
}

func turnPublishing(ev chat.TurnEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         "chat.turn." + string(ev.Status),
		Body:         body,
		Timestamp:    ts,
	}, nil
}
