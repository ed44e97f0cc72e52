package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/logger"
)

// TurnHandler processes one decoded event. A returned error dead-letters the
// delivery.
type TurnHandler func(ctx context.Context, ev chat.TurnEvent) error

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         *logger.Logger
}

func NewConsumer(url, queue string, concurrency int, log *logger.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	if log == nil {
		log = logger.Discard()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// prefetch bounds in-flight deliveries to the pool size
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, log: log.WithComponent("turn_consumer")}, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run dispatches deliveries to a fixed pool until ctx is cancelled or the
// broker closes the channel.
func (c *Consumer) Run(ctx context.Context, handle TurnHandler) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(ctx, workerID, d, handle)
			}
		}(i)
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery, handle TurnHandler) {
	ev, err := decodeTurn(d.Body)
	if err != nil {
		c.log.Warn("bad turn event", "worker", workerID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, ev); err != nil {
		c.log.Error("turn event handler failed", "worker", workerID, "chat_id", ev.ChatID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Warn("ack failed", "worker", workerID, "chat_id", ev.ChatID, "error", err)
	}
}

func decodeTurn(body []byte) (chat.TurnEvent, error) {
	var ev chat.TurnEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, err
	}
	if ev.ChatID == "" || ev.UserMessageID == "" {
		return ev, errors.New("chat_id and user_message_id required")
	}
	switch ev.Status {
	case chat.TurnCompleted, chat.TurnFailed:
	default:
		return ev, fmt.Errorf("unknown status %q", ev.Status)
	}
	return ev, nil
}
