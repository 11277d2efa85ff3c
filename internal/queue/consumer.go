package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/observability"
)

// Consumer reads NotificationEvent messages and hands them to a
// PushSender.  Delivery is best effort: a message that cannot be decoded
// or delivered is rejected without requeue.
type Consumer struct {
	url     string
	queue   string
	sender  PushSender
	metrics *observability.Metrics
}

// NewConsumer builds a consumer for queue on the broker at url.
func NewConsumer(url, queue string, sender PushSender, metrics *observability.Metrics) *Consumer {
	if queue == "" {
		queue = NotificationQueue
	}
	return &Consumer{url: url, queue: queue, sender: sender, metrics: metrics}
}

// Run connects, consumes and reconnects with exponential backoff until
// ctx is done.  It only returns ctx's error.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.Get().With("component", "notification-consumer", "queue", c.queue)
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn("dial failed, retrying", "error", err, "backoff", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Get().Warn("notification-consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				logger.Get().Warn("notification-consumer: handle message failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and delivers it.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.metrics.Notification("deliver", "malformed")
		return fmt.Errorf("unmarshal: %w", err)
	}
	msgs := Messages(ev)
	if len(msgs) == 0 {
		c.metrics.Notification("deliver", "no_recipient")
		return nil
	}
	if err := c.sender.Send(ctx, msgs); err != nil {
		c.metrics.Notification("deliver", "failed")
		return err
	}
	c.metrics.Notification("deliver", "ok")
	logger.Get().Debug("notification delivered",
		"reservation", ev.Reservation, "messages", len(msgs))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
