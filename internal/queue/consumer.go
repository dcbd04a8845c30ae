package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// WaitlistOps is the slice of the waitlist service the consumers need.  The
// redistribution handler re-reads the current WAITING state under the event
// row lock, so replaying the same delivery cannot double-promote.
type WaitlistOps interface {
	Redistribute(ctx context.Context, eventID uint64, availableSlots int, row, number *int) error
	ClearAll(ctx context.Context) (int64, error)
}

// Consumer listens on the inbound bridge queues (waitlist.redistribution and
// waitlist.clear.all) and dispatches to the waitlist service.  It runs a
// reconnect loop with exponential dial backoff and only returns once the
// context is cancelled; processing errors are logged and the offending
// message is rejected without requeue so the service keeps operating.
type Consumer struct {
	URL      string
	Waitlist WaitlistOps
}

// Run connects to the broker, declares both inbound queues (durable) and
// consumes them until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Printf("waitlist-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			log.Printf("waitlist-consumer: consume loop ended: %v; reconnecting", err)
			_ = conn.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
		_ = conn.Close()
		return nil
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("waitlist-consumer: set QoS failed: %v", err)
	}

	redist, err := declareAndConsume(ch, QueueWaitlistRedistribution)
	if err != nil {
		return err
	}
	clearAll, err := declareAndConsume(ch, QueueWaitlistClearAll)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-redist:
			if !ok {
				return errors.New("redistribution deliveries channel closed")
			}
			c.dispatch(ctx, d, c.handleRedistribution)
		case d, ok := <-clearAll:
			if !ok {
				return errors.New("clear-all deliveries channel closed")
			}
			c.dispatch(ctx, d, c.handleClearAll)
		}
	}
}

func declareAndConsume(ch *amqp.Channel, name string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", name, err)
	}
	msgs, err := ch.Consume(name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", name, err)
	}
	return msgs, nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle func(context.Context, []byte) error) {
	if err := handle(ctx, d.Body); err != nil {
		log.Printf("waitlist-consumer: handle message failed: %v", err)
		_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
		return
	}
	_ = d.Ack(false)
}

// handleRedistribution decodes a redistribution trigger and runs a
// promotion batch.  The payload is deserialized into a typed struct and
// validated up front; a malformed message is an error, not a guess.
func (c *Consumer) handleRedistribution(ctx context.Context, body []byte) error {
	var msg RedistributionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal redistribution: %w", err)
	}
	if msg.EventID == 0 {
		return errors.New("redistribution message missing eventId")
	}
	if msg.AvailableSlots <= 0 {
		return fmt.Errorf("redistribution message has non-positive availableSlots %d", msg.AvailableSlots)
	}
	log.Printf("waitlist-consumer: redistribution trigger event=%d slots=%d", msg.EventID, msg.AvailableSlots)
	return c.Waitlist.Redistribute(ctx, msg.EventID, msg.AvailableSlots, msg.Row, msg.Number)
}

// handleClearAll wipes every waitlist across all events.  The payload is
// ignored; delivery of the message is the instruction.
func (c *Consumer) handleClearAll(ctx context.Context, _ []byte) error {
	n, err := c.Waitlist.ClearAll(ctx)
	if err != nil {
		return err
	}
	log.Printf("waitlist-consumer: cleared %d waitlist entries", n)
	return nil
}
