// Package broker implements C3 (the durable event topic) over RabbitMQ.
// The event log is durably partitioned by keying every publish on the
// aggregate id (the item id) rather than the event id, so that per-partition
// FIFO delivery gives per-aggregate ordering to the projection consumer
// (spec §5, §9 open question 3) — the reference source keys on event id and
// loses that guarantee; this implementation intentionally does not.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/riftline/bidengine/internal/auction"
)

const (
	// ExchangeName is the durable topic exchange events are published to.
	ExchangeName = "events"
	// QueueName is the durable queue the projection consumer reads from.
	QueueName = "events-consumer"
	// ConsumerGroup names the logical consumer group (mirrors the reference
	// Kafka config's group.id; RabbitMQ models this as one shared durable
	// queue rather than an explicit consumer-group primitive).
	ConsumerGroup = "events-group"

	publishTimeout = 5 * time.Second
)

// Producer publishes appended events to the durable topic.
type Producer interface {
	Publish(ctx context.Context, event auction.Event) error
	Close() error
}

// RabbitMQProducer implements Producer.
type RabbitMQProducer struct {
	channel *amqp.Channel
}

// NewProducer opens a channel on conn and declares the topic exchange.
func NewProducer(conn *amqp.Connection) (*RabbitMQProducer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open producer channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &RabbitMQProducer{channel: ch}, nil
}

// Publish serializes event as JSON and publishes it keyed by aggregate id.
func (p *RabbitMQProducer) Publish(ctx context.Context, event auction.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for publish: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	routingKey := strconv.FormatInt(event.AggregateID, 10)
	return p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    strconv.FormatInt(event.ID, 10),
			Timestamp:    event.Timestamp,
		},
	)
}

// Close closes the producer's channel.
func (p *RabbitMQProducer) Close() error {
	return p.channel.Close()
}

// Delivery is a single decoded message handed to the consumer's handler.
type Delivery struct {
	Event auction.Event
	Ack   func() error
	Nack  func(requeue bool) error
}

// Consumer streams deliveries from the durable queue bound to the events
// exchange with a wildcard routing pattern, so per-aggregate routing keys
// all land in the one consumer-group queue.
type Consumer struct {
	channel *amqp.Channel
}

// NewConsumer opens a channel, declares the exchange/queue/binding, and
// enables a bounded unacked-message prefetch so one slow consumer instance
// cannot be handed the entire backlog at once.
func NewConsumer(conn *amqp.Connection) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	q, err := ch.QueueDeclare(QueueName, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", ExchangeName, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind events queue: %w", err)
	}
	if err := ch.Qos(20, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set consumer prefetch: %w", err)
	}
	return &Consumer{channel: ch}, nil
}

// Consume streams decoded deliveries until ctx is cancelled. Messages that
// fail to deserialize are nacked without requeue (they can never succeed)
// and reported through onDecodeError so the caller can log and skip them.
func (c *Consumer) Consume(ctx context.Context, onDecodeError func(error)) (<-chan Delivery, error) {
	msgs, err := c.channel.Consume(
		QueueName,
		ConsumerGroup, // consumer tag
		false,         // auto-ack: off, the projection consumer acks explicitly
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var event auction.Event
				if err := json.Unmarshal(d.Body, &event); err != nil {
					if onDecodeError != nil {
						onDecodeError(fmt.Errorf("decode event: %w", err))
					}
					_ = d.Nack(false, false)
					continue
				}
				delivery := d
				select {
				case out <- Delivery{
					Event: event,
					Ack:   func() error { return delivery.Ack(false) },
					Nack:  func(requeue bool) error { return delivery.Nack(false, requeue) },
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the consumer's channel.
func (c *Consumer) Close() error {
	return c.channel.Close()
}

const (
	readyAttempts = 10
	readyInterval = 1 * time.Second
)

// WaitReady confirms the broker is actually routing messages before the
// caller starts accepting traffic: it declares the events exchange, binds a
// throwaway exclusive queue to it, publishes a marker message, and waits to
// see that same message arrive. Bounded at readyAttempts tries of
// readyInterval each.
func WaitReady(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open readiness channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare readiness queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "readiness", ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind readiness queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume readiness queue: %w", err)
	}

	const marker = "broker-ready"
	if err := ch.PublishWithContext(ctx, ExchangeName, "readiness", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(marker),
	}); err != nil {
		return fmt.Errorf("publish readiness marker: %w", err)
	}

	for attempt := 0; attempt < readyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if ok && string(d.Body) == marker {
				return nil
			}
		case <-time.After(readyInterval):
		}
	}
	return fmt.Errorf("broker not ready after %d attempts", readyAttempts)
}
