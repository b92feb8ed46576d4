package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/labtrack/labtrack-client/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// maxRetries is how often a failing message is redelivered before it is
// dead-lettered.
const maxRetries = 3

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	logger    *logger.Logger
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, err
	}
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	c := NewDispatcher(queueName, log)
	c.rmq = rmq
	return c, nil
}

// NewDispatcher creates a consumer with no broker attached. Deliveries are
// fed to it through Dispatch.
func NewDispatcher(queueName string, log *logger.Logger) *Consumer {
	return &Consumer{
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log,
	}
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages from the queue. A closed delivery channel
// triggers a reconnect; bindings are durable so consuming resumes as is.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.consume()
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if ok {
					c.handleMessage(ctx, msg)
					continue
				}
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn().Msg("message channel closed, reconnecting")
				if err := c.rmq.Reconnect(ctx); err != nil {
					c.logger.Error().Err(err).Msg("consumer gave up")
					return
				}
				if msgs, err = c.consume(); err != nil {
					c.logger.Error().Err(err).Msg("consumer gave up")
					return
				}
			}
		}
	}()

	return nil
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// Outcome is what should happen to a delivery after dispatch.
type Outcome int

const (
	Ack Outcome = iota
	Requeue
	DeadLetter
)

// Dispatch decodes body and runs the matching handler. retries is the
// number of earlier delivery attempts.
func (c *Consumer) Dispatch(ctx context.Context, body []byte, retries int) Outcome {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		return DeadLetter
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().
			Str("event_type", event.Type).
			Msg("no handler registered for event type")
		return Ack
	}

	c.logger.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("processing event")

	if err := handler(ctx, &event); err != nil {
		c.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("failed to process event")

		if retries >= maxRetries {
			c.logger.Warn().
				Str("event_id", event.ID).
				Int("retry_count", retries).
				Msg("max retries exceeded, sending to DLQ")
			return DeadLetter
		}
		return Requeue
	}

	return Ack
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var err error
	switch c.Dispatch(ctx, msg.Body, getRetryCount(msg)) {
	case Ack:
		err = msg.Ack(false)
	case Requeue:
		err = msg.Nack(false, true)
	case DeadLetter:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to settle delivery")
	}
}

func getRetryCount(msg amqp.Delivery) int {
	if msg.Headers == nil {
		return 0
	}

	if deaths, ok := msg.Headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if d, ok := death.(amqp.Table); ok {
				if count, ok := d["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}

	return 0
}
