package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmitrijs2005/stagingmanager/internal/logging"
)

var errChannelClosed = errors.New("amqp channel closed")

// amqpChannel is the part of *amqp.Channel used by the consumer.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

type amqpConn struct {
	conn *amqp.Connection
}

func (c amqpConn) Channel() (amqpChannel, error) { return c.conn.Channel() }
func (c amqpConn) Close() error                  { return c.conn.Close() }

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn: conn}, nil
}

// AMQPConsumer consumes from a RabbitMQ queue bound to a topic exchange.
// Each Consume call holds its own connection and reconnects with backoff
// when the connection drops.
type AMQPConsumer struct {
	url        string
	logger     logging.Logger
	newBackoff BackoffFunc
	dial       func(url string) (amqpConnection, error)
}

func NewAMQPConsumer(url string, logger logging.Logger) *AMQPConsumer {
	return &AMQPConsumer{
		url:        url,
		logger:     logger.With("module", "amqp_consumer"),
		newBackoff: DefaultBackoff,
		dial:       dialAMQP,
	}
}

// Consume blocks until ctx is done.
func (c *AMQPConsumer) Consume(ctx context.Context, sub Subscription, h Handler, state StateFunc) error {
	log := c.logger.With("queue", sub.Queue, "routing_key", sub.RoutingKey)

	backoff := c.newBackoff()
	for attempt := 1; ; attempt++ {
		ready := false
		err := c.consume(ctx, log, sub, h, func() {
			ready = true
			notify(state, true)
		})
		if ready {
			notify(state, false)
			backoff = c.newBackoff()
			attempt = 1
		}

		if ctx.Err() != nil {
			return nil
		}

		delay, _ := backoff.Next()
		log.Warn(ctx, "broker connection lost, reconnecting", "error", err, "attempt", attempt, "delay", delay.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *AMQPConsumer) consume(ctx context.Context, log logging.Logger, sub Subscription, h Handler, onReady func()) error {
	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, sub); err != nil {
		return err
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	deliveries, err := ch.ConsumeWithContext(ctx, sub.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", sub.Queue, err)
	}

	log.Info(ctx, "consuming")
	onReady()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr, ok := <-closed:
			if !ok {
				return errChannelClosed
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errChannelClosed
			}
			deliver(ctx, log, d, h)
		}
	}
}

// declare sets up a durable exchange and queue with the binding, and limits
// unacknowledged deliveries to one.
func declare(ch amqpChannel, sub Subscription) error {
	kind := sub.ExchangeKind
	if kind == "" {
		kind = ExchangeTopic
	}

	if err := ch.ExchangeDeclare(sub.Exchange, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", sub.Exchange, err)
	}
	if _, err := ch.QueueDeclare(sub.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", sub.Queue, err)
	}
	if err := ch.QueueBind(sub.Queue, sub.RoutingKey, sub.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", sub.Queue, sub.Exchange, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// deliver acks a handled message. A failed message is requeued once, a
// failed redelivery is dropped.
func deliver(ctx context.Context, log logging.Logger, d amqp.Delivery, h Handler) {
	err := safeHandle(ctx, h, d.Body)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Error(ctx, "failed to ack message", "delivery_tag", d.DeliveryTag, "error", err)
		}
		return
	}

	requeue := !d.Redelivered
	log.Error(ctx, "handler failed", "delivery_tag", d.DeliveryTag, "redelivered", d.Redelivered, "requeue", requeue, "error", err)
	if err := d.Nack(false, requeue); err != nil {
		log.Error(ctx, "failed to nack message", "delivery_tag", d.DeliveryTag, "error", err)
	}
}
