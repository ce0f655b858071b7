package broker

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmitrijs2005/stagingmanager/internal/logging"
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var newKafkaReader = func(cfg kafka.ReaderConfig) kafkaReader {
	return kafka.NewReader(cfg)
}

// KafkaConsumer reads a bridged exchange from Kafka. The routing key is the
// topic and the queue name is the consumer group.
type KafkaConsumer struct {
	brokers    []string
	logger     logging.Logger
	newBackoff BackoffFunc
}

func NewKafkaConsumer(brokerURL string, logger logging.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		brokers:    ParseBrokers(brokerURL),
		logger:     logger.With("module", "kafka_consumer"),
		newBackoff: DefaultBackoff,
	}
}

// ParseBrokers splits a comma separated broker list, dropping an optional
// kafka:// scheme.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		b = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b), "kafka://"))
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Consume blocks until ctx is done. A message whose handler fails is handled
// once more and then committed either way.
func (c *KafkaConsumer) Consume(ctx context.Context, sub Subscription, h Handler, state StateFunc) error {
	log := c.logger.With("topic", sub.RoutingKey, "group", sub.Queue)

	r := newKafkaReader(kafka.ReaderConfig{
		Brokers:  c.brokers,
		GroupID:  sub.Queue,
		Topic:    sub.RoutingKey,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	log.Info(ctx, "consuming")
	notify(state, true)
	defer notify(state, false)

	backoff := c.newBackoff()
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay, _ := backoff.Next()
			log.Warn(ctx, "failed to fetch message", "error", err, "delay", delay.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		backoff = c.newBackoff()

		msgLog := log.With("partition", m.Partition, "offset", m.Offset)
		if err := safeHandle(ctx, h, m.Value); err != nil {
			msgLog.Warn(ctx, "handler failed, retrying once", "error", err)
			if err := safeHandle(ctx, h, m.Value); err != nil {
				msgLog.Error(ctx, "handler failed again, skipping message", "error", err)
			}
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			msgLog.Error(ctx, "failed to commit message", "error", err)
		}
	}
}
