package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

const ExchangeTopic = "topic"

// Subscription binds Queue to Exchange with RoutingKey.
type Subscription struct {
	Exchange     string
	ExchangeKind string
	Queue        string
	RoutingKey   string
}

// Handler processes one message body. A non-nil error asks the consumer to
// redeliver according to its policy.
type Handler func(ctx context.Context, body []byte) error

// StateFunc is told whether the consumer is currently receiving.
type StateFunc func(consuming bool)

// Consumer receives messages for a subscription until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, sub Subscription, h Handler, state StateFunc) error
}

// BackoffFunc starts a fresh delay sequence. Consumers call it again once a
// connection or fetch succeeds.
type BackoffFunc func() retry.Backoff

// DefaultBackoff waits 1s, doubling up to 30s.
func DefaultBackoff() retry.Backoff {
	return retry.WithCappedDuration(30*time.Second, retry.NewExponential(1*time.Second))
}

// safeHandle runs h and turns a panic into an error.
func safeHandle(ctx context.Context, h Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, body)
}

func notify(state StateFunc, consuming bool) {
	if state != nil {
		state(consuming)
	}
}
