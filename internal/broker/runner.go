package broker

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stagingmanager/internal/logging"
)

// Runner is one subscription runner: a consumer feeding one handler.
type Runner struct {
	Name         string
	Subscription Subscription
	Consumer     Consumer
	Handler      Handler
	// OnState, if set, is told when the runner starts and stops receiving.
	OnState StateFunc

	logger logging.Logger
}

func NewRunner(name string, sub Subscription, c Consumer, h Handler, l logging.Logger) *Runner {
	return &Runner{
		Name:         name,
		Subscription: sub,
		Consumer:     c,
		Handler:      h,
		logger:       l.With("module", "runner", "runner", name),
	}
}

// Run consumes until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info(ctx, "starting runner", "queue", r.Subscription.Queue, "routing_key", r.Subscription.RoutingKey)

	err := r.Consumer.Consume(ctx, r.Subscription, r.Handler, r.OnState)

	r.logger.Info(ctx, "runner stopped")
	if err != nil {
		return fmt.Errorf("runner %s: %w", r.Name, err)
	}
	return nil
}
