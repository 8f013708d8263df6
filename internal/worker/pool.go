package worker

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"spese-analytics/internal/amqp"
)

// Consumer runs a blocking receive loop on a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, opts amqp.ConsumeOptions, handler amqp.Handler) error
}

// QueueSpec sets how many independent consumers serve a queue.
type QueueSpec struct {
	Name      string
	Consumers int
}

// Pool runs the consumers of every queue until the context is cancelled.
type Pool struct {
	consumer Consumer
	handler  amqp.Handler
	queues   []QueueSpec
	opts     amqp.ConsumeOptions
}

func NewPool(consumer Consumer, handler amqp.Handler, opts amqp.ConsumeOptions, queues ...QueueSpec) *Pool {
	return &Pool{consumer: consumer, handler: handler, queues: queues, opts: opts}
}

// Run blocks until ctx is cancelled or a consumer fails for good. A clean
// shutdown returns nil.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, q := range p.queues {
		n := q.Consumers
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			g.Go(func() error {
				err := p.consumer.Consume(gctx, q.Name, p.opts, p.handler)
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return nil
				}
				return err
			})
		}
		slog.InfoContext(ctx, "Queue consumers started", "queue", q.Name, "consumers", n)
	}

	return g.Wait()
}
