package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second

	defaultPrefetch   = 10
	defaultJobTimeout = 2 * time.Minute
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Handler processes one job. A returned error means the job may be retried.
type Handler func(ctx context.Context, job *Job) error

// ConsumeOptions tunes a consumer.
type ConsumeOptions struct {
	Prefetch   int
	JobTimeout time.Duration
}

func (o ConsumeOptions) withDefaults() ConsumeOptions {
	if o.Prefetch <= 0 {
		o.Prefetch = defaultPrefetch
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = defaultJobTimeout
	}
	return o
}

// Client publishes jobs to and consumes jobs from RabbitMQ. Publishing uses a
// single confirm-mode channel; each consumer opens its own channel. The
// connection is re-established lazily after a failure.
type Client struct {
	url          string
	exchangeName string
	queues       []string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	failureMu    sync.Mutex
	lastFailure  time.Time
}

// NewClient connects and declares the exchange, the dead-letter exchange and
// the given queues.
func NewClient(url, exchangeName string, queues ...string) (*Client, error) {
	if len(queues) == 0 {
		queues = []string{QueueEvents, QueueReports}
	}
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queues:       queues,
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// connect must be called with c.mu held.
func (c *Client) connect() error {
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queues); err != nil {
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.conn = conn
	c.channel = channel
	slog.Info("Connected to RabbitMQ", "exchange", c.exchangeName, "queues", c.queues)
	return nil
}

// DeadLetterExchange is where rejected jobs are routed.
func DeadLetterExchange(exchange string) string {
	return exchange + ".dlx"
}

// DeadLetterQueue holds the rejected jobs of a queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dead"
}

func setup(ch *amqp091.Channel, exchange string, queues []string) error {
	dlx := DeadLetterExchange(exchange)
	for _, name := range []string{exchange, dlx} {
		err := ch.ExchangeDeclare(
			name,     // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	for _, queue := range queues {
		dead := DeadLetterQueue(queue)
		if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dead, err)
		}
		if err := ch.QueueBind(dead, queue, dlx, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", dead, err)
		}

		_, err := ch.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			amqp091.Table{
				"x-dead-letter-exchange":    dlx,
				"x-dead-letter-routing-key": queue,
			},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key is the queue name on the direct exchange.
		if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

func (c *Client) publishChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed() {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}
	return c.channel, nil
}

func (c *Client) consumerChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}
	return c.conn.Channel()
}

// Publish sends a job to the queue of its type and waits for the broker to
// confirm it was stored.
func (c *Client) Publish(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", job.Type, ErrCircuitOpen)
	}
	if err := job.Validate(); err != nil {
		return err
	}
	queue, _ := QueueFor(job.Type)

	body, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := c.publish(ctx, queue, job, body); err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.mu.Lock()
			c.closeLocked()
			c.mu.Unlock()
		}
		return err
	}
	c.recordSuccess()

	slog.InfoContext(ctx, "Published job",
		"job_id", job.ID,
		"type", job.Type,
		"user_id", job.Payload.UserID,
		"exchange", c.exchangeName,
		"queue", queue)
	return nil
}

func (c *Client) publish(ctx context.Context, queue string, job *Job, body []byte) error {
	channel, err := c.publishChannel()
	if err != nil {
		return err
	}

	confirm, err := channel.PublishWithDeferredConfirmWithContext(
		ctx,
		c.exchangeName, // exchange
		queue,          // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    job.ID,
			Type:         string(job.Type),
			Timestamp:    job.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for publisher confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected job %s", job.ID)
	}
	return nil
}

// Consume processes jobs from a queue until ctx is cancelled, reconnecting
// with exponential backoff when the channel or connection drops.
func (c *Client) Consume(ctx context.Context, queue string, opts ConsumeOptions, handler Handler) error {
	opts = opts.withDefaults()
	attempt := 0
	for {
		err := c.consumeOnce(ctx, queue, opts, handler, func() { attempt = 0 })
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping job consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Consumer interrupted, reconnecting",
			"queue", queue,
			"error", err,
			"attempt", attempt,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue string, opts ConsumeOptions, handler Handler, started func()) error {
	ch, err := c.consumerChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	closed := ch.NotifyClose(make(chan *amqp091.Error, 1))

	started()
	slog.InfoContext(ctx, "Started consuming jobs", "queue", queue, "prefetch", opts.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("channel closed: %v", amqpErr)
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, delivery, opts.JobTimeout, handler)
		}
	}
}

// handleDelivery settles a delivery. Undecodable or invalid jobs are
// dead-lettered at once. A failed job is requeued once and dead-lettered if
// it fails again on redelivery.
func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, timeout time.Duration, handler Handler) {
	job, err := JobFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal job", "error", err, "message_id", d.MessageId)
		d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		slog.ErrorContext(ctx, "Rejecting invalid job", "error", err, "job_id", job.ID, "type", job.Type)
		d.Nack(false, false)
		return
	}

	// In-flight jobs finish on shutdown, bounded by the job timeout.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	if err := handler(jobCtx, job); err != nil {
		requeue := !d.Redelivered
		slog.ErrorContext(ctx, "Failed to handle job",
			"error", err,
			"job_id", job.ID,
			"type", job.Type,
			"user_id", job.Payload.UserID,
			"redelivered", d.Redelivered,
			"requeue", requeue)
		d.Nack(false, requeue)
		return
	}

	d.Ack(false)
	slog.InfoContext(ctx, "Successfully processed job",
		"job_id", job.ID,
		"type", job.Type,
		"user_id", job.Payload.UserID,
		"duration_ms", time.Since(start).Milliseconds())
}

// Healthy reports whether the connection is up and the breaker closed.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	up := c.conn != nil && !c.conn.IsClosed()
	c.mu.Unlock()
	return up && !c.isCircuitOpen()
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failureMu.Lock()
	last := c.lastFailure
	c.failureMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.failureMu.Lock()
	c.lastFailure = time.Now()
	c.failureMu.Unlock()

	// A failure while half-open reopens the breaker immediately.
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", n, "open_for", openTimeout)
		}
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
