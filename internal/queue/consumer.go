package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
)

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Observer is told how each delivery was settled: "ack", "requeue" or
// "reject".
type Observer interface {
	ObserveDelivery(queue, result string)
}

// Consumer reads one durable queue and hands each delivery to a handler.
type Consumer struct {
	url      string
	queue    string
	handle   HandlerFunc
	log      zerolog.Logger
	timeout  time.Duration
	observer Observer
}

// NewConsumer returns a Consumer for queue on the broker at url.
func NewConsumer(url, queue string, handle HandlerFunc, log zerolog.Logger) *Consumer {
	return &Consumer{
		url:     url,
		queue:   queue,
		handle:  handle,
		log:     log.With().Str("queue", queue).Logger(),
		timeout: 30 * time.Second,
	}
}

// WithObserver attaches o and returns c.
func (c *Consumer) WithObserver(o Observer) *Consumer {
	c.observer = o
	return c
}

// Run connects to the broker and consumes until ctx is cancelled.  Broken
// connections are redialled with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.Multiplier = 2
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 0 // retry forever
	exp.Reset()

	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			wait := exp.NextBackOff()
			c.log.Warn().Err(err).Dur("retry_in", wait).Msg("failed to dial broker")
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}
		exp.Reset()

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("consume loop ended; reconnecting")
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
		c.log.Warn().Err(err).Msg("set QoS failed")
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
			c.dispatch(ctx, d)
		}
	}
}

// dispatch runs the handler and settles the delivery.  Collaborator outages
// are requeued once; everything else is rejected so a poison message
// cannot loop.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.handle(hctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		c.observe("ack")
		return
	}
	requeue := errors.Is(err, apperr.ErrCollaboratorUnavailable) && !d.Redelivered
	c.log.Error().Err(err).Bool("requeue", requeue).Msg("handle message failed")
	_ = d.Nack(false, requeue)
	if requeue {
		c.observe("requeue")
	} else {
		c.observe("reject")
	}
}

func (c *Consumer) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveDelivery(c.queue, result)
	}
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
