// Package service publishes domain events to RabbitMQ.  Errors are logged
// and returned so callers can ignore failures without interrupting the
// main request flow.
package service

import (
	"context"
	"encoding/json"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/model"
	q "github.com/autoseers/carseer/internal/queue"
)

// sendFunc delivers one message body to a queue.
type sendFunc func(ctx context.Context, queue string, body []byte) error

// Publisher implements booking.Publisher and recall.Publisher.
type Publisher struct {
	send sendFunc
	log  zerolog.Logger
	now  func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{send: dialAndSend(url), log: log, now: time.Now}
}

// PublishBookingRequested announces a new booking to the back office.
func (p *Publisher) PublishBookingRequested(ctx context.Context, s model.ScheduledService) error {
	return p.publish(ctx, q.BookingRequestedQueue, q.BookingRequestedEvent{
		BookingID:   s.ID,
		VehicleID:   s.VehicleID,
		PartID:      s.PartID,
		Place:       s.Place,
		ScheduledAt: s.ScheduledAt.UTC().Format(time.RFC3339),
		Email:       s.Email,
		RequestedAt: p.now().UTC().Format(time.RFC3339),
	})
}

// PublishRecallsDiscovered queues title generation for new campaigns.
func (p *Publisher) PublishRecallsDiscovered(ctx context.Context, vehicleKey string, campaigns []string) error {
	return p.publish(ctx, q.RecallDiscoveredQueue, q.RecallsDiscoveredEvent{VehicleID: vehicleKey, Campaigns: campaigns})
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("queue", queue).Msg("marshal event failed")
		return err
	}
	if err := p.send(ctx, queue, body); err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("publish failed")
		return err
	}
	return nil
}

// handshakeTimeout bounds connection setup when ctx has no deadline.
const handshakeTimeout = 30 * time.Second

// dialAndSend opens a connection per message.  Publishing is rare (one
// message per booking or per poll with new campaigns).  Connection setup
// honours ctx: the TCP dial is cancelled with it and the AMQP handshake
// must finish by its deadline.
func dialAndSend(url string) sendFunc {
	return func(ctx context.Context, queue string, body []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      dialContext(ctx),
		})
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		defer func() { _ = ch.Close() }()

		// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
		if _, err := ch.QueueDeclare(
			queue, // name
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return err
		}

		return ch.PublishWithContext(ctx,
			"",    // default exchange
			queue, // routing key = queue name
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // store on disk
				Timestamp:    time.Now().UTC(),
				Body:         body,
			})
	}
}

// dialContext returns an amqp dialer bound to ctx.  The deadline it sets
// covers the handshake; amqp clears it once the connection is open.
// Cancelling ctx expires the connection immediately.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(handshakeTimeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
		return conn, nil
	}
}
