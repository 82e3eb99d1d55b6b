package queue

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/bean-counter/internal/logging"
)

// Publisher hands mail events to the broker.
type Publisher interface {
	PublishMail(ctx context.Context, ev MailEvent) error
}

// AMQPPublisher publishes to a durable queue on the default exchange.  It
// dials per message: mail volume is a handful of invites and resets, so
// a long-lived channel is not worth the reconnect handling.
type AMQPPublisher struct {
	URL   string
	Queue string
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Queue: queue}
}

// PublishMail publishes ev as a persistent JSON message.  Errors are
// logged and returned; callers decide whether to ignore them.
func (p *AMQPPublisher) PublishMail(ctx context.Context, ev MailEvent) error {
	log := logging.With("mail-publisher")
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Error().Err(err).Msg("rabbitmq dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		log.Error().Err(err).Str("queue", p.Queue).Msg("rabbitmq queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Kind,
		Body:         body,
	}); err != nil {
		log.Error().Err(err).Str("queue", p.Queue).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

// LogPublisher writes mail events to the log instead of a broker.  Used
// when RABBITMQ_URL is unset.
type LogPublisher struct{}

func (LogPublisher) PublishMail(_ context.Context, ev MailEvent) error {
	lg := logging.With("mail-publisher")
	lg.Info().
		Str("kind", ev.Kind).Str("to", ev.To).Str("link", ev.Link).
		Msg("mail not queued (no broker configured)")
	return nil
}
