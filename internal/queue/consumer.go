package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/bean-counter/internal/logging"
)

// MailConsumer drains the mail queue into an append-only mail log.
// Actual delivery is out of scope; the log is the outbox a relay or an
// operator reads.
type MailConsumer struct {
	URL   string
	Queue string
	Dir   string // directory of mail.log, default "logs"
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (c *MailConsumer) Run(ctx context.Context) error {
	log := logging.With("mail-consumer")
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
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

func (c *MailConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	log := logging.With("mail-consumer")
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			log.Error().Err(err).Msg("handle message failed")
			_ = d.Nack(false, false) // reject without requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message and appends it to mail.log.
func (c *MailConsumer) Handle(body []byte) error {
	var ev MailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.To == "" || ev.Kind == "" {
		return errors.New("mail event without recipient or kind")
	}
	dir := c.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "mail.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open mail log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatMail(ev)); err != nil {
		return fmt.Errorf("write mail log: %w", err)
	}
	return nil
}

// FormatMail renders ev as one log line.
func FormatMail(ev MailEvent) string {
	return fmt.Sprintf("[%s] %s | to=%s | name=%q | subject=%q | link=%s | expires=%s\n",
		ev.CreatedAt.UTC().Format(time.RFC3339), ev.Kind, ev.To, ev.Name, ev.Subject, ev.Link,
		ev.ExpiresAt.UTC().Format(time.RFC3339))
}
