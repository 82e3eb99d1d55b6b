// Package realtime fans activity events out over Redis pub/sub so every
// server instance can push them to connected dashboards.
package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bean-counter/internal/logging"
)

// ActivityEvent is published on every audited mutation.
type ActivityEvent struct {
	Action    string    `json:"action"`
	Module    string    `json:"module"`
	Submodule string    `json:"submodule,omitempty"`
	RecordID  string    `json:"recordId"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// Emitter publishes activity.  Emit never fails the caller; a lost
// notification only delays a dashboard refresh.
type Emitter interface {
	Emit(ctx context.Context, ev ActivityEvent)
}

// publisher is the slice of *redis.Client the emitter uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisEmitter publishes JSON-encoded events on one channel.
type RedisEmitter struct {
	client  publisher
	channel string
}

func NewRedisEmitter(client *redis.Client, channel string) *RedisEmitter {
	return &RedisEmitter{client: client, channel: channel}
}

func (e *RedisEmitter) Emit(ctx context.Context, ev ActivityEvent) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.client.Publish(ctx, e.channel, body).Err(); err != nil {
		lg := logging.With("realtime")
		lg.Warn().Err(err).Str("channel", e.channel).Msg("activity publish failed")
	}
}

// Subscribe streams events from channel until ctx is done.  Messages
// that do not decode are skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string) <-chan ActivityEvent {
	out := make(chan ActivityEvent, 16)
	sub := client.Subscribe(ctx, channel)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev ActivityEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// NopEmitter drops events.  Used when Redis is unavailable.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, ActivityEvent) {}
