// Package events streams order lifecycle events to WebSocket clients.
// Events travel through Redis PubSub so every gateway instance sees
// every event regardless of which instance executed the order.
package events

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/marketcalls/openalgo-sub001/internal/notify"
)

// Channel is the Redis PubSub channel carrying order events.
const Channel = "orders:events"

// Publisher forwards order events to Redis PubSub. It implements
// notify.Notifier so it plugs into the engine's notification fan-out.
type Publisher struct {
	client *goredis.Client
}

// NewPublisher wraps a Redis client.
func NewPublisher(client *goredis.Client) *Publisher {
	return &Publisher{client: client}
}

type wireEvent struct {
	notify.Event
	TS string `json:"ts"`
}

// Send publishes one event.
func (p *Publisher) Send(ctx context.Context, ev notify.Event) error {
	data, err := json.Marshal(wireEvent{
		Event: ev,
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel, string(data)).Err()
}
