// Package notify delivers order events to external channels (Telegram,
// webhooks). Delivery is best effort and asynchronous: a dead channel
// never slows order placement.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Event is one order lifecycle notification.
type Event struct {
	Operation string `json:"operation"` // placeorder, smartorder, basketorder, ...
	Symbol    string `json:"symbol,omitempty"`
	Exchange  string `json:"exchange,omitempty"`
	Action    string `json:"action,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	Status    string `json:"status"` // success / error / pending approval
	OrderID   string `json:"order_id,omitempty"`
	Mode      string `json:"mode"` // live / analyze
	Message   string `json:"message,omitempty"`
}

// Title renders a one-line headline for the event.
func (e Event) Title() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s %s x%d %s", e.Operation, e.Action, e.Symbol, e.Quantity, e.Status)
}

// Body renders the detail text.
func (e Event) Body() string {
	s := fmt.Sprintf("mode=%s exchange=%s", e.Mode, e.Exchange)
	if e.OrderID != "" {
		s += " order_id=" + e.OrderID
	}
	if e.Message != "" {
		s += "\n" + e.Message
	}
	return s
}

// Notifier is one delivery channel.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the process log. Always configured as
// the fallback channel.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, ev Event) error {
	log.Printf("[notify] %s: %s", ev.Title(), ev.Body())
	return nil
}

// Fanout delivers each event to every channel on its own goroutine.
type Fanout struct {
	channels []Notifier
	timeout  time.Duration
}

// NewFanout builds a fan-out over the given channels.
func NewFanout(channels ...Notifier) *Fanout {
	return &Fanout{channels: channels, timeout: 10 * time.Second}
}

// Publish sends the event to all channels without blocking the caller.
// Failures are logged and otherwise ignored.
func (f *Fanout) Publish(ev Event) {
	for _, ch := range f.channels {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := n.Send(ctx, ev); err != nil {
				log.Printf("[notify] delivery failed: %v", err)
			}
		}(ch)
	}
}
