// Package notify delivers lifecycle events to operators. Delivery is best effort
// and never blocks trading.
package notify

import (
	"context"
	"time"

	"tokenexecutor/src/model"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventPositionOpened   EventType = "position_opened"
	EventPositionClosed   EventType = "position_closed"
	EventPositionImported EventType = "position_imported"
	EventBuyFailed        EventType = "buy_failed"
	EventBuyUnconfirmed   EventType = "buy_unconfirmed"
	EventSellFailed       EventType = "sell_failed"
)

type Event struct {
	Type     EventType       `json:"type"`
	Token    string          `json:"token"`
	Message  string          `json:"message,omitempty"`
	Position *model.Position `json:"position,omitempty"`
	Time     time.Time       `json:"time"`
}

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Notifier queues events and fans them out to every sink from a single goroutine.
type Notifier struct {
	log     *logrus.Entry
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
}

func NewNotifier(log *logrus.Entry, config Config, sinks ...Sink) *Notifier {
	size := config.BufferSize
	if size <= 0 {
		size = 256
	}
	timeout := config.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		log:     log.WithField("component", "notify"),
		sinks:   sinks,
		queue:   make(chan Event, size),
		timeout: timeout,
	}
}

// Notify enqueues ev. A full queue drops the event.
func (n *Notifier) Notify(_ context.Context, ev Event) {
	if n == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case n.queue <- ev:
	default:
		n.log.WithFields(logrus.Fields{"type": ev.Type, "token": ev.Token}).Warn("Notification queue full, event dropped")
	}
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.queue:
			n.deliver(ctx, ev)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev Event) {
	for _, sink := range n.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		if err := sink.Send(sendCtx, ev); err != nil {
			n.log.WithFields(logrus.Fields{"sink": sink.Name(), "type": ev.Type}).WithError(err).Warn("Notification delivery failed")
		}
		cancel()
	}
}
