// Package notify fans settlement events out to operator channels. The bot
// hands it resolution announcements; each configured sender (Telegram,
// Discord) delivers independently, and an event filter keeps the channels
// down to what the operator subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one rendered notification to a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans notifications out to every configured sender, filtered by
// event type. An empty subscription list means every event is delivered.
type Notifier struct {
	senders    []Sender
	subscribed map[string]struct{}
	logger     *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders, restricted to the
// listed event types (all events when the list is empty).
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	subscribed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			subscribed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders:    senders,
		subscribed: subscribed,
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the notification to every sender when the event type is
// subscribed. One sender's failure never blocks the others; the combined
// error reports every channel that failed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.subscribed) > 0 {
		if _, ok := n.subscribed[event]; !ok {
			return nil
		}
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notification delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
