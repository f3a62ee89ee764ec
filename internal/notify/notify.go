// Package notify delivers digests to external channels.
// Delivery failures are reported to the caller, which logs them and moves on.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/digest"
)

// Message is one digest ready for delivery
type Message struct {
	Subject string
	Text    string
	Mode    digest.Mode
}

// Notifier sends a message to one channel
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// LogNotifier writes messages to the log instead of delivering them
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "log_notifier").Logger()}
}

// Name implements Notifier
func (n *LogNotifier) Name() string { return "log" }

// Send implements Notifier
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.log.Info().
		Str("subject", msg.Subject).
		Str("mode", string(msg.Mode)).
		Msg(msg.Text)
	return nil
}
