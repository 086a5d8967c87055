package notification

import (
	"context"
	"log/slog"
)

const (
	// KindReply is a reply to an inbound command.
	KindReply = "command_reply"
	// KindManual is an operator-initiated message.
	KindManual = "manual_send"
)

// Message describes an outbound text.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// Notifier delivers outbound texts to a phone number.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes messages to the logger instead of delivering them.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("outbound message", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
