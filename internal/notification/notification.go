package notification

import (
	"context"
	"log/slog"
	"sort"
)

const (
	// KindConfirmationCode carries a one-time signup code.
	KindConfirmationCode = "confirmation_code"
	// KindWelcome is sent once an account has been provisioned.
	KindWelcome = "welcome"
)

// Message describes a templated mail. Destination is the recipient address
// and Variables are substituted into Template.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Template    string            `json:"template"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	keys := make([]string, 0, len(message.Variables))
	for k := range message.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, message.Variables[k]))
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"template", message.Template,
		slog.Group("variables", attrs...),
	)
	return nil
}
