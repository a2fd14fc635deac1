// Package notify implements the escalation channels used when a customer
// message goes unanswered: a Lark group webhook and Twilio voice calls.
// Channels are best-effort: an unconfigured channel skips silently and a
// delivery failure is reported to the caller for logging, never retried.
package notify

import "context"

// Notifier delivers an alert through one channel.
type Notifier interface {
	// Name identifies the channel in logs.
	Name() string
	// Send delivers the message. Unconfigured channels return nil.
	Send(ctx context.Context, message string) error
}
