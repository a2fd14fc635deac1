package notify

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/twei55/otcbot/internal/config"
)

// defaultCallCooldown throttles repeat calls to one number.
const defaultCallCooldown = 5 * time.Minute

// twilioCaller is the slice of the Twilio SDK this notifier needs, kept
// small so tests can stub it.
type twilioCaller interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// CallNotifier places a voice call to each recipient and reads the alert
// out loud. Each number has its own cooldown so a burst of alerts cannot
// ring the same phone repeatedly.
type CallNotifier struct {
	caller     twilioCaller
	from       string
	recipients []string
	cooldown   time.Duration
	logger     *logrus.Logger

	mu        sync.Mutex
	lastCalls map[string]time.Time
}

// NewCallNotifier creates a voice notifier. Missing or incomplete
// credentials leave the channel disabled rather than failing.
func NewCallNotifier(creds *config.TwilioCredentials, recipients []string, cooldown time.Duration, logger *logrus.Logger) *CallNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	if cooldown <= 0 {
		cooldown = defaultCallCooldown
	}
	n := &CallNotifier{
		recipients: recipients,
		cooldown:   cooldown,
		logger:     logger,
		lastCalls:  map[string]time.Time{},
	}
	if creds != nil && creds.AccountSID != "" && creds.AuthToken != "" && creds.FromNumber != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: creds.AccountSID,
			Password: creds.AuthToken,
		})
		n.caller = client.Api
		n.from = creds.FromNumber
	}
	return n
}

// Name implements Notifier.
func (n *CallNotifier) Name() string { return "twilio-call" }

// Configured reports whether credentials were loaded.
func (n *CallNotifier) Configured() bool { return n.caller != nil }

// Send implements Notifier. Numbers still inside their cooldown are
// skipped; failures on one number do not stop the others.
func (n *CallNotifier) Send(ctx context.Context, message string) error {
	if n.caller == nil {
		n.logger.Warn("Twilio credentials are not fully configured, skipping phone calls")
		return nil
	}
	if len(n.recipients) == 0 {
		n.logger.Warn("no recipient phone numbers loaded, skipping phone calls")
		return nil
	}

	twiml := fmt.Sprintf(`<Response><Say language="en-US">%s</Say></Response>`, xmlEscape(message))

	var errs []error
	for _, number := range n.recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if remaining, onCooldown := n.cooldownRemaining(number); onCooldown {
			n.logger.WithFields(logrus.Fields{
				"to":        number,
				"remaining": remaining.Round(time.Second).String(),
			}).Info("skipping call due to cooldown")
			continue
		}

		params := &api.CreateCallParams{}
		params.SetTo(number)
		params.SetFrom(n.from)
		params.SetTwiml(twiml)
		if _, err := n.caller.CreateCall(params); err != nil {
			n.logger.WithField("to", number).WithError(err).Error("failed to initiate call")
			errs = append(errs, fmt.Errorf("call to %s: %w", number, err))
			continue
		}
		n.logger.WithField("to", number).Info("initiated call")
		n.markCalled(number)
	}
	return errors.Join(errs...)
}

func (n *CallNotifier) cooldownRemaining(number string) (time.Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastCalls[number]
	if !ok {
		return 0, false
	}
	elapsed := time.Since(last)
	if elapsed >= n.cooldown {
		return 0, false
	}
	return n.cooldown - elapsed, true
}

func (n *CallNotifier) markCalled(number string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastCalls[number] = time.Now()
}

func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

// Ensure CallNotifier implements Notifier at compile time.
var _ Notifier = (*CallNotifier)(nil)
