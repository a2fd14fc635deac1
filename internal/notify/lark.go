package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// larkTimeout bounds one webhook POST.
const larkTimeout = 10 * time.Second

// LarkNotifier posts alert text to a Lark group bot webhook.
type LarkNotifier struct {
	client     *http.Client
	webhookURL string
	mentionAll bool
	logger     *logrus.Logger
}

// larkMessage is the webhook payload for a plain text message.
type larkMessage struct {
	MsgType string      `json:"msg_type"`
	Content larkContent `json:"content"`
}

type larkContent struct {
	Text string `json:"text"`
}

// NewLarkNotifier creates a Lark webhook notifier. With mentionAll set,
// messages are prefixed with an @everyone tag.
func NewLarkNotifier(webhookURL string, mentionAll bool, logger *logrus.Logger) *LarkNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LarkNotifier{
		client:     &http.Client{Timeout: larkTimeout},
		webhookURL: webhookURL,
		mentionAll: mentionAll,
		logger:     logger,
	}
}

// WithHTTPClient sets a custom HTTP client and returns the receiver.
func (n *LarkNotifier) WithHTTPClient(client *http.Client) *LarkNotifier {
	if client != nil {
		n.client = client
	}
	return n
}

// Name implements Notifier.
func (n *LarkNotifier) Name() string { return "lark" }

// Configured reports whether a usable webhook URL is set. Placeholder
// URLs left over from setup templates count as unconfigured.
func (n *LarkNotifier) Configured() bool {
	return n.webhookURL != "" && !strings.Contains(n.webhookURL, "YOUR_LARK_WEBHOOK_URL")
}

// Send implements Notifier.
func (n *LarkNotifier) Send(ctx context.Context, message string) error {
	if !n.Configured() {
		n.logger.Warn("Lark webhook URL is not configured, skipping notification")
		return nil
	}

	text := message
	if n.mentionAll {
		// The mention tag must lead the message for Lark to resolve it.
		text = `<at user_id="all">All</at> ` + message
	}

	payload, err := json.Marshal(larkMessage{
		MsgType: "text",
		Content: larkContent{Text: text},
	})
	if err != nil {
		return fmt.Errorf("encoding lark payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, larkTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building lark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending lark notification: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			n.logger.WithError(err).Debug("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("lark webhook status %d: %s", resp.StatusCode, string(body))
	}

	n.logger.Info("sent notification to Lark")
	return nil
}

// Ensure LarkNotifier implements Notifier at compile time.
var _ Notifier = (*LarkNotifier)(nil)
