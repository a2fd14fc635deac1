// test_notify - sends a test alert through the configured escalation
// channels (Lark webhook, Twilio voice calls) so a deployment can be
// verified without waiting for a real unanswered message.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/twei55/otcbot/internal/config"
	"github.com/twei55/otcbot/internal/notify"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		message    = flag.String("message", "Test alert from the OTC bot escalation check.", "Alert text to deliver")
		timeout    = flag.Duration("timeout", 30*time.Second, "Delivery deadline across all channels")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	fmt.Printf("Escalation channel check\n")
	fmt.Printf("Config: %s\n\n", *configPath)

	lark := notify.NewLarkNotifier(cfg.Notify.LarkWebhookURL, true, logger)

	var creds *config.TwilioCredentials
	if cfg.Notify.TwilioCredsFile != "" {
		if creds, err = config.ReadTwilioCredentials(cfg.Notify.TwilioCredsFile); err != nil {
			fmt.Printf("Twilio credentials: %v\n", err)
		}
	}
	var recipients []string
	if cfg.Notify.CallListFile != "" {
		if recipients, err = config.ReadPhoneNumbers(cfg.Notify.CallListFile, logger); err != nil {
			fmt.Printf("Call list: %v\n", err)
		}
	}
	call := notify.NewCallNotifier(creds, recipients, cfg.GetCallCooldown(), logger)

	fmt.Printf("Lark webhook configured: %t\n", lark.Configured())
	fmt.Printf("Twilio calls configured: %t (%d recipients)\n\n", call.Configured(), len(recipients))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := 0
	for _, n := range []notify.Notifier{lark, call} {
		if err := n.Send(ctx, *message); err != nil {
			failed++
			fmt.Printf("%-12s FAILED: %v\n", n.Name(), err)
			continue
		}
		fmt.Printf("%-12s OK\n", n.Name())
	}

	if failed > 0 {
		os.Exit(1)
	}
}
