// The OTC desk Telegram bot: broadcasts to maker groups, watches
// monitored chats for unanswered customer messages, and prices
// multi-leg option strategies on request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/twei55/otcbot/internal/bot"
	"github.com/twei55/otcbot/internal/config"
	"github.com/twei55/otcbot/internal/dashboard"
	"github.com/twei55/otcbot/internal/logging"
	"github.com/twei55/otcbot/internal/marketdata"
	"github.com/twei55/otcbot/internal/monitor"
	"github.com/twei55/otcbot/internal/notify"
	"github.com/twei55/otcbot/internal/pricing"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// A .env file supplies the ${VARS} the config file may reference.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.Setup(cfg.GetLogLevel(), cfg.Logging.Dir)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}
	logger.Info("Bot stopped successfully")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	token, err := config.ReadToken(cfg.Telegram.TokenFile)
	if err != nil {
		return fmt.Errorf("reading bot token: %w", err)
	}

	lists := config.NewListStore(cfg.Lists, logger)
	counts := lists.Reload()
	logger.Infof("Loaded %d allowed users, %d large groups, %d all groups, %d monitored groups.",
		counts.AllowedUsers, counts.LargeGroups, counts.AllGroups, counts.MonitoredGroups)

	quotes := marketdata.NewDeribitClientWithBaseURL(cfg.MarketData.BaseURL, logger).
		WithTimeout(cfg.GetQuoteTimeout())
	pricer := pricing.NewPricer(marketdata.NewCircuitBreakerProvider(quotes, logger), logger)

	b, err := bot.New(token, cfg, lists, pricer, logger)
	if err != nil {
		return err
	}

	monitorStop := make(chan struct{})
	mon := monitor.NewManager(lists, b, buildNotifiers(cfg, logger), logger, monitorStop, monitor.Config{
		GraceWindow:    cfg.GetGraceWindow(),
		ResponseWindow: cfg.GetResponseWindow(),
	})
	b.SetMonitor(mon)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	// Hourly heartbeat aligned to the top of the hour, plus one beat
	// right after startup.
	if _, err := scheduler.NewJob(gocron.CronJob("0 * * * *", false), gocron.NewTask(b.SendHeartbeat)); err != nil {
		return fmt.Errorf("scheduling heartbeat: %w", err)
	}
	if _, err := scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(time.Second))),
		gocron.NewTask(b.SendHeartbeat),
	); err != nil {
		return fmt.Errorf("scheduling startup heartbeat: %w", err)
	}
	scheduler.Start()

	b.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, stopping bot...")
		b.Stop()
		close(monitorStop)
		return scheduler.Shutdown()
	})

	if cfg.Dashboard.Enabled {
		dash := dashboard.NewServer(dashboard.Config{
			Addr:      cfg.Dashboard.ListenAddr,
			AuthToken: cfg.Dashboard.AuthToken,
		}, b, mon, lists, logger)

		g.Go(func() error {
			if err := dash.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("dashboard server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return dash.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// buildNotifiers assembles the escalation channels. Channels without
// credentials stay in the list and skip their sends, so a partially
// configured deployment still alerts through what it has.
func buildNotifiers(cfg *config.Config, logger *logrus.Logger) []notify.Notifier {
	lark := notify.NewLarkNotifier(cfg.Notify.LarkWebhookURL, true, logger)

	var creds *config.TwilioCredentials
	if cfg.Notify.TwilioCredsFile != "" {
		var err error
		if creds, err = config.ReadTwilioCredentials(cfg.Notify.TwilioCredsFile); err != nil {
			logger.WithError(err).Warn("Twilio credentials unavailable; voice calls disabled.")
		}
	}
	var recipients []string
	if cfg.Notify.CallListFile != "" {
		var err error
		if recipients, err = config.ReadPhoneNumbers(cfg.Notify.CallListFile, logger); err != nil {
			logger.WithError(err).Warn("Call list unavailable; voice calls disabled.")
		}
	}
	call := notify.NewCallNotifier(creds, recipients, cfg.GetCallCooldown(), logger)

	return []notify.Notifier{lark, call}
}
