// Package bot implements the Telegram front end: command handling,
// broadcast fan-out, the /px pricing conversation, and the hooks that
// feed the unanswered-message monitor.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/twei55/otcbot/internal/config"
	"github.com/twei55/otcbot/internal/monitor"
	"github.com/twei55/otcbot/internal/pricing"
)

// Callback data for the broadcast group-selection keyboard.
const (
	cbSendLargeOnly = "send_large_only"
	cbSendAll       = "send_all"
	cbCancelSend    = "cancel_send"
)

// telegramAPI is the subset of the Telegram client the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ telegramAPI = (*tgbotapi.BotAPI)(nil)

// pendingBroadcast is a /send message waiting for its group selection.
type pendingBroadcast struct {
	isPhoto bool
	text    string // message text, or photo caption
	photoID string
}

// Bot wires the Telegram transport to the pricing, monitoring, and list
// management pieces.
type Bot struct {
	api       telegramAPI
	selfID    int64
	cfg       *config.Config
	lists     *config.ListStore
	pricer    *pricing.Pricer
	monitor   *monitor.Manager
	logger    *logrus.Logger
	startedAt time.Time
	stopCh    chan struct{}

	mu            sync.Mutex
	awaitingLegs  map[int64]struct{}
	pendingSends  map[int64]*pendingBroadcast
	lastHeartbeat string
}

var _ monitor.DirectMessenger = (*Bot)(nil)

// New connects to Telegram with the given token and prepares the bot for
// polling.
func New(token string, cfg *config.Config, lists *config.ListStore, pricer *pricing.Pricer, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	api.Debug = cfg.Telegram.Debug

	if logger == nil {
		logger = logrus.New()
	}
	logger.Infof("Telegram bot connected as @%s", api.Self.UserName)

	return newWithAPI(api, api.Self.ID, cfg, lists, pricer, logger), nil
}

func newWithAPI(api telegramAPI, selfID int64, cfg *config.Config, lists *config.ListStore, pricer *pricing.Pricer, logger *logrus.Logger) *Bot {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bot{
		api:          api,
		selfID:       selfID,
		cfg:          cfg,
		lists:        lists,
		pricer:       pricer,
		logger:       logger,
		startedAt:    time.Now(),
		stopCh:       make(chan struct{}),
		awaitingLegs: make(map[int64]struct{}),
		pendingSends: make(map[int64]*pendingBroadcast),
	}
}

// SetMonitor attaches the unanswered-message manager that group messages
// are fed to. Must be called before Start.
func (b *Bot) SetMonitor(m *monitor.Manager) {
	b.monitor = m
}

// Start drops the pending update backlog and begins long polling in a
// background goroutine.
func (b *Bot) Start() {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		b.logger.WithError(err).Warn("Failed to drop pending updates")
	}
	go b.listenForUpdates()
	b.logger.Info("Bot is polling for messages...")
}

// Stop terminates the update loop.
func (b *Bot) Stop() {
	close(b.stopCh)
	b.api.StopReceivingUpdates()
}

func (b *Bot) listenForUpdates() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				go b.handleMessage(update.Message)
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(update.CallbackQuery)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}

	// Group membership status updates carry no text or commands.
	if len(msg.NewChatMembers) > 0 {
		b.onNewChatMembers(msg)
		return
	}
	if msg.LeftChatMember != nil {
		b.onLeftChatMember(msg)
		return
	}

	// A photo broadcast carries its command in the caption, which the
	// library does not treat as a command.
	if len(msg.Photo) > 0 && strings.HasPrefix(msg.Caption, "/send") {
		b.cmdSend(msg)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	// A chat waiting on /px legs consumes the next plain text message.
	if msg.Text != "" && b.isAwaitingLegs(msg.Chat.ID) {
		b.handlePriceLegs(msg)
		return
	}

	if msg.Text != "" || msg.Caption != "" {
		b.observeGroupMessage(msg)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	// Any command sent while a /px conversation is waiting for legs
	// cancels the conversation instead of executing.
	if b.cancelAwaitingLegs(msg.Chat.ID) {
		b.logger.Infof("User %s (%d) canceled the price calculation.", userName(msg.From), userID(msg.From))
		b.sendText(msg.Chat.ID, "Price calculation canceled. Please re-enter command.")
		return
	}

	switch msg.Command() {
	case "start":
		b.cmdStart(msg)
	case "help":
		b.cmdHelp(msg)
	case "send":
		b.cmdSend(msg)
	case "reload":
		b.cmdReload(msg)
	case "status":
		b.cmdStatus(msg)
	case "px":
		b.cmdPrice(msg)
	default:
		b.cmdUnknown(msg)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	// Acknowledge the button press
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.WithError(err).Debug("Failed to answer callback query")
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}

	switch {
	case cb.Data == cbCancelSend:
		b.handleSendCancel(cb)
	case strings.HasPrefix(cb.Data, "send_"):
		b.handleSendChoice(cb)
	}
}

// observeGroupMessage feeds a non-command message to the unanswered
// message monitor, which decides whether the chat is watched at all.
func (b *Bot) observeGroupMessage(msg *tgbotapi.Message) {
	if b.monitor == nil || msg.From == nil {
		return
	}
	b.monitor.Observe(monitor.Message{
		ChatID:    msg.Chat.ID,
		ChatTitle: msg.Chat.Title,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		UserName:  userFullName(msg.From),
		SentAt:    msg.Time(),
	})
}

// SendDirect implements the direct-message channel the monitor alerts
// admins through.
func (b *Bot) SendDirect(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.WithError(err).Error("Failed to send message")
	}
}

// StartedAt returns when this bot instance was created.
func (b *Bot) StartedAt() time.Time {
	return b.startedAt
}

// LastHeartbeat returns the formatted time of the last heartbeat, or the
// empty string when none has been sent yet.
func (b *Bot) LastHeartbeat() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeartbeat
}

func (b *Bot) isAwaitingLegs(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.awaitingLegs[chatID]
	return ok
}

func (b *Bot) setAwaitingLegs(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.awaitingLegs[chatID] = struct{}{}
}

func (b *Bot) clearAwaitingLegs(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.awaitingLegs, chatID)
}

// cancelAwaitingLegs clears the awaiting-legs state and reports whether
// the chat was in it.
func (b *Bot) cancelAwaitingLegs(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.awaitingLegs[chatID]
	delete(b.awaitingLegs, chatID)
	return ok
}

func (b *Bot) setPendingBroadcast(chatID int64, p *pendingBroadcast) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingSends[chatID] = p
}

func (b *Bot) pendingBroadcastFor(chatID int64) *pendingBroadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingSends[chatID]
}

func (b *Bot) clearPendingBroadcast(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pendingSends, chatID)
}

func userName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.UserName
}

func userID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func userFullName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func usernameOrNA(u *tgbotapi.User) string {
	if u == nil || u.UserName == "" {
		return "N/A"
	}
	return u.UserName
}
