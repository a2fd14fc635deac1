// Package monitor watches group chats for customer messages that go unanswered.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/twei55/otcbot/internal/notify"
)

// Config contains configuration for the unanswered-message manager.
type Config struct {
	// GraceWindow suppresses alerts for customer messages that arrive
	// while an admin has recently been active in the same chat.
	GraceWindow time.Duration
	// ResponseWindow is how long a customer message may sit without an
	// admin reply before the alert fires.
	ResponseWindow time.Duration
	// DispatchTimeout bounds the whole notification fan-out of one alert.
	DispatchTimeout time.Duration
}

// DefaultConfig is the default configuration for the unanswered-message manager.
var DefaultConfig = Config{
	GraceWindow:     5 * time.Minute,
	ResponseWindow:  5 * time.Minute,
	DispatchTimeout: 30 * time.Second,
}

// Lists is the subset of membership lookups the manager needs.
type Lists interface {
	IsAllowedUser(id int64) bool
	IsMonitoredGroup(id int64) bool
	AllowedUserIDs() []int64
}

// DirectMessenger delivers a Telegram direct message to a single user.
type DirectMessenger interface {
	SendDirect(ctx context.Context, userID int64, text string) error
}

// Message is a group chat message fed to the manager by the bot.
type Message struct {
	ChatID    int64
	ChatTitle string
	MessageID int
	UserID    int64
	UserName  string
	SentAt    time.Time
}

type chatState struct {
	lastAdminActivity time.Time
	pending           *time.Timer
	pendingName       string
}

// Manager tracks per-chat admin activity and schedules escalation alerts
// for customer messages that nobody answers in time.
type Manager struct {
	lists     Lists
	admins    DirectMessenger
	notifiers []notify.Notifier
	logger    *logrus.Logger
	stop      <-chan struct{}
	config    Config

	mu    sync.Mutex
	chats map[int64]*chatState
}

// NewManager creates a new unanswered-message manager instance.
func NewManager(
	lists Lists,
	admins DirectMessenger,
	notifiers []notify.Notifier,
	logger *logrus.Logger,
	stop <-chan struct{},
	config ...Config,
) *Manager {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = logrus.New()
	}

	// Validate and clamp config values
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultConfig.GraceWindow
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = DefaultConfig.ResponseWindow
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig.DispatchTimeout
	}

	// Validate required dependencies (fail fast to avoid later panics)
	if lists == nil {
		panic("monitor.NewManager: lists must not be nil")
	}
	if admins == nil {
		panic("monitor.NewManager: admins must not be nil")
	}

	return &Manager{
		lists:     lists,
		admins:    admins,
		notifiers: notifiers,
		logger:    logger,
		stop:      stop,
		config:    cfg,
		chats:     make(map[int64]*chatState),
	}
}

// Observe routes one group message through the monitoring state machine.
// Admin messages record activity and cancel any pending alert; customer
// messages arm an alert timer unless an admin was recently active.
func (m *Manager) Observe(msg Message) {
	if !m.lists.IsMonitoredGroup(msg.ChatID) {
		return
	}
	if m.lists.IsAllowedUser(msg.UserID) {
		m.recordAdminActivity(msg)
		return
	}
	m.scheduleAlert(msg)
}

// PendingAlerts reports how many chats currently have an alert timer armed.
func (m *Manager) PendingAlerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, st := range m.chats {
		if st.pending != nil {
			n++
		}
	}
	return n
}

func (m *Manager) recordAdminActivity(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.chats[msg.ChatID]
	if st == nil {
		st = &chatState{}
		m.chats[msg.ChatID] = st
	}
	st.lastAdminActivity = msg.SentAt

	if st.pending != nil {
		st.pending.Stop()
		st.pending = nil
		st.pendingName = ""
		m.logger.Infof("Admin '%s' responded in '%s'. Canceled pending unanswered message alert.",
			msg.UserName, msg.ChatTitle)
	}
}

func (m *Manager) scheduleAlert(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.chats[msg.ChatID]
	if st == nil {
		st = &chatState{}
		m.chats[msg.ChatID] = st
	}

	// An admin active within the grace window means the conversation is
	// being handled; do not stack an alert on top of it.
	if !st.lastAdminActivity.IsZero() && msg.SentAt.Sub(st.lastAdminActivity) < m.config.GraceWindow {
		m.logger.Infof("Ignoring user message in '%s' as an admin was recently active.", msg.ChatTitle)
		return
	}

	if st.pending != nil {
		st.pending.Stop()
		m.logger.Infof("New user message arrived. Replacing scheduled alert '%s'.", st.pendingName)
	}

	name := fmt.Sprintf("unanswered_%d_%d", msg.ChatID, msg.MessageID)
	st.pendingName = name
	st.pending = time.AfterFunc(m.config.ResponseWindow, func() {
		m.fireAlert(msg.ChatID, name, msg.ChatTitle, msg.UserName)
	})

	m.logger.Infof("Non-admin '%s' sent a message in '%s'. Scheduled a %s check.",
		msg.UserName, msg.ChatTitle, formatWindow(m.config.ResponseWindow))
}

// fireAlert runs on the timer goroutine once a response window elapses
// without an admin reply.
func (m *Manager) fireAlert(chatID int64, name, chatTitle, userName string) {
	select {
	case <-m.stop:
		return
	default:
	}

	// Clear the pending state only if this timer still owns it. A newer
	// customer message may have re-armed the chat while we waited for the
	// lock.
	m.mu.Lock()
	st := m.chats[chatID]
	if st == nil || st.pendingName != name {
		m.mu.Unlock()
		return
	}
	st.pending = nil
	st.pendingName = ""
	m.mu.Unlock()

	text := alertText(userName, chatTitle, m.config.ResponseWindow)
	m.logger.Warnf("Unanswered message in '%s'. Triggering notifications.", chatTitle)

	ctx, cancel := context.WithTimeout(context.Background(), m.config.DispatchTimeout)
	defer cancel()

	for _, n := range m.notifiers {
		if err := n.Send(ctx, text); err != nil {
			m.logger.WithError(err).Errorf("Failed to send %s alert", n.Name())
		}
	}

	adminIDs := m.lists.AllowedUserIDs()
	if len(adminIDs) == 0 {
		m.logger.Warn("No admin IDs found to send Telegram alert.")
		return
	}
	for _, adminID := range adminIDs {
		if err := m.admins.SendDirect(ctx, adminID, text); err != nil {
			m.logger.WithError(err).Errorf("Failed to send Telegram alert to admin %d", adminID)
			continue
		}
		m.logger.Infof("Sent unanswered message alert to Telegram admin %d.", adminID)
	}
}

func alertText(userName, chatTitle string, window time.Duration) string {
	return fmt.Sprintf("🚨 Unanswered Message Alert 🚨\nA message from user '%s' in group '%s' has not been answered for %s.",
		userName, chatTitle, formatWindow(window))
}

// formatWindow renders whole-minute windows the way a human would say them.
func formatWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		mins := int(d / time.Minute)
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	return d.String()
}
