package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "/start - Shows the welcome message.\n" +
	"/send <message> - Broadcasts a text message or a photo.\n" +
	"/reload - Reloads the user and group lists.\n" +
	"/px - Calculates the net mark price for a multi-leg options strategy.\n" +
	"/status - Shows the bot's current status and uptime.\n" +
	"/help - Shows this help message.\n" +
	"Automatic Features:\n" +
	" **Admin Notifications when the bot is added or removed from a group.\n" +
	" **Unanswered Message Alerts in monitored groups."

// pricePrompt is MarkdownV2, so literal dots are escaped.
const pricePrompt = "Please enter the strategy legs, one per line\\. \n\n" +
	"*Format:* `[+/-]quantity [BTC-]EXPIRY-STRIKE-TYPE`\n" +
	"Can omit `BTC-` for Bitcoin options and can omit all `-` and last `000` in the instrument name\\. \n\n" +
	"**Example:**\n" +
	"`+1 26DEC25 95000 P`\n" +
	"`-2 26DEC25 130000 C`\n" +
	"Use `/cancel` to exit\\."

func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	user := msg.From
	chat := msg.Chat

	greeting := fmt.Sprintf("Hello, %s! Welcome to SignalPlus bot. I'm ready to chat.", userName(user))
	if chat.IsPrivate() {
		greeting += fmt.Sprintf("\nThis is a private chat. Your Chat ID is: %d", chat.ID)
		b.logger.Infof("User %s (%d) started the bot in a private chat (%d).", userName(user), userID(user), chat.ID)
	} else {
		greeting += fmt.Sprintf("\nThis bot was started in the group: '%s'.\nThe Group Chat ID is: %d", chat.Title, chat.ID)
		b.logger.Infof("User %s (%d) started the bot in group '%s' (%d).", userName(user), userID(user), chat.Title, chat.ID)
	}

	b.sendText(chat.ID, greeting)
}

func (b *Bot) cmdHelp(msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, helpText)
	b.logger.Infof("User %s (%d) is checking help", userName(msg.From), userID(msg.From))
}

func (b *Bot) cmdReload(msg *tgbotapi.Message) {
	user := msg.From
	if user == nil || !b.lists.IsAllowedUser(user.ID) {
		b.logger.Warnf("Unauthorized reload attempt by user %s (%d).", userName(user), userID(user))
		b.sendText(msg.Chat.ID, "Sorry, you are not authorized to use this command.")
		return
	}

	b.logger.Infof("Reload initiated by user %s (%d)", user.UserName, user.ID)
	counts := b.lists.Reload()

	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Configuration reload finished!\n"+
			"Found %d allowed users.\n"+
			"Found %d large groups.\n"+
			"Found %d all groups.\n"+
			"Found %d monitored groups for unanswered alerts.",
		counts.AllowedUsers, counts.LargeGroups, counts.AllGroups, counts.MonitoredGroups))
}

func (b *Bot) cmdStatus(msg *tgbotapi.Message) {
	user := msg.From
	if user == nil || !b.lists.IsAllowedUser(user.ID) {
		b.sendText(msg.Chat.ID, "Sorry, you are not authorized to use this command.")
		return
	}

	counts := b.lists.Counts()
	heartbeat := b.LastHeartbeat()
	if heartbeat == "" {
		heartbeat = "Never"
	}

	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Bot Status: Running ✅\n"+
			"Uptime: %s\n"+
			"Allowed Users: %d\n"+
			"Large Groups: %d\n"+
			"Total Groups: %d\n"+
			"Monitored Groups: %d\n"+
			"Last Heartbeat: %s",
		formatUptime(time.Since(b.startedAt)),
		counts.AllowedUsers, counts.LargeGroups, counts.AllGroups, counts.MonitoredGroups,
		heartbeat))

	b.logger.Infof("User %s (%d) checked status.", user.UserName, user.ID)
}

func (b *Bot) cmdUnknown(msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, "Sorry, I don't recognize that command. Please use /help to see available commands.")
	b.logger.Infof("User %s (%d) entered unknown command: %s", userName(msg.From), userID(msg.From), msg.Text)
}

// cmdPrice opens the /px conversation: the next plain text message in
// this chat is read as the strategy leg list.
func (b *Bot) cmdPrice(msg *tgbotapi.Message) {
	b.logger.Infof("User %s (%d) initiated price calculation with /px.", userName(msg.From), userID(msg.From))

	prompt := tgbotapi.NewMessage(msg.Chat.ID, pricePrompt)
	prompt.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(prompt); err != nil {
		b.logger.WithError(err).Error("Failed to send price prompt")
		return
	}

	b.setAwaitingLegs(msg.Chat.ID)
}

func (b *Bot) handlePriceLegs(msg *tgbotapi.Message) {
	user := msg.From
	b.logger.Infof("User %s (%d) submitted legs for /px: %s",
		userName(user), userID(user), strings.ReplaceAll(msg.Text, "\n", "; "))

	var legs []string
	for _, line := range strings.Split(msg.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			legs = append(legs, line)
		}
	}
	if len(legs) == 0 {
		// Stay in the conversation and let the user try again.
		b.sendText(msg.Chat.ID, "You didn't provide any legs. Please try again or use /cancel.")
		return
	}
	b.clearAwaitingLegs(msg.Chat.ID)

	b.sendText(msg.Chat.ID, "Calculating, please wait...")

	result, err := b.pricer.Price(context.Background(), legs)
	if err != nil {
		// Validation errors read as the full user-facing reply.
		b.sendText(msg.Chat.ID, err.Error())
		return
	}
	b.sendText(msg.Chat.ID, result)
}

func (b *Bot) onNewChatMembers(msg *tgbotapi.Message) {
	joined := false
	for _, member := range msg.NewChatMembers {
		if member.ID == b.selfID {
			joined = true
			break
		}
	}
	if !joined {
		return
	}

	chat := msg.Chat
	addedBy := msg.From
	b.logger.Infof("Bot was added to new group '%s' (%d) by %s (%d).",
		chat.Title, chat.ID, userName(addedBy), userID(addedBy))

	b.notifyAdmins("new group", fmt.Sprintf(
		"🔼 New Group Joined 🔼\n"+
			"I have been added to a new group.\n"+
			"Group Name: %s\n"+
			"Group ID: %d\n"+
			"Added By: @%s",
		chat.Title, chat.ID, usernameOrNA(addedBy)))
}

func (b *Bot) onLeftChatMember(msg *tgbotapi.Message) {
	if msg.LeftChatMember.ID != b.selfID {
		return
	}

	chat := msg.Chat
	removedBy := msg.From
	b.logger.Infof("Bot was removed from group '%s' (%d) by %s (%d).",
		chat.Title, chat.ID, userName(removedBy), userID(removedBy))

	b.notifyAdmins("group leave", fmt.Sprintf(
		"🔽 Removed From Group 🔽\n"+
			"I have been removed from a group.\n"+
			"Group Name: %s\n"+
			"Group ID: %d\n"+
			"Removed By: @%s",
		chat.Title, chat.ID, usernameOrNA(removedBy)))
}

func (b *Bot) notifyAdmins(kind, text string) {
	adminIDs := b.lists.AllowedUserIDs()
	if len(adminIDs) == 0 {
		b.logger.Warnf("No admin IDs are configured to receive the '%s' notification.", kind)
		return
	}

	for _, adminID := range adminIDs {
		if _, err := b.api.Send(tgbotapi.NewMessage(adminID, text)); err != nil {
			b.logger.WithError(err).Errorf("Failed to send '%s' notification to admin %d", kind, adminID)
		}
	}
}

func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	days := total / 86400
	remainder := total % 86400
	hours := remainder / 3600
	remainder %= 3600
	minutes := remainder / 60
	seconds := remainder % 60
	return fmt.Sprintf("%dd, %dh, %dm, %ds", days, hours, minutes, seconds)
}
