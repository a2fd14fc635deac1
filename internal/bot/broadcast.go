package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// cmdSend starts a broadcast: the message (or photo caption) after /send
// is previewed together with the group-selection keyboard. Restricted to
// authorized users in private chats.
func (b *Bot) cmdSend(msg *tgbotapi.Message) {
	user := msg.From
	if user == nil || !b.lists.IsAllowedUser(user.ID) {
		b.logger.Warnf("Unauthorized send attempt by user %s (%d).", userName(user), userID(user))
		b.sendText(msg.Chat.ID, "Sorry, you are not authorized to use this command.")
		return
	}
	if !msg.Chat.IsPrivate() {
		b.sendText(msg.Chat.ID, "This command can only be used in a private chat with me.")
		return
	}

	if len(msg.Photo) > 0 {
		caption := captionArguments(msg.Caption)
		// The last entry is the highest resolution Telegram offers.
		photoID := msg.Photo[len(msg.Photo)-1].FileID
		b.setPendingBroadcast(msg.Chat.ID, &pendingBroadcast{isPhoto: true, text: caption, photoID: photoID})
		b.logger.Infof("User %s (%d) initiated photo broadcast with caption: '%s'", user.UserName, user.ID, caption)

		preview := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileID(photoID))
		preview.Caption = fmt.Sprintf("PREVIEW:\n%s\n\nYour photo is ready. Please choose which groups to send it to:", caption)
		preview.ReplyMarkup = broadcastKeyboard()
		if _, err := b.api.Send(preview); err != nil {
			b.logger.WithError(err).Error("Failed to send broadcast preview")
		}
		return
	}

	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		b.sendText(msg.Chat.ID, "Please provide a message to send.\nUsage: /send <your message>")
		return
	}
	b.setPendingBroadcast(msg.Chat.ID, &pendingBroadcast{text: text})
	b.logger.Infof("User %s (%d) initiated broadcast with message: '%s'", user.UserName, user.ID, text)

	preview := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("PREVIEW:\n%s\n\nYour message is ready. Please choose which groups to send it to:", text))
	preview.ReplyMarkup = broadcastKeyboard()
	if _, err := b.api.Send(preview); err != nil {
		b.logger.WithError(err).Error("Failed to send broadcast preview")
	}
}

// handleSendChoice runs the broadcast after a group-selection button.
func (b *Bot) handleSendChoice(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	hasPhoto := len(cb.Message.Photo) > 0

	if cb.From == nil || !b.lists.IsAllowedUser(cb.From.ID) {
		b.logger.Warnf("Unauthorized send attempt by user %s (%d).", userName(cb.From), userID(cb.From))
		b.editBroadcast(chatID, msgID, hasPhoto, "Sorry, you are not authorized to perform this action.")
		return
	}

	pending := b.pendingBroadcastFor(chatID)
	if pending == nil {
		b.editBroadcast(chatID, msgID, hasPhoto, "Error: I've lost the message to send. Please start again with /send.")
		return
	}

	var targets []int64
	var label string
	switch cb.Data {
	case cbSendLargeOnly:
		targets = b.lists.LargeGroupIDs()
		label = "Large Groups"
	case cbSendAll:
		targets = b.lists.AllGroupIDs()
		label = "All Groups"
	default:
		b.editBroadcast(chatID, msgID, hasPhoto, "Invalid selection.")
		return
	}

	b.editBroadcast(chatID, msgID, hasPhoto, fmt.Sprintf("Broadcasting to %d '%s'... Please wait.", len(targets), label))

	successful := 0
	var failedIDs []string
	for _, groupID := range targets {
		if err := b.sendBroadcast(groupID, pending); err != nil {
			failedIDs = append(failedIDs, strconv.FormatInt(groupID, 10))
			b.logger.WithError(err).Errorf("Failed to send message to group %d", groupID)
			continue
		}
		successful++
	}
	b.logger.Infof("Broadcast to '%s' finished: %d sent, %d failed.", label, successful, len(failedIDs))

	confirmation := fmt.Sprintf(
		"Broadcast complete!\n"+
			"Successfully sent to: %d group(s).\n"+
			"Failed to send to: %d group(s).",
		successful, len(failedIDs))
	if len(failedIDs) > 0 {
		confirmation += fmt.Sprintf("\nFailed IDs: %s", strings.Join(failedIDs, ", "))
		confirmation += "\nPlease check logs for errors. I might not be a member or lack permissions in those groups."
	}

	b.editBroadcast(chatID, msgID, hasPhoto, confirmation)
	b.clearPendingBroadcast(chatID)
}

func (b *Bot) handleSendCancel(cb *tgbotapi.CallbackQuery) {
	b.editBroadcast(cb.Message.Chat.ID, cb.Message.MessageID, len(cb.Message.Photo) > 0, "Broadcast canceled.")
	b.clearPendingBroadcast(cb.Message.Chat.ID)
}

func (b *Bot) sendBroadcast(chatID int64, p *pendingBroadcast) error {
	if p.isPhoto {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(p.photoID))
		photo.Caption = p.text
		_, err := b.api.Send(photo)
		return err
	}
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, p.text))
	return err
}

// editBroadcast rewrites the preview message in place; photo previews
// take their text through the caption instead.
func (b *Bot) editBroadcast(chatID int64, msgID int, hasPhoto bool, text string) {
	var edit tgbotapi.Chattable
	if hasPhoto {
		edit = tgbotapi.NewEditMessageCaption(chatID, msgID, text)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, msgID, text)
	}
	if _, err := b.api.Send(edit); err != nil {
		b.logger.WithError(err).Debug("Failed to edit broadcast message")
	}
}

func broadcastKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Large Size Maker Groups", cbSendLargeOnly),
			tgbotapi.NewInlineKeyboardButtonData("All Size Maker Groups", cbSendAll),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", cbCancelSend),
		),
	)
}

// captionArguments extracts the broadcast text from a photo caption that
// starts with /send, tolerating the @botname suffix.
func captionArguments(caption string) string {
	rest := strings.TrimPrefix(caption, "/send")
	if strings.HasPrefix(rest, "@") {
		if i := strings.IndexAny(rest, " \n"); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}
	return strings.TrimSpace(rest)
}
