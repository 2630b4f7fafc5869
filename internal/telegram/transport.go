// ===============================
// internal/telegram/transport.go - Telegram API Access
// ===============================

package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// Transport is the slice of the Telegram API the delivery engine needs.
// Narrow on purpose so tests can substitute a fake.
type Transport interface {
	// CopyMessage re-sends one message from a source chat to a target chat
	// as a fresh message, carrying no forwarded-from header.
	CopyMessage(ctx context.Context, targetChatID, sourceChatID int64, messageID int) error

	// SendText sends a plain notification to a chat.
	SendText(ctx context.Context, chatID int64, text string) error
}

// BotTransport adapts a live bot to the Transport interface, translating
// Telegram API failures into the shared error taxonomy.
type BotTransport struct {
	bot *tele.Bot
}

func NewBotTransport(bot *tele.Bot) *BotTransport {
	return &BotTransport{bot: bot}
}

func (t *BotTransport) CopyMessage(ctx context.Context, targetChatID, sourceChatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    sourceChatID,
	}
	_, err := t.bot.Copy(tele.ChatID(targetChatID), src)
	return ClassifyError(err)
}

func (t *BotTransport) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(tele.ChatID(chatID), text)
	return ClassifyError(err)
}

// ExtractForwardProvenance pulls the originating channel and message ID off
// a forwarded message. ok is false when the message was not forwarded from
// a channel, or the forward header was stripped.
func ExtractForwardProvenance(msg *tele.Message) (channelID int64, messageID int, ok bool) {
	if msg == nil || msg.OriginalChat == nil || msg.OriginalMessageID == 0 {
		return 0, 0, false
	}
	return msg.OriginalChat.ID, msg.OriginalMessageID, true
}

// ClassifyError folds raw Telegram API errors into the shared taxonomy:
// flood waits become RateLimitedError, a missing source message becomes
// ErrNotFound, permission failures ErrUnauthorized, a dead target chat
// ErrUnreachable. Anything unrecognized passes through untouched.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &models.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}

	switch {
	case errors.Is(err, tele.ErrNotFoundToForward),
		errors.Is(err, tele.ErrNotFoundToReply):
		return models.ErrNotFound
	case errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated):
		return models.ErrUnreachable
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 403:
			return models.ErrUnauthorized
		case 400:
			if strings.Contains(apiErr.Description, "not found") {
				return models.ErrNotFound
			}
		}
	}
	return err
}
