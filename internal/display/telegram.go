// Package display renders game cards as Telegram messages with inline
// keyboards.
package display

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/game"
)

// Sender is the part of *tele.Bot the sink needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram renders cards through the Bot API.
type Telegram struct {
	api Sender
}

// NewTelegram creates a Telegram sink.
func NewTelegram(api Sender) *Telegram {
	return &Telegram{api: api}
}

// Render edits the card's message in place, or posts a new one when there
// is nothing to edit or the edit fails.
func (t *Telegram) Render(_ context.Context, card game.Card) (int, error) {
	var opts []interface{}
	if markup := keyboard(card.Buttons); markup != nil {
		opts = append(opts, markup)
	}

	if card.MessageID != 0 {
		target := tele.StoredMessage{MessageID: strconv.Itoa(card.MessageID), ChatID: card.ChatID}
		_, err := t.api.Edit(target, card.Text, opts...)
		if err == nil || notModified(err) {
			return card.MessageID, nil
		}
		log.Warn().Err(err).
			Int64("chat_id", card.ChatID).
			Int("message_id", card.MessageID).
			Msg("Failed to edit game card, sending a new one")
	}

	msg, err := t.api.Send(tele.ChatID(card.ChatID), card.Text, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to send game card: %w", err)
	}
	return msg.ID, nil
}

// Notify posts a plain message.
func (t *Telegram) Notify(_ context.Context, chatID int64, text string) error {
	if _, err := t.api.Send(tele.ChatID(chatID), text); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

func keyboard(rows [][]game.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

// Telegram answers an edit with identical content with an error; the card
// already shows what we wanted.
func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
