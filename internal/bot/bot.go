// Package bot connects the dispatcher to Telegram through telebot.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/config"
	"telegram-casino-bot/internal/handler"
)

// Bot wraps the telebot instance.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config
}

// New creates the telebot client with a long poller. It contacts Telegram
// to resolve the bot's own account.
func New(cfg *config.Config) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Bot.PollTimeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{bot: teleBot, cfg: cfg}, nil
}

// API exposes the client for sending and editing messages.
func (b *Bot) API() *tele.Bot {
	return b.bot
}

// Username is the bot's @name without the at sign.
func (b *Bot) Username() string {
	if b.bot.Me == nil {
		return ""
	}
	return b.bot.Me.Username
}

// Mount registers middleware and routes every update to d.
func (b *Bot) Mount(d *handler.Dispatcher) {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())

	admin := b.bot.Group()
	admin.Use(AdminMiddleware(b.cfg))
	admin.Handle("/sweep", func(c tele.Context) error {
		return d.HandleSweep(context.Background(), EventOf(c), responder{c})
	})

	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return d.HandleCommand(context.Background(), EventOf(c), responder{c})
	})
	b.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		return d.HandleCallback(context.Background(), EventOf(c), responder{c})
	})
}

// Start polls until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.Username()).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops polling.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// EventOf normalizes a telebot update.
func EventOf(c tele.Context) handler.Event {
	var ev handler.Event
	if u := c.Sender(); u != nil {
		ev.SenderID = u.ID
		ev.SenderName = senderName(u)
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
		ev.ChatTitle = chat.Title
		ev.IsGroup = chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup
	}
	if m := c.Message(); m != nil {
		ev.MessageID = m.ID
	}
	if cb := c.Callback(); cb != nil {
		// telebot prefixes unique-keyed button data with \f
		ev.Data = strings.TrimPrefix(cb.Data, "\f")
	} else {
		ev.Text = c.Text()
	}
	return ev
}

func senderName(u *tele.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type responder struct {
	c tele.Context
}

func (r responder) Reply(text string) error {
	if r.c.Callback() != nil {
		return r.c.Send(text)
	}
	return r.c.Reply(text)
}

func (r responder) Answer(text string) error {
	if r.c.Callback() == nil {
		if text == "" {
			return nil
		}
		return r.c.Reply(text)
	}
	return r.c.Respond(&tele.CallbackResponse{Text: text})
}
