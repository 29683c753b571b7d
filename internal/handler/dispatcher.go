// Package handler turns chat commands and button presses into game actions
// and maps their results to replies.
package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/reaper"
)

// Event is a normalized incoming message or button press. Text is set for
// commands and Data for callbacks.
type Event struct {
	SenderID   int64
	SenderName string
	ChatID     int64
	ChatTitle  string
	IsGroup    bool
	MessageID  int
	Text       string
	Data       string
}

// Responder answers the event's sender.
type Responder interface {
	// Reply posts a message in the chat.
	Reply(text string) error
	// Answer acknowledges a button press; an empty text just stops the spinner.
	Answer(text string) error
}

// Accounts is the ledger surface the dispatcher uses.
type Accounts interface {
	GetOrCreateAccount(ctx context.Context, userID int64, displayName string) (*model.Account, bool, error)
	Stats(ctx context.Context, userID, chatID int64) (*model.ChatStats, error)
}

// Groups is the group session registry surface the dispatcher uses.
type Groups interface {
	GetOrCreateSession(ctx context.Context, chatID int64, title string) (*model.GroupSession, error)
}

// Chooser records rock-paper-scissors hands.
type Chooser interface {
	Choose(ctx context.Context, gameID string, userID int64, choice string) error
}

// Escalator drives Dice Escalator turns.
type Escalator interface {
	RequestRoll(ctx context.Context, gameID string, userID int64) error
	CashOut(ctx context.Context, gameID string, userID int64) error
}

// Sweeper runs an on-demand reaper pass.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) reaper.Report
}

// Dependencies wires a Dispatcher.
type Dependencies struct {
	Accounts  Accounts
	Groups    Groups
	Games     *game.Registry
	Table     *game.Table
	RPS       Chooser
	Escalator Escalator
	Sweeper   Sweeper
	Rules     game.Rules
	// BotName is the bot's username; commands addressed to other bots are
	// ignored.
	BotName string
	Now     func() time.Time
}

// Dispatcher routes events.
type Dispatcher struct {
	deps Dependencies
}

// New creates a Dispatcher.
func New(deps Dependencies) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Dispatcher{deps: deps}
}

// HandleCommand handles a slash command.
func (d *Dispatcher) HandleCommand(ctx context.Context, ev Event, r Responder) error {
	cmd, args, ok := d.parseCommand(ev.Text)
	if !ok {
		return nil
	}
	log.Debug().
		Str("command", cmd).
		Int64("user_id", ev.SenderID).
		Int64("chat_id", ev.ChatID).
		Msg("Routing command")

	switch cmd {
	case "start", "help":
		return r.Reply(d.helpText())
	case "balance":
		return d.balance(ctx, ev, r)
	}

	g, ok := d.deps.Games.Get(cmd)
	if !ok {
		return nil
	}
	return d.startGame(ctx, g, args, ev, r)
}

func (d *Dispatcher) startGame(ctx context.Context, g game.Game, args []string, ev Event, r Responder) error {
	if g.GroupOnly() && !ev.IsGroup {
		return r.Reply(fmt.Sprintf("👥 %s can only be played in a group chat.", g.Type().Label()))
	}

	bet, err := parseBet(args)
	if err != nil {
		return r.Reply(fmt.Sprintf("Usage: /%s <bet>\nThe bet must be a whole number between %d and %d.",
			g.Command(), d.deps.Rules.MinBet, d.deps.Rules.MaxBet))
	}

	p, err := d.enter(ctx, ev)
	if err != nil {
		return r.Reply(d.describe(err, ev))
	}

	if _, err := g.Start(ctx, ev.ChatID, p, bet); err != nil {
		return r.Reply(d.describe(err, ev))
	}
	return nil
}

func (d *Dispatcher) balance(ctx context.Context, ev Event, r Responder) error {
	acct, _, err := d.deps.Accounts.GetOrCreateAccount(ctx, ev.SenderID, ev.SenderName)
	if err != nil {
		return r.Reply(d.describe(err, ev))
	}

	text := fmt.Sprintf("💰 %s, your balance is %d chips.", displayName(ev), acct.Balance)
	if ev.IsGroup {
		st, err := d.deps.Accounts.Stats(ctx, ev.SenderID, ev.ChatID)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", ev.SenderID).Msg("Failed to load chat stats")
		} else {
			text += fmt.Sprintf("\n\nIn this chat: %d games, %d wagered, net %+d.",
				st.GamesPlayed, st.TotalWagered, st.Net)
		}
	}
	return r.Reply(text)
}

// HandleCallback handles an inline button press.
func (d *Dispatcher) HandleCallback(ctx context.Context, ev Event, r Responder) error {
	action, params := game.ParsePayload(ev.Data)
	log.Debug().
		Str("action", action).
		Strs("params", params).
		Int64("user_id", ev.SenderID).
		Msg("Routing callback")

	var (
		ack string
		err error
	)
	switch action {
	case game.ActionJoin, game.ActionCancel:
		if len(params) < 1 {
			return r.Answer("")
		}
		ack, err = d.lobbyAction(ctx, action, params[0], ev)
	case game.ActionRPSChoose:
		if len(params) < 2 {
			return r.Answer("")
		}
		if _, err = d.enter(ctx, ev); err == nil {
			err = d.deps.RPS.Choose(ctx, params[0], ev.SenderID, params[1])
			ack = "✅ Choice locked in"
		}
	case game.ActionRoll:
		if len(params) < 1 {
			return r.Answer("")
		}
		if _, err = d.enter(ctx, ev); err == nil {
			err = d.deps.Escalator.RequestRoll(ctx, params[0], ev.SenderID)
			ack = "🎲 Rolling..."
		}
	case game.ActionCashOut:
		if len(params) < 1 {
			return r.Answer("")
		}
		if _, err = d.enter(ctx, ev); err == nil {
			err = d.deps.Escalator.CashOut(ctx, params[0], ev.SenderID)
			ack = "💰 Cashed out"
		}
	default:
		log.Warn().Str("data", ev.Data).Int64("user_id", ev.SenderID).Msg("Unknown callback action")
		return r.Answer("")
	}

	if err != nil {
		return r.Answer(d.describe(err, ev))
	}
	return r.Answer(ack)
}

func (d *Dispatcher) lobbyAction(ctx context.Context, action, gameID string, ev Event) (string, error) {
	s, ok := d.deps.Table.Snapshot(gameID)
	if !ok {
		return "", game.ErrGameNotFound
	}
	g, ok := d.deps.Games.ByType(s.Type)
	if !ok {
		return "", fmt.Errorf("no game registered for type %q", s.Type)
	}
	lobby, ok := g.(game.Lobby)
	if !ok {
		return "", game.ErrWrongState
	}

	p, err := d.enter(ctx, ev)
	if err != nil {
		return "", err
	}
	if action == game.ActionJoin {
		return "✅ You're in!", lobby.Join(ctx, gameID, p)
	}
	return "Game cancelled", lobby.Cancel(ctx, gameID, p.ID)
}

// HandleSweep runs the reaper immediately and reports what it removed.
func (d *Dispatcher) HandleSweep(ctx context.Context, ev Event, r Responder) error {
	rep := d.deps.Sweeper.Sweep(ctx, d.deps.Now())
	log.Info().Int64("admin_id", ev.SenderID).Msg("Manual sweep requested")
	return r.Reply(fmt.Sprintf("🧹 Sweep done: %d stale games removed, %d refunds, %d stuck chats released, %d idle groups cleared.",
		rep.GamesRemoved, rep.Refunds, rep.ChatsReleased, rep.GroupsRemoved))
}

// enter makes sure the sender has an account and the chat has a session.
func (d *Dispatcher) enter(ctx context.Context, ev Event) (game.Player, error) {
	acct, _, err := d.deps.Accounts.GetOrCreateAccount(ctx, ev.SenderID, ev.SenderName)
	if err != nil {
		return game.Player{}, err
	}
	if _, err := d.deps.Groups.GetOrCreateSession(ctx, ev.ChatID, ev.ChatTitle); err != nil {
		return game.Player{}, err
	}
	return game.Player{ID: acct.UserID, Name: displayName(ev)}, nil
}

// parseCommand splits "/Cmd@bot arg..." into a lower-case command and its
// arguments. Commands addressed to another bot are not ok.
func (d *Dispatcher) parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	cmd := strings.TrimPrefix(fields[0], "/")
	if name, target, found := strings.Cut(cmd, "@"); found {
		if d.deps.BotName != "" && !strings.EqualFold(target, d.deps.BotName) {
			return "", nil, false
		}
		cmd = name
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

func parseBet(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing bet")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func (d *Dispatcher) helpText() string {
	var b strings.Builder
	b.WriteString("🎰 Casino bot\n\n/balance - show your chips\n")
	for _, g := range d.deps.Games.List() {
		fmt.Fprintf(&b, "/%s <bet> - %s", g.Command(), g.Description())
		if g.GroupOnly() {
			b.WriteString(" (groups only)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nBets range from %d to %d chips.", d.deps.Rules.MinBet, d.deps.Rules.MaxBet)
	return b.String()
}

func displayName(ev Event) string {
	if ev.SenderName != "" {
		return ev.SenderName
	}
	return fmt.Sprintf("player %d", ev.SenderID)
}
