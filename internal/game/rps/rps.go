// Package rps implements rock-paper-scissors between two players in a group.
package rps

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/model"
)

// Choice is a hand.
type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
)

// Choices in button order.
var Choices = []Choice{Rock, Paper, Scissors}

var beats = map[Choice]Choice{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

var emoji = map[Choice]string{
	Rock:     "🪨",
	Paper:    "📄",
	Scissors: "✂️",
}

// ParseChoice accepts a choice name in any case.
func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := beats[c]; !ok {
		return "", fmt.Errorf("%w: %q", game.ErrInvalidChoice, s)
	}
	return c, nil
}

// Verdict is the result of a pairing from the first player's side.
type Verdict int

const (
	Invalid Verdict = iota
	FirstWins
	SecondWins
	Draw
)

// Decide applies rock > scissors > paper > rock.
func Decide(a, b Choice) Verdict {
	_, okA := beats[a]
	_, okB := beats[b]
	switch {
	case !okA || !okB:
		return Invalid
	case a == b:
		return Draw
	case beats[a] == b:
		return FirstWins
	default:
		return SecondWins
	}
}

// Game is the rock-paper-scissors state machine.
type Game struct {
	env *game.Env
}

// New creates an rps game bound to env.
func New(env *game.Env) *Game {
	return &Game{env: env}
}

func (g *Game) Type() model.GameType { return model.GameRPS }

func (g *Game) Command() string { return "startrps" }

func (g *Game) Description() string {
	return "Rock-paper-scissors against another player, winner takes the pot"
}

func (g *Game) GroupOnly() bool { return true }

// Start opens a game and waits for an opponent until the join timeout.
func (g *Game) Start(ctx context.Context, chatID int64, p game.Player, bet int64) (*model.GameSession, error) {
	s, err := g.env.Open(ctx, model.GameRPS, chatID, p, bet, model.StatusWaitingOpponent)
	if err != nil {
		return nil, err
	}

	g.env.Show(ctx, s, lobbyText(s), game.LobbyButtons(s.ID))
	g.env.Clock.AfterFunc(g.env.Rules.JoinTimeout, func() {
		g.expire(context.Background(), s.ID)
	})
	return s, nil
}

// Join seats the opponent and opens the choice round.
func (g *Game) Join(ctx context.Context, gameID string, p game.Player) error {
	s, err := g.env.Seat(ctx, gameID, p, model.StatusWaitingChoices)
	if err != nil {
		return err
	}
	g.env.Show(ctx, s, choosingText(s), choiceButtons(s.ID))
	return nil
}

// Cancel withdraws an unjoined game and refunds the starter.
func (g *Game) Cancel(ctx context.Context, gameID string, userID int64) error {
	s, _, err := g.env.Abort(ctx, gameID, game.CancelGuard(userID), "cancelled")
	if err != nil {
		return err
	}
	g.env.Show(ctx, s, fmt.Sprintf("✊ Rock-Paper-Scissors cancelled by %s. Bet of %d refunded.", game.Mention(s.Initiator()), s.Bet), nil)
	return nil
}

// Choose records a participant's hand and resolves once both are in.
func (g *Game) Choose(ctx context.Context, gameID string, userID int64, raw string) error {
	choice, err := ParseChoice(raw)
	if err != nil {
		return err
	}

	s, err := g.env.Table.Update(gameID, func(s *model.GameSession) error {
		i := s.Participant(userID)
		if i < 0 {
			return game.ErrNotParticipant
		}
		if s.Status != model.StatusWaitingChoices {
			return game.ErrWrongState
		}
		if s.Participants[i].Choice != "" {
			return game.ErrAlreadyChosen
		}
		for _, p := range s.Participants {
			if !p.Charged {
				return game.ErrWrongState
			}
		}
		s.Participants[i].Choice = string(choice)
		if bothChosen(s) {
			s.Status = model.StatusResolved
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.Status != model.StatusResolved {
		g.env.Show(ctx, s, choosingText(s), choiceButtons(s.ID))
		return nil
	}

	s, err = g.env.Table.RemoveIf(gameID, game.StatusGuard(model.StatusResolved))
	if err != nil {
		return err
	}
	g.settle(ctx, s)
	return nil
}

func (g *Game) settle(ctx context.Context, s *model.GameSession) {
	first, second := s.Participants[0], s.Participants[1]
	a, b := Choice(first.Choice), Choice(second.Choice)

	var text, outcome string
	switch Decide(a, b) {
	case FirstWins:
		g.env.Pay(ctx, s, first.UserID, 2*s.Bet, model.TxWin)
		outcome = "resolved"
		text = fmt.Sprintf("🏆 %s wins %d.", game.Mention(first), 2*s.Bet)
	case SecondWins:
		g.env.Pay(ctx, s, second.UserID, 2*s.Bet, model.TxWin)
		outcome = "resolved"
		text = fmt.Sprintf("🏆 %s wins %d.", game.Mention(second), 2*s.Bet)
	case Draw:
		g.env.Refund(ctx, s)
		outcome = "draw"
		text = fmt.Sprintf("🤝 Draw! Both players get %d back.", s.Bet)
	default:
		log.Warn().
			Str("game_id", s.ID).
			Str("first", first.Choice).
			Str("second", second.Choice).
			Msg("Unresolvable rps pairing, refunding both players")
		g.env.Refund(ctx, s)
		outcome = "invalid"
		text = "⚠️ Something went wrong resolving this round. Both bets were refunded."
	}

	g.env.Finish(ctx, s, outcome)
	g.env.Show(ctx, s, fmt.Sprintf("✊ Rock-Paper-Scissors\n\n%s %s vs %s %s\n\n%s",
		game.Mention(first), emoji[a], emoji[b], game.Mention(second), text), nil)
}

func (g *Game) expire(ctx context.Context, gameID string) {
	s, _, err := g.env.Abort(ctx, gameID, game.StatusGuard(model.StatusWaitingOpponent), "expired")
	if err != nil {
		return
	}
	g.env.Show(ctx, s, fmt.Sprintf("⌛ Rock-Paper-Scissors expired, nobody joined. %s got %d back.", game.Mention(s.Initiator()), s.Bet), nil)
}

func bothChosen(s *model.GameSession) bool {
	if len(s.Participants) < 2 {
		return false
	}
	for _, p := range s.Participants {
		if p.Choice == "" {
			return false
		}
	}
	return true
}

func lobbyText(s *model.GameSession) string {
	return fmt.Sprintf("✊ Rock-Paper-Scissors\n\n%s challenges the chat for %d.\nPress Join to match the bet.",
		game.Mention(s.Initiator()), s.Bet)
}

func choosingText(s *model.GameSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✊ Rock-Paper-Scissors for %d each\n\n", s.Bet)
	for _, p := range s.Participants {
		mark := "🤔 choosing..."
		if p.Choice != "" {
			mark = "✅ ready"
		}
		fmt.Fprintf(&b, "%s: %s\n", game.Mention(p), mark)
	}
	return b.String()
}

func choiceButtons(gameID string) [][]game.Button {
	row := make([]game.Button, 0, len(Choices))
	for _, c := range Choices {
		row = append(row, game.Button{
			Text: emoji[c] + " " + strings.ToUpper(string(c[:1])) + string(c[1:]),
			Data: game.Payload(game.ActionRPSChoose, gameID, string(c)),
		})
	}
	return [][]game.Button{row}
}
