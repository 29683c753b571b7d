// Package coinflip implements the two-player coin toss: the starter takes
// heads, the joiner takes tails, and the winner collects both stakes.
package coinflip

import (
	"context"
	"fmt"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/model"
)

const (
	Heads = "heads"
	Tails = "tails"
)

// Game is the coinflip state machine.
type Game struct {
	env *game.Env
}

// New creates a coinflip game bound to env.
func New(env *game.Env) *Game {
	return &Game{env: env}
}

func (g *Game) Type() model.GameType { return model.GameCoinflip }

func (g *Game) Command() string { return "startcoinflip" }

func (g *Game) Description() string {
	return "Bet against another player on a coin toss, winner takes the pot"
}

func (g *Game) GroupOnly() bool { return false }

// Start opens a game and waits for an opponent until the join timeout.
func (g *Game) Start(ctx context.Context, chatID int64, p game.Player, bet int64) (*model.GameSession, error) {
	s, err := g.env.Open(ctx, model.GameCoinflip, chatID, p, bet, model.StatusWaitingOpponent)
	if err != nil {
		return nil, err
	}

	g.env.Show(ctx, s, lobbyText(s), game.LobbyButtons(s.ID))
	g.env.Clock.AfterFunc(g.env.Rules.JoinTimeout, func() {
		g.expire(context.Background(), s.ID)
	})
	return s, nil
}

// Join seats the opponent, charges them and flips.
func (g *Game) Join(ctx context.Context, gameID string, p game.Player) error {
	if _, err := g.env.Seat(ctx, gameID, p, model.StatusPlaying); err != nil {
		return err
	}

	s, err := g.env.Table.RemoveIf(gameID, func(s *model.GameSession) error {
		if s.Status != model.StatusPlaying {
			return game.ErrWrongState
		}
		s.Status = model.StatusResolved
		s.Participants[0].Side = Heads
		s.Participants[1].Side = Tails
		return nil
	})
	if err != nil {
		return err
	}

	side := Heads
	winner := s.Participants[0]
	if g.env.Rand(2) == 1 {
		side = Tails
		winner = s.Participants[1]
	}
	g.env.Pay(ctx, s, winner.UserID, 2*s.Bet, model.TxWin)
	g.env.Finish(ctx, s, "resolved")
	g.env.Show(ctx, s, resultText(s, side, winner), nil)
	return nil
}

// Cancel withdraws an unjoined game and refunds the starter.
func (g *Game) Cancel(ctx context.Context, gameID string, userID int64) error {
	s, _, err := g.env.Abort(ctx, gameID, game.CancelGuard(userID), "cancelled")
	if err != nil {
		return err
	}
	g.env.Show(ctx, s, fmt.Sprintf("🪙 Coinflip cancelled by %s. Bet of %d refunded.", game.Mention(s.Initiator()), s.Bet), nil)
	return nil
}

func (g *Game) expire(ctx context.Context, gameID string) {
	s, _, err := g.env.Abort(ctx, gameID, game.StatusGuard(model.StatusWaitingOpponent), "expired")
	if err != nil {
		return
	}
	g.env.Show(ctx, s, fmt.Sprintf("⌛ Coinflip expired, nobody joined. %s got %d back.", game.Mention(s.Initiator()), s.Bet), nil)
}

func lobbyText(s *model.GameSession) string {
	return fmt.Sprintf("🪙 Coinflip\n\n%s bets %d on heads.\nPress Join to take tails and match the bet.",
		game.Mention(s.Initiator()), s.Bet)
}

func resultText(s *model.GameSession, side string, winner model.Participant) string {
	return fmt.Sprintf("🪙 Coinflip\n\n%s (heads) vs %s (tails)\nThe coin shows %s!\n\n🏆 %s wins %d.",
		game.Mention(s.Participants[0]), game.Mention(s.Participants[1]), side, game.Mention(winner), 2*s.Bet)
}
