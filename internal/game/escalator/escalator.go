// Package escalator implements Dice Escalator, a single-player push-your-luck
// game. Each roll adds to the pot until the player cashes out or rolls the
// bust value; dice come from the external roll service.
package escalator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/metrics"
	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/oracle"
)

// BustValue ends the player's run and forfeits the bet.
const BustValue = 1

// ErrInvalidRoll is returned by ResolveRoll for a value no die can show.
var ErrInvalidRoll = errors.New("invalid roll value")

// Oracle requests rolls, waits for them, and drops requests nobody will
// read.
type Oracle interface {
	Request(ctx context.Context, gameID string, chatID, userID int64) error
	Await(ctx context.Context, gameID string, stillWaiting func() bool) oracle.Result
	Discard(ctx context.Context, gameID string) error
}

// Game is the Dice Escalator state machine.
type Game struct {
	env           *game.Env
	oracle        Oracle
	houseMaxRolls int
	pace          time.Duration

	wg sync.WaitGroup
}

// New creates a Dice Escalator bound to env. The house rolls at most
// houseMaxRolls times after a cash-out, pausing pace before each roll.
func New(env *game.Env, o Oracle, houseMaxRolls int, pace time.Duration) *Game {
	return &Game{env: env, oracle: o, houseMaxRolls: houseMaxRolls, pace: pace}
}

func (g *Game) Type() model.GameType { return model.GameEscalator }

func (g *Game) Command() string { return "startdiceescalator" }

func (g *Game) Description() string {
	return "Roll to grow the pot, cash out before you hit a 1"
}

func (g *Game) GroupOnly() bool { return true }

// Start charges the bet and prompts for the first roll.
func (g *Game) Start(ctx context.Context, chatID int64, p game.Player, bet int64) (*model.GameSession, error) {
	s, err := g.env.Open(ctx, model.GameEscalator, chatID, p, bet, model.StatusPromptAction)
	if err != nil {
		return nil, err
	}
	g.env.Show(ctx, s, promptText(s, 0), controls(s.ID))
	return s, nil
}

// RequestRoll asks the roll service for a die and waits for it in the
// background.
func (g *Game) RequestRoll(ctx context.Context, gameID string, userID int64) error {
	s, err := g.env.Table.Update(gameID, func(s *model.GameSession) error {
		if s.InitiatorID != userID {
			return game.ErrNotInitiator
		}
		if s.Status != model.StatusPromptAction {
			return game.ErrWrongState
		}
		s.Status = model.StatusWaitingForRoll
		return nil
	})
	if err != nil {
		return err
	}

	g.env.Show(ctx, s, fmt.Sprintf("🎲 Dice Escalator\n\n%s is rolling...\nCurrent score: %d",
		game.Mention(s.Initiator()), s.Score), nil)

	if err := g.oracle.Request(ctx, s.ID, s.ChatID, userID); err != nil {
		log.Error().Err(err).Str("game_id", s.ID).Msg("Failed to request roll")
		g.revert(ctx, s.ID, "⚠️ The dice service is unavailable right now, try again.")
		return game.ErrRollUnavailable
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.await(context.WithoutCancel(ctx), s)
	}()
	return nil
}

func (g *Game) await(ctx context.Context, s *model.GameSession) {
	res := g.oracle.Await(ctx, s.ID, func() bool {
		cur, ok := g.env.Table.Snapshot(s.ID)
		return ok && cur.Status == model.StatusWaitingForRoll && cur.InitiatorID == s.InitiatorID
	})
	metrics.RollOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	switch res.Outcome {
	case oracle.OutcomeCompleted:
		if err := g.ResolveRoll(ctx, s.ID, res.Value); err != nil && !errors.Is(err, ErrInvalidRoll) {
			log.Warn().Err(err).Str("game_id", s.ID).Int("value", res.Value).Msg("Roll arrived for a game that moved on")
		}
	case oracle.OutcomeAbandoned:
		if !g.env.Table.Has(s.ID) {
			g.discard(ctx, s.ID)
		}
	default:
		log.Warn().
			Str("game_id", s.ID).
			Str("outcome", res.Outcome.String()).
			Int("attempts", res.Attempts).
			Msg("Roll did not complete")
		// a storage error leaves the row for the next request to overwrite
		if res.Outcome == oracle.OutcomeTimedOut {
			g.discard(ctx, s.ID)
		}
		g.revert(ctx, s.ID, "⚠️ The dice never landed. Your score is safe, try rolling again.")
	}
}

// ResolveRoll applies a die value to a game waiting for one.
func (g *Game) ResolveRoll(ctx context.Context, gameID string, value int) error {
	if value < 1 || value > 6 {
		log.Warn().Str("game_id", gameID).Int("value", value).Msg("Roll service returned an impossible value")
		g.revert(ctx, gameID, "⚠️ The dice service returned a bad roll, try again.")
		return fmt.Errorf("%w: %d", ErrInvalidRoll, value)
	}

	if value == BustValue {
		s, err := g.env.Table.RemoveIf(gameID, func(s *model.GameSession) error {
			if s.Status != model.StatusWaitingForRoll {
				return game.ErrWrongState
			}
			s.Status = model.StatusPlayerBust
			return nil
		})
		if err != nil {
			return err
		}
		g.env.Finish(ctx, s, "bust")
		g.discard(ctx, s.ID)
		g.env.Show(ctx, s, fmt.Sprintf("🎲 Dice Escalator\n\n%s rolled a %d. 💥 Bust!\nThe bet of %d is lost.",
			game.Mention(s.Initiator()), value, s.Bet), nil)
		return nil
	}

	s, err := g.env.Table.Update(gameID, func(s *model.GameSession) error {
		if s.Status != model.StatusWaitingForRoll {
			return game.ErrWrongState
		}
		s.Score += int64(value)
		s.Status = model.StatusPromptAction
		return nil
	})
	if err != nil {
		return err
	}
	g.env.Show(ctx, s, promptText(s, value), controls(s.ID))
	return nil
}

// CashOut pays bet plus score and hands the table to the house.
func (g *Game) CashOut(ctx context.Context, gameID string, userID int64) error {
	s, err := g.env.Table.Update(gameID, func(s *model.GameSession) error {
		if s.InitiatorID != userID {
			return game.ErrNotInitiator
		}
		if s.Status != model.StatusPromptAction {
			return game.ErrWrongState
		}
		if s.Score <= 0 {
			return game.ErrNothingToCashOut
		}
		s.Status = model.StatusCashedOut
		return nil
	})
	if err != nil {
		return err
	}

	payout := s.Bet + s.Score
	if _, err := g.env.Ledger.AdjustBalance(ctx, userID, payout, model.TxCashout, s.ChatID); err != nil {
		log.Error().Err(err).Str("game_id", s.ID).Int64("payout", payout).Msg("Failed to pay cash-out")
		if _, revertErr := g.env.Table.Update(gameID, func(cur *model.GameSession) error {
			if cur.Status != model.StatusCashedOut {
				return game.ErrWrongState
			}
			cur.Status = model.StatusPromptAction
			return nil
		}); revertErr != nil {
			log.Warn().Err(revertErr).Str("game_id", s.ID).Msg("Failed to reopen game after cash-out failure")
		}
		return err
	}

	s, err = g.env.Table.Update(gameID, func(cur *model.GameSession) error {
		if cur.Status != model.StatusCashedOut {
			return game.ErrWrongState
		}
		cur.Status = model.StatusBotTurn
		return nil
	})
	if err != nil {
		// paid already; whoever took the session owns its cleanup
		return nil
	}

	g.env.Show(ctx, s, fmt.Sprintf("🎲 Dice Escalator\n\n💰 %s cashed out %d!\n🤖 The house is rolling...",
		game.Mention(s.Initiator()), payout), nil)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.houseTurn(context.WithoutCancel(ctx), s)
	}()
	return nil
}

// houseTurn plays the house's rolls for show. The player's payout is
// already settled and does not depend on it.
func (g *Game) houseTurn(ctx context.Context, s *model.GameSession) {
	var rolls []int
	house := int64(0)
	busted := false

	for i := 0; i < g.houseMaxRolls && house <= s.Score; i++ {
		if err := g.env.Clock.Sleep(ctx, g.pace); err != nil {
			break
		}
		v := g.env.Rand(6) + 1
		rolls = append(rolls, v)
		if v == BustValue {
			house = 0
			busted = true
			break
		}
		house += int64(v)
	}

	over, err := g.env.Table.RemoveIf(s.ID, func(cur *model.GameSession) error {
		if cur.Status != model.StatusBotTurn {
			return game.ErrWrongState
		}
		cur.Status = model.StatusGameOver
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("game_id", s.ID).Msg("House turn finished on a game that moved on")
		return
	}
	g.env.Finish(ctx, over, "cashed_out")
	g.discard(ctx, over.ID)
	g.env.Show(ctx, over, houseText(over, rolls, house, busted), nil)
}

// revert puts a game waiting on a roll back to the action prompt and tells
// the chat why.
func (g *Game) revert(ctx context.Context, gameID, notice string) {
	s, err := g.env.Table.Update(gameID, func(s *model.GameSession) error {
		if s.Status != model.StatusWaitingForRoll {
			return game.ErrWrongState
		}
		s.Status = model.StatusPromptAction
		return nil
	})
	if err != nil {
		return
	}
	g.env.Notify(ctx, s.ChatID, notice)
	g.env.Show(ctx, s, promptText(s, 0), controls(s.ID))
}

// discard drops any roll request still stored for gameID.
func (g *Game) discard(ctx context.Context, gameID string) {
	if err := g.oracle.Discard(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("Failed to discard roll request")
	}
}

// Wait blocks until background roll waits and house turns are done.
func (g *Game) Wait() {
	g.wg.Wait()
}

func controls(gameID string) [][]game.Button {
	return [][]game.Button{{
		{Text: "🎲 Roll", Data: game.Payload(game.ActionRoll, gameID)},
		{Text: "💰 Cash out", Data: game.Payload(game.ActionCashOut, gameID)},
	}}
}

func promptText(s *model.GameSession, lastRoll int) string {
	var b strings.Builder
	b.WriteString("🎲 Dice Escalator\n\n")
	if lastRoll > 0 {
		fmt.Fprintf(&b, "%s rolled a %d.\n", game.Mention(s.Initiator()), lastRoll)
	}
	fmt.Fprintf(&b, "Bet: %d\nScore: %d\nCash out now for %d.\n\nRolling a %d busts.",
		s.Bet, s.Score, s.Bet+s.Score, BustValue)
	return b.String()
}

func houseText(s *model.GameSession, rolls []int, house int64, busted bool) string {
	faces := make([]string, len(rolls))
	for i, v := range rolls {
		faces[i] = fmt.Sprint(v)
	}

	var verdict string
	switch {
	case busted:
		verdict = "💥 The house busted."
	case house > s.Score:
		verdict = fmt.Sprintf("🤖 The house beat your %d with %d.", s.Score, house)
	default:
		verdict = fmt.Sprintf("🤖 The house stopped at %d, short of your %d.", house, s.Score)
	}

	return fmt.Sprintf("🎲 Dice Escalator\n\n💰 %s cashed out %d.\nHouse rolls: %s\n%s\n\nGame over.",
		game.Mention(s.Initiator()), s.Bet+s.Score, strings.Join(faces, ", "), verdict)
}
