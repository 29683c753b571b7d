package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/metrics"
	"telegram-casino-bot/internal/model"
)

// Open runs the steps every game start shares: validate the bet, claim the
// chat, charge the initiator and store the session. On any failure nothing
// is left behind.
func (e *Env) Open(ctx context.Context, typ model.GameType, chatID int64, p Player, bet int64, status model.GameStatus) (*model.GameSession, error) {
	if err := e.Rules.ValidateBet(bet); err != nil {
		return nil, err
	}

	now := e.Clock.Now()
	s := &model.GameSession{
		ID:          NewID(now),
		Type:        typ,
		ChatID:      chatID,
		InitiatorID: p.ID,
		Bet:         bet,
		Participants: []model.Participant{
			{UserID: p.ID, Name: p.Name},
		},
		Status:    status,
		CreatedAt: now,
	}

	if err := e.Claims.TryStartGame(ctx, chatID, model.ActiveGame{GameID: s.ID, Type: typ, Bet: bet}); err != nil {
		return nil, err
	}
	if _, err := e.Ledger.AdjustBalance(ctx, p.ID, -bet, model.TxBet, chatID); err != nil {
		e.release(ctx, s)
		return nil, err
	}
	s.Participants[0].Charged = true
	e.Table.Insert(s)

	metrics.GamesStarted.WithLabelValues(string(typ)).Inc()
	log.Info().
		Str("game_id", s.ID).
		Str("type", string(typ)).
		Int64("chat_id", chatID).
		Int64("user_id", p.ID).
		Int64("bet", bet).
		Msg("Game started")

	return s.Clone(), nil
}

// Charge debits a joining player.
func (e *Env) Charge(ctx context.Context, s *model.GameSession, userID int64) error {
	_, err := e.Ledger.AdjustBalance(ctx, userID, -s.Bet, model.TxBet, s.ChatID)
	return err
}

// Pay credits amount to userID and logs failures; a failed credit here is
// an operator problem, not something the player can retry.
func (e *Env) Pay(ctx context.Context, s *model.GameSession, userID, amount int64, kind model.TxKind) bool {
	if _, err := e.Ledger.AdjustBalance(ctx, userID, amount, kind, s.ChatID); err != nil {
		log.Error().Err(err).
			Str("game_id", s.ID).
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("kind", string(kind)).
			Msg("Failed to credit player")
		return false
	}
	return true
}

// Refund returns the bet to every charged participant of s and reports how
// many refunds were issued.
func (e *Env) Refund(ctx context.Context, s *model.GameSession) int {
	n := 0
	for _, p := range s.Participants {
		if p.Charged && e.Pay(ctx, s, p.UserID, s.Bet, model.TxRefund) {
			n++
		}
	}
	return n
}

// Finish releases the chat and counts the outcome. s must already be out of
// the table.
func (e *Env) Finish(ctx context.Context, s *model.GameSession, outcome string) {
	e.release(ctx, s)
	metrics.GamesFinished.WithLabelValues(string(s.Type), outcome).Inc()
	log.Info().
		Str("game_id", s.ID).
		Str("type", string(s.Type)).
		Int64("chat_id", s.ChatID).
		Str("outcome", outcome).
		Msg("Game finished")
}

func (e *Env) release(ctx context.Context, s *model.GameSession) {
	if err := e.Claims.ClearIfCurrent(ctx, s.ChatID, s.ID); err != nil {
		log.Error().Err(err).Str("game_id", s.ID).Int64("chat_id", s.ChatID).Msg("Failed to release chat")
	}
}

// Show renders text and buttons onto the session's card. When the display
// had to post a new message, the session is retargeted to it.
func (e *Env) Show(ctx context.Context, s *model.GameSession, text string, buttons [][]Button) {
	msgID := s.MessageID
	if cur, ok := e.Table.Snapshot(s.ID); ok {
		msgID = cur.MessageID
	}

	id, err := e.Display.Render(ctx, Card{ChatID: s.ChatID, MessageID: msgID, Text: text, Buttons: buttons})
	if err != nil {
		log.Error().Err(err).Str("game_id", s.ID).Msg("Failed to render game card")
		return
	}
	s.MessageID = id
	if id == msgID {
		return
	}
	_, err = e.Table.Update(s.ID, func(cur *model.GameSession) error {
		cur.MessageID = id
		return nil
	})
	if err != nil && !errors.Is(err, ErrGameNotFound) {
		log.Warn().Err(err).Str("game_id", s.ID).Msg("Failed to retarget game card")
	}
}

// Notify posts a standalone message to the chat.
func (e *Env) Notify(ctx context.Context, chatID int64, text string) {
	if err := e.Display.Notify(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to notify chat")
	}
}

// Mention formats a participant for card text.
func Mention(p model.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("player %d", p.UserID)
}

// Seat moves a waiting session to next with p as the second participant and
// charges them. A failed charge puts the session back; a session that
// vanished while charging has the charge refunded.
func (e *Env) Seat(ctx context.Context, gameID string, p Player, next model.GameStatus) (*model.GameSession, error) {
	s, err := e.Table.Update(gameID, func(s *model.GameSession) error {
		if s.Status != model.StatusWaitingOpponent {
			return ErrWrongState
		}
		if s.InitiatorID == p.ID {
			return ErrOwnGame
		}
		s.Status = next
		s.Participants = append(s.Participants, model.Participant{UserID: p.ID, Name: p.Name})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.Charge(ctx, s, p.ID); err != nil {
		_, revertErr := e.Table.Update(gameID, func(cur *model.GameSession) error {
			if cur.Status != next {
				return ErrWrongState
			}
			cur.Status = model.StatusWaitingOpponent
			cur.Participants = cur.Participants[:1]
			return nil
		})
		if revertErr != nil {
			log.Warn().Err(revertErr).Str("game_id", gameID).Msg("Failed to reopen game after declined join")
		}
		return nil, err
	}

	seated, err := e.Table.Update(gameID, func(cur *model.GameSession) error {
		i := cur.Participant(p.ID)
		if cur.Status != next || i < 0 {
			return ErrGameNotFound
		}
		cur.Participants[i].Charged = true
		return nil
	})
	if err != nil {
		log.Warn().Str("game_id", gameID).Int64("user_id", p.ID).Msg("Game ended while seating player, refunding")
		e.Pay(ctx, s, p.ID, s.Bet, model.TxRefund)
		return nil, ErrGameNotFound
	}
	return seated, nil
}

// Abort removes the session when guard allows it, refunds every charged
// participant and releases the chat. It returns the removed session and the
// number of refunds.
func (e *Env) Abort(ctx context.Context, gameID string, guard func(*model.GameSession) error, outcome string) (*model.GameSession, int, error) {
	s, err := e.Table.RemoveIf(gameID, guard)
	if err != nil {
		return nil, 0, err
	}
	n := e.Refund(ctx, s)
	e.Finish(ctx, s, outcome)
	return s, n, nil
}

// CancelGuard lets the initiator withdraw a game nobody has joined.
func CancelGuard(userID int64) func(*model.GameSession) error {
	return func(s *model.GameSession) error {
		if s.InitiatorID != userID {
			return ErrNotInitiator
		}
		if s.Status != model.StatusWaitingOpponent {
			return ErrWrongState
		}
		return nil
	}
}

// StatusGuard passes only sessions in one of the given states.
func StatusGuard(states ...model.GameStatus) func(*model.GameSession) error {
	return func(s *model.GameSession) error {
		for _, st := range states {
			if s.Status == st {
				return nil
			}
		}
		return ErrWrongState
	}
}
