// Package game holds what the coinflip, rps and escalator state machines
// share: the session table, the collaborators they are wired to, and the
// card/button vocabulary used to display them.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/clock"
)

// User-facing rejections. None of them mutate state.
var (
	ErrGameNotFound     = errors.New("game not found or already finished")
	ErrWrongState       = errors.New("action not allowed right now")
	ErrNotParticipant   = errors.New("not a participant of this game")
	ErrNotInitiator     = errors.New("only the game starter can do that")
	ErrOwnGame          = errors.New("cannot join your own game")
	ErrAlreadyChosen    = errors.New("choice already made")
	ErrNothingToCashOut = errors.New("nothing to cash out yet")
	ErrBetOutOfRange    = errors.New("bet out of range")
	ErrInvalidChoice    = errors.New("invalid choice")
	ErrRollUnavailable  = errors.New("dice service unavailable")
)

// Player identifies who is acting.
type Player struct {
	ID   int64
	Name string
}

// Game is a state machine that can be opened with a start command.
type Game interface {
	Type() model.GameType
	// Command is the start command without the leading slash.
	Command() string
	Description() string
	GroupOnly() bool
	Start(ctx context.Context, chatID int64, p Player, bet int64) (*model.GameSession, error)
}

// Lobby is a game that waits for a second player.
type Lobby interface {
	Game
	Join(ctx context.Context, gameID string, p Player) error
	Cancel(ctx context.Context, gameID string, userID int64) error
}

// Ledger moves chips.
type Ledger interface {
	AdjustBalance(ctx context.Context, userID, delta int64, kind model.TxKind, chatID int64) (int64, error)
}

// ChatClaims is the per-chat exclusivity the games need from the registry.
type ChatClaims interface {
	TryStartGame(ctx context.Context, chatID int64, ref model.ActiveGame) error
	ClearIfCurrent(ctx context.Context, chatID int64, gameID string) error
}

// Display renders game cards. Render edits card.MessageID when set and falls
// back to a fresh message; it returns the ID now showing the card.
type Display interface {
	Render(ctx context.Context, card Card) (int, error)
	Notify(ctx context.Context, chatID int64, text string) error
}

// Rules are the limits shared by every game.
type Rules struct {
	MinBet      int64
	MaxBet      int64
	JoinTimeout time.Duration
}

// ValidateBet checks the bet against the configured range.
func (r Rules) ValidateBet(bet int64) error {
	if bet < r.MinBet || bet > r.MaxBet {
		return fmt.Errorf("%w: must be between %d and %d", ErrBetOutOfRange, r.MinBet, r.MaxBet)
	}
	return nil
}

// Env is what every state machine is wired to.
type Env struct {
	Ledger  Ledger
	Claims  ChatClaims
	Table   *Table
	Display Display
	Clock   clock.Clock
	// Rand returns a uniform int in [0, n).
	Rand  func(n int) int
	Rules Rules
}
