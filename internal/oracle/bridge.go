// Package oracle bridges the external roll service into game flow. The
// service fulfils rows in a shared table at its own pace; the bridge writes
// the request and polls for the answer.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/clock"
)

var (
	ErrRollNotFound = errors.New("roll request not found")
)

// RollStore is the shared roll_requests table.
type RollStore interface {
	Upsert(ctx context.Context, req *model.RollRequest) error
	Get(ctx context.Context, gameID string) (*model.RollRequest, error)
	Delete(ctx context.Context, gameID string) error
}

// Outcome is how a wait for a roll ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeStorageError
	OutcomeTimedOut
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeStorageError:
		return "storage_error"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeAbandoned:
		return "abandoned"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is returned by Await. Value is set only for OutcomeCompleted.
type Result struct {
	Outcome  Outcome
	Value    int
	Attempts int
	Err      error
}

// Config bounds the poll loop.
type Config struct {
	Interval time.Duration
	Attempts int
}

// Bridge issues roll requests and waits for their completion.
type Bridge struct {
	store RollStore
	clock clock.Clock
	cfg   Config
}

// NewBridge creates a Bridge.
func NewBridge(store RollStore, clk clock.Clock, cfg Config) *Bridge {
	return &Bridge{store: store, clock: clk, cfg: cfg}
}

// Request writes a pending row for the game, clearing any earlier answer.
func (b *Bridge) Request(ctx context.Context, gameID string, chatID, userID int64) error {
	req := &model.RollRequest{
		GameID:      gameID,
		ChatID:      chatID,
		UserID:      userID,
		Status:      model.RollPending,
		RequestedAt: b.clock.Now(),
	}
	if err := b.store.Upsert(ctx, req); err != nil {
		return fmt.Errorf("failed to request roll: %w", err)
	}
	log.Debug().Str("game_id", gameID).Int64("user_id", userID).Msg("Roll requested")
	return nil
}

// Await polls until the request resolves, the attempt budget runs out, or
// stillWaiting reports that the game no longer wants the roll. stillWaiting
// is checked after every wait, before storage is read.
func (b *Bridge) Await(ctx context.Context, gameID string, stillWaiting func() bool) Result {
	logger := log.With().Str("game_id", gameID).Logger()

	for attempt := 1; attempt <= b.cfg.Attempts; attempt++ {
		if err := b.clock.Sleep(ctx, b.cfg.Interval); err != nil {
			return Result{Outcome: OutcomeAbandoned, Attempts: attempt - 1, Err: err}
		}
		if !stillWaiting() {
			logger.Debug().Int("attempt", attempt).Msg("Game moved on, abandoning roll poll")
			return Result{Outcome: OutcomeAbandoned, Attempts: attempt}
		}

		req, err := b.store.Get(ctx, gameID)
		if err != nil {
			// the row stays; the next request's upsert supersedes it
			logger.Error().Err(err).Int("attempt", attempt).Msg("Failed to read roll request")
			return Result{Outcome: OutcomeStorageError, Attempts: attempt, Err: err}
		}

		switch req.Status {
		case model.RollCompleted:
			if req.RollValue == nil {
				logger.Warn().Msg("Completed roll request without a value, still waiting")
				continue
			}
			b.consume(ctx, gameID)
			return Result{Outcome: OutcomeCompleted, Value: *req.RollValue, Attempts: attempt}
		case model.RollError:
			b.consume(ctx, gameID)
			return Result{Outcome: OutcomeFailed, Attempts: attempt}
		}
	}

	logger.Warn().Int("attempts", b.cfg.Attempts).Msg("Roll request timed out")
	return Result{Outcome: OutcomeTimedOut, Attempts: b.cfg.Attempts}
}

// Discard deletes the request for a game that no longer needs it.
func (b *Bridge) Discard(ctx context.Context, gameID string) error {
	if err := b.store.Delete(ctx, gameID); err != nil {
		return fmt.Errorf("failed to discard roll request: %w", err)
	}
	return nil
}

func (b *Bridge) consume(ctx context.Context, gameID string) {
	if err := b.store.Delete(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("Failed to delete consumed roll request")
	}
}
