package oracle

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/model"
)

// PendingStore is what the local roller needs from the roll table.
type PendingStore interface {
	Pending(ctx context.Context, limit int) ([]*model.RollRequest, error)
	Complete(ctx context.Context, gameID string, value int) (bool, error)
	Fail(ctx context.Context, gameID string) (bool, error)
}

// LocalRoller stands in for the external roll service during development:
// it completes pending rows with a die value drawn from crypto/rand.
type LocalRoller struct {
	store    PendingStore
	interval time.Duration
	roll     func() (int, error)
}

// NewLocalRoller creates a LocalRoller polling every interval.
func NewLocalRoller(store PendingStore, interval time.Duration) *LocalRoller {
	return &LocalRoller{store: store, interval: interval, roll: rollDie}
}

// Run fulfils pending requests until ctx is done.
func (r *LocalRoller) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("Local roller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Local roller stopped")
			return
		case <-ticker.C:
			if _, err := r.Fulfil(ctx); err != nil {
				log.Error().Err(err).Msg("Local roller pass failed")
			}
		}
	}
}

// Fulfil completes every currently pending request and returns how many.
func (r *LocalRoller) Fulfil(ctx context.Context) (int, error) {
	reqs, err := r.store.Pending(ctx, 50)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, req := range reqs {
		value, err := r.roll()
		if err != nil {
			// The waiting game sees the error row and reverts its prompt.
			if _, ferr := r.store.Fail(ctx, req.GameID); ferr != nil {
				log.Error().Err(ferr).Str("game_id", req.GameID).Msg("Failed to mark roll request errored")
			}
			return done, err
		}
		ok, err := r.store.Complete(ctx, req.GameID, value)
		if err != nil {
			return done, err
		}
		if ok {
			done++
			log.Debug().Str("game_id", req.GameID).Int("value", value).Msg("Roll fulfilled locally")
		}
	}
	return done, nil
}

func rollDie() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(6))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + 1, nil
}
