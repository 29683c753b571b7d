// Package reaper clears games stuck waiting on someone who never came back,
// and group sessions nobody has used in a long time.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/metrics"
	"telegram-casino-bot/internal/model"
)

// Groups removes idle group sessions and releases chats whose game is gone.
type Groups interface {
	ReapIdle(ctx context.Context, now time.Time, maxIdle time.Duration) (int, error)
	ReleaseOrphans(ctx context.Context, now time.Time, minAge time.Duration, live func(gameID string) bool) (int, error)
}

// Rolls drops roll requests of removed games.
type Rolls interface {
	Discard(ctx context.Context, gameID string) error
}

// Config controls how often the reaper runs and what it considers stale.
type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	IdleAfter  time.Duration
}

// Report counts what one sweep removed.
type Report struct {
	GamesRemoved  int
	Refunds       int
	GroupsRemoved int
	ChatsReleased int
}

// Reaper sweeps the game table and the group registry.
type Reaper struct {
	env    *game.Env
	groups Groups
	rolls  Rolls
	cfg    Config
}

// New creates a Reaper. rolls may be nil.
func New(env *game.Env, groups Groups, rolls Rolls, cfg Config) *Reaper {
	return &Reaper{env: env, groups: groups, rolls: rolls, cfg: cfg}
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.cfg.Interval).Msg("Reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx, r.env.Clock.Now())
		}
	}
}

// Sweep removes games that have been waiting longer than StaleAfter,
// refunding their stakes, releases chats still claimed by games that are no
// longer on the table, then removes idle group sessions.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) Report {
	var rep Report

	for _, s := range r.env.Table.List() {
		if !r.stale(s, now) {
			continue
		}
		removed, refunds, err := r.env.Abort(ctx, s.ID, func(cur *model.GameSession) error {
			if !r.stale(cur, now) {
				return game.ErrWrongState
			}
			return nil
		}, "expired")
		if err != nil {
			// someone else finished it first
			continue
		}

		rep.GamesRemoved++
		rep.Refunds += refunds
		if removed.Status == model.StatusWaitingForRoll && r.rolls != nil {
			if err := r.rolls.Discard(ctx, removed.ID); err != nil {
				log.Warn().Err(err).Str("game_id", removed.ID).Msg("Failed to discard roll request of reaped game")
			}
		}
		r.env.Show(ctx, removed, expiredText(removed), nil)
	}

	released, err := r.groups.ReleaseOrphans(ctx, now, r.cfg.StaleAfter, r.env.Table.Has)
	if err != nil {
		log.Error().Err(err).Msg("Failed to release orphaned chats")
	}
	rep.ChatsReleased = released

	n, err := r.groups.ReapIdle(ctx, now, r.cfg.IdleAfter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reap idle group sessions")
	}
	rep.GroupsRemoved = n

	metrics.ReaperRemoved.WithLabelValues("game").Add(float64(rep.GamesRemoved))
	metrics.ReaperRemoved.WithLabelValues("group").Add(float64(rep.GroupsRemoved))
	metrics.ReaperRemoved.WithLabelValues("claim").Add(float64(rep.ChatsReleased))
	metrics.ReaperRefunds.Add(float64(rep.Refunds))

	log.Info().
		Int("games_removed", rep.GamesRemoved).
		Int("refunds", rep.Refunds).
		Int("groups_removed", rep.GroupsRemoved).
		Int("chats_released", rep.ChatsReleased).
		Msg("Reaper sweep finished")
	return rep
}

func (r *Reaper) stale(s *model.GameSession, now time.Time) bool {
	return s.Status.Waiting() && now.Sub(s.CreatedAt) > r.cfg.StaleAfter
}

func expiredText(s *model.GameSession) string {
	refunded := 0
	for _, p := range s.Participants {
		if p.Charged {
			refunded++
		}
	}
	return fmt.Sprintf("⌛ This %s game expired after waiting too long. %d bet(s) of %d refunded.",
		s.Type.Label(), refunded, s.Bet)
}
