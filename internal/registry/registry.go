// Package registry tracks, per chat, which game (if any) is running.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/lock"
)

var (
	ErrChatBusy        = errors.New("chat already has an active game")
	ErrSessionNotFound = errors.New("group session not found")
)

const lockTimeout = 5 * time.Second

// Store persists group sessions.
type Store interface {
	Get(ctx context.Context, chatID int64) (*model.GroupSession, error)
	Put(ctx context.Context, s *model.GroupSession) error
	Delete(ctx context.Context, chatID int64) error
	List(ctx context.Context) ([]*model.GroupSession, error)
}

// Registry enforces at most one active game per chat.
type Registry struct {
	store Store
	locks *lock.KeyLock[int64]
	now   func() time.Time
}

// New creates a Registry over store.
func New(store Store) *Registry {
	return &Registry{
		store: store,
		locks: lock.New[int64](),
		now:   time.Now,
	}
}

// WithClock makes the registry stamp activity with now instead of the wall
// clock.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// GetOrCreateSession returns the chat's session, creating it lazily. The
// title and last-activity time are refreshed on every call.
func (r *Registry) GetOrCreateSession(ctx context.Context, chatID int64, title string) (*model.GroupSession, error) {
	var out *model.GroupSession
	err := r.withChat(ctx, chatID, func() error {
		s, err := r.load(ctx, chatID)
		if err != nil {
			return err
		}
		if s == nil {
			s = &model.GroupSession{ChatID: chatID}
			log.Debug().Int64("chat_id", chatID).Str("title", title).Msg("Group session created")
		}
		if title != "" {
			s.Title = title
		}
		s.LastActivity = r.now()
		if err := r.store.Put(ctx, s); err != nil {
			return fmt.Errorf("failed to save group session: %w", err)
		}
		out = s
		return nil
	})
	return out, err
}

// SetActiveGame marks (ref != nil) or clears (ref == nil) the chat's active
// game. It is idempotent and creates the session if it is missing.
func (r *Registry) SetActiveGame(ctx context.Context, chatID int64, ref *model.ActiveGame) error {
	return r.withChat(ctx, chatID, func() error {
		s, err := r.load(ctx, chatID)
		if err != nil {
			return err
		}
		if s == nil {
			log.Warn().Int64("chat_id", chatID).Msg("Setting active game on a missing group session")
			s = &model.GroupSession{ChatID: chatID}
		}
		return r.assign(ctx, s, ref)
	})
}

// TryStartGame claims the chat for ref, failing with ErrChatBusy when another
// game already holds it.
func (r *Registry) TryStartGame(ctx context.Context, chatID int64, ref model.ActiveGame) error {
	return r.withChat(ctx, chatID, func() error {
		s, err := r.load(ctx, chatID)
		if err != nil {
			return err
		}
		if s == nil {
			s = &model.GroupSession{ChatID: chatID}
		}
		if s.Active != nil {
			if s.Active.GameID == ref.GameID {
				return nil
			}
			return ErrChatBusy
		}
		return r.assign(ctx, s, &ref)
	})
}

// ClearIfCurrent clears the active game only if it still names gameID.
func (r *Registry) ClearIfCurrent(ctx context.Context, chatID int64, gameID string) error {
	return r.withChat(ctx, chatID, func() error {
		s, err := r.load(ctx, chatID)
		if err != nil || s == nil || s.Active == nil || s.Active.GameID != gameID {
			return err
		}
		return r.assign(ctx, s, nil)
	})
}

// ActiveGame returns the chat's active game, or nil.
func (r *Registry) ActiveGame(ctx context.Context, chatID int64) (*model.ActiveGame, error) {
	s, err := r.load(ctx, chatID)
	if err != nil || s == nil {
		return nil, err
	}
	return s.Active, nil
}

// ReapIdle deletes sessions without an active game that have been idle for
// longer than maxIdle, or that carry no activity timestamp at all.
func (r *Registry) ReapIdle(ctx context.Context, now time.Time, maxIdle time.Duration) (int, error) {
	sessions, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list group sessions: %w", err)
	}

	removed := 0
	for _, candidate := range sessions {
		if !idle(candidate, now, maxIdle) {
			continue
		}
		err := r.withChat(ctx, candidate.ChatID, func() error {
			s, err := r.load(ctx, candidate.ChatID)
			if err != nil || s == nil || !idle(s, now, maxIdle) {
				return err
			}
			if err := r.store.Delete(ctx, s.ChatID); err != nil {
				return err
			}
			removed++
			log.Debug().Int64("chat_id", s.ChatID).Msg("Idle group session reaped")
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("failed to reap group session %d: %w", candidate.ChatID, err)
		}
	}
	return removed, nil
}

// ReleaseOrphans clears active games that live no longer knows about, such
// as claims left over from before a restart. Claims younger than minAge are
// kept because a game is claimed before it is put on the table.
func (r *Registry) ReleaseOrphans(ctx context.Context, now time.Time, minAge time.Duration, live func(gameID string) bool) (int, error) {
	sessions, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list group sessions: %w", err)
	}

	orphan := func(s *model.GroupSession) bool {
		return s.Active != nil && now.Sub(s.LastActivity) > minAge && !live(s.Active.GameID)
	}

	released := 0
	for _, candidate := range sessions {
		if !orphan(candidate) {
			continue
		}
		err := r.withChat(ctx, candidate.ChatID, func() error {
			s, err := r.load(ctx, candidate.ChatID)
			if err != nil || s == nil || !orphan(s) {
				return err
			}
			log.Warn().
				Int64("chat_id", s.ChatID).
				Str("game_id", s.Active.GameID).
				Msg("Releasing chat held by a game that no longer exists")
			if err := r.assign(ctx, s, nil); err != nil {
				return err
			}
			released++
			return nil
		})
		if err != nil {
			return released, fmt.Errorf("failed to release group session %d: %w", candidate.ChatID, err)
		}
	}
	return released, nil
}

func idle(s *model.GroupSession, now time.Time, maxIdle time.Duration) bool {
	if s.Active != nil {
		return false
	}
	return s.LastActivity.IsZero() || now.Sub(s.LastActivity) > maxIdle
}

func (r *Registry) assign(ctx context.Context, s *model.GroupSession, ref *model.ActiveGame) error {
	s.Active = ref
	s.LastActivity = r.now()
	if err := r.store.Put(ctx, s); err != nil {
		return fmt.Errorf("failed to save group session: %w", err)
	}
	return nil
}

// load returns nil, nil for a missing session.
func (r *Registry) load(ctx context.Context, chatID int64) (*model.GroupSession, error) {
	s, err := r.store.Get(ctx, chatID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group session: %w", err)
	}
	return s, nil
}

func (r *Registry) withChat(ctx context.Context, chatID int64, fn func() error) error {
	return r.locks.WithLockContext(ctx, chatID, lockTimeout, fn)
}
