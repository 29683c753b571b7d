package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-casino-bot/internal/config"
	"telegram-casino-bot/internal/model"
)

func newTestRegistry(now time.Time) (*Registry, *MemoryStore) {
	store := NewMemoryStore()
	r := New(store)
	r.now = func() time.Time { return now }
	return r, store
}

func TestGetOrCreateSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(now)

	s, err := r.GetOrCreateSession(ctx, -1, "Lobby")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), s.ChatID)
	assert.Equal(t, "Lobby", s.Title)
	assert.Equal(t, now, s.LastActivity)
	assert.Nil(t, s.Active)

	s, err = r.GetOrCreateSession(ctx, -1, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Title)
}

func TestTryStartGame(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(time.Now())

	first := model.ActiveGame{GameID: "a", Type: model.GameCoinflip, Bet: 10}
	require.NoError(t, r.TryStartGame(ctx, -1, first))
	require.NoError(t, r.TryStartGame(ctx, -1, first), "re-claiming the same game is idempotent")

	err := r.TryStartGame(ctx, -1, model.ActiveGame{GameID: "b", Type: model.GameRPS, Bet: 10})
	assert.ErrorIs(t, err, ErrChatBusy)

	require.NoError(t, r.TryStartGame(ctx, -2, model.ActiveGame{GameID: "b", Type: model.GameRPS, Bet: 10}))

	active, err := r.ActiveGame(ctx, -1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "a", active.GameID)
}

func TestClearIfCurrent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(time.Now())
	require.NoError(t, r.TryStartGame(ctx, -1, model.ActiveGame{GameID: "a"}))

	require.NoError(t, r.ClearIfCurrent(ctx, -1, "other"))
	active, _ := r.ActiveGame(ctx, -1)
	require.NotNil(t, active)

	require.NoError(t, r.ClearIfCurrent(ctx, -1, "a"))
	active, _ = r.ActiveGame(ctx, -1)
	assert.Nil(t, active)

	require.NoError(t, r.ClearIfCurrent(ctx, -99, "a"), "missing chat is a no-op")
}

func TestSetActiveGame(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(time.Now())

	// auto-creates the missing session
	require.NoError(t, r.SetActiveGame(ctx, -5, &model.ActiveGame{GameID: "x", Type: model.GameEscalator, Bet: 50}))
	s, err := store.Get(ctx, -5)
	require.NoError(t, err)
	require.NotNil(t, s.Active)
	assert.Equal(t, int64(50), s.Active.Bet)

	require.NoError(t, r.SetActiveGame(ctx, -5, nil))
	require.NoError(t, r.SetActiveGame(ctx, -5, nil))
	active, err := r.ActiveGame(ctx, -5)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestReapIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r, store := newTestRegistry(now)
	maxIdle := 20 * time.Minute

	put := func(s *model.GroupSession) { require.NoError(t, store.Put(ctx, s)) }
	put(&model.GroupSession{ChatID: -1, LastActivity: now.Add(-time.Hour)})
	put(&model.GroupSession{ChatID: -2, LastActivity: now.Add(-time.Minute)})
	put(&model.GroupSession{ChatID: -3})
	put(&model.GroupSession{ChatID: -4, LastActivity: now.Add(-time.Hour), Active: &model.ActiveGame{GameID: "g"}})

	removed, err := r.ReapIdle(ctx, now, maxIdle)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := store.List(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(left))
	for _, s := range left {
		ids = append(ids, s.ChatID)
	}
	assert.ElementsMatch(t, []int64{-2, -4}, ids)
}

func TestReleaseOrphans(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r, store := newTestRegistry(now)
	minAge := 5 * time.Minute

	put := func(s *model.GroupSession) { require.NoError(t, store.Put(ctx, s)) }
	put(&model.GroupSession{ChatID: -1, LastActivity: now.Add(-48 * time.Hour), Active: &model.ActiveGame{GameID: "lost"}})
	put(&model.GroupSession{ChatID: -2, LastActivity: now.Add(-time.Hour), Active: &model.ActiveGame{GameID: "running"}})
	put(&model.GroupSession{ChatID: -3, LastActivity: now.Add(-time.Minute), Active: &model.ActiveGame{GameID: "opening"}})
	put(&model.GroupSession{ChatID: -4, LastActivity: now.Add(-time.Hour)})

	live := func(id string) bool { return id == "running" }
	released, err := r.ReleaseOrphans(ctx, now, minAge, live)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	for chatID, want := range map[int64]string{-1: "", -2: "running", -3: "opening"} {
		active, err := r.ActiveGame(ctx, chatID)
		require.NoError(t, err)
		if want == "" {
			assert.Nil(t, active, "chat %d", chatID)
			continue
		}
		require.NotNil(t, active, "chat %d", chatID)
		assert.Equal(t, want, active.GameID)
	}

	require.NoError(t, r.TryStartGame(ctx, -1, model.ActiveGame{GameID: "next"}))

	released, err = r.ReleaseOrphans(ctx, now, minAge, live)
	require.NoError(t, err)
	assert.Zero(t, released)
}

// TestOneActiveGamePerChatProperty races many starts into a handful of chats
// and checks that each chat ends up with exactly one winner.
func TestOneActiveGamePerChatProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		r, _ := newTestRegistry(time.Now())

		chats := rapid.IntRange(1, 5).Draw(t, "chats")
		starts := rapid.IntRange(1, 40).Draw(t, "starts")
		targets := make([]int64, starts)
		for i := range targets {
			targets[i] = -int64(rapid.IntRange(1, chats).Draw(t, "chat"))
		}

		var mu sync.Mutex
		wins := make(map[int64][]string)
		var wg sync.WaitGroup
		wg.Add(starts)
		for i, chatID := range targets {
			go func(i int, chatID int64) {
				defer wg.Done()
				id := fmt.Sprintf("game-%d", i)
				if err := r.TryStartGame(ctx, chatID, model.ActiveGame{GameID: id}); err == nil {
					mu.Lock()
					wins[chatID] = append(wins[chatID], id)
					mu.Unlock()
				}
			}(i, chatID)
		}
		wg.Wait()

		for chatID, ids := range wins {
			if len(ids) != 1 {
				t.Fatalf("chat %d has %d active games: %v", chatID, len(ids), ids)
			}
			active, err := r.ActiveGame(ctx, chatID)
			if err != nil || active == nil || active.GameID != ids[0] {
				t.Fatalf("chat %d active game mismatch: %v %v", chatID, active, err)
			}
		}
	})
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewRedisStore(ctx, &config.RedisConfig{
		Addr:   "localhost:6379",
		Prefix: fmt.Sprintf("casino:test:%d:", time.Now().UnixNano()),
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer store.Close()

	_, err = store.Get(ctx, -1)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	r := New(store)
	require.NoError(t, r.TryStartGame(ctx, -1, model.ActiveGame{GameID: "a", Type: model.GameRPS, Bet: 25}))
	assert.ErrorIs(t, r.TryStartGame(ctx, -1, model.ActiveGame{GameID: "b"}), ErrChatBusy)

	got, err := store.Get(ctx, -1)
	require.NoError(t, err)
	require.NotNil(t, got.Active)
	assert.Equal(t, model.GameRPS, got.Active.Type)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, -1))
	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, store.Ping(ctx))
}
