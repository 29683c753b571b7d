package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/gametest"
	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/registry"
)

type discardLog struct {
	mu  sync.Mutex
	ids []string
}

func (d *discardLog) Discard(_ context.Context, gameID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, gameID)
	return nil
}

var testConfig = Config{
	Interval:   15 * time.Minute,
	StaleAfter: 5 * time.Minute,
	IdleAfter:  20 * time.Minute,
}

// seed opens a game owned by user 1 in chatID and forces its status.
func seed(t *testing.T, f *gametest.Fixture, chatID int64, status model.GameStatus) *model.GameSession {
	t.Helper()
	p := game.Player{ID: 1, Name: "alice"}
	s, err := f.Env.Open(context.Background(), model.GameRPS, chatID, p, 100, status)
	require.NoError(t, err)
	return s
}

func TestSweepRemovesStaleWaitingGames(t *testing.T) {
	f := gametest.New(t)
	f.Player(t, 1, 1000)
	rolls := &discardLog{}
	r := New(f.Env, f.Registry, rolls, testConfig)

	lobby := seed(t, f, -1, model.StatusWaitingOpponent)
	rolling := seed(t, f, -2, model.StatusWaitingForRoll)
	prompt := seed(t, f, -3, model.StatusPromptAction)
	assert.Equal(t, int64(700), f.Balance(t, 1))

	rep := r.Sweep(context.Background(), f.Clock.Now().Add(6*time.Minute))

	assert.Equal(t, 2, rep.GamesRemoved)
	assert.Equal(t, 2, rep.Refunds)
	assert.Equal(t, int64(900), f.Balance(t, 1))

	for _, s := range []*model.GameSession{lobby, rolling} {
		_, live := f.Session(s.ID)
		assert.False(t, live)
		assert.Empty(t, f.Active(t, s.ChatID))
	}
	_, live := f.Session(prompt.ID)
	assert.True(t, live, "games not waiting on anyone are left alone")

	assert.Equal(t, []string{rolling.ID}, rolls.ids)
	assert.Contains(t, f.Display.Last().Text, "expired")
}

func TestSweepKeepsFreshGames(t *testing.T) {
	f := gametest.New(t)
	f.Player(t, 1, 1000)
	r := New(f.Env, f.Registry, nil, testConfig)

	s := seed(t, f, -1, model.StatusWaitingChoices)
	rep := r.Sweep(context.Background(), f.Clock.Now().Add(4*time.Minute))

	assert.Zero(t, rep.GamesRemoved)
	_, live := f.Session(s.ID)
	assert.True(t, live)
}

func TestSweepRefundsEveryChargedParticipant(t *testing.T) {
	f := gametest.New(t)
	a := f.Player(t, 1, 1000)
	b := f.Player(t, 2, 1000)
	r := New(f.Env, f.Registry, nil, testConfig)

	s, err := f.Env.Open(context.Background(), model.GameRPS, -1, a, 100, model.StatusWaitingOpponent)
	require.NoError(t, err)
	_, err = f.Env.Seat(context.Background(), s.ID, b, model.StatusWaitingChoices)
	require.NoError(t, err)

	rep := r.Sweep(context.Background(), f.Clock.Now().Add(time.Hour))
	assert.Equal(t, 2, rep.Refunds)
	assert.Equal(t, int64(1000), f.Balance(t, 1))
	assert.Equal(t, int64(1000), f.Balance(t, 2))
}

func TestSweepRemovesIdleGroups(t *testing.T) {
	f := gametest.New(t)
	r := New(f.Env, f.Registry, nil, testConfig)
	ctx := context.Background()
	now := f.Clock.Now()

	require.NoError(t, f.Groups.Put(ctx, &model.GroupSession{ChatID: -1, LastActivity: now.Add(-time.Hour)}))
	require.NoError(t, f.Groups.Put(ctx, &model.GroupSession{ChatID: -2}))
	require.NoError(t, f.Groups.Put(ctx, &model.GroupSession{ChatID: -3, LastActivity: now.Add(-time.Minute)}))
	require.NoError(t, f.Groups.Put(ctx, &model.GroupSession{
		ChatID:       -4,
		LastActivity: now.Add(-time.Hour),
		Active:       &model.ActiveGame{GameID: "g", Type: model.GameRPS, Bet: 10},
	}))

	rep := r.Sweep(ctx, now)
	assert.Equal(t, 2, rep.GroupsRemoved)

	left, err := f.Groups.List(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(left))
	for _, s := range left {
		ids = append(ids, s.ChatID)
	}
	assert.ElementsMatch(t, []int64{-3, -4}, ids)
}

func TestSweepReleasesChatsOfLostGames(t *testing.T) {
	f := gametest.New(t)
	f.Player(t, 1, 1000)
	ctx := context.Background()

	lost := seed(t, f, -5, model.StatusWaitingChoices)
	require.Equal(t, lost.ID, f.Active(t, -5))

	// the group store outlived the game table, as after a restart with redis
	f.Env.Table = game.NewTable(game.NewMemoryStore())
	r := New(f.Env, f.Registry, nil, testConfig)

	_, err := f.Env.Open(ctx, model.GameRPS, -5, game.Player{ID: 1, Name: "alice"}, 50, model.StatusWaitingOpponent)
	require.ErrorIs(t, err, registry.ErrChatBusy)

	rep := r.Sweep(ctx, f.Clock.Now().Add(48*time.Hour))
	assert.Equal(t, 1, rep.ChatsReleased)
	assert.Zero(t, rep.GamesRemoved)
	assert.Empty(t, f.Active(t, -5))

	s, err := f.Env.Open(ctx, model.GameRPS, -5, game.Player{ID: 1, Name: "alice"}, 50, model.StatusWaitingOpponent)
	require.NoError(t, err)
	assert.Equal(t, s.ID, f.Active(t, -5))
}

func TestSweepKeepsFreshClaims(t *testing.T) {
	f := gametest.New(t)
	r := New(f.Env, f.Registry, nil, testConfig)
	ctx := context.Background()

	// claimed but not yet on the table
	require.NoError(t, f.Registry.TryStartGame(ctx, -6, model.ActiveGame{GameID: "opening", Type: model.GameRPS, Bet: 10}))

	rep := r.Sweep(ctx, f.Clock.Now().Add(time.Minute))
	assert.Zero(t, rep.ChatsReleased)
	assert.Equal(t, "opening", f.Active(t, -6))
}

func TestRunStopsOnCancel(t *testing.T) {
	f := gametest.New(t)
	r := New(f.Env, f.Registry, nil, Config{Interval: time.Millisecond, StaleAfter: time.Minute, IdleAfter: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRefundExactlyOnceProperty races sweeps against cancels and joins and
// checks that no stake is refunded twice or lost.
func TestRefundExactlyOnceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := gametest.New(t)
		a := f.Player(t, 1, 1000)
		f.Player(t, 2, 1000)
		r := New(f.Env, f.Registry, nil, testConfig)
		ctx := context.Background()
		total := f.Accounts.Total()

		bet := rapid.Int64Range(5, 500).Draw(rt, "bet")
		sweepers := rapid.IntRange(1, 5).Draw(rt, "sweepers")
		cancellers := rapid.IntRange(0, 3).Draw(rt, "cancellers")

		s, err := f.Env.Open(ctx, model.GameCoinflip, -1, a, bet, model.StatusWaitingOpponent)
		if err != nil {
			rt.Fatalf("open: %v", err)
		}
		later := f.Clock.Now().Add(time.Hour)

		var wg sync.WaitGroup
		var mu sync.Mutex
		refunds := 0
		for i := 0; i < sweepers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rep := r.Sweep(ctx, later)
				mu.Lock()
				refunds += rep.Refunds
				mu.Unlock()
			}()
		}
		for i := 0; i < cancellers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, n, err := f.Env.Abort(ctx, s.ID, game.CancelGuard(a.ID), "cancelled"); err == nil {
					mu.Lock()
					refunds += n
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if refunds != 1 {
			rt.Fatalf("expected exactly one refund, got %d", refunds)
		}
		if got := f.Accounts.Total(); got != total {
			rt.Fatalf("total changed: %d -> %d", total, got)
		}
		if f.Env.Table.Len() != 0 {
			rt.Fatalf("game still in table")
		}
	})
}
