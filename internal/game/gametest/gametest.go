// Package gametest wires the game state machines to in-memory collaborators
// and a fake clock for tests.
package gametest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/ledger"
	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/clock"
	"telegram-casino-bot/internal/registry"
)

// ChatID is the group chat used by fixtures.
const ChatID int64 = -1001

// Display records rendered cards and notices.
type Display struct {
	mu        sync.Mutex
	nextID    int
	Cards     []game.Card
	Notices   []string
	FailEdits bool
	FailAll   bool
}

func (d *Display) Render(_ context.Context, card game.Card) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll {
		return 0, errors.New("transport down")
	}
	d.Cards = append(d.Cards, card)
	if card.MessageID != 0 && !d.FailEdits {
		return card.MessageID, nil
	}
	d.nextID++
	return 100 + d.nextID, nil
}

func (d *Display) Notify(_ context.Context, _ int64, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Notices = append(d.Notices, text)
	return nil
}

// Last returns the most recent card.
func (d *Display) Last() game.Card {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Cards) == 0 {
		return game.Card{}
	}
	return d.Cards[len(d.Cards)-1]
}

// NoticeCount returns how many notices were posted.
func (d *Display) NoticeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Notices)
}

// Fixture is a fully wired game environment.
type Fixture struct {
	Env      *game.Env
	Ledger   *ledger.Ledger
	Accounts *ledger.MemoryStore
	Registry *registry.Registry
	Groups   *registry.MemoryStore
	Clock    *clock.Fake
	Display  *Display

	mu    sync.Mutex
	draws []int
}

// New builds a Fixture with the default bet range [5, 1000] and a 60s join
// timeout.
func New(t testing.TB) *Fixture {
	t.Helper()

	accounts := ledger.NewMemoryStore()
	groups := registry.NewMemoryStore()
	clk := clock.NewFake(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))
	f := &Fixture{
		Accounts: accounts,
		Ledger:   ledger.New(accounts, nil, 1000),
		Registry: registry.New(groups).WithClock(clk.Now),
		Groups:   groups,
		Clock:    clk,
		Display:  &Display{},
	}
	f.Env = &game.Env{
		Ledger:  f.Ledger,
		Claims:  f.Registry,
		Table:   game.NewTable(game.NewMemoryStore()),
		Display: f.Display,
		Clock:   f.Clock,
		Rand:    f.rand,
		Rules:   game.Rules{MinBet: 5, MaxBet: 1000, JoinTimeout: time.Minute},
	}
	return f
}

// Draw queues values returned by Env.Rand, reduced modulo n.
func (f *Fixture) Draw(values ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws = append(f.draws, values...)
}

func (f *Fixture) rand(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.draws) == 0 {
		return 0
	}
	v := f.draws[0]
	f.draws = f.draws[1:]
	return v % n
}

// Player creates an account with the given balance.
func (f *Fixture) Player(t testing.TB, id, balance int64) game.Player {
	t.Helper()
	name := "p" + string(rune('a'+id%26))
	_, _, err := f.Accounts.CreateAccount(context.Background(), id, name, balance)
	require.NoError(t, err)
	return game.Player{ID: id, Name: name}
}

// Balance returns a player's balance.
func (f *Fixture) Balance(t testing.TB, id int64) int64 {
	t.Helper()
	b, err := f.Ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

// Active returns the chat's active game ID, or "".
func (f *Fixture) Active(t testing.TB, chatID int64) string {
	t.Helper()
	a, err := f.Registry.ActiveGame(context.Background(), chatID)
	require.NoError(t, err)
	if a == nil {
		return ""
	}
	return a.GameID
}

// Session returns a snapshot of the session, if it is still live.
func (f *Fixture) Session(id string) (*model.GameSession, bool) {
	return f.Env.Table.Snapshot(id)
}
