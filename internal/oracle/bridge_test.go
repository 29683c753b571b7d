package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/clock"
)

// memRolls is an in-memory roll table. onGet runs before every read so a
// test can play the external service.
type memRolls struct {
	mu      sync.Mutex
	rows    map[string]*model.RollRequest
	gets    int
	deletes int
	getErr  error
	onGet   func(gets int, row *model.RollRequest)
}

func newMemRolls() *memRolls {
	return &memRolls{rows: make(map[string]*model.RollRequest)}
}

func (m *memRolls) Upsert(_ context.Context, req *model.RollRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[req.GameID] = &model.RollRequest{
		GameID:      req.GameID,
		ChatID:      req.ChatID,
		UserID:      req.UserID,
		Status:      model.RollPending,
		RequestedAt: req.RequestedAt,
	}
	return nil
}

func (m *memRolls) Get(_ context.Context, gameID string) (*model.RollRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	row, ok := m.rows[gameID]
	if !ok {
		return nil, ErrRollNotFound
	}
	if m.onGet != nil {
		m.onGet(m.gets, row)
	}
	c := *row
	return &c, nil
}

func (m *memRolls) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.rows, gameID)
	return nil
}

func (m *memRolls) row(gameID string) (*model.RollRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[gameID]
	return r, ok
}

func intPtr(v int) *int { return &v }

func newTestBridge(store RollStore) (*Bridge, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewBridge(store, clk, Config{Interval: 2 * time.Second, Attempts: 30}), clk
}

func always() bool { return true }

func TestAwaitCompleted(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	store.onGet = func(gets int, row *model.RollRequest) {
		if gets == 3 {
			row.Status = model.RollCompleted
			row.RollValue = intPtr(5)
		}
	}
	b, clk := newTestBridge(store)

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	res := b.Await(ctx, "g", always)

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 5, res.Value)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, clk.Sleeps(), 3)
	_, ok := store.row("g")
	assert.False(t, ok, "consumed row must be deleted")
}

func TestAwaitCompletedWithoutValueKeepsWaiting(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	store.onGet = func(gets int, row *model.RollRequest) {
		row.Status = model.RollCompleted
		if gets == 2 {
			row.RollValue = intPtr(2)
		}
	}
	b, _ := newTestBridge(store)

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	res := b.Await(ctx, "g", always)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
}

func TestAwaitErrorRowIsDeleted(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	store.onGet = func(_ int, row *model.RollRequest) { row.Status = model.RollError }
	b, _ := newTestBridge(store)

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	res := b.Await(ctx, "g", always)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	_, ok := store.row("g")
	assert.False(t, ok)
}

func TestAwaitStorageErrorKeepsRow(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	b, _ := newTestBridge(store)

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	store.getErr = errors.New("connection reset")
	res := b.Await(ctx, "g", always)

	assert.Equal(t, OutcomeStorageError, res.Outcome)
	assert.Error(t, res.Err)
	assert.Zero(t, store.deletes)
	_, ok := store.row("g")
	assert.True(t, ok, "row must survive a storage failure")
}

func TestAwaitMissingRowIsStorageError(t *testing.T) {
	b, _ := newTestBridge(newMemRolls())
	res := b.Await(context.Background(), "ghost", always)
	assert.Equal(t, OutcomeStorageError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrRollNotFound)
}

func TestAwaitTimesOutAfterBudget(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	b, clk := newTestBridge(store)
	start := clk.Now()

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	res := b.Await(ctx, "g", always)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Equal(t, 30, res.Attempts)
	assert.Equal(t, 30, store.gets)
	assert.Equal(t, 60*time.Second, clk.Now().Sub(start))
	_, ok := store.row("g")
	assert.True(t, ok)
}

func TestAwaitAbandonsWhenGameMovesOn(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	b, _ := newTestBridge(store)
	require.NoError(t, b.Request(ctx, "g", -1, 7))

	checks := 0
	res := b.Await(ctx, "g", func() bool {
		checks++
		return checks < 4
	})

	assert.Equal(t, OutcomeAbandoned, res.Outcome)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 3, store.gets, "storage is not read after the game moved on")
}

func TestAwaitAbandonsOnCancelledContext(t *testing.T) {
	b, _ := newTestBridge(newMemRolls())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := b.Await(ctx, "g", always)
	assert.Equal(t, OutcomeAbandoned, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRequestSupersedesEarlierRequest(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	b, _ := newTestBridge(store)

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	row, _ := store.row("g")
	row.Status = model.RollCompleted
	row.RollValue = intPtr(6)

	require.NoError(t, b.Request(ctx, "g", -1, 7))
	row, ok := store.row("g")
	require.True(t, ok)
	assert.Equal(t, model.RollPending, row.Status)
	assert.Nil(t, row.RollValue)
	assert.Len(t, store.rows, 1)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	store := newMemRolls()
	b, _ := newTestBridge(store)
	require.NoError(t, b.Request(ctx, "g", -1, 7))

	require.NoError(t, b.Discard(ctx, "g"))
	_, ok := store.row("g")
	assert.False(t, ok)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
