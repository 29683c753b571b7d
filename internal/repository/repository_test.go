// Integration tests run against a PostgreSQL container and are skipped
// when docker is unavailable.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-casino-bot/internal/ledger"
	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/oracle"
	"telegram-casino-bot/internal/pkg/db"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestDB starts a PostgreSQL container with the bot schema applied.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))
	// migrations are idempotent
	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

// ============================================================================
// AccountRepository
// ============================================================================

func TestAccountRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		acct, created, err := repo.CreateAccount(ctx, 100, "alice", 1000)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(1000), acct.Balance)
		assert.True(t, acct.LastPlayedAt.IsZero())

		again, created, err := repo.CreateAccount(ctx, 100, "other", 5)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "alice", again.DisplayName)
		assert.Equal(t, int64(1000), again.Balance)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := repo.GetAccount(ctx, 999)
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
		assert.ErrorIs(t, repo.RenameAccount(ctx, 999, "x"), ledger.ErrAccountNotFound)

		_, err = repo.Apply(ctx, ledger.Adjustment{UserID: 999, Delta: 5, Kind: model.TxWin, At: time.Now()})
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, repo.RenameAccount(ctx, 100, "alice2"))
		acct, err := repo.GetAccount(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "alice2", acct.DisplayName)
	})

	t.Run("apply updates balance and stats", func(t *testing.T) {
		now := time.Now()
		balance, err := repo.Apply(ctx, ledger.Adjustment{UserID: 100, ChatID: -1, Delta: -40, Kind: model.TxBet, At: now})
		require.NoError(t, err)
		assert.Equal(t, int64(960), balance)

		balance, err = repo.Apply(ctx, ledger.Adjustment{UserID: 100, ChatID: -1, Delta: 80, Kind: model.TxWin, At: now})
		require.NoError(t, err)
		assert.Equal(t, int64(1040), balance)

		st, err := repo.ChatStats(ctx, 100, -1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), st.GamesPlayed)
		assert.Equal(t, int64(40), st.TotalWagered)
		assert.Equal(t, int64(40), st.Net)

		acct, err := repo.GetAccount(ctx, 100)
		require.NoError(t, err)
		assert.False(t, acct.LastPlayedAt.IsZero())
	})

	t.Run("overdraft is rejected without side effects", func(t *testing.T) {
		_, err := repo.Apply(ctx, ledger.Adjustment{UserID: 100, ChatID: -1, Delta: -5000, Kind: model.TxBet, At: time.Now()})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		acct, err := repo.GetAccount(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1040), acct.Balance)

		st, err := repo.ChatStats(ctx, 100, -1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), st.GamesPlayed)
	})

	t.Run("missing stats are zero", func(t *testing.T) {
		st, err := repo.ChatStats(ctx, 100, -42)
		require.NoError(t, err)
		assert.Zero(t, st.GamesPlayed)
	})
}

func TestAccountRepository_ConcurrentDebits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()
	_, _, err := repo.CreateAccount(ctx, 1, "p", 100)
	require.NoError(t, err)

	var mu sync.Mutex
	accepted := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Apply(ctx, ledger.Adjustment{UserID: 1, ChatID: -1, Delta: -10, Kind: model.TxBet, At: time.Now()})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	acct, err := repo.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, acct.Balance)
}

func TestLedgerOnPostgres(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewTransactionRepository(pool)
	l := ledger.New(NewAccountRepository(pool), journal, 500)

	_, created, err := l.GetOrCreateAccount(ctx, 7, "bob")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = l.AdjustBalance(ctx, 7, -100, model.TxBet, -3)
	require.NoError(t, err)
	_, err = l.AdjustBalance(ctx, 7, -1000, model.TxBet, -3)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	txs, err := journal.Recent(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxBet, txs[0].Kind)
	assert.Equal(t, int64(-100), txs[0].Amount)
	assert.Equal(t, int64(-3), txs[0].ChatID)
	assert.Equal(t, model.TxInitial, txs[1].Kind)
}

// ============================================================================
// RollRequestRepository
// ============================================================================

func TestRollRequestRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRollRequestRepository(pool)
	ctx := context.Background()

	t.Run("missing row", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, oracle.ErrRollNotFound)
		assert.NoError(t, repo.Delete(ctx, "nope"))
	})

	t.Run("upsert supersedes a completed request", func(t *testing.T) {
		req := &model.RollRequest{GameID: "g1", ChatID: -1, UserID: 5}
		require.NoError(t, repo.Upsert(ctx, req))

		got, err := repo.Get(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, model.RollPending, got.Status)
		assert.Nil(t, got.RollValue)

		ok, err := repo.Complete(ctx, "g1", 4)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err = repo.Get(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, model.RollCompleted, got.Status)
		require.NotNil(t, got.RollValue)
		assert.Equal(t, 4, *got.RollValue)
		assert.NotNil(t, got.ProcessedAt)

		require.NoError(t, repo.Upsert(ctx, req))
		got, err = repo.Get(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, model.RollPending, got.Status)
		assert.Nil(t, got.RollValue)
		assert.Nil(t, got.ProcessedAt)
	})

	t.Run("complete only touches pending rows", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &model.RollRequest{GameID: "g2", ChatID: -1, UserID: 5}))
		ok, err := repo.Fail(ctx, "g2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Complete(ctx, "g2", 3)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.Get(ctx, "g2")
		require.NoError(t, err)
		assert.Equal(t, model.RollError, got.Status)
	})

	t.Run("pending and delete", func(t *testing.T) {
		pending, err := repo.Pending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "g1", pending[0].GameID)

		require.NoError(t, repo.Delete(ctx, "g1"))
		_, err = repo.Get(ctx, "g1")
		assert.ErrorIs(t, err, oracle.ErrRollNotFound)
	})
}
