package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; each one is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			balance BIGINT NOT NULL DEFAULT 0 CONSTRAINT users_balance_non_negative CHECK (balance >= 0),
			last_played_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	},
	{
		name: "chat_stats table",
		sql: `
		CREATE TABLE IF NOT EXISTS chat_stats (
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			chat_id BIGINT NOT NULL,
			games_played BIGINT NOT NULL DEFAULT 0,
			total_wagered BIGINT NOT NULL DEFAULT 0,
			net BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, chat_id)
		);`,
	},
	{
		name: "transactions table",
		sql: `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			chat_id BIGINT NOT NULL DEFAULT 0,
			amount BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);`,
	},
	{
		name: "roll_requests table",
		sql: `
		CREATE TABLE IF NOT EXISTS roll_requests (
			game_id VARCHAR(64) PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			roll_value INT,
			requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_roll_requests_status ON roll_requests(status, requested_at);`,
	},
}

// Migrate creates the schema. The bot must not serve games when it fails.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Msgf("Migration %d: %s ready", i+1, m.name)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
