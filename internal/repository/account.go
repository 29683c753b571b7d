// Package repository provides PostgreSQL-backed stores.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-casino-bot/internal/ledger"
	"telegram-casino-bot/internal/model"
)

// checkViolation is the SQLSTATE raised by users_balance_non_negative.
const checkViolation = "23514"

// AccountRepository is the postgres ledger.Store.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `user_id, display_name, balance, last_played_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var lastPlayed *time.Time
	if err := row.Scan(&a.UserID, &a.DisplayName, &a.Balance, &lastPlayed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if lastPlayed != nil {
		a.LastPlayedAt = *lastPlayed
	}
	return &a, nil
}

// GetAccount returns ledger.ErrAccountNotFound for unknown users.
func (r *AccountRepository) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE user_id = $1`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// CreateAccount inserts the account; a concurrent insert wins and is returned.
func (r *AccountRepository) CreateAccount(ctx context.Context, userID int64, name string, balance int64) (*model.Account, bool, error) {
	query := `
		INSERT INTO users (user_id, display_name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, userID, name, balance))
	if err == nil {
		return acct, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	acct, err = r.GetAccount(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return acct, false, nil
}

// RenameAccount updates the display name.
func (r *AccountRepository) RenameAccount(ctx context.Context, userID int64, name string) error {
	const query = `UPDATE users SET display_name = $2, updated_at = NOW() WHERE user_id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, name)
	if err != nil {
		return fmt.Errorf("failed to rename account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// Apply updates the balance and the chat stats in one transaction. The
// non-negative CHECK constraint is what rejects overdrafts, so concurrent
// debits cannot race past it.
func (r *AccountRepository) Apply(ctx context.Context, adj ledger.Adjustment) (int64, error) {
	const updateBalance = `
		UPDATE users
		SET balance = balance + $2, last_played_at = $3, updated_at = $3
		WHERE user_id = $1
		RETURNING balance
	`
	const upsertStats = `
		INSERT INTO chat_stats (user_id, chat_id, games_played, total_wagered, net)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, chat_id) DO UPDATE SET
			games_played = chat_stats.games_played + EXCLUDED.games_played,
			total_wagered = chat_stats.total_wagered + EXCLUDED.total_wagered,
			net = chat_stats.net + EXCLUDED.net
	`

	var balance int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, updateBalance, adj.UserID, adj.Delta, adj.At).Scan(&balance); err != nil {
			return err
		}
		games, wagered, net := model.StatsDelta(adj.Kind, adj.Delta)
		_, err := tx.Exec(ctx, upsertStats, adj.UserID, adj.ChatID, games, wagered, net)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return 0, ledger.ErrAccountNotFound
		case errors.As(err, &pgErr) && pgErr.Code == checkViolation:
			return 0, ledger.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("failed to apply adjustment: %w", err)
	}
	return balance, nil
}

// ChatStats returns zero stats when the user never played in the chat.
func (r *AccountRepository) ChatStats(ctx context.Context, userID, chatID int64) (*model.ChatStats, error) {
	const query = `
		SELECT user_id, chat_id, games_played, total_wagered, net
		FROM chat_stats
		WHERE user_id = $1 AND chat_id = $2
	`

	var st model.ChatStats
	err := r.pool.QueryRow(ctx, query, userID, chatID).Scan(
		&st.UserID,
		&st.ChatID,
		&st.GamesPlayed,
		&st.TotalWagered,
		&st.Net,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.ChatStats{UserID: userID, ChatID: chatID}, nil
		}
		return nil, fmt.Errorf("failed to get chat stats: %w", err)
	}
	return &st, nil
}
