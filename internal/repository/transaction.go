package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-casino-bot/internal/model"
)

// TransactionRepository is the adjustment journal.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Record implements ledger.Journal.
func (r *TransactionRepository) Record(ctx context.Context, userID, chatID, amount int64, kind model.TxKind) error {
	const query = `
		INSERT INTO transactions (user_id, chat_id, amount, kind, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := r.pool.Exec(ctx, query, userID, chatID, amount, string(kind)); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Recent returns the newest journal entries for a user.
func (r *TransactionRepository) Recent(ctx context.Context, userID int64, limit int) ([]model.Transaction, error) {
	const query = `
		SELECT id, user_id, chat_id, amount, kind, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var kind string
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.ChatID, &tx.Amount, &kind, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Kind = model.TxKind(kind)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}
