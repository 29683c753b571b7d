package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/oracle"
)

// RollRequestRepository is the roll_requests table shared with the
// external roll service.
type RollRequestRepository struct {
	pool *pgxpool.Pool
}

// NewRollRequestRepository creates a new RollRequestRepository.
func NewRollRequestRepository(pool *pgxpool.Pool) *RollRequestRepository {
	return &RollRequestRepository{pool: pool}
}

// Upsert writes a pending request, superseding any earlier one for the game.
func (r *RollRequestRepository) Upsert(ctx context.Context, req *model.RollRequest) error {
	const query = `
		INSERT INTO roll_requests (game_id, chat_id, user_id, status, roll_value, requested_at, processed_at)
		VALUES ($1, $2, $3, 'pending', NULL, NOW(), NULL)
		ON CONFLICT (game_id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			user_id = EXCLUDED.user_id,
			status = 'pending',
			roll_value = NULL,
			requested_at = NOW(),
			processed_at = NULL
	`
	if _, err := r.pool.Exec(ctx, query, req.GameID, req.ChatID, req.UserID); err != nil {
		return fmt.Errorf("failed to upsert roll request: %w", err)
	}
	return nil
}

// Get returns oracle.ErrRollNotFound when there is no row for the game.
func (r *RollRequestRepository) Get(ctx context.Context, gameID string) (*model.RollRequest, error) {
	const query = `
		SELECT game_id, chat_id, user_id, status, roll_value, requested_at, processed_at
		FROM roll_requests
		WHERE game_id = $1
	`

	req, err := scanRollRequest(r.pool.QueryRow(ctx, query, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oracle.ErrRollNotFound
		}
		return nil, fmt.Errorf("failed to get roll request: %w", err)
	}
	return req, nil
}

// Delete removes the row; deleting a missing row is not an error.
func (r *RollRequestRepository) Delete(ctx context.Context, gameID string) error {
	const query = `DELETE FROM roll_requests WHERE game_id = $1`
	if _, err := r.pool.Exec(ctx, query, gameID); err != nil {
		return fmt.Errorf("failed to delete roll request: %w", err)
	}
	return nil
}

// Pending returns up to limit pending requests, oldest first.
func (r *RollRequestRepository) Pending(ctx context.Context, limit int) ([]*model.RollRequest, error) {
	const query = `
		SELECT game_id, chat_id, user_id, status, roll_value, requested_at, processed_at
		FROM roll_requests
		WHERE status = 'pending'
		ORDER BY requested_at
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending rolls: %w", err)
	}
	defer rows.Close()

	var reqs []*model.RollRequest
	for rows.Next() {
		req, err := scanRollRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roll request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// Complete fulfils a pending request. It reports false when the row was
// no longer pending.
func (r *RollRequestRepository) Complete(ctx context.Context, gameID string, value int) (bool, error) {
	const query = `
		UPDATE roll_requests
		SET status = 'completed', roll_value = $2, processed_at = NOW()
		WHERE game_id = $1 AND status IN ('pending', 'processing')
	`
	tag, err := r.pool.Exec(ctx, query, gameID, value)
	if err != nil {
		return false, fmt.Errorf("failed to complete roll request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Fail marks a pending request as errored.
func (r *RollRequestRepository) Fail(ctx context.Context, gameID string) (bool, error) {
	const query = `
		UPDATE roll_requests
		SET status = 'error', processed_at = NOW()
		WHERE game_id = $1 AND status IN ('pending', 'processing')
	`
	tag, err := r.pool.Exec(ctx, query, gameID)
	if err != nil {
		return false, fmt.Errorf("failed to fail roll request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRollRequest(row pgx.Row) (*model.RollRequest, error) {
	var req model.RollRequest
	var status string
	err := row.Scan(
		&req.GameID,
		&req.ChatID,
		&req.UserID,
		&status,
		&req.RollValue,
		&req.RequestedAt,
		&req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = model.RollStatus(status)
	return &req, nil
}
