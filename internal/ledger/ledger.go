// Package ledger owns player balances and per-chat statistics.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/metrics"
	"telegram-casino-bot/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidKind       = errors.New("invalid transaction kind")
	ErrInvalidAmount     = errors.New("amount sign does not match transaction kind")
)

// Journal records committed adjustments. Failures never undo an adjustment.
type Journal interface {
	Record(ctx context.Context, userID, chatID, amount int64, kind model.TxKind) error
}

// Ledger is the only path through which balances change.
type Ledger struct {
	store           Store
	journal         Journal
	startingBalance int64
	now             func() time.Time
}

// New creates a Ledger. journal may be nil.
func New(store Store, journal Journal, startingBalance int64) *Ledger {
	return &Ledger{
		store:           store,
		journal:         journal,
		startingBalance: startingBalance,
		now:             time.Now,
	}
}

// GetOrCreateAccount returns the account for userID, creating it with the
// starting balance on first contact. The bool reports whether it was created.
func (l *Ledger) GetOrCreateAccount(ctx context.Context, userID int64, displayName string) (*model.Account, bool, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if err == nil {
		if displayName != "" && acct.DisplayName != displayName {
			if err := l.store.RenameAccount(ctx, userID, displayName); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to refresh display name")
			} else {
				acct.DisplayName = displayName
			}
		}
		return acct, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, fmt.Errorf("failed to get account: %w", err)
	}

	acct, created, err := l.store.CreateAccount(ctx, userID, displayName, l.startingBalance)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}
	if created {
		metrics.AccountsCreated.Inc()
		log.Info().
			Int64("user_id", userID).
			Str("name", displayName).
			Int64("balance", acct.Balance).
			Msg("Account created")
		l.record(ctx, userID, 0, acct.Balance, model.TxInitial)
	}
	return acct, created, nil
}

// AdjustBalance applies delta to the account in one atomic step. Debits that
// would leave a negative balance fail with ErrInsufficientFunds and change
// nothing.
func (l *Ledger) AdjustBalance(ctx context.Context, userID, delta int64, kind model.TxKind, chatID int64) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if (kind == model.TxBet) != (delta < 0) || delta == 0 {
		return 0, fmt.Errorf("%w: %s %d", ErrInvalidAmount, kind, delta)
	}

	balance, err := l.store.Apply(ctx, Adjustment{
		UserID: userID,
		ChatID: chatID,
		Delta:  delta,
		Kind:   kind,
		At:     l.now(),
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.LedgerRejections.Inc()
			log.Debug().
				Int64("user_id", userID).
				Int64("delta", delta).
				Msg("Adjustment rejected: insufficient funds")
			return 0, ErrInsufficientFunds
		}
		if errors.Is(err, ErrAccountNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}

	metrics.LedgerAdjustments.WithLabelValues(string(kind)).Inc()
	log.Debug().
		Int64("user_id", userID).
		Int64("chat_id", chatID).
		Int64("delta", delta).
		Str("kind", string(kind)).
		Int64("balance", balance).
		Msg("Balance adjusted")

	l.record(ctx, userID, chatID, delta, kind)
	return balance, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Stats returns the per-chat statistics; zero stats when none were recorded.
func (l *Ledger) Stats(ctx context.Context, userID, chatID int64) (*model.ChatStats, error) {
	return l.store.ChatStats(ctx, userID, chatID)
}

func (l *Ledger) record(ctx context.Context, userID, chatID, amount int64, kind model.TxKind) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Record(ctx, userID, chatID, amount, kind); err != nil {
		log.Warn().Err(err).
			Int64("user_id", userID).
			Str("kind", string(kind)).
			Msg("Failed to journal adjustment")
	}
}
