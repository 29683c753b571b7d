package ledger

import (
	"context"
	"sync"
	"time"

	"telegram-casino-bot/internal/model"
)

// Adjustment is a single proposed balance change.
type Adjustment struct {
	UserID int64
	ChatID int64
	Delta  int64
	Kind   model.TxKind
	At     time.Time
}

// Store persists accounts. Apply must be atomic per account: it either
// commits the new balance together with the stats update, or changes nothing.
type Store interface {
	GetAccount(ctx context.Context, userID int64) (*model.Account, error)
	// CreateAccount inserts the account unless it already exists, in which
	// case the existing one is returned with created=false.
	CreateAccount(ctx context.Context, userID int64, name string, balance int64) (acct *model.Account, created bool, err error)
	RenameAccount(ctx context.Context, userID int64, name string) error
	Apply(ctx context.Context, adj Adjustment) (int64, error)
	ChatStats(ctx context.Context, userID, chatID int64) (*model.ChatStats, error)
}

type statsKey struct {
	userID int64
	chatID int64
}

// MemoryStore keeps accounts in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
	stats    map[statsKey]*model.ChatStats
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*model.Account),
		stats:    make(map[statsKey]*model.ChatStats),
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, userID int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	c := *acct
	return &c, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, userID int64, name string, balance int64) (*model.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, ok := s.accounts[userID]; ok {
		c := *acct
		return &c, false, nil
	}

	now := time.Now()
	acct := &model.Account{
		UserID:      userID,
		DisplayName: name,
		Balance:     balance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.accounts[userID] = acct
	c := *acct
	return &c, true, nil
}

func (s *MemoryStore) RenameAccount(_ context.Context, userID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	acct.DisplayName = name
	acct.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Apply(_ context.Context, adj Adjustment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[adj.UserID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	next := acct.Balance + adj.Delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}

	acct.Balance = next
	acct.LastPlayedAt = adj.At
	acct.UpdatedAt = adj.At

	key := statsKey{adj.UserID, adj.ChatID}
	st, ok := s.stats[key]
	if !ok {
		st = &model.ChatStats{UserID: adj.UserID, ChatID: adj.ChatID}
		s.stats[key] = st
	}
	games, wagered, net := model.StatsDelta(adj.Kind, adj.Delta)
	st.GamesPlayed += games
	st.TotalWagered += wagered
	st.Net += net

	return next, nil
}

func (s *MemoryStore) ChatStats(_ context.Context, userID, chatID int64) (*model.ChatStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stats[statsKey{userID, chatID}]; ok {
		c := *st
		return &c, nil
	}
	return &model.ChatStats{UserID: userID, ChatID: chatID}, nil
}

// Total sums every balance; handy for conservation checks.
func (s *MemoryStore) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, acct := range s.accounts {
		total += acct.Balance
	}
	return total
}
