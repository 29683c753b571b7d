package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"telegram-casino-bot/internal/config"
	"telegram-casino-bot/internal/model"
)

// MemoryStore keeps group sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*model.GroupSession
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*model.GroupSession)}
}

func (m *MemoryStore) Get(_ context.Context, chatID int64) (*model.GroupSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *model.GroupSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ChatID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*model.GroupSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.GroupSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

// RedisStore keeps group sessions as JSON strings under prefix+chatID.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "casino:group:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(chatID int64) string {
	return s.prefix + strconv.FormatInt(chatID, 10)
}

func (s *RedisStore) Get(ctx context.Context, chatID int64) (*model.GroupSession, error) {
	data, err := s.client.Get(ctx, s.key(chatID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var gs model.GroupSession
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("failed to decode group session %d: %w", chatID, err)
	}
	return &gs, nil
}

func (s *RedisStore) Put(ctx context.Context, gs *model.GroupSession) error {
	data, err := json.Marshal(gs)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(gs.ChatID), data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, s.key(chatID)).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]*model.GroupSession, error) {
	var out []*model.GroupSession
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		chatID, err := strconv.ParseInt(strings.TrimPrefix(iter.Val(), s.prefix), 10, 64)
		if err != nil {
			continue
		}
		gs, err := s.Get(ctx, chatID)
		if err == ErrSessionNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan group sessions: %w", err)
	}
	return out, nil
}

// Ping is used by /healthz.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
