package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-watch/internal/models"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps per-chat conversations in Redis with a TTL, so an
// abandoned "awaiting address" prompt expires on its own.
type RedisSessionStore struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewRedisSessionStore creates a session store
func NewRedisSessionStore(cache *RedisCache, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionStore{cache: cache, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(chatID, 10)
}

// Load returns the stored conversation, or an idle one if none exists
func (s *RedisSessionStore) Load(ctx context.Context, chatID int64) (models.Conversation, error) {
	conv := models.Conversation{ChatID: chatID}

	raw, err := s.cache.client.Get(ctx, sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return conv, nil
	}
	if err != nil {
		return conv, fmt.Errorf("failed to load session: %w", err)
	}
	if err := json.Unmarshal(raw, &conv); err != nil {
		return models.Conversation{ChatID: chatID}, fmt.Errorf("failed to decode session: %w", err)
	}
	return conv, nil
}

// Save persists conv; an idle conversation is deleted instead
func (s *RedisSessionStore) Save(ctx context.Context, conv models.Conversation) error {
	if conv.State == models.ConversationIdle {
		return s.cache.client.Del(ctx, sessionKey(conv.ChatID)).Err()
	}

	conv.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.cache.client.Set(ctx, sessionKey(conv.ChatID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// MemorySessionStore is the in-process session store used without Redis
type MemorySessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	convs map[int64]models.Conversation
}

// NewMemorySessionStore creates an in-memory session store
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemorySessionStore{ttl: ttl, now: time.Now, convs: make(map[int64]models.Conversation)}
}

// Load returns the stored conversation, or an idle one if none exists or it expired
func (s *MemorySessionStore) Load(_ context.Context, chatID int64) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[chatID]
	if !ok || s.now().Sub(conv.UpdatedAt) > s.ttl {
		delete(s.convs, chatID)
		return models.Conversation{ChatID: chatID}, nil
	}
	return conv, nil
}

// Save persists conv; an idle conversation is deleted instead
func (s *MemorySessionStore) Save(_ context.Context, conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.State == models.ConversationIdle {
		delete(s.convs, conv.ChatID)
		return nil
	}
	conv.UpdatedAt = s.now()
	s.convs[conv.ChatID] = conv
	return nil
}
