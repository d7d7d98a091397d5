package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/redis/go-redis/v9"
)

// CartStore хранит снимок корзины между запросами и перезапусками процесса.
// Заказы здесь не хранятся
type CartStore interface {
	Load(ctx context.Context, key string) ([]models.LineItem, error)
	Save(ctx context.Context, key string, items []models.LineItem) error
	Delete(ctx context.Context, key string) error
}

// MemoryCartStore - хранилище в памяти процесса
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string][]models.LineItem
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string][]models.LineItem)}
}

func (s *MemoryCartStore) Load(_ context.Context, key string) ([]models.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.carts[key]
	out := make([]models.LineItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *MemoryCartStore) Save(_ context.Context, key string, items []models.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) == 0 {
		delete(s.carts, key)
		return nil
	}
	cp := make([]models.LineItem, len(items))
	copy(cp, items)
	s.carts[key] = cp
	return nil
}

func (s *MemoryCartStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, key)
	return nil
}

// RedisCartStore хранит корзину в Redis с TTL, продлеваемым при каждом сохранении
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCartStore{client: client, ttl: ttl}
}

func (r *RedisCartStore) Load(ctx context.Context, key string) ([]models.LineItem, error) {
	data, err := r.client.Get(ctx, cartKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []models.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, nil
}

func (r *RedisCartStore) Save(ctx context.Context, key string, items []models.LineItem) error {
	if len(items) == 0 {
		return r.Delete(ctx, key)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCartStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cartKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(key string) string {
	return "cart:" + key
}
