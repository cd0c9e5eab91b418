package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryOrderStore хранит заказы в памяти процесса. Истёкшие заказы удаляются
// при чтении и периодически при сохранении новых.
type MemoryOrderStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	orders    map[string]memoryOrder
	lastSweep time.Time
	now       func() time.Time
}

type memoryOrder struct {
	order     Order
	expiresAt time.Time
}

func (o memoryOrder) expired(now time.Time) bool {
	return !o.expiresAt.IsZero() && now.After(o.expiresAt)
}

// NewMemoryOrderStore создаёт хранилище заказов в памяти. Нулевой ttl означает бессрочное хранение.
func NewMemoryOrderStore(ttl time.Duration) *MemoryOrderStore {
	return &MemoryOrderStore{
		ttl:    ttl,
		orders: make(map[string]memoryOrder),
		now:    time.Now,
	}
}

// Save сохраняет заказ.
func (s *MemoryOrderStore) Save(_ context.Context, order Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
		if now.Sub(s.lastSweep) >= s.ttl {
			s.sweep(now)
		}
	}
	s.orders[order.ID] = memoryOrder{order: order, expiresAt: expiresAt}
	return nil
}

// Get возвращает заказ по идентификатору.
func (s *MemoryOrderStore) Get(_ context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if entry.expired(s.now()) {
		delete(s.orders, orderID)
		return Order{}, ErrOrderNotFound
	}
	return entry.order, nil
}

func (s *MemoryOrderStore) sweep(now time.Time) {
	for id, entry := range s.orders {
		if entry.expired(now) {
			delete(s.orders, id)
		}
	}
	s.lastSweep = now
}

// RedisOrderStore хранит заказы в Redis с ограниченным временем жизни.
type RedisOrderStore struct {
	client *redis.Client
	ttl    time.Duration
}

// ConnectRedis создаёт клиента Redis по URL вида redis://... или по адресу host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisOrderStore создаёт хранилище заказов поверх клиента Redis.
func NewRedisOrderStore(client *redis.Client, ttl time.Duration) *RedisOrderStore {
	return &RedisOrderStore{client: client, ttl: ttl}
}

func orderKey(orderID string) string {
	return "gateway:order:" + orderID
}

// Save сохраняет заказ.
func (s *RedisOrderStore) Save(ctx context.Context, order Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := s.client.Set(ctx, orderKey(order.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get возвращает заказ по идентификатору.
func (s *RedisOrderStore) Get(ctx context.Context, orderID string) (Order, error) {
	payload, err := s.client.Get(ctx, orderKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("redis get: %w", err)
	}

	var order Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return Order{}, fmt.Errorf("unmarshal order: %w", err)
	}
	return order, nil
}

// Close закрывает соединение с Redis.
func (s *RedisOrderStore) Close() error {
	return s.client.Close()
}
