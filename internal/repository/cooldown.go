package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CooldownStore throttles repeated code requests for the same email.
type CooldownStore interface {
	// Acquire returns true if the email may be sent a code now, and starts
	// the cooldown window. Returns false while a window is still open.
	Acquire(ctx context.Context, email string, ttl time.Duration) (bool, error)
}

type redisCooldownStore struct {
	rdb *redis.Client
}

// NewCooldownStore builds a redis-backed cooldown store.
func NewCooldownStore(rdb *redis.Client) CooldownStore {
	return &redisCooldownStore{rdb: rdb}
}

func (s *redisCooldownStore) Acquire(ctx context.Context, email string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, "otp:cooldown:"+email, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown setnx: %w", err)
	}
	return ok, nil
}

// noopCooldownStore always allows sending; used when redis is not configured.
type noopCooldownStore struct{}

func NewNoopCooldownStore() CooldownStore {
	return noopCooldownStore{}
}

func (noopCooldownStore) Acquire(ctx context.Context, email string, ttl time.Duration) (bool, error) {
	return true, nil
}
