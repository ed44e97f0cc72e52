package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("too many failed login attempts")

// Store counts failed logins per email. A nil *Store is valid and never
// throttles, which is how the service runs without Redis.
type Store struct {
	rdb         *redis.Client
	maxFailures int
	lockout     time.Duration
}

// Connect opens a client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func NewStore(rdb *redis.Client, maxFailures int, lockout time.Duration) *Store {
	if maxFailures < 1 {
		maxFailures = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &Store{rdb: rdb, maxFailures: maxFailures, lockout: lockout}
}

func loginFailKey(email string) string {
	return "login:fail:" + email
}

// CheckLogin returns ErrTooManyAttempts once the email reached the failure
// limit inside the lockout window.
func (s *Store) CheckLogin(ctx context.Context, email string) error {
	if s == nil {
		return nil
	}
	n, err := s.rdb.Get(ctx, loginFailKey(email)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if n >= s.maxFailures {
		return ErrTooManyAttempts
	}
	return nil
}

// RecordLoginFailure bumps the counter. The window starts at the first
// failure and is not extended by later ones.
func (s *Store) RecordLoginFailure(ctx context.Context, email string) error {
	if s == nil {
		return nil
	}
	key := loginFailKey(email)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, s.lockout)
		return nil
	})
	return err
}

func (s *Store) ResetLogin(ctx context.Context, email string) error {
	if s == nil {
		return nil
	}
	return s.rdb.Del(ctx, loginFailKey(email)).Err()
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
