package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld          = errors.New("lock_held")
	ErrLockNotConfigured = errors.New("lock_not_configured")
)

// releaseScript deletes the key only while it still holds the lease token,
// so an expired lease never frees a lock another replica has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out SETNX leases keyed by name.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock. A nil Lease releases as a no-op.
type Lease struct {
	client    *redis.Client
	key       string
	token     string
	expiresAt time.Time
}

func (l *Lease) Key() string          { return l.key }
func (l *Lease) ExpiresAt() time.Time { return l.expiresAt }

// Release is safe to call more than once.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil || l.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	l.token = ""
	return err
}

// Acquire returns ErrLockHeld while another holder's lease is live.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := ulid.Make().String()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{
		client:    l.client,
		key:       key,
		token:     token,
		expiresAt: time.Now().Add(ttl),
	}, nil
}
