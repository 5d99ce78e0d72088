package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

// DefaultTTL bounds how long a crashed process can keep a profile locked.
// A live holder keeps extending it, so cycles may run longer than the TTL.
const DefaultTTL = 10 * time.Minute

// unlockLua deletes the key only if it still holds the caller's token, so an
// expired holder never releases a lock taken by someone else.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the TTL only while the key still holds the caller's token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// refreshEvery is how often a held lock is extended.
func refreshEvery(ttl time.Duration) time.Duration {
	return ttl / 3
}

// Redis is a per-profile lock shared by every process using the same Redis.
type Redis struct {
	rdb       *redis.Client
	unlockSc  *redis.Script
	refreshSc *redis.Script
	prefix    string
	ttl       time.Duration
}

// RedisConfig holds connection parameters for the lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock.NewRedis: ping %s: %w", cfg.Addr, err)
	}
	return newRedis(rdb, cfg), nil
}

func newRedis(rdb *redis.Client, cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "tradeassist:lock:"
	}
	return &Redis{
		rdb:       rdb,
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
		prefix:    cfg.Prefix,
		ttl:       cfg.TTL,
	}
}

func (r *Redis) key(profileID string) string {
	return r.prefix + profileID
}

// Acquire takes the lock with SETNX and a TTL. It returns domain.ErrLockHeld
// if another holder has it. Until the returned function runs, a watchdog keeps
// extending the TTL.
func (r *Redis) Acquire(ctx context.Context, profileID string) (func(context.Context) error, error) {
	token := uuid.NewString()
	k := r.key(profileID)

	ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", profileID, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock: %s: %w", profileID, domain.ErrLockHeld)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.watch(profileID, k, token, stop, done)

	var once sync.Once
	var uerr error
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.unlockSc.Run(ctx, r.rdb, []string{k}, token).Err(); err != nil {
				uerr = fmt.Errorf("lock: release %s: %w", profileID, err)
			}
		})
		return uerr
	}, nil
}

// watch extends the key every refreshEvery(ttl) until stop is closed. It gives
// up once the token no longer matches; the cycle then runs unprotected, which
// is logged.
func (r *Redis) watch(profileID, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(refreshEvery(r.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := r.refreshSc.Run(ctx, r.rdb, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				slog.Warn("lock: refresh failed", "profile", profileID, "err", err)
			case n == 0:
				slog.Error("lock: lost before release", "profile", profileID)
				return
			}
		}
	}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

var _ ports.RunLock = (*Redis)(nil)
