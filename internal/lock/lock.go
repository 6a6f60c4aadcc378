// Package lock provides the run lock that keeps two migrate runs from working
// on the same database at once.
// This package is internal and should not be imported by external projects.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/config"
	"github.com/BaSui01/eggmigrate/internal/tlsutil"
	"github.com/BaSui01/eggmigrate/types"
)

// =============================================================================
// 🔒 Redis 运行锁
// =============================================================================

// 只有持有者才能续期或释放锁
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Locker 基于 Redis SET NX 的运行锁
type Locker struct {
	redis  *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// New 连接 Redis 并创建运行锁
func New(cfg config.LockConfig, logger *zap.Logger) (*Locker, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ClientConfig(cfg.Addr)
	}
	client := redis.NewClient(opts)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.Key, cfg.TTL, logger), nil
}

// NewWithClient 使用已有的 Redis 客户端创建运行锁
func NewWithClient(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = config.DefaultLockConfig().Key
	}
	if ttl <= 0 {
		ttl = config.DefaultLockConfig().TTL
	}
	return &Locker{
		redis:  client,
		key:    key,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "run_lock"), zap.String("key", key)),
	}
}

// Acquire 获取锁。锁被他人持有时返回 LOCK_HELD 错误。
// 持有期间后台每 ttl/3 续期一次，直到 Release。
// Lease.Context 派生自 ctx，锁丢失时以 LOCK_LOST 为 cause 取消。
func (l *Locker) Acquire(ctx context.Context, owner string) (*Lease, error) {
	ok, err := l.redis.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		holder, err := l.redis.Get(ctx, l.key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read run lock holder: %w", err)
		}
		return nil, types.Errorf(types.ErrLockHeld, "run lock %s is held by %q", l.key, holder)
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{
		locker: l,
		owner:  owner,
		ctx:    leaseCtx,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()

	l.logger.Info("run lock acquired", zap.String("owner", owner), zap.Duration("ttl", l.ttl))
	return lease, nil
}

// Holder 返回当前持有者，未被持有时返回空字符串
func (l *Locker) Holder(ctx context.Context) (string, error) {
	holder, err := l.redis.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}

// Close 关闭 Redis 连接
func (l *Locker) Close() error {
	return l.redis.Close()
}

// =============================================================================
// 🎫 Lease
// =============================================================================

// Lease 表示一次成功获取的锁
type Lease struct {
	locker *Locker
	owner  string
	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Owner 返回持有者标识
func (le *Lease) Owner() string { return le.owner }

// Context 在锁丢失或 Release 后被取消。
// 锁丢失时 context.Cause 返回 LOCK_LOST 错误。
func (le *Lease) Context() context.Context { return le.ctx }

// Lost 返回锁丢失的错误，锁仍然持有（或已正常释放）时返回 nil
func (le *Lease) Lost() error {
	if cause := context.Cause(le.ctx); types.IsErrorCode(cause, types.ErrLockLost) {
		return cause
	}
	return nil
}

func (le *Lease) keepAlive() {
	defer close(le.done)

	ticker := time.NewTicker(le.locker.ttl / 3)
	defer ticker.Stop()

	// 续期一直失败超过 ttl 时，key 已经过期
	lastRefresh := time.Now()
	for {
		select {
		case <-le.stop:
			return
		case <-le.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), le.locker.ttl/3)
			n, err := refreshScript.Run(ctx, le.locker.redis, []string{le.locker.key},
				le.owner, le.locker.ttl.Milliseconds()).Int64()
			cancel()
			switch {
			case err != nil && time.Since(lastRefresh) >= le.locker.ttl:
				le.lose(fmt.Sprintf("run lock %s could not be refreshed for %s", le.locker.key, le.locker.ttl), err)
				return
			case err != nil:
				le.locker.logger.Warn("run lock refresh failed", zap.Error(err))
			case n == 0:
				le.lose(fmt.Sprintf("run lock %s is no longer held by %q", le.locker.key, le.owner), nil)
				return
			default:
				lastRefresh = time.Now()
			}
		}
	}
}

func (le *Lease) lose(message string, cause error) {
	le.locker.logger.Error("run lock lost", zap.String("owner", le.owner), zap.Error(cause))
	lost := types.NewError(types.ErrLockLost, message)
	if cause != nil {
		lost = lost.WithCause(cause)
	}
	le.cancel(lost)
}

// Release 停止续期并释放锁。重复调用是安全的。
func (le *Lease) Release(ctx context.Context) error {
	var err error
	le.once.Do(func() {
		close(le.stop)
		<-le.done
		defer le.cancel(nil)

		var n int64
		n, err = releaseScript.Run(ctx, le.locker.redis, []string{le.locker.key}, le.owner).Int64()
		if err != nil {
			err = fmt.Errorf("release run lock: %w", err)
			return
		}
		if n == 0 {
			le.locker.logger.Warn("run lock was no longer held at release", zap.String("owner", le.owner))
			return
		}
		le.locker.logger.Info("run lock released", zap.String("owner", le.owner))
	})
	return err
}
