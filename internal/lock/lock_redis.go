package lock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	delCommand = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`
)

// NewRedisLockService 分布式锁, 多个引擎节点共享同一个 redis
func NewRedisLockService(redisClient redis.Cmdable, log *zap.Logger) LockService {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisLockService{redisClient: redisClient, log: log}
}

type redisLockService struct {
	redisClient redis.Cmdable
	log         *zap.Logger
}

func (d *redisLockService) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(ctx2 context.Context) error) error {
	if _, ok := ctx.Value(lockKey(key)).(string); ok {
		// 之前成功上锁了,继续执行即可
		return f(ctx)
	}
	value := d.getRandomValue()
	isLock, err := d.redisClient.SetNX(ctx, key, value, maxLockTimeDuration).Result()
	if err != nil {
		return errors.WithMessagef(LockFailedError, "[redisLockService.NonBlockingSynchronized] key: %s, err: %v", key, err)
	}
	if !isLock {
		return errors.WithMessagef(LockFailedError, "[redisLockService.NonBlockingSynchronized] key: %s has been locked", key)
	}
	defer d.releaseKey(key, value)
	return f(context.WithValue(ctx, lockKey(key), value))
}

func (d *redisLockService) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

func (d *redisLockService) releaseKey(key string, value string) {
	// 释放锁, 因为context 可能会被cancel，确保释放锁需要新开一个context,不能用原来的
	reply, err := d.redisClient.Eval(context.Background(), delCommand, []string{key}, value).Int64()
	if err != nil {
		d.log.Warn("[redisLockService.releaseKey] release key failed", zap.String("key", key), zap.Error(err))
		return
	}
	if reply != 1 {
		// 没有成功释放, 锁已经过期
		d.log.Warn("[redisLockService.releaseKey] lock already expired", zap.String("key", key), zap.Int64("reply", reply))
	}
}
