package lock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewLocalLockService 进程内的锁, 单实例部署或者测试使用
func NewLocalLockService(log *zap.Logger) LockService {
	if log == nil {
		log = zap.NewNop()
	}
	return &localLockService{
		locks: make(map[string]*localLockInfo),
		log:   log,
	}
}

type localLockService struct {
	mu    sync.Mutex
	locks map[string]*localLockInfo
	log   *zap.Logger
}

type localLockInfo struct {
	value    string    // 锁的值，用于验证是否是同一个持有者
	expireAt time.Time // 过期时间, 过期后其他人可以直接抢占
}

// NonBlockingSynchronized 非阻塞同步执行
func (l *localLockService) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	// 已经持有锁，可重入，直接执行
	if _, ok := ctx.Value(lockKey(key)).(string); ok {
		return f(ctx)
	}

	value := l.getRandomValue()
	if !l.tryAcquire(key, value, maxLockTimeDuration) {
		return errors.WithMessagef(LockFailedError, "[localLockService.NonBlockingSynchronized] key: %s has been locked", key)
	}
	defer l.releaseKey(key, value)

	return f(context.WithValue(ctx, lockKey(key), value))
}

func (l *localLockService) tryAcquire(key string, value string, maxLockTimeDuration time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if info, ok := l.locks[key]; ok && now.Before(info.expireAt) {
		return false
	}
	l.locks[key] = &localLockInfo{
		value:    value,
		expireAt: now.Add(maxLockTimeDuration),
	}
	return true
}

func (l *localLockService) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

// releaseKey 释放锁, 过期后被别人抢占的锁不能释放
func (l *localLockService) releaseKey(key string, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.locks[key]
	if !ok {
		return
	}
	if info.value != value {
		l.log.Warn("[localLockService.releaseKey] lock expired and taken by another holder", zap.String("key", key))
		return
	}
	delete(l.locks, key)
}
