package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"
)

var (
	LockFailedError        = errors.New("lock failed")
	LockFailedTimeOutError = errors.New("wait time out")
)

type lockKey string

type LockService interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁，立刻返回错误
	//                 2.可以重入锁
	//  @param ctx 原来的ctx
	//  @param key 锁的key
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}

// Synchronized 阻塞同步块, 在 waitTimeout 内反复尝试加锁
// 超时返回 LockFailedTimeOutError, f 返回的错误原样返回
func Synchronized(ctx context.Context, l LockService, key string, maxLockTimeDuration, waitTimeout time.Duration, f func(context.Context) error) error {
	if waitTimeout <= 0 {
		return l.NonBlockingSynchronized(ctx, key, maxLockTimeDuration, f)
	}
	var fnErr error
	called := false
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			err := l.NonBlockingSynchronized(ctx, key, maxLockTimeDuration, func(ctx context.Context) error {
				called = true
				fnErr = f(ctx)
				return nil
			})
			return err
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, LockFailedError)
		},
		Attempts:    -1,
		Delay:       20 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		BackoffFunc: retry.DoubleDelay,
		MaxDuration: waitTimeout,
		Clock:       clock.WallClock,
		Stop:        ctx.Done(),
	})
	if called {
		return fnErr
	}
	if err != nil {
		if retry.IsDurationExceeded(err) || retry.IsRetryStopped(err) {
			return errors.WithMessagef(LockFailedTimeOutError, "[Synchronized] key: %s, err: %v", key, retry.LastError(err))
		}
		return errors.WithMessagef(retry.LastError(err), "[Synchronized] key: %s", key)
	}
	return nil
}

// ProcessInstanceKey 流程实例的锁
func ProcessInstanceKey(tenantID, processInstanceID int64) string {
	return fmt.Sprintf("bpm:%d:process_instance:%d", tenantID, processInstanceID)
}

// ProcessDefinitionKey 流程定义的锁, 部署和删除时使用
func ProcessDefinitionKey(tenantID, processDefinitionID int64) string {
	return fmt.Sprintf("bpm:%d:process_definition:%d", tenantID, processDefinitionID)
}

// TenantKey 租户的锁, 删除租户时使用
func TenantKey(tenantID int64) string {
	return fmt.Sprintf("bpm:tenant:%d", tenantID)
}
