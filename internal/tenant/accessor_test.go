package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/blingmoon/simple-bpm/internal/auth"
	"github.com/blingmoon/simple-bpm/internal/document"
	"github.com/blingmoon/simple-bpm/internal/lock"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceAccessor(t *testing.T) {
	db, err := store.OpenInMemory()
	require.NoError(t, err)

	_, err = NewServiceAccessor(Options{DB: db})
	assert.Error(t, err)

	a, err := NewServiceAccessor(Options{
		DB:                db,
		Lock:              lock.NewLocalLockService(nil),
		Documents:         document.NewStore(t.TempDir(), 0),
		Tokens:            auth.NewTokenIssuer("secret", time.Hour),
		LockMaxTime:       time.Minute,
		TechnicalUser:     "install",
		TechnicalPassword: "install",
	})
	require.NoError(t, err)

	t.Run("租户服务缓存", func(t *testing.T) {
		s1 := a.Tenant(1)
		assert.Same(t, s1, a.Tenant(1))
		assert.Equal(t, int64(1), s1.Repo.TenantID())
		assert.NotSame(t, s1, a.Tenant(2))

		a.Forget(1)
		assert.NotSame(t, s1, a.Tenant(1))
	})

	t.Run("流程实例锁按租户区分", func(t *testing.T) {
		ctx := context.Background()
		err := a.Tenant(1).Synchronized(ctx, 10, func(ctx context.Context) error {
			// 不同租户同一个实例ID 可以同时加锁
			require.NoError(t, a.Tenant(2).Synchronized(context.Background(), 10, func(context.Context) error { return nil }))
			return a.Tenant(1).Synchronized(context.Background(), 10, func(context.Context) error { return nil })
		})
		assert.True(t, errors.Is(err, lock.LockFailedError), "err: %v", err)
	})

	t.Run("技术用户", func(t *testing.T) {
		assert.True(t, a.IsTechnicalUser("install", "install"))
		assert.False(t, a.IsTechnicalUser("install", "wrong"))
	})
}
