package bpm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformAPI_Platform(t *testing.T) {
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	client, err := New(&Options{DB: db, DocumentDir: t.TempDir(), JWTSecret: "secret", PlatformVersion: "7.0.0"})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("未初始化", func(t *testing.T) {
		created, err := client.Platform.IsPlatformCreated(ctx)
		require.NoError(t, err)
		assert.False(t, created)
		_, err = client.Platform.GetPlatform(ctx)
		assert.True(t, errors.Is(err, ErrPlatformNotFound))
		_, err = client.Platform.CreateTenant(ctx, &TenantCreator{Name: "acme"})
		assert.True(t, errors.Is(err, ErrPlatformNotFound), "err: %v", err)
	})

	t.Run("初始化只执行一次", func(t *testing.T) {
		p, err := client.Platform.CreatePlatform(ctx, "install")
		require.NoError(t, err)
		assert.Equal(t, "7.0.0", p.Version)
		assert.Equal(t, "install", p.CreatedBy)
		again, err := client.Platform.CreatePlatform(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, "install", again.CreatedBy)
	})

	t.Run("缺少参数", func(t *testing.T) {
		_, err := New(&Options{DB: db})
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})
}

func TestPlatformAPI_Tenant(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Platform

	t.Run("第一个租户是默认租户", func(t *testing.T) {
		tenant, err := api.GetDefaultTenant(ctx)
		require.NoError(t, err)
		assert.Equal(t, "acme", tenant.Name)
		assert.Equal(t, TenantStatusActivated, tenant.Status)
	})

	globex, err := api.CreateTenant(ctx, &TenantCreator{Name: "globex", Description: "second"})
	require.NoError(t, err)

	t.Run("新租户未激活", func(t *testing.T) {
		assert.False(t, globex.IsDefault)
		assert.Equal(t, TenantStatusDeactivated, globex.Status)
		_, err := api.CreateTenant(ctx, &TenantCreator{Name: "globex"})
		assert.True(t, errors.Is(err, ErrAlreadyExists))
	})

	t.Run("状态流转", func(t *testing.T) {
		err := api.PauseTenant(ctx, globex.ID)
		assert.True(t, errors.Is(err, ErrTenantStatus))
		require.NoError(t, api.ActivateTenant(ctx, globex.ID))
		require.NoError(t, api.ActivateTenant(ctx, globex.ID))
		require.NoError(t, api.PauseTenant(ctx, globex.ID))
		err = api.DeleteTenant(ctx, globex.ID)
		assert.True(t, errors.Is(err, ErrTenantStatus))
		require.NoError(t, api.ResumeTenant(ctx, globex.ID))
		got, err := api.GetTenantByName(ctx, "globex")
		require.NoError(t, err)
		assert.Equal(t, TenantStatusActivated, got.Status)
	})

	t.Run("修改", func(t *testing.T) {
		name := "globex-corp"
		updated, err := api.UpdateTenant(ctx, globex.ID, &TenantUpdater{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "globex-corp", updated.Name)
		assert.Equal(t, "second", updated.Description)
	})

	t.Run("租户之间数据隔离", func(t *testing.T) {
		globexCtx := WithSession(ctx, &APISession{TenantID: globex.ID, UserName: "install"})
		createUser(t, globexCtx, client, "walter.bates")
		createUser(t, ctx, client, "walter.bates")
		count, err := client.Identity.GetNumberOfUsers(globexCtx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("查询", func(t *testing.T) {
		tenants, err := api.GetTenants(ctx, 0, 10, TenantCriterionNameDesc)
		require.NoError(t, err)
		require.Len(t, tenants, 2)
		assert.Equal(t, "globex-corp", tenants[0].Name)
		result, err := api.SearchTenants(ctx, NewSearchOptions(0, 10).Filter("isDefault", true))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Count)
	})

	t.Run("删除租户和租户下的数据", func(t *testing.T) {
		require.NoError(t, api.DeactivateTenant(ctx, globex.ID))
		require.NoError(t, api.DeleteTenant(ctx, globex.ID))
		_, err := api.GetTenantByID(ctx, globex.ID)
		assert.True(t, errors.Is(err, ErrTenantNotFound))
		count, err := api.GetNumberOfTenants(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// 另一个租户的数据不受影响
		users, err := client.Identity.GetNumberOfUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), users)
	})

	t.Run("删除和激活互斥", func(t *testing.T) {
		initech, err := api.CreateTenant(ctx, &TenantCreator{Name: "initech"})
		require.NoError(t, err)
		require.NoError(t, api.ActivateTenant(ctx, initech.ID))
		err = api.DeleteTenant(ctx, initech.ID)
		assert.True(t, errors.Is(err, ErrTenantStatus), "激活的租户不能删除, err: %v", err)
		require.NoError(t, api.DeactivateTenant(ctx, initech.ID))

		var wg sync.WaitGroup
		var deleteErr, activateErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = api.DeleteTenant(ctx, initech.ID)
		}()
		go func() {
			defer wg.Done()
			activateErr = api.ActivateTenant(ctx, initech.ID)
		}()
		wg.Wait()
		// 要么先删除, 激活找不到租户; 要么先激活, 删除被拒绝
		if deleteErr == nil {
			assert.True(t, errors.Is(activateErr, ErrTenantNotFound), "err: %v", activateErr)
		} else {
			assert.True(t, errors.Is(deleteErr, ErrTenantStatus), "err: %v", deleteErr)
			require.NoError(t, activateErr)
			require.NoError(t, api.DeactivateTenant(ctx, initech.ID))
			require.NoError(t, api.DeleteTenant(ctx, initech.ID))
		}
	})

	t.Run("默认租户不能删除", func(t *testing.T) {
		tenant, err := api.GetDefaultTenant(ctx)
		require.NoError(t, err)
		require.NoError(t, api.DeactivateTenant(ctx, tenant.ID))
		err = api.DeleteTenant(ctx, tenant.ID)
		assert.True(t, errors.Is(err, ErrDeletion))
		require.NoError(t, api.ActivateTenant(ctx, tenant.ID))
	})
}

func TestLoginAPI(t *testing.T) {
	client, ctx := setupClient(t)
	background := context.Background()
	walter := createUser(t, ctx, client, "walter.bates")

	t.Run("普通用户登录", func(t *testing.T) {
		result, err := client.Login.Login(background, "acme", "walter.bates", "bpm")
		require.NoError(t, err)
		assert.Equal(t, walter.ID, result.Session.UserID)
		assert.False(t, result.Session.IsTechnical())

		session, err := client.Login.SessionFromToken(background, result.Token)
		require.NoError(t, err)
		assert.Equal(t, *result.Session, *session)

		user, err := client.Identity.GetUser(ctx, walter.ID)
		require.NoError(t, err)
		assert.InDelta(t, time.Now().UnixMilli(), user.LastConnection, float64(time.Minute.Milliseconds()))
	})

	t.Run("租户名为空使用默认租户", func(t *testing.T) {
		result, err := client.Login.Login(background, "", "walter.bates", "bpm")
		require.NoError(t, err)
		assert.Equal(t, walter.ID, result.Session.UserID)
	})

	t.Run("技术用户", func(t *testing.T) {
		result, err := client.Login.Login(background, "acme", "install", "install")
		require.NoError(t, err)
		assert.True(t, result.Session.IsTechnical())
	})

	t.Run("登录失败", func(t *testing.T) {
		tests := []struct {
			name     string
			tenant   string
			user     string
			password string
		}{
			{name: "密码错误", tenant: "acme", user: "walter.bates", password: "wrong"},
			{name: "用户不存在", tenant: "acme", user: "nobody", password: "bpm"},
			{name: "租户不存在", tenant: "missing", user: "walter.bates", password: "bpm"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := client.Login.Login(background, tt.tenant, tt.user, tt.password)
				assert.True(t, errors.Is(err, ErrLoginFailed), "err: %v", err)
			})
		}
	})

	t.Run("禁用的用户不能登录", func(t *testing.T) {
		disabled := false
		_, err := client.Identity.UpdateUser(ctx, walter.ID, &UserUpdater{Enabled: &disabled})
		require.NoError(t, err)
		_, err = client.Login.Login(background, "acme", "walter.bates", "bpm")
		assert.True(t, errors.Is(err, ErrLoginFailed))
		enabled := true
		_, err = client.Identity.UpdateUser(ctx, walter.ID, &UserUpdater{Enabled: &enabled})
		require.NoError(t, err)
	})

	t.Run("租户暂停时只有技术用户可以登录", func(t *testing.T) {
		tenant, err := client.Platform.GetTenantByName(background, "acme")
		require.NoError(t, err)
		require.NoError(t, client.Platform.PauseTenant(background, tenant.ID))
		_, err = client.Login.Login(background, "acme", "walter.bates", "bpm")
		assert.True(t, errors.Is(err, ErrTenantStatus))
		_, err = client.Login.Login(background, "acme", "install", "install")
		assert.NoError(t, err)
		require.NoError(t, client.Platform.ResumeTenant(background, tenant.ID))
	})

	t.Run("注销", func(t *testing.T) {
		result, err := client.Login.Login(background, "acme", "walter.bates", "bpm")
		require.NoError(t, err)
		require.NoError(t, client.Login.Logout(background, result.Token))
		_, err = client.Login.SessionFromToken(background, result.Token)
		assert.True(t, errors.Is(err, ErrInvalidSession))
		err = client.Login.Logout(background, result.Token)
		assert.True(t, errors.Is(err, ErrInvalidSession))
	})
}
