package tests

import (
	"context"
	"testing"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 两个租户部署同一个流程, 同名用户, 数据互不可见
func TestMultiTenantScenario(t *testing.T) {
	dir := t.TempDir()
	client := newClient(t, openFileDB(t, dir), dir+"/documents")
	acme := activeTenant(t, client, "acme")
	globex := activeTenant(t, client, "globex")

	users := map[context.Context]*bpm.User{}
	instances := map[context.Context]int64{}
	for _, ctx := range []context.Context{acme, globex} {
		user, err := client.Identity.CreateUser(ctx, &bpm.UserCreator{UserName: "walter.bates", Password: "bpm"})
		require.NoError(t, err)
		users[ctx] = user
		defID := deployApproval(t, ctx, client, "walter.bates")
		instance, err := client.Process.StartProcessFor(ctx, defID, user.ID, nil)
		require.NoError(t, err)
		instances[ctx] = instance.ID
	}

	t.Run("租户之间不可见", func(t *testing.T) {
		_, err := client.Process.GetProcessInstance(globex, instances[acme])
		assert.True(t, errors.Is(err, bpm.ErrProcessInstanceNotFound), "err: %v", err)
		count, err := client.Process.GetNumberOfProcessInstances(globex)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		_, err = client.Identity.GetUser(globex, users[acme].ID)
		assert.True(t, errors.Is(err, bpm.ErrUserNotFound))
	})

	t.Run("登录到指定租户", func(t *testing.T) {
		result, err := client.Login.Login(context.Background(), "globex", "walter.bates", "bpm")
		require.NoError(t, err)
		assert.Equal(t, users[globex].ID, result.Session.UserID)
		session, err := bpm.SessionFromContext(globex)
		require.NoError(t, err)
		assert.Equal(t, session.TenantID, result.Session.TenantID)

		userCtx := bpm.WithSession(context.Background(), result.Session)
		task := pendingTask(t, globex, client, users[globex].ID)
		require.NoError(t, client.Process.ExecuteUserTask(userCtx, task.ID, map[string]any{"decision": "approved"}))
		instance, err := client.Process.GetProcessInstance(globex, instances[globex])
		require.NoError(t, err)
		assert.Equal(t, bpm.ProcessInstanceStateCompleted, instance.State)

		// acme 的实例不受影响
		instance, err = client.Process.GetProcessInstance(acme, instances[acme])
		require.NoError(t, err)
		assert.Equal(t, bpm.ProcessInstanceStateStarted, instance.State)
	})

	t.Run("暂停租户", func(t *testing.T) {
		session, err := bpm.SessionFromContext(globex)
		require.NoError(t, err)
		require.NoError(t, client.Platform.PauseTenant(context.Background(), session.TenantID))

		userCtx := bpm.WithSession(context.Background(), &bpm.APISession{
			TenantID: session.TenantID, UserID: users[globex].ID, UserName: "walter.bates",
		})
		_, err = client.Identity.GetUser(userCtx, users[globex].ID)
		assert.True(t, errors.Is(err, bpm.ErrTenantStatus), "err: %v", err)
		_, err = client.Identity.GetUser(globex, users[globex].ID)
		assert.NoError(t, err)

		require.NoError(t, client.Platform.ResumeTenant(context.Background(), session.TenantID))
		_, err = client.Identity.GetUser(userCtx, users[globex].ID)
		assert.NoError(t, err)
	})

	t.Run("删除租户", func(t *testing.T) {
		session, err := bpm.SessionFromContext(globex)
		require.NoError(t, err)
		err = client.Platform.DeleteTenant(context.Background(), session.TenantID)
		assert.True(t, errors.Is(err, bpm.ErrTenantStatus))
		require.NoError(t, client.Platform.DeactivateTenant(context.Background(), session.TenantID))
		require.NoError(t, client.Platform.DeleteTenant(context.Background(), session.TenantID))

		_, err = client.Platform.GetTenantByName(context.Background(), "globex")
		assert.True(t, errors.Is(err, bpm.ErrTenantNotFound))
		_, err = client.Login.Login(context.Background(), "globex", "walter.bates", "bpm")
		assert.True(t, errors.Is(err, bpm.ErrLoginFailed))

		count, err := client.Identity.GetNumberOfUsers(acme)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		_, err = client.Process.GetProcessInstance(acme, instances[acme])
		assert.NoError(t, err)
	})
}
