package tests

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 关闭后用同一个数据库文件和文档目录重新创建 Client, 运行中的流程可以继续
func TestRestartScenario(t *testing.T) {
	dir := t.TempDir()
	documentDir := filepath.Join(dir, "documents")

	var (
		instanceID int64
		storageID  string
		walterID   int64
	)
	func() {
		db := openFileDB(t, dir)
		client := newClient(t, db, documentDir)
		ctx := activeTenant(t, client, "acme")
		walter, err := client.Identity.CreateUser(ctx, &bpm.UserCreator{UserName: "walter.bates", Password: "bpm"})
		require.NoError(t, err)
		walterID = walter.ID
		defID := deployApproval(t, ctx, client, "walter.bates")
		instance, err := client.Process.StartProcessFor(ctx, defID, walter.ID, map[string]any{"decision": "draft"})
		require.NoError(t, err)
		instanceID = instance.ID
		doc, err := client.Process.AttachDocument(ctx, instanceID, "contract", "contract.txt", "", []byte("signed by walter"))
		require.NoError(t, err)
		storageID = doc.StorageID

		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	}()

	client := newClient(t, openFileDB(t, dir), documentDir)
	background := context.Background()

	t.Run("平台和租户仍然存在", func(t *testing.T) {
		created, err := client.Platform.IsPlatformCreated(background)
		require.NoError(t, err)
		assert.True(t, created)
		tenant, err := client.Platform.GetTenantByName(background, "acme")
		require.NoError(t, err)
		assert.Equal(t, bpm.TenantStatusActivated, tenant.Status)
	})

	result, err := client.Login.Login(background, "acme", "walter.bates", "bpm")
	require.NoError(t, err)
	ctx := bpm.WithSession(background, result.Session)

	t.Run("文档内容", func(t *testing.T) {
		content, err := client.Process.GetDocumentContent(ctx, storageID)
		require.NoError(t, err)
		assert.Equal(t, "signed by walter", string(content))
		doc, err := client.Process.GetLastDocument(ctx, instanceID, "contract")
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)
	})

	t.Run("继续执行流程", func(t *testing.T) {
		task := pendingTask(t, ctx, client, walterID)
		assert.Equal(t, instanceID, task.ProcessInstanceID)
		require.NoError(t, client.Process.ExecuteUserTask(ctx, task.ID, map[string]any{"decision": "approved"}))

		data, err := client.Process.GetProcessDataInstance(ctx, "decision", instanceID)
		require.NoError(t, err)
		assert.Equal(t, "approved", data.Value)
		instance, err := client.Process.GetProcessInstance(ctx, instanceID)
		require.NoError(t, err)
		assert.Equal(t, bpm.ProcessInstanceStateCompleted, instance.State)
	})
}
