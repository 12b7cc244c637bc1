package tests

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openFileDB 基于文件的 sqlite, 写事务用 BEGIN IMMEDIATE 串行
func openFileDB(t *testing.T, dir string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", filepath.Join(dir, "bpm.sqlite3"))
	db, err := store.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newClient(t *testing.T, db *gorm.DB, documentDir string) *bpm.Client {
	client, err := bpm.New(&bpm.Options{
		DB:                db,
		DocumentDir:       documentDir,
		JWTSecret:         "scenario-secret",
		TechnicalUser:     "install",
		TechnicalPassword: "install",
		LockWaitTimeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

// activeTenant 创建并激活租户, 返回技术用户的会话
func activeTenant(t *testing.T, client *bpm.Client, name string) context.Context {
	ctx := context.Background()
	_, err := client.Platform.CreatePlatform(ctx, "install")
	require.NoError(t, err)
	tenant, err := client.Platform.CreateTenant(ctx, &bpm.TenantCreator{Name: name})
	require.NoError(t, err)
	require.NoError(t, client.Platform.ActivateTenant(ctx, tenant.ID))
	return bpm.WithSession(ctx, &bpm.APISession{TenantID: tenant.ID, UserName: "install"})
}

// approval 单个人工任务的审批流程
func approval(t *testing.T) *design.DesignProcessDefinition {
	d, err := design.NewBuilder("Approval", "1.0").
		AddActor("reviewer", true).
		AddData("decision", design.DataTypeString, "'pending'").
		AddStartEvent("start").
		AddUserTask("review", "reviewer").
		AddEndEvent("end").
		AddTransition("start", "review").
		AddTransition("review", "end").
		Done()
	require.NoError(t, err)
	return d
}

// deployApproval 部署并启用审批流程, reviewer 映射到 userName
func deployApproval(t *testing.T, ctx context.Context, client *bpm.Client, userName string) int64 {
	def, err := client.Process.Deploy(ctx, approval(t))
	require.NoError(t, err)
	mapping := fmt.Sprintf(`{"actors":[{"name":"reviewer","users":[%q]}]}`, userName)
	require.NoError(t, client.Process.ImportActorMapping(ctx, def.ID, []byte(mapping)))
	require.NoError(t, client.Process.EnableProcess(ctx, def.ID))
	return def.ID
}

func pendingTask(t *testing.T, ctx context.Context, client *bpm.Client, userID int64) *bpm.HumanTaskInstance {
	tasks, err := client.Process.GetPendingHumanTaskInstances(ctx, userID, 0, 10, bpm.ActivityInstanceCriterionDefault)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	return tasks[0]
}
