package bpm

import (
	"context"
	"testing"
	"time"

	"github.com/blingmoon/simple-bpm/connector"
	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func init() {
	connector.MustRegister("bpm-test-notify", connector.Func(func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		to, _ := inputs["to"].(string)
		return map[string]any{"sent": "notified " + to}, nil
	}))
	// fail 为 true 时失败
	connector.MustRegister("bpm-test-flaky", connector.Func(func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		if fail, _ := inputs["fail"].(bool); fail {
			return nil, errors.New("remote service unavailable")
		}
		return map[string]any{"ok": true}, nil
	}))
}

// setupClient 内存数据库 + 一个已经激活的租户, 返回技术用户的会话
func setupClient(t *testing.T) (*Client, context.Context) {
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	client, err := New(&Options{
		DB:                db,
		DocumentDir:       t.TempDir(),
		JWTSecret:         "secret",
		TechnicalUser:     "install",
		TechnicalPassword: "install",
		LockWaitTimeout:   time.Second,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = client.Platform.CreatePlatform(ctx, "install")
	require.NoError(t, err)
	tenant, err := client.Platform.CreateTenant(ctx, &TenantCreator{Name: "acme"})
	require.NoError(t, err)
	require.NoError(t, client.Platform.ActivateTenant(ctx, tenant.ID))
	return client, WithSession(ctx, &APISession{TenantID: tenant.ID, UserName: "install"})
}

func createUser(t *testing.T, ctx context.Context, client *Client, userName string) *User {
	user, err := client.Identity.CreateUser(ctx, &UserCreator{UserName: userName, Password: "bpm", FirstName: userName})
	require.NoError(t, err)
	return user
}

// leaveRequest 请假流程: 经理审批, 同意后通知, 拒绝直接结束
func leaveRequest(t *testing.T, version string) *design.DesignProcessDefinition {
	d, err := design.NewBuilder("LeaveRequest", version).
		AddActor("employee", true).
		AddActor("manager", false).
		AddData("days", design.DataTypeInteger, "1").
		AddData("accepted", design.DataTypeBoolean, "").
		AddData("message", design.DataTypeString, "").
		AddStartEvent("start").
		AddUserTask("approve", "manager").
		AddAutomaticTask("notify").
		AddEndEvent("approved").
		AddEndEvent("rejected").
		AddTransition("start", "approve").
		AddConditionalTransition("approve", "notify", "accepted == true").
		AddConditionalTransition("approve", "rejected", "accepted != true").
		AddTransition("notify", "approved").
		AddConnector("notify", &design.ConnectorDefinition{
			Name: "mail", ConnectorID: "bpm-test-notify", Event: design.ConnectorEventOnEnter,
			Inputs:  map[string]string{"to": "'employee'"},
			Outputs: map[string]string{"message": "sent"},
		}).
		Done()
	require.NoError(t, err)
	return d
}

// deployEnabled 部署请假流程, 经理参与者映射到 manager 用户, 然后启用
func deployEnabled(t *testing.T, ctx context.Context, client *Client, version string, manager *User) *ProcessDefinition {
	def, err := client.Process.Deploy(ctx, leaveRequest(t, version))
	require.NoError(t, err)
	for _, name := range []string{"employee", "manager"} {
		actor, err := client.Process.GetActorByName(ctx, def.ID, name)
		require.NoError(t, err)
		_, err = client.Process.AddUserToActor(ctx, actor.ID, manager.ID)
		require.NoError(t, err)
	}
	require.NoError(t, client.Process.EnableProcess(ctx, def.ID))
	return def
}

// nodesByName 流程实例的所有节点
func nodesByName(t *testing.T, ctx context.Context, client *Client, processInstanceID int64) map[string]*ActivityInstance {
	nodes, err := client.Process.GetFlowNodeInstances(ctx, processInstanceID, 0, 100)
	require.NoError(t, err)
	ret := make(map[string]*ActivityInstance, len(nodes))
	for _, node := range nodes {
		ret[node.Name] = node
	}
	return ret
}
