// Package bpm 多租户流程引擎的对外接口。
//
// Client 包含五组接口：
//   - Identity: 用户、角色、组、成员关系
//   - Login: 登录、注销、token 校验
//   - Platform: 平台初始化和租户生命周期
//   - Process: 流程部署、流程实例、人工任务、数据、参与者、分类、评论、文档、连接器
//   - BusinessData: 业务对象和流程实例对业务对象的引用
//
// 租户相关的接口从 context 里的会话取租户，调用前先 WithSession。
// 技术用户(UserID 为 0)在租户暂停时仍然可以操作。
//
// 基础使用示例:
//
//	package main
//
//	import (
//	    "context"
//	    "strings"
//
//	    "github.com/blingmoon/simple-bpm/bpm"
//	    "github.com/blingmoon/simple-bpm/connector"
//	    "github.com/blingmoon/simple-bpm/design"
//	    "github.com/blingmoon/simple-bpm/internal/store"
//	)
//
//	func main() {
//	    // 1. 初始化数据库
//	    db, _ := store.Open("sqlite", "bpm.sqlite3")
//	    store.AutoMigrate(db)
//
//	    // 2. 创建 Client, 初始化平台和租户
//	    client, _ := bpm.New(&bpm.Options{DB: db, DocumentDir: "docs", JWTSecret: "secret"})
//	    ctx := context.Background()
//	    client.Platform.CreatePlatform(ctx, "install")
//	    tenant, _ := client.Platform.CreateTenant(ctx, &bpm.TenantCreator{Name: "acme"})
//	    client.Platform.ActivateTenant(ctx, tenant.ID)
//	    ctx = bpm.WithSession(ctx, &bpm.APISession{TenantID: tenant.ID, UserName: "install"})
//
//	    // 3. 注册连接器
//	    connector.MustRegister("upper", connector.Func(
//	        func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
//	            text, _ := inputs["text"].(string)
//	            return map[string]any{"text": strings.ToUpper(text)}, nil
//	        },
//	    ))
//
//	    // 4. 设计并部署流程
//	    d, _ := design.NewBuilder("Approval", "1.0").
//	        AddActor("reviewer", true).
//	        AddData("title", design.DataTypeString, "'draft'").
//	        AddStartEvent("start").
//	        AddUserTask("review", "reviewer").
//	        AddEndEvent("end").
//	        AddTransition("start", "review").
//	        AddTransition("review", "end").
//	        AddConnector("review", &design.ConnectorDefinition{
//	            Name: "format", ConnectorID: "upper", Event: design.ConnectorEventOnFinish,
//	            Inputs: map[string]string{"text": "title"}, Outputs: map[string]string{"title": "text"},
//	        }).
//	        Done()
//	    def, _ := client.Process.Deploy(ctx, d)
//
//	    // 5. 参与者映射, 启用, 启动
//	    user, _ := client.Identity.CreateUser(ctx, &bpm.UserCreator{UserName: "walter.bates", Password: "bpm"})
//	    actor, _ := client.Process.GetActorByName(ctx, def.ID, "reviewer")
//	    client.Process.AddUserToActor(ctx, actor.ID, user.ID)
//	    client.Process.EnableProcess(ctx, def.ID)
//	    instance, _ := client.Process.StartProcess(ctx, def.ID, nil)
//
//	    // 6. 用户处理任务
//	    tasks, _ := client.Process.GetPendingHumanTaskInstances(ctx, user.ID, 0, 10, bpm.ActivityInstanceCriterionDefault)
//	    client.Process.ExecuteUserTaskFor(ctx, user.ID, tasks[0].ID, map[string]any{"title": "done"})
//	    _ = instance
//	}
//
// 流程数据的流转：
//
//   - 启动时传入的变量写入流程数据, 没有传入的使用默认值表达式
//   - 人工任务的输入必须是声明过的流程数据或者节点数据
//   - 连接器的输入表达式以流程数据为变量, 输出表达式以连接器输出为变量
//   - 连线的条件表达式以流程数据为变量, 结果必须是 bool
//
// 连接器失败时节点变成 FAILED, 修改数据或者把连接器设置为 SKIPPED 后 RetryTask 从失败的阶段继续。
package bpm
