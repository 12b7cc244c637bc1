package bpm

import (
	"context"
	"testing"

	"github.com/blingmoon/simple-bpm/design"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payment 自动任务上挂 bpm-test-flaky 连接器, fail 为 true 时节点失败
func payment(t *testing.T) *design.DesignProcessDefinition {
	d, err := design.NewBuilder("Payment", "1.0").
		AddData("fail", design.DataTypeBoolean, "true").
		AddData("paid", design.DataTypeBoolean, "").
		AddStartEvent("start").
		AddAutomaticTask("pay").
		AddEndEvent("end").
		AddTransition("start", "pay").
		AddTransition("pay", "end").
		AddConnector("pay", &design.ConnectorDefinition{
			Name: "gateway", ConnectorID: "bpm-test-flaky", Event: design.ConnectorEventOnEnter,
			Inputs:  map[string]string{"fail": "fail"},
			Outputs: map[string]string{"paid": "ok"},
		}).
		Done()
	require.NoError(t, err)
	return d
}

func TestProcessAPI_ConnectorRetry(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Process
	def, err := api.Deploy(ctx, payment(t))
	require.NoError(t, err)
	require.NoError(t, api.EnableProcess(ctx, def.ID))

	t.Run("连接器失败后修改数据重试", func(t *testing.T) {
		instance, err := api.StartProcess(ctx, def.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, ProcessInstanceStateStarted, instance.State)
		pay := nodesByName(t, ctx, client, instance.ID)["pay"]
		assert.Equal(t, FlowNodeStateFailed, pay.State)
		assert.Contains(t, pay.FailureReason, "remote service unavailable")

		connectors, err := api.GetConnectorInstancesOfActivity(ctx, pay.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, connectors, 1)
		assert.Equal(t, ConnectorStateFailed, connectors[0].State)

		// 数据没变, 重试还是失败
		require.NoError(t, api.RetryTask(ctx, pay.ID))
		assert.Equal(t, FlowNodeStateFailed, nodesByName(t, ctx, client, instance.ID)["pay"].State)

		require.NoError(t, api.UpdateProcessDataInstance(ctx, "fail", instance.ID, false))
		require.NoError(t, api.RetryTask(ctx, pay.ID))

		got, err := api.GetProcessInstance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, ProcessInstanceStateCompleted, got.State)
		paid, err := api.GetProcessDataInstance(ctx, "paid", instance.ID)
		require.NoError(t, err)
		assert.Equal(t, true, paid.Value)

		connectors, err = api.GetConnectorInstancesOfProcess(ctx, instance.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, connectors, 1)
		assert.Equal(t, ConnectorStateDone, connectors[0].State)

		err = api.RetryTask(ctx, pay.ID)
		assert.True(t, errors.Is(err, ErrFlowNodeExecution), "err: %v", err)
		err = api.UpdateProcessDataInstance(ctx, "fail", instance.ID, true)
		assert.True(t, errors.Is(err, ErrUpdate), "err: %v", err)
	})

	t.Run("跳过失败的连接器", func(t *testing.T) {
		instance, err := api.StartProcess(ctx, def.ID, nil)
		require.NoError(t, err)
		result, err := api.SearchConnectorInstances(ctx, NewSearchOptions(0, 10).
			Filter("processInstanceId", instance.ID).Filter("state", ConnectorStateFailed))
		require.NoError(t, err)
		require.Equal(t, int64(1), result.Count)

		err = api.SetConnectorInstanceState(ctx, result.Result[0].ID, "BROKEN")
		assert.True(t, errors.Is(err, ErrInvalidParam))
		require.NoError(t, api.SetConnectorInstanceState(ctx, result.Result[0].ID, ConnectorStateSkipped))

		pay := nodesByName(t, ctx, client, instance.ID)["pay"]
		require.NoError(t, api.RetryTask(ctx, pay.ID))
		got, err := api.GetProcessInstance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, ProcessInstanceStateCompleted, got.State)
		paid, err := api.GetProcessDataInstance(ctx, "paid", instance.ID)
		require.NoError(t, err)
		assert.Nil(t, paid.Value)
	})

	t.Run("在流程外执行连接器", func(t *testing.T) {
		out, err := api.ExecuteConnectorOnProcessDefinition(ctx, def.ID, "bpm-test-notify",
			map[string]string{"to": "UPPER(name)"}, map[string]any{"name": "walter"})
		require.NoError(t, err)
		assert.Equal(t, "notified WALTER", out["sent"])

		_, err = api.ExecuteConnectorOnProcessDefinition(ctx, def.ID, "bpm-test-flaky", nil, map[string]any{"fail": true})
		assert.True(t, errors.Is(err, ErrConnectorExecution), "err: %v", err)
		_, err = api.ExecuteConnectorOnProcessDefinition(ctx, def.ID, "bpm-test-missing", nil, nil)
		assert.True(t, errors.Is(err, ErrConnectorExecution), "err: %v", err)
		_, err = api.ExecuteConnectorOnProcessDefinition(ctx, def.ID, "bpm-test-notify", map[string]string{"to": "name +"}, nil)
		assert.True(t, errors.Is(err, ErrExpressionEvaluation), "err: %v", err)
	})
}

func TestProcessAPI_Data(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Process
	walter := createUser(t, ctx, client, "walter.bates")
	d, err := design.NewBuilder("Review", "1.0").
		AddActor("reviewer", true).
		AddData("amount", design.DataTypeInteger, "100").
		AddData("request", design.DataTypeJSON, "").
		AddStartEvent("start").
		AddFlowNode(&design.FlowNodeDefinition{
			Name: "review", Type: design.FlowNodeTypeUser, ActorName: "reviewer",
			Data: []*design.DataDefinition{{Name: "note", Type: design.DataTypeString, Description: "review note"}},
		}).
		AddEndEvent("end").
		AddTransition("start", "review").
		AddTransition("review", "end").
		Done()
	require.NoError(t, err)
	def, err := api.Deploy(ctx, d)
	require.NoError(t, err)
	actor, err := api.GetActorByName(ctx, def.ID, "reviewer")
	require.NoError(t, err)
	_, err = api.AddUserToActor(ctx, actor.ID, walter.ID)
	require.NoError(t, err)
	require.NoError(t, api.EnableProcess(ctx, def.ID))

	instance, err := api.StartProcess(ctx, def.ID, map[string]any{
		"request": map[string]any{"customer": "Acme", "lines": []any{1, 2}},
	})
	require.NoError(t, err)

	t.Run("流程数据", func(t *testing.T) {
		data, err := api.GetProcessDataInstances(ctx, instance.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, data, 2)
		assert.Equal(t, "amount", data[0].Name)
		assert.Equal(t, int64(100), data[0].Value)

		require.NoError(t, api.UpdateProcessDataInstances(ctx, instance.ID, map[string]any{"amount": 250}))
		amount, err := api.GetProcessDataInstance(ctx, "amount", instance.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(250), amount.Value)
	})

	t.Run("类型不匹配时都不更新", func(t *testing.T) {
		err := api.UpdateProcessDataInstances(ctx, instance.ID, map[string]any{"amount": 1, "missing": 1})
		assert.True(t, errors.Is(err, ErrInvalidParam), "err: %v", err)
		err = api.UpdateProcessDataInstance(ctx, "amount", instance.ID, "not a number")
		assert.True(t, errors.Is(err, ErrInvalidParam), "err: %v", err)
		amount, err := api.GetProcessDataInstance(ctx, "amount", instance.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(250), amount.Value)

		_, err = api.GetProcessDataInstance(ctx, "missing", instance.ID)
		assert.True(t, errors.Is(err, ErrDataNotFound))
	})

	t.Run("表达式", func(t *testing.T) {
		out, err := api.EvaluateExpressionOnProcessInstance(ctx, instance.ID, "amount * 2")
		require.NoError(t, err)
		assert.EqualValues(t, 500, out)
		out, err = api.EvaluateExpressionOnProcessInstance(ctx, instance.ID, "request.customer")
		require.NoError(t, err)
		assert.Equal(t, "Acme", out)
		out, err = api.EvaluateExpressionOnProcessInstance(ctx, instance.ID, "processInstanceId")
		require.NoError(t, err)
		assert.Equal(t, instance.ID, out)
		_, err = api.EvaluateExpressionOnProcessInstance(ctx, instance.ID, "amount *")
		assert.True(t, errors.Is(err, ErrExpressionEvaluation))
	})

	t.Run("节点数据", func(t *testing.T) {
		review := nodesByName(t, ctx, client, instance.ID)["review"]
		require.NoError(t, api.UpdateActivityDataInstance(ctx, "note", review.ID, "looks good"))
		note, err := api.GetActivityDataInstance(ctx, "note", review.ID)
		require.NoError(t, err)
		assert.Equal(t, "looks good", note.Value)
		assert.Equal(t, "review note", note.Description)
		assert.Equal(t, review.ID, note.ContainerID)

		_, err = api.GetActivityDataInstance(ctx, "missing", review.ID)
		assert.True(t, errors.Is(err, ErrDataNotFound))
		assert.Error(t, api.UpdateActivityDataInstance(ctx, "missing", review.ID, "x"))

		require.NoError(t, api.ExecuteUserTaskFor(ctx, walter.ID, review.ID, nil))
		err = api.UpdateActivityDataInstance(ctx, "note", review.ID, "too late")
		assert.True(t, errors.Is(err, ErrUpdate), "err: %v", err)
	})
}

func TestProcessAPI_DocumentAndComment(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Process
	walter := createUser(t, ctx, client, "walter.bates")
	def := deployEnabled(t, ctx, client, "1.0", walter)
	instance, err := api.StartProcess(ctx, def.ID, nil)
	require.NoError(t, err)

	t.Run("文档版本", func(t *testing.T) {
		v1, err := api.AttachDocument(ctx, instance.ID, "contract", "contract.txt", "text/plain", []byte("v1"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), v1.Version)
		assert.True(t, v1.HasContent())
		assert.Equal(t, int64(2), v1.Size)

		_, err = api.AttachDocument(ctx, instance.ID, "contract", "contract.txt", "text/plain", []byte("again"))
		assert.True(t, errors.Is(err, ErrAlreadyExists), "err: %v", err)
		_, err = api.AttachNewDocumentVersion(ctx, instance.ID, "missing", "m.txt", "text/plain", []byte("x"))
		assert.True(t, errors.Is(err, ErrDocumentNotFound))

		v2, err := api.AttachNewDocumentVersion(ctx, instance.ID, "contract", "contract-v2.txt", "text/plain", []byte("second"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), v2.Version)

		last, err := api.GetLastDocument(ctx, instance.ID, "contract")
		require.NoError(t, err)
		assert.Equal(t, v2.ID, last.ID)
		versions, err := api.GetDocumentVersions(ctx, instance.ID, "contract")
		require.NoError(t, err)
		assert.Len(t, versions, 2)

		content, err := api.GetDocumentContent(ctx, v1.StorageID)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), content)

		removed, err := api.RemoveDocument(ctx, v2.ID)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, removed.ID)
		_, err = api.GetDocumentContent(ctx, v2.StorageID)
		assert.True(t, errors.Is(err, ErrDocumentNotFound))
		last, err = api.GetLastDocument(ctx, instance.ID, "contract")
		require.NoError(t, err)
		assert.Equal(t, v1.ID, last.ID)
	})

	t.Run("内容探测", func(t *testing.T) {
		doc, err := api.AttachDocument(ctx, instance.ID, "scan", "scan.pdf", "", []byte("%PDF-1.4\n%..."))
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", doc.MimeType)
	})

	t.Run("url 文档", func(t *testing.T) {
		doc, err := api.AttachURLDocument(ctx, instance.ID, "spec", "https://example.com/spec.pdf")
		require.NoError(t, err)
		assert.False(t, doc.HasContent())
		assert.Equal(t, "https://example.com/spec.pdf", doc.URL)
		_, err = api.AttachURLDocument(ctx, instance.ID, "bad", "not a url")
		assert.True(t, errors.Is(err, ErrInvalidParam))

		count, err := api.GetNumberOfDocuments(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		result, err := api.SearchDocuments(ctx, NewSearchOptions(0, 10).SearchTerm("con"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Count)
	})

	t.Run("其他租户不能读取内容", func(t *testing.T) {
		doc, err := api.GetLastDocument(ctx, instance.ID, "contract")
		require.NoError(t, err)
		other, err := client.Platform.CreateTenant(context.Background(), &TenantCreator{Name: "globex"})
		require.NoError(t, err)
		require.NoError(t, client.Platform.ActivateTenant(context.Background(), other.ID))
		otherCtx := WithSession(context.Background(), &APISession{TenantID: other.ID, UserName: "install"})
		_, err = api.GetDocumentContent(otherCtx, doc.StorageID)
		assert.True(t, errors.Is(err, ErrDocumentNotFound))
	})

	t.Run("评论", func(t *testing.T) {
		first, err := api.AddProcessCommentOnBehalfOfUser(ctx, instance.ID, "please review", walter.ID)
		require.NoError(t, err)
		assert.Equal(t, walter.ID, first.UserID)
		_, err = api.AddProcessComment(ctx, instance.ID, "reviewed")
		require.NoError(t, err)

		_, err = api.AddProcessComment(ctx, instance.ID, " ")
		assert.True(t, errors.Is(err, ErrInvalidParam))
		_, err = api.AddProcessComment(ctx, 9999, "lost")
		assert.True(t, errors.Is(err, ErrProcessInstanceNotFound))

		comments, err := api.GetComments(ctx, instance.ID)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, "please review", comments[0].Content)

		result, err := api.SearchComments(ctx, NewSearchOptions(0, 10).Filter("userId", walter.ID))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Count)

		require.NoError(t, api.DeleteComment(ctx, first.ID))
		err = api.DeleteComment(ctx, first.ID)
		assert.True(t, errors.Is(err, ErrCommentNotFound))
	})
}

func TestProcessAPI_CategoryAndActorMapping(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Process
	v1, err := api.Deploy(ctx, leaveRequest(t, "1.0"))
	require.NoError(t, err)
	v2, err := api.Deploy(ctx, leaveRequest(t, "2.0"))
	require.NoError(t, err)

	t.Run("分类", func(t *testing.T) {
		hr, err := api.CreateCategory(ctx, "HR", "human resources")
		require.NoError(t, err)
		finance, err := api.CreateCategory(ctx, "Finance", "")
		require.NoError(t, err)
		_, err = api.CreateCategory(ctx, "HR", "")
		assert.True(t, errors.Is(err, ErrAlreadyExists))

		require.NoError(t, api.AddCategoriesToProcess(ctx, v1.ID, []int64{hr.ID, finance.ID}))
		require.NoError(t, api.AddProcessDefinitionsToCategory(ctx, hr.ID, []int64{v1.ID, v2.ID}))
		err = api.AddCategoriesToProcess(ctx, v1.ID, []int64{9999})
		assert.True(t, errors.Is(err, ErrCategoryNotFound))

		categories, err := api.GetCategoriesOfProcessDefinition(ctx, v1.ID, 0, 10, CategoryCriterionNameAsc)
		require.NoError(t, err)
		require.Len(t, categories, 2)
		assert.Equal(t, "Finance", categories[0].Name)
		count, err := api.GetNumberOfProcessDefinitionsOfCategory(ctx, hr.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		require.NoError(t, api.RemoveCategoriesFromProcess(ctx, v1.ID, []int64{hr.ID}))
		infos, err := api.GetProcessDeploymentInfosOfCategory(ctx, hr.ID, 0, 10, ProcessDeploymentInfoCriterionDefault)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, v2.ID, infos[0].ID)

		name := "People"
		require.NoError(t, api.UpdateCategory(ctx, hr.ID, &CategoryUpdater{Name: &name}))
		got, err := api.GetCategory(ctx, hr.ID)
		require.NoError(t, err)
		assert.Equal(t, "People", got.Name)

		require.NoError(t, api.DeleteCategory(ctx, finance.ID))
		categories, err = api.GetCategoriesOfProcessDefinition(ctx, v1.ID, 0, 10, CategoryCriterionNameAsc)
		require.NoError(t, err)
		assert.Empty(t, categories)
		total, err := api.GetNumberOfCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("导入参与者映射", func(t *testing.T) {
		walter := createUser(t, ctx, client, "walter.bates")
		group, err := client.Identity.CreateGroup(ctx, "acme", "")
		require.NoError(t, err)
		_, err = client.Identity.CreateRole(ctx, &RoleCreator{Name: "manager"})
		require.NoError(t, err)

		mapping := []byte(`{"actors":[
			{"name":"employee","groups":["/acme"]},
			{"name":"manager","users":["walter.bates"],"memberships":[{"group":"/acme","role":"manager"}]}
		]}`)
		require.NoError(t, api.ImportActorMapping(ctx, v1.ID, mapping))
		// 重复导入忽略已经存在的成员
		require.NoError(t, api.ImportActorMapping(ctx, v1.ID, mapping))

		info, err := api.GetProcessDeploymentInfo(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, ConfigurationStateResolved, info.ConfigurationState)

		manager, err := api.GetActorByName(ctx, v1.ID, "manager")
		require.NoError(t, err)
		members, err := api.GetActorMembers(ctx, manager.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, walter.ID, members[0].UserID)
		assert.Equal(t, group.ID, members[1].GroupID)
		assert.NotZero(t, members[1].RoleID)

		actors, err := api.GetActors(ctx, v1.ID, 0, 10, ActorCriterionNameAsc)
		require.NoError(t, err)
		require.Len(t, actors, 2)
		assert.Equal(t, "employee", actors[0].Name)
		assert.True(t, actors[0].Initiator)

		err = api.ImportActorMapping(ctx, v1.ID, []byte(`{"actors":[{"name":"employee","users":["nobody"]}]}`))
		assert.True(t, errors.Is(err, ErrUserNotFound))
		err = api.ImportActorMapping(ctx, v1.ID, []byte(`{"actors":[{"name":"ghost"}]}`))
		assert.True(t, errors.Is(err, ErrActorNotFound))
		err = api.ImportActorMapping(ctx, v1.ID, []byte(`not json`))
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})

	t.Run("删除组后重新解析", func(t *testing.T) {
		group, err := client.Identity.GetGroupByPath(ctx, "/acme")
		require.NoError(t, err)
		require.NoError(t, client.Identity.DeleteGroup(ctx, group.ID))
		info, err := api.GetProcessDeploymentInfo(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, ConfigurationStateUnresolved, info.ConfigurationState)
	})
}
