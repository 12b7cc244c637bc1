package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (a *processAPI) StartProcess(ctx context.Context, processDefinitionID int64, variables map[string]any) (*ProcessInstance, error) {
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	return a.startProcess(ctx, svc, processDefinitionID, session.UserID, 0, variables)
}

func (a *processAPI) StartProcessFor(ctx context.Context, processDefinitionID int64, userID int64, variables map[string]any) (*ProcessInstance, error) {
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
		return nil, a.fail(ctx, svc.Log, "StartProcessFor", err, ErrUserNotFound, ErrProcessActivation)
	}
	return a.startProcess(ctx, svc, processDefinitionID, userID, session.UserID, variables)
}

func (a *processAPI) startProcess(ctx context.Context, svc *tenant.Services, processDefinitionID int64, startedBy, substitute int64, variables map[string]any) (*ProcessInstance, error) {
	def, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "StartProcess", err, ErrProcessDefinitionNotFound, ErrProcessActivation)
	}
	if def.ActivationState != ActivationStateEnabled {
		return nil, errors.Wrapf(ErrProcessActivation, "process %s %s is not enabled", def.Name, def.Version)
	}
	instance, err := svc.Engine.Start(ctx, &engine.StartParams{
		ProcessDefinitionID: processDefinitionID,
		StartedBy:           startedBy,
		StartedBySubstitute: substitute,
		Variables:           variables,
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "StartProcess", err, ErrProcessDefinitionNotFound, ErrProcessActivation)
	}
	svc.Log.Info("process instance started",
		zap.Int64("process_instance_id", instance.ID),
		zap.Int64("process_definition_id", processDefinitionID),
		zap.Int64("started_by", startedBy))
	// 启动过程中实例可能已经结束, 重新读一次
	instance, err = store.Get[store.ProcessInstancePo](ctx, svc.Repo, instance.ID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "StartProcess", err, ErrProcessInstanceNotFound, ErrRetrieve)
	}
	return toProcessInstance(instance), nil
}

func (a *processAPI) CancelProcessInstance(ctx context.Context, processInstanceID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Synchronized(ctx, processInstanceID, func(ctx context.Context) error {
		return svc.Engine.Cancel(ctx, processInstanceID)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "CancelProcessInstance", err, ErrProcessInstanceNotFound, ErrUpdate)
	}
	return nil
}

func (a *processAPI) DeleteProcessInstance(ctx context.Context, processInstanceID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	var storageIDs []string
	err = svc.Synchronized(ctx, processInstanceID, func(ctx context.Context) error {
		return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
			if _, err := store.Get[store.ProcessInstancePo](ctx, svc.Repo, processInstanceID); err != nil {
				return err
			}
			ids, err := deleteInstanceRows(ctx, svc, []int64{processInstanceID})
			storageIDs = ids
			return err
		})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteProcessInstance", err, ErrProcessInstanceNotFound, ErrDeletion)
	}
	purgeContents(ctx, svc, storageIDs)
	svc.Log.Info("process instance deleted", zap.Int64("process_instance_id", processInstanceID))
	return nil
}

// DeleteProcessInstances 删除一页流程实例, 每个实例在自己的锁内删除
func (a *processAPI) DeleteProcessInstances(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	pos, err := store.Find[store.ProcessInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_definition_id", processDefinitionID)},
		startIndex, maxResults, []store.OrderBy{{Field: "id"}}))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "DeleteProcessInstances", err, nil, ErrDeletion)
	}
	var deleted int64
	for _, po := range pos {
		var storageIDs []string
		err := svc.Synchronized(ctx, po.ID, func(ctx context.Context) error {
			return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
				ids, err := deleteInstanceRows(ctx, svc, []int64{po.ID})
				storageIDs = ids
				return err
			})
		})
		if err != nil {
			return deleted, a.fail(ctx, svc.Log, "DeleteProcessInstances", err, nil, ErrDeletion)
		}
		purgeContents(ctx, svc, storageIDs)
		deleted++
	}
	return deleted, nil
}

// DeleteArchivedProcessInstances 删除归档记录, 对应的实例已经结束的话一起删除
func (a *processAPI) DeleteArchivedProcessInstances(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	pos, err := store.Find[store.ArchivedProcessInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_definition_id", processDefinitionID)},
		startIndex, maxResults, []store.OrderBy{{Field: "id"}}))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "DeleteArchivedProcessInstances", err, nil, ErrDeletion)
	}
	var storageIDs []string
	var deleted int64
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		// 先删除本页的归档记录并计数, 实例级联删除会带走同一实例的其他归档记录
		deleted, err = store.Delete[store.ArchivedProcessInstancePo](ctx, svc.Repo,
			store.In("id", idsOf(pos, func(po *store.ArchivedProcessInstancePo) int64 { return po.ID })))
		if err != nil {
			return err
		}
		sources := uniqueIDs(idsOf(pos, func(po *store.ArchivedProcessInstancePo) int64 { return po.SourceObjectID }))
		finished, err := store.Find[store.ProcessInstancePo](ctx, svc.Repo, store.Where(
			store.In("id", sources),
			store.Neq("state", ProcessInstanceStateStarted)))
		if err != nil {
			return err
		}
		storageIDs, err = deleteInstanceRows(ctx, svc, idsOf(finished, func(po *store.ProcessInstancePo) int64 { return po.ID }))
		return err
	})
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "DeleteArchivedProcessInstances", err, nil, ErrDeletion)
	}
	purgeContents(ctx, svc, storageIDs)
	return deleted, nil
}

// deleteInstanceRows 删除流程实例和它的所有数据, 返回需要在提交后清理的文档内容
func deleteInstanceRows(ctx context.Context, svc *tenant.Services, processInstanceIDs []int64) ([]string, error) {
	if len(processInstanceIDs) == 0 {
		return nil, nil
	}
	byInstance := store.In("process_instance_id", processInstanceIDs)
	docs, err := store.Find[store.DocumentPo](ctx, svc.Repo, store.Where(byInstance, store.Neq("storage_id", "")))
	if err != nil {
		return nil, err
	}
	storageIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		storageIDs = append(storageIDs, doc.StorageID)
	}
	deletes := []func() (int64, error){
		func() (int64, error) { return store.Delete[store.FlowNodeInstancePo](ctx, svc.Repo, byInstance) },
		func() (int64, error) { return store.Delete[store.DataInstancePo](ctx, svc.Repo, byInstance) },
		func() (int64, error) { return store.Delete[store.CommentPo](ctx, svc.Repo, byInstance) },
		func() (int64, error) { return store.Delete[store.DocumentPo](ctx, svc.Repo, byInstance) },
		func() (int64, error) { return store.Delete[store.ConnectorInstancePo](ctx, svc.Repo, byInstance) },
		func() (int64, error) { return store.Delete[store.BusinessDataRefPo](ctx, svc.Repo, byInstance) },
		func() (int64, error) {
			return store.Delete[store.ArchivedProcessInstancePo](ctx, svc.Repo, store.In("source_object_id", processInstanceIDs))
		},
		func() (int64, error) {
			return store.Delete[store.ProcessInstancePo](ctx, svc.Repo, store.In("id", processInstanceIDs))
		},
	}
	for _, del := range deletes {
		if _, err := del(); err != nil {
			return nil, err
		}
	}
	return storageIDs, nil
}

// purgeContents 事务提交之后删除文档内容, 失败只记录日志
func purgeContents(ctx context.Context, svc *tenant.Services, storageIDs []string) {
	for _, storageID := range storageIDs {
		if err := svc.Documents.Delete(ctx, svc.TenantID, storageID); err != nil {
			svc.Log.Warn("purge document content failed", zap.String("storage_id", storageID), zap.Error(err))
		}
	}
}

func (a *processAPI) GetProcessInstance(ctx context.Context, processInstanceID int64) (*ProcessInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.ProcessInstancePo](ctx, svc.Repo, processInstanceID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessInstance", err, ErrProcessInstanceNotFound, ErrRetrieve)
	}
	return toProcessInstance(po), nil
}

func (a *processAPI) GetNumberOfProcessInstances(ctx context.Context) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.ProcessInstancePo](ctx, svc.Repo, store.Where(store.Eq("state", ProcessInstanceStateStarted)))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfProcessInstances", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *processAPI) SearchOpenProcessInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ProcessInstance], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &ProcessInstanceSearchDescriptor, options, toProcessInstance,
		store.Eq("state", ProcessInstanceStateStarted))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchOpenProcessInstances", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *processAPI) SearchArchivedProcessInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ArchivedProcessInstance], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &ArchivedProcessInstanceSearchDescriptor, options, toArchivedProcessInstance)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchArchivedProcessInstances", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *processAPI) GetFinalArchivedProcessInstance(ctx context.Context, sourceProcessInstanceID int64) (*ArchivedProcessInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.ArchivedProcessInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("source_object_id", sourceProcessInstanceID)}, 0, 1,
		[]store.OrderBy{{Field: "archived_at", Desc: true}, {Field: "id", Desc: true}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetFinalArchivedProcessInstance", err, ErrProcessInstanceNotFound, ErrRetrieve)
	}
	if len(pos) == 0 {
		return nil, errors.Wrapf(ErrProcessInstanceNotFound, "no archived process instance for %d", sourceProcessInstanceID)
	}
	return toArchivedProcessInstance(pos[0]), nil
}

func (a *processAPI) GetActivityInstance(ctx context.Context, activityInstanceID int64) (*ActivityInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.FlowNodeInstancePo](ctx, svc.Repo, activityInstanceID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActivityInstance", err, ErrActivityInstanceNotFound, ErrRetrieve)
	}
	return toActivityInstance(po), nil
}

func (a *processAPI) SearchActivityInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ActivityInstance], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &ActivityInstanceSearchDescriptor, options, toActivityInstance)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchActivityInstances", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *processAPI) GetFlowNodeInstances(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*ActivityInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.FlowNodeInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_instance_id", processInstanceID)},
		startIndex, maxResults, []store.OrderBy{{Field: "id"}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetFlowNodeInstances", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toActivityInstance), nil
}

// RetryTask 重新执行失败的节点
func (a *processAPI) RetryTask(ctx context.Context, activityInstanceID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	node, err := store.Get[store.FlowNodeInstancePo](ctx, svc.Repo, activityInstanceID)
	if err != nil {
		return a.fail(ctx, svc.Log, "RetryTask", err, ErrActivityInstanceNotFound, ErrFlowNodeExecution)
	}
	err = svc.Synchronized(ctx, node.ProcessInstanceID, func(ctx context.Context) error {
		return svc.Engine.Retry(ctx, activityInstanceID)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "RetryTask", err, ErrActivityInstanceNotFound, ErrFlowNodeExecution)
	}
	return nil
}
