package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
)

func (a *processAPI) GetProcessDataInstance(ctx context.Context, name string, processInstanceID int64) (*DataInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.First[store.DataInstancePo](ctx, svc.Repo,
		store.Eq("process_instance_id", processInstanceID), store.Eq("name", name))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDataInstance", err, ErrDataNotFound, ErrRetrieve)
	}
	data, err := toDataInstance(po)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDataInstance", err, ErrDataNotFound, ErrRetrieve)
	}
	return data, nil
}

func (a *processAPI) GetProcessDataInstances(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*DataInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.DataInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_instance_id", processInstanceID)},
		startIndex, maxResults, []store.OrderBy{{Field: "name"}, {Field: "id"}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDataInstances", err, nil, ErrRetrieve)
	}
	ret := make([]*DataInstance, 0, len(pos))
	for _, po := range pos {
		data, err := toDataInstance(po)
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetProcessDataInstances", err, nil, ErrRetrieve)
		}
		ret = append(ret, data)
	}
	return ret, nil
}

func (a *processAPI) UpdateProcessDataInstance(ctx context.Context, name string, processInstanceID int64, value any) error {
	return a.UpdateProcessDataInstances(ctx, processInstanceID, map[string]any{name: value})
}

// UpdateProcessDataInstances 多个数据在同一个事务里更新, 类型不匹配时都不更新
func (a *processAPI) UpdateProcessDataInstances(ctx context.Context, processInstanceID int64, values map[string]any) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Synchronized(ctx, processInstanceID, func(ctx context.Context) error {
		return svc.Engine.UpdateProcessData(ctx, processInstanceID, values)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "UpdateProcessDataInstances", err, ErrProcessInstanceNotFound, ErrUpdate)
	}
	return nil
}

func (a *processAPI) GetActivityDataInstance(ctx context.Context, name string, activityInstanceID int64) (*DataInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	node, err := store.Get[store.FlowNodeInstancePo](ctx, svc.Repo, activityInstanceID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActivityDataInstance", err, ErrActivityInstanceNotFound, ErrRetrieve)
	}
	def, err := svc.Engine.Definition(ctx, node.ProcessDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActivityDataInstance", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	nodeDef, ok := def.Design.GetFlowNode(node.Name)
	if !ok {
		return nil, errors.Wrapf(ErrDataNotFound, "flow node %s is not in process %s", node.Name, def.Name)
	}
	for _, dataDef := range nodeDef.Data {
		if dataDef.Name != name {
			continue
		}
		values, err := engine.ActivityData(node)
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetActivityDataInstance", err, ErrDataNotFound, ErrRetrieve)
		}
		value, err := engine.ConvertValue(dataDef.Type, values[name])
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetActivityDataInstance", err, nil, ErrRetrieve)
		}
		return &DataInstance{
			Name:        dataDef.Name,
			Description: dataDef.Description,
			Type:        dataDef.Type,
			Value:       value,
			ContainerID: node.ID,
		}, nil
	}
	return nil, errors.Wrapf(ErrDataNotFound, "activity data %s is not declared on %s", name, node.Name)
}

func (a *processAPI) UpdateActivityDataInstance(ctx context.Context, name string, activityInstanceID int64, value any) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	node, err := store.Get[store.FlowNodeInstancePo](ctx, svc.Repo, activityInstanceID)
	if err != nil {
		return a.fail(ctx, svc.Log, "UpdateActivityDataInstance", err, ErrActivityInstanceNotFound, ErrUpdate)
	}
	err = svc.Synchronized(ctx, node.ProcessInstanceID, func(ctx context.Context) error {
		node, err := store.Get[store.FlowNodeInstancePo](ctx, svc.Repo, activityInstanceID)
		if err != nil {
			return err
		}
		if !engine.IsOpenFlowNodeState(node.State) {
			return errors.Wrapf(ErrUpdate, "flow node %d is %s", node.ID, node.State)
		}
		return svc.Engine.UpdateActivityData(ctx, node, name, value)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "UpdateActivityDataInstance", err, ErrActivityInstanceNotFound, ErrUpdate)
	}
	return nil
}

// EvaluateExpressionOnProcessInstance 在流程数据上计算表达式
func (a *processAPI) EvaluateExpressionOnProcessInstance(ctx context.Context, processInstanceID int64, expression string) (any, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.ProcessInstancePo](ctx, svc.Repo, processInstanceID); err != nil {
		return nil, a.fail(ctx, svc.Log, "EvaluateExpressionOnProcessInstance", err, ErrProcessInstanceNotFound, ErrRetrieve)
	}
	env, err := svc.Engine.ProcessData(ctx, processInstanceID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "EvaluateExpressionOnProcessInstance", err, ErrDataNotFound, ErrExpressionEvaluation)
	}
	env["processInstanceId"] = processInstanceID
	out, err := a.accessor.Expressions().Evaluate(expression, env)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "EvaluateExpressionOnProcessInstance", err, nil, ErrExpressionEvaluation)
	}
	return out, nil
}
