package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/connector"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (a *processAPI) GetConnectorInstancesOfActivity(ctx context.Context, activityInstanceID int64, startIndex, maxResults int64) ([]*ConnectorInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.ConnectorInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("flow_node_id", activityInstanceID)}, startIndex, maxResults, []store.OrderBy{{Field: "id"}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetConnectorInstancesOfActivity", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toConnectorInstance), nil
}

// GetConnectorInstancesOfProcess 流程实例上所有节点的连接器
func (a *processAPI) GetConnectorInstancesOfProcess(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*ConnectorInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.ConnectorInstancePo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_instance_id", processInstanceID)}, startIndex, maxResults, []store.OrderBy{{Field: "id"}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetConnectorInstancesOfProcess", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toConnectorInstance), nil
}

func (a *processAPI) SearchConnectorInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ConnectorInstance], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &ConnectorInstanceSearchDescriptor, options, toConnectorInstance)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchConnectorInstances", err, nil, ErrSearch)
	}
	return result, nil
}

// SetConnectorInstanceState 人工修改连接器状态, 比如把失败的连接器改成 SKIPPED 后重试节点
func (a *processAPI) SetConnectorInstanceState(ctx context.Context, connectorInstanceID int64, state ConnectorState) error {
	switch state {
	case ConnectorStateToBeExecuted, ConnectorStateDone, ConnectorStateFailed, ConnectorStateSkipped:
	default:
		return invalidParam("SetConnectorInstanceState failed, unknown state: %s", state)
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	po, err := store.Get[store.ConnectorInstancePo](ctx, svc.Repo, connectorInstanceID)
	if err != nil {
		return a.fail(ctx, svc.Log, "SetConnectorInstanceState", err, ErrConnectorInstanceNotFound, ErrUpdate)
	}
	err = svc.Synchronized(ctx, po.ProcessInstanceID, func(ctx context.Context) error {
		return store.UpdateByID[store.ConnectorInstancePo](ctx, svc.Repo, connectorInstanceID, map[string]any{"state": state})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "SetConnectorInstanceState", err, ErrConnectorInstanceNotFound, ErrUpdate)
	}
	svc.Log.Info("connector instance state changed",
		zap.Int64("connector_instance_id", connectorInstanceID), zap.String("from", po.State), zap.String("to", state))
	return nil
}

// ExecuteConnectorOnProcessDefinition 在流程实例之外执行连接器
//
//	inputExpressions 在 inputValues 上计算, 结果和 inputValues 合并后作为连接器输入, 表达式优先
func (a *processAPI) ExecuteConnectorOnProcessDefinition(ctx context.Context, processDefinitionID int64, connectorID string,
	inputExpressions map[string]string, inputValues map[string]any) (map[string]any, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID); err != nil {
		return nil, a.fail(ctx, svc.Log, "ExecuteConnectorOnProcessDefinition", err, ErrProcessDefinitionNotFound, ErrConnectorExecution)
	}
	impl, err := connector.Get(connectorID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "ExecuteConnectorOnProcessDefinition", err, nil, ErrConnectorExecution)
	}
	evaluated, err := svc.Engine.EvaluateInputs(inputExpressions, inputValues)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "ExecuteConnectorOnProcessDefinition", err, nil, ErrExpressionEvaluation)
	}
	inputs := make(map[string]any, len(inputValues)+len(evaluated))
	for k, v := range inputValues {
		inputs[k] = v
	}
	for k, v := range evaluated {
		inputs[k] = v
	}
	outputs, err := impl.Execute(ctx, inputs)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "ExecuteConnectorOnProcessDefinition",
			errors.Wrapf(ErrConnectorExecution, "connector %s: %v", connectorID, err), nil, ErrConnectorExecution)
	}
	return outputs, nil
}
