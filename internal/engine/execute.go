package engine

import (
	"context"
	"fmt"

	"github.com/blingmoon/simple-bpm/connector"
	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/jsondata"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type runtime struct {
	instance *store.ProcessInstancePo
	def      *Definition
}

// item 待执行的节点和阶段
type item struct {
	node  *store.FlowNodeInstancePo
	phase phase
}

// maxSteps 一次推进最多执行的节点数
const maxSteps = 1000

// proceed 广度优先执行, 直到所有分支都停在人工任务, 失败节点或者结束节点
func (e *Engine) proceed(ctx context.Context, rt *runtime, queue []*item) error {
	for steps := 0; len(queue) > 0; steps++ {
		if steps >= maxSteps {
			return errors.WithMessagef(ErrTooManySteps, "processInstanceID: %d", rt.instance.ID)
		}
		current := queue[0]
		queue = queue[1:]
		next, err := e.step(ctx, rt, current)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return e.checkCompletion(ctx, rt)
}

func (e *Engine) step(ctx context.Context, rt *runtime, it *item) ([]*item, error) {
	node := it.node
	nodeDef, ok := rt.def.Design.GetFlowNode(node.Name)
	if !ok {
		return nil, errors.WithMessagef(ErrDefinitionCorrupted, "flow node %s not in design", node.Name)
	}
	p := it.phase
	if p == phaseEnter {
		failure, err := e.runConnectors(ctx, rt, node, nodeDef, design.ConnectorEventOnEnter)
		if err != nil {
			return nil, err
		}
		if failure != "" {
			return nil, e.fail(ctx, node, phaseEnter, failure)
		}
		if nodeDef.Type == design.FlowNodeTypeUser {
			return nil, e.setState(ctx, node, FlowNodeStateReady, nil)
		}
		p = phaseFinish
	}
	if p == phaseFinish {
		failure, err := e.runConnectors(ctx, rt, node, nodeDef, design.ConnectorEventOnFinish)
		if err != nil {
			return nil, err
		}
		if failure != "" {
			return nil, e.fail(ctx, node, phaseFinish, failure)
		}
	}

	targets, failure, err := e.nextFlowNodes(ctx, rt, nodeDef)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return nil, e.fail(ctx, node, phaseTransition, failure)
	}
	if err := e.setState(ctx, node, FlowNodeStateCompleted, nil); err != nil {
		return nil, err
	}
	next := make([]*item, 0, len(targets))
	for _, target := range targets {
		created, err := e.createFlowNode(ctx, rt, target)
		if err != nil {
			return nil, err
		}
		next = append(next, &item{node: created, phase: phaseEnter})
	}
	return next, nil
}

// nextFlowNodes 计算满足条件的连线, 非结束节点没有可走的连线视为失败
func (e *Engine) nextFlowNodes(ctx context.Context, rt *runtime, nodeDef *design.FlowNodeDefinition) ([]*design.FlowNodeDefinition, string, error) {
	if len(nodeDef.Transitions) == 0 {
		return nil, "", nil
	}
	data, err := e.ProcessData(ctx, rt.instance.ID)
	if err != nil {
		return nil, "", err
	}
	targets := make([]*design.FlowNodeDefinition, 0, len(nodeDef.Transitions))
	for _, transition := range nodeDef.Transitions {
		ok, err := e.expr.EvaluateBool(transition.Condition, data)
		if err != nil {
			return nil, fmt.Sprintf("transition to %s: %v", transition.Target, err), nil
		}
		if !ok {
			continue
		}
		target, found := rt.def.Design.GetFlowNode(transition.Target)
		if !found {
			return nil, "", errors.WithMessagef(ErrDefinitionCorrupted, "transition target %s not in design", transition.Target)
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil, "no outgoing transition condition is true", nil
	}
	return targets, "", nil
}

func (e *Engine) createFlowNode(ctx context.Context, rt *runtime, nodeDef *design.FlowNodeDefinition) (*store.FlowNodeInstancePo, error) {
	now := e.now()
	node := &store.FlowNodeInstancePo{
		ProcessInstanceID:   rt.instance.ID,
		ProcessDefinitionID: rt.def.ID,
		Name:                nodeDef.Name,
		DisplayName:         nodeDef.DisplayName,
		Type:                nodeDef.Type,
		State:               FlowNodeStateExecuting,
		Priority:            nodeDef.Priority,
		ReachedStateAt:      now.UnixMilli(),
	}
	if node.Priority == "" {
		node.Priority = PriorityNormal
	}
	if nodeDef.Type == design.FlowNodeTypeUser {
		actor, err := store.First[store.ActorPo](ctx, e.repo,
			store.Eq("process_definition_id", rt.def.ID), store.Eq("name", nodeDef.ActorName))
		if err != nil {
			return nil, errors.WithMessagef(err, "get actor %s failed", nodeDef.ActorName)
		}
		node.ActorID = actor.ID
		if nodeDef.ExpectedDurationMs > 0 {
			node.DueDate = now.UnixMilli() + nodeDef.ExpectedDurationMs
		}
	}
	if len(nodeDef.Data) > 0 {
		env, err := e.ProcessData(ctx, rt.instance.ID)
		if err != nil {
			return nil, err
		}
		local := jsondata.New(nil)
		for _, dataDef := range nodeDef.Data {
			var value any
			if dataDef.DefaultValue != "" {
				if value, err = e.expr.Evaluate(dataDef.DefaultValue, env); err != nil {
					return nil, errors.WithMessagef(err, "default value of %s.%s", nodeDef.Name, dataDef.Name)
				}
			}
			converted, err := ConvertValue(dataDef.Type, value)
			if err != nil {
				return nil, errors.WithMessagef(err, "activity data: %s.%s", nodeDef.Name, dataDef.Name)
			}
			if err := local.Set([]string{LocalDataKeyData, dataDef.Name}, converted); err != nil {
				return nil, err
			}
		}
		b, err := local.Bytes()
		if err != nil {
			return nil, errors.WithMessagef(ErrInvalidData, "%v", err)
		}
		node.LocalData = b
	}
	if err := store.Create(ctx, e.repo, node); err != nil {
		return nil, errors.WithMessagef(err, "create flow node %s failed", nodeDef.Name)
	}
	return node, nil
}

func (e *Engine) setState(ctx context.Context, node *store.FlowNodeInstancePo, state FlowNodeState, extra map[string]any) error {
	now := e.now().UnixMilli()
	fields := map[string]any{"state": state, "reached_state_at": now}
	for k, v := range extra {
		fields[k] = v
	}
	if err := store.UpdateByID[store.FlowNodeInstancePo](ctx, e.repo, node.ID, fields); err != nil {
		return errors.WithMessagef(err, "update flow node %d state to %s failed", node.ID, state)
	}
	node.State = state
	node.ReachedStateAt = now
	return nil
}

// fail 节点失败, 记录阶段和原因, 流程实例保持 STARTED 等待重试
func (e *Engine) fail(ctx context.Context, node *store.FlowNodeInstancePo, p phase, reason string) error {
	local, err := jsondata.Parse(node.LocalData)
	if err != nil {
		local = jsondata.New(nil)
	}
	_ = local.Set([]string{LocalDataKeySystem, LocalDataKeyPhase}, p)
	_ = local.Set([]string{LocalDataKeySystem, LocalDataKeyReason}, reason)
	b, err := local.Bytes()
	if err != nil {
		return errors.WithMessagef(ErrInvalidData, "%v", err)
	}
	node.LocalData = b
	e.log.Warn("flow node failed",
		zap.Int64("tenant_id", e.repo.TenantID()),
		zap.Int64("process_instance_id", node.ProcessInstanceID),
		zap.Int64("flow_node_id", node.ID),
		zap.String("flow_node", node.Name),
		zap.String("phase", p),
		zap.String("reason", reason))
	return e.setState(ctx, node, FlowNodeStateFailed, map[string]any{"local_data": b})
}

// FailureReason 失败节点的原因
func FailureReason(node *store.FlowNodeInstancePo) string {
	local, err := jsondata.Parse(node.LocalData)
	if err != nil {
		return ""
	}
	reason, _ := local.GetString(LocalDataKeySystem, LocalDataKeyReason)
	return reason
}

func (e *Engine) checkCompletion(ctx context.Context, rt *runtime) error {
	open, err := store.Count[store.FlowNodeInstancePo](ctx, e.repo, store.Where(
		store.Eq("process_instance_id", rt.instance.ID),
		store.In("state", OpenFlowNodeStates()),
	))
	if err != nil {
		return errors.WithMessagef(err, "count open flow nodes failed, processInstanceID: %d", rt.instance.ID)
	}
	if open > 0 {
		return nil
	}
	return e.finish(ctx, rt.instance, ProcessInstanceStateCompleted)
}

// runConnectors 执行节点上某个事件的连接器, 返回失败原因, 已经 DONE 或 SKIPPED 的不再执行
func (e *Engine) runConnectors(ctx context.Context, rt *runtime, node *store.FlowNodeInstancePo, nodeDef *design.FlowNodeDefinition, event design.ConnectorEvent) (string, error) {
	for _, def := range nodeDef.Connectors {
		if def.Event != event {
			continue
		}
		instance, err := store.First[store.ConnectorInstancePo](ctx, e.repo,
			store.Eq("flow_node_id", node.ID), store.Eq("name", def.Name), store.Eq("event", event))
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return "", errors.WithMessagef(err, "get connector instance %s failed", def.Name)
		}
		if instance == nil {
			instance = &store.ConnectorInstancePo{
				ProcessInstanceID: rt.instance.ID,
				FlowNodeID:        node.ID,
				Name:              def.Name,
				ConnectorID:       def.ConnectorID,
				Event:             event,
				State:             ConnectorStateToBeExecuted,
			}
			if err := store.Create(ctx, e.repo, instance); err != nil {
				return "", errors.WithMessagef(err, "create connector instance %s failed", def.Name)
			}
		}
		if instance.State == ConnectorStateDone || instance.State == ConnectorStateSkipped {
			continue
		}

		state, message := ConnectorStateDone, ""
		if err := e.executeConnector(ctx, rt, def); err != nil {
			state, message = ConnectorStateFailed, err.Error()
		}
		if err := store.UpdateByID[store.ConnectorInstancePo](ctx, e.repo, instance.ID, map[string]any{
			"state":         state,
			"error_message": message,
			"executed_at":   e.now().UnixMilli(),
		}); err != nil {
			return "", errors.WithMessagef(err, "update connector instance %s failed", def.Name)
		}
		if state == ConnectorStateFailed {
			e.log.Warn("connector failed",
				zap.Int64("process_instance_id", rt.instance.ID),
				zap.String("connector", def.Name),
				zap.String("connector_id", def.ConnectorID),
				zap.Bool("ignore_error", def.IgnoreError),
				zap.String("error", message))
			if !def.IgnoreError {
				return fmt.Sprintf("connector %s: %s", def.Name, message), nil
			}
		}
	}
	return "", nil
}

// executeConnector 计算输入, 调用实现, 把输出写回流程数据
func (e *Engine) executeConnector(ctx context.Context, rt *runtime, def *design.ConnectorDefinition) error {
	impl, err := connector.Get(def.ConnectorID)
	if err != nil {
		return err
	}
	data, err := e.ProcessData(ctx, rt.instance.ID)
	if err != nil {
		return err
	}
	data["processInstanceId"] = rt.instance.ID
	inputs, err := e.EvaluateInputs(def.Inputs, data)
	if err != nil {
		return err
	}
	outputs, err := impl.Execute(ctx, inputs)
	if err != nil {
		return errors.WithMessagef(err, "execute connector %s", def.ConnectorID)
	}
	if len(def.Outputs) == 0 {
		return nil
	}
	values := make(map[string]any, len(def.Outputs))
	for dataName, expr := range def.Outputs {
		v, err := e.expr.Evaluate(expr, outputs)
		if err != nil {
			return err
		}
		values[dataName] = v
	}
	return e.setProcessData(ctx, rt.instance.ID, values)
}

// EvaluateInputs 计算连接器输入
func (e *Engine) EvaluateInputs(inputs map[string]string, env map[string]any) (map[string]any, error) {
	ret := make(map[string]any, len(inputs))
	for name, expr := range inputs {
		v, err := e.expr.Evaluate(expr, env)
		if err != nil {
			return nil, errors.WithMessagef(err, "input %s", name)
		}
		ret[name] = v
	}
	return ret, nil
}
