// Package engine 流程执行器: 启动实例, 沿着连线执行节点, 人工任务停在 READY 等待执行
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/expression"
	"github.com/blingmoon/simple-bpm/internal/jsondata"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine 租户级别的执行器, 同一个流程实例的调用方需要先加锁
type Engine struct {
	repo        *store.Repo
	expr        *expression.Engine
	log         *zap.Logger
	now         func() time.Time
	definitions sync.Map // processDefinitionID -> *Definition
}

func New(repo *store.Repo, expr *expression.Engine, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{repo: repo, expr: expr, log: log, now: time.Now}
}

// Definition 已部署的流程定义, 部署后设计不再变化, 可以缓存
type Definition struct {
	ID     int64
	Name   string
	Design *design.DesignProcessDefinition
}

func (e *Engine) Definition(ctx context.Context, processDefinitionID int64) (*Definition, error) {
	if v, ok := e.definitions.Load(processDefinitionID); ok {
		return v.(*Definition), nil
	}
	po, err := store.Get[store.ProcessDefinitionPo](ctx, e.repo, processDefinitionID)
	if err != nil {
		return nil, errors.WithMessagef(err, "get process definition failed, id: %d", processDefinitionID)
	}
	d, err := design.Unmarshal(po.Design)
	if err != nil {
		return nil, errors.WithMessagef(ErrDefinitionCorrupted, "process definition %d: %v", po.ID, err)
	}
	def := &Definition{ID: po.ID, Name: po.Name, Design: d}
	actual, _ := e.definitions.LoadOrStore(processDefinitionID, def)
	return actual.(*Definition), nil
}

// Forget 删除流程定义后清理缓存
func (e *Engine) Forget(processDefinitionID int64) {
	e.definitions.Delete(processDefinitionID)
}

// ValidateExpressions 部署前编译设计中所有的表达式
func (e *Engine) ValidateExpressions(d *design.DesignProcessDefinition) error {
	check := func(where, expr string) error {
		if expr == "" {
			return nil
		}
		if err := e.expr.Validate(expr); err != nil {
			return errors.WithMessagef(err, "%s", where)
		}
		return nil
	}
	for _, data := range d.Data {
		if err := check("data "+data.Name, data.DefaultValue); err != nil {
			return err
		}
	}
	for _, node := range d.FlowNodes {
		for _, transition := range node.Transitions {
			if err := check("transition "+node.Name+" -> "+transition.Target, transition.Condition); err != nil {
				return err
			}
		}
		for _, data := range node.Data {
			if err := check("data "+node.Name+"."+data.Name, data.DefaultValue); err != nil {
				return err
			}
		}
		for _, c := range node.Connectors {
			for name, expr := range c.Inputs {
				if err := check("connector "+c.Name+" input "+name, expr); err != nil {
					return err
				}
			}
			for name, expr := range c.Outputs {
				if err := check("connector "+c.Name+" output "+name, expr); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StartParams 启动流程参数
type StartParams struct {
	ProcessDefinitionID int64
	StartedBy           int64
	StartedBySubstitute int64
	Variables           map[string]any
}

// Start 创建流程实例并执行到第一个等待点
func (e *Engine) Start(ctx context.Context, params *StartParams) (*store.ProcessInstancePo, error) {
	def, err := e.Definition(ctx, params.ProcessDefinitionID)
	if err != nil {
		return nil, err
	}
	for name := range params.Variables {
		if _, ok := def.Design.GetData(name); !ok {
			return nil, errors.WithMessagef(ErrInvalidData, "data %s is not declared in %s", name, def.Name)
		}
	}
	startDef, ok := def.Design.StartNode()
	if !ok {
		return nil, errors.WithMessagef(ErrDefinitionCorrupted, "process definition %d has no start event", def.ID)
	}

	var instance *store.ProcessInstancePo
	err = e.repo.Transaction(ctx, func(ctx context.Context) error {
		instance = &store.ProcessInstancePo{
			ProcessDefinitionID: def.ID,
			Name:                def.Name,
			State:               ProcessInstanceStateStarted,
			StartedBy:           params.StartedBy,
			StartedBySubstitute: params.StartedBySubstitute,
		}
		if err := store.Create(ctx, e.repo, instance); err != nil {
			return errors.WithMessage(err, "create process instance failed")
		}
		if err := e.initProcessData(ctx, instance, def, params.Variables); err != nil {
			return err
		}
		rt := &runtime{instance: instance, def: def}
		start, err := e.createFlowNode(ctx, rt, startDef)
		if err != nil {
			return err
		}
		return e.proceed(ctx, rt, []*item{{node: start, phase: phaseEnter}})
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (e *Engine) initProcessData(ctx context.Context, instance *store.ProcessInstancePo, def *Definition, variables map[string]any) error {
	env := make(map[string]any, len(def.Design.Data))
	for _, dataDef := range def.Design.Data {
		value, provided := variables[dataDef.Name]
		if !provided && dataDef.DefaultValue != "" {
			v, err := e.expr.Evaluate(dataDef.DefaultValue, env)
			if err != nil {
				return errors.WithMessagef(err, "default value of data %s", dataDef.Name)
			}
			value = v
		}
		converted, err := ConvertValue(dataDef.Type, value)
		if err != nil {
			return errors.WithMessagef(err, "data: %s", dataDef.Name)
		}
		b, err := EncodeValue(converted)
		if err != nil {
			return err
		}
		env[dataDef.Name] = converted
		if err := store.Create(ctx, e.repo, &store.DataInstancePo{
			ProcessInstanceID: instance.ID,
			Name:              dataDef.Name,
			Description:       dataDef.Description,
			Type:              dataDef.Type,
			Value:             b,
		}); err != nil {
			return errors.WithMessagef(err, "create data instance %s failed", dataDef.Name)
		}
	}
	return nil
}

// ExecuteUserTask 执行人工任务, inputs 写入流程数据, 然后继续执行后续节点
func (e *Engine) ExecuteUserTask(ctx context.Context, taskID int64, executorID int64, inputs map[string]any) error {
	return e.repo.Transaction(ctx, func(ctx context.Context) error {
		node, rt, err := e.loadRuntime(ctx, taskID)
		if err != nil {
			return err
		}
		if node.Type != design.FlowNodeTypeUser || node.State != FlowNodeStateReady {
			return errors.WithMessagef(ErrInvalidState, "flow node %d is %s %s, want READY user task", node.ID, node.Type, node.State)
		}
		if err := e.setProcessData(ctx, rt.instance.ID, inputs); err != nil {
			return err
		}
		fields := map[string]any{"executed_by": executorID, "state": FlowNodeStateExecuting}
		if node.AssigneeID == 0 {
			fields["assignee_id"] = executorID
			node.AssigneeID = executorID
		}
		if err := store.UpdateByID[store.FlowNodeInstancePo](ctx, e.repo, node.ID, fields); err != nil {
			return errors.WithMessagef(err, "update flow node failed, id: %d", node.ID)
		}
		node.ExecutedBy = executorID
		node.State = FlowNodeStateExecuting
		return e.proceed(ctx, rt, []*item{{node: node, phase: phaseFinish}})
	})
}

// Retry 重新执行失败的节点, 从失败的阶段开始
func (e *Engine) Retry(ctx context.Context, flowNodeID int64) error {
	return e.repo.Transaction(ctx, func(ctx context.Context) error {
		node, rt, err := e.loadRuntime(ctx, flowNodeID)
		if err != nil {
			return err
		}
		if node.State != FlowNodeStateFailed {
			return errors.WithMessagef(ErrInvalidState, "flow node %d is %s, want FAILED", node.ID, node.State)
		}
		local, err := jsondata.Parse(node.LocalData)
		if err != nil {
			return err
		}
		p, _ := local.GetString(LocalDataKeySystem, LocalDataKeyPhase)
		if p == "" {
			p = phaseEnter
		}
		local.Delete(LocalDataKeySystem)
		b, err := local.Bytes()
		if err != nil {
			return errors.WithMessagef(ErrInvalidData, "%v", err)
		}
		if err := e.setState(ctx, node, FlowNodeStateExecuting, map[string]any{"local_data": b}); err != nil {
			return err
		}
		node.LocalData = b
		return e.proceed(ctx, rt, []*item{{node: node, phase: p}})
	})
}

// Cancel 取消流程实例, 未结束的节点变成 ABORTED, 实例归档
func (e *Engine) Cancel(ctx context.Context, processInstanceID int64) error {
	return e.repo.Transaction(ctx, func(ctx context.Context) error {
		instance, err := store.Get[store.ProcessInstancePo](ctx, e.repo, processInstanceID)
		if err != nil {
			return errors.WithMessagef(err, "get process instance failed, id: %d", processInstanceID)
		}
		if IsOverProcessInstanceState(instance.State) {
			return errors.WithMessagef(ErrInvalidState, "process instance %d is %s", instance.ID, instance.State)
		}
		now := e.now().UnixMilli()
		if _, err := store.Update[store.FlowNodeInstancePo](ctx, e.repo, &store.UpdateParams{
			Where: []store.Cond{
				store.Eq("process_instance_id", instance.ID),
				store.In("state", OpenFlowNodeStates()),
			},
			Fields: map[string]any{"state": FlowNodeStateAborted, "reached_state_at": now},
		}); err != nil {
			return errors.WithMessagef(err, "abort flow nodes failed, processInstanceID: %d", instance.ID)
		}
		return e.finish(ctx, instance, ProcessInstanceStateCancelled)
	})
}

func (e *Engine) loadRuntime(ctx context.Context, flowNodeID int64) (*store.FlowNodeInstancePo, *runtime, error) {
	node, err := store.Get[store.FlowNodeInstancePo](ctx, e.repo, flowNodeID)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "get flow node failed, id: %d", flowNodeID)
	}
	instance, err := store.Get[store.ProcessInstancePo](ctx, e.repo, node.ProcessInstanceID)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "get process instance failed, id: %d", node.ProcessInstanceID)
	}
	if IsOverProcessInstanceState(instance.State) {
		return nil, nil, errors.WithMessagef(ErrInvalidState, "process instance %d is %s", instance.ID, instance.State)
	}
	def, err := e.Definition(ctx, instance.ProcessDefinitionID)
	if err != nil {
		return nil, nil, err
	}
	return node, &runtime{instance: instance, def: def}, nil
}

func (e *Engine) finish(ctx context.Context, instance *store.ProcessInstancePo, state ProcessInstanceState) error {
	now := e.now().UnixMilli()
	if err := store.UpdateByID[store.ProcessInstancePo](ctx, e.repo, instance.ID, map[string]any{
		"state":    state,
		"ended_at": now,
	}); err != nil {
		return errors.WithMessagef(err, "update process instance failed, id: %d", instance.ID)
	}
	instance.State = state
	instance.EndedAt = now
	if err := store.Create(ctx, e.repo, &store.ArchivedProcessInstancePo{
		SourceObjectID:      instance.ID,
		ProcessDefinitionID: instance.ProcessDefinitionID,
		Name:                instance.Name,
		State:               state,
		StartedBy:           instance.StartedBy,
		StartedAt:           instance.StartedAt,
		EndedAt:             now,
	}); err != nil {
		return errors.WithMessagef(err, "archive process instance failed, id: %d", instance.ID)
	}
	e.log.Info("process instance finished",
		zap.Int64("tenant_id", e.repo.TenantID()),
		zap.Int64("process_instance_id", instance.ID),
		zap.String("state", state))
	return nil
}
