package design

import (
	"github.com/pkg/errors"
)

// Validate 检查字段和流程图
//   - 有且只有一个开始节点, 至少一个结束节点
//   - 节点名唯一, 连线目标存在, 不能连到开始节点, 结束节点没有出线
//   - 所有节点都能从开始节点到达, 允许回到普通节点的环, 例如退回修改
//   - 人工任务必须引用已声明的参与者
func (d *DesignProcessDefinition) Validate() error {
	if err := validatorUtil.Struct(d); err != nil {
		return errors.WithMessagef(ErrInvalidDesign, "%v", err)
	}
	if err := d.checkNames(); err != nil {
		return err
	}
	if err := d.checkGraph(); err != nil {
		return err
	}
	return nil
}

func (d *DesignProcessDefinition) checkNames() error {
	actors := make(map[string]struct{}, len(d.Actors))
	for _, actor := range d.Actors {
		if _, ok := actors[actor.Name]; ok {
			return errors.WithMessagef(ErrInvalidDesign, "duplicate actor: %s", actor.Name)
		}
		actors[actor.Name] = struct{}{}
	}
	if d.ActorInitiator != "" {
		if _, ok := actors[d.ActorInitiator]; !ok {
			return errors.WithMessagef(ErrInvalidDesign, "initiator actor %s is not declared", d.ActorInitiator)
		}
	}
	if err := checkDataNames(d.Data); err != nil {
		return err
	}
	nodes := make(map[string]struct{}, len(d.FlowNodes))
	for _, node := range d.FlowNodes {
		if _, ok := nodes[node.Name]; ok {
			return errors.WithMessagef(ErrInvalidDesign, "duplicate flow node: %s", node.Name)
		}
		nodes[node.Name] = struct{}{}
		if node.Type == FlowNodeTypeUser {
			if node.ActorName == "" {
				return errors.WithMessagef(ErrInvalidDesign, "user task %s has no actor", node.Name)
			}
			if _, ok := actors[node.ActorName]; !ok {
				return errors.WithMessagef(ErrInvalidDesign, "user task %s references undeclared actor %s", node.Name, node.ActorName)
			}
		}
		if err := checkDataNames(node.Data); err != nil {
			return errors.WithMessagef(err, "flow node: %s", node.Name)
		}
	}
	return nil
}

func checkDataNames(data []*DataDefinition) error {
	names := make(map[string]struct{}, len(data))
	for _, item := range data {
		if _, ok := names[item.Name]; ok {
			return errors.WithMessagef(ErrInvalidDesign, "duplicate data: %s", item.Name)
		}
		names[item.Name] = struct{}{}
	}
	return nil
}

func (d *DesignProcessDefinition) checkGraph() error {
	var start *FlowNodeDefinition
	endCount := 0
	for _, node := range d.FlowNodes {
		switch node.Type {
		case FlowNodeTypeStart:
			if start != nil {
				return errors.WithMessagef(ErrInvalidDesign, "more than one start event: %s, %s", start.Name, node.Name)
			}
			start = node
		case FlowNodeTypeEnd:
			endCount++
			if len(node.Transitions) > 0 {
				return errors.WithMessagef(ErrInvalidDesign, "end event %s has outgoing transitions", node.Name)
			}
		default:
			if len(node.Transitions) == 0 {
				return errors.WithMessagef(ErrInvalidDesign, "flow node %s has no outgoing transition", node.Name)
			}
		}
		for _, transition := range node.Transitions {
			target, ok := d.GetFlowNode(transition.Target)
			if !ok {
				return errors.WithMessagef(ErrInvalidDesign, "transition %s -> %s: target not found", node.Name, transition.Target)
			}
			if target.Type == FlowNodeTypeStart {
				return errors.WithMessagef(ErrInvalidDesign, "transition %s -> %s: cannot go back to start event", node.Name, transition.Target)
			}
		}
	}
	if start == nil {
		return errors.WithMessage(ErrInvalidDesign, "no start event")
	}
	if endCount == 0 {
		return errors.WithMessage(ErrInvalidDesign, "no end event")
	}

	// 从开始节点广度优先遍历, 检查可达性
	reached := map[string]struct{}{start.Name: {}}
	queue := []*FlowNodeDefinition{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, transition := range node.Transitions {
			if _, ok := reached[transition.Target]; ok {
				continue
			}
			reached[transition.Target] = struct{}{}
			target, _ := d.GetFlowNode(transition.Target)
			queue = append(queue, target)
		}
	}
	for _, node := range d.FlowNodes {
		if _, ok := reached[node.Name]; !ok {
			return errors.WithMessagef(ErrInvalidDesign, "flow node %s is unreachable from start event", node.Name)
		}
	}
	return nil
}
