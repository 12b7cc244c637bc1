package design

import (
	"github.com/pkg/errors"
)

// Builder 用代码构建流程设计, 出错后续调用都忽略, 在 Done 时返回第一个错误
type Builder struct {
	design *DesignProcessDefinition
	err    error
}

func NewBuilder(name, version string) *Builder {
	return &Builder{design: &DesignProcessDefinition{
		Name:      name,
		Version:   version,
		Actors:    make([]*ActorDefinition, 0),
		FlowNodes: make([]*FlowNodeDefinition, 0),
		Data:      make([]*DataDefinition, 0),
	}}
}

func (b *Builder) Description(description string) *Builder {
	b.design.Description = description
	return b
}

func (b *Builder) DisplayName(displayName string) *Builder {
	b.design.DisplayName = displayName
	return b
}

func (b *Builder) AddActor(name string, initiator bool) *Builder {
	b.design.Actors = append(b.design.Actors, &ActorDefinition{Name: name})
	if initiator {
		b.design.ActorInitiator = name
	}
	return b
}

func (b *Builder) AddData(name string, dataType DataType, defaultValue string) *Builder {
	b.design.Data = append(b.design.Data, &DataDefinition{Name: name, Type: dataType, DefaultValue: defaultValue})
	return b
}

func (b *Builder) AddStartEvent(name string) *Builder {
	return b.addNode(&FlowNodeDefinition{Name: name, Type: FlowNodeTypeStart})
}

func (b *Builder) AddEndEvent(name string) *Builder {
	return b.addNode(&FlowNodeDefinition{Name: name, Type: FlowNodeTypeEnd})
}

func (b *Builder) AddAutomaticTask(name string) *Builder {
	return b.addNode(&FlowNodeDefinition{Name: name, Type: FlowNodeTypeAutomatic})
}

func (b *Builder) AddUserTask(name string, actorName string) *Builder {
	return b.addNode(&FlowNodeDefinition{Name: name, Type: FlowNodeTypeUser, ActorName: actorName})
}

// AddFlowNode 添加完整的节点定义
func (b *Builder) AddFlowNode(node *FlowNodeDefinition) *Builder {
	if node == nil {
		b.setErr(errors.New("nil flow node"))
		return b
	}
	return b.addNode(node)
}

func (b *Builder) addNode(node *FlowNodeDefinition) *Builder {
	b.design.FlowNodes = append(b.design.FlowNodes, node)
	return b
}

func (b *Builder) AddTransition(source, target string) *Builder {
	return b.AddConditionalTransition(source, target, "")
}

func (b *Builder) AddConditionalTransition(source, target, condition string) *Builder {
	node, ok := b.design.GetFlowNode(source)
	if !ok {
		b.setErr(errors.WithMessagef(ErrInvalidDesign, "transition source %s not found", source))
		return b
	}
	node.Transitions = append(node.Transitions, &TransitionDefinition{Target: target, Condition: condition})
	return b
}

func (b *Builder) AddConnector(flowNode string, connector *ConnectorDefinition) *Builder {
	node, ok := b.design.GetFlowNode(flowNode)
	if !ok {
		b.setErr(errors.WithMessagef(ErrInvalidDesign, "connector flow node %s not found", flowNode))
		return b
	}
	node.Connectors = append(node.Connectors, connector)
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Done 返回校验通过的流程设计
func (b *Builder) Done() (*DesignProcessDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.design.Validate(); err != nil {
		return nil, err
	}
	return b.design, nil
}
