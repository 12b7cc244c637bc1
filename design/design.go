// Package design 流程设计: 部署前在内存中描述一个流程定义
package design

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	ErrInvalidDesign = errors.New("invalid process design")

	validatorUtil = validator.New()
)

type FlowNodeType = string

const (
	FlowNodeTypeStart     FlowNodeType = "START"
	FlowNodeTypeAutomatic FlowNodeType = "AUTOMATIC"
	FlowNodeTypeUser      FlowNodeType = "USER"
	FlowNodeTypeEnd       FlowNodeType = "END"
)

type DataType = string

const (
	DataTypeString  DataType = "STRING"
	DataTypeInteger DataType = "INTEGER"
	DataTypeDouble  DataType = "DOUBLE"
	DataTypeBoolean DataType = "BOOLEAN"
	DataTypeJSON    DataType = "JSON"
)

type ConnectorEvent = string

const (
	ConnectorEventOnEnter  ConnectorEvent = "ON_ENTER"
	ConnectorEventOnFinish ConnectorEvent = "ON_FINISH"
)

// DesignProcessDefinition 流程设计, 部署后以 json 形式保存
type DesignProcessDefinition struct {
	Name           string                `json:"name" validate:"required,max=255"`
	Version        string                `json:"version" validate:"required,max=50"`
	DisplayName    string                `json:"display_name"`
	Description    string                `json:"description"`
	ActorInitiator string                `json:"actor_initiator"`
	Actors         []*ActorDefinition    `json:"actors" validate:"dive"`
	FlowNodes      []*FlowNodeDefinition `json:"flow_nodes" validate:"required,min=2,dive"`
	Data           []*DataDefinition     `json:"data" validate:"dive"`
}

type ActorDefinition struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

// FlowNodeDefinition 流程节点
// ExpectedDurationMs: 人工任务的期望完成时长, 用于计算截止时间, 0 表示没有截止时间
type FlowNodeDefinition struct {
	Name               string                  `json:"name" validate:"required,max=255"`
	DisplayName        string                  `json:"display_name"`
	Description        string                  `json:"description"`
	Type               FlowNodeType            `json:"type" validate:"required,oneof=START AUTOMATIC USER END"`
	ActorName          string                  `json:"actor_name"`
	Priority           string                  `json:"priority"`
	ExpectedDurationMs int64                   `json:"expected_duration_ms" validate:"gte=0"`
	Transitions        []*TransitionDefinition `json:"transitions" validate:"dive"`
	Connectors         []*ConnectorDefinition  `json:"connectors" validate:"dive"`
	Data               []*DataDefinition       `json:"data" validate:"dive"`
}

// TransitionDefinition 连线, Condition 为空表示无条件
type TransitionDefinition struct {
	Target    string `json:"target" validate:"required"`
	Condition string `json:"condition"`
}

// ConnectorDefinition 节点上的连接器
// Inputs: 输入名 -> 表达式, 表达式的变量是流程数据
// Outputs: 流程数据名 -> 表达式, 表达式的变量是连接器输出
type ConnectorDefinition struct {
	Name        string            `json:"name" validate:"required"`
	ConnectorID string            `json:"connector_id" validate:"required"`
	Event       ConnectorEvent    `json:"event" validate:"required,oneof=ON_ENTER ON_FINISH"`
	Inputs      map[string]string `json:"inputs"`
	Outputs     map[string]string `json:"outputs"`
	IgnoreError bool              `json:"ignore_error"` // 为 true 时连接器失败不影响节点, 连接器实例为 FAILED
}

// DataDefinition 数据定义, DefaultValue 是表达式, 启动流程时没有传值才计算
type DataDefinition struct {
	Name         string   `json:"name" validate:"required,max=255"`
	Type         DataType `json:"type" validate:"required,oneof=STRING INTEGER DOUBLE BOOLEAN JSON"`
	Description  string   `json:"description"`
	DefaultValue string   `json:"default_value"`
}

func (d *DesignProcessDefinition) GetFlowNode(name string) (*FlowNodeDefinition, bool) {
	for _, node := range d.FlowNodes {
		if node.Name == name {
			return node, true
		}
	}
	return nil, false
}

func (d *DesignProcessDefinition) GetActor(name string) (*ActorDefinition, bool) {
	for _, actor := range d.Actors {
		if actor.Name == name {
			return actor, true
		}
	}
	return nil, false
}

func (d *DesignProcessDefinition) GetData(name string) (*DataDefinition, bool) {
	for _, data := range d.Data {
		if data.Name == name {
			return data, true
		}
	}
	return nil, false
}

// StartNode 校验通过的设计有且只有一个开始节点
func (d *DesignProcessDefinition) StartNode() (*FlowNodeDefinition, bool) {
	for _, node := range d.FlowNodes {
		if node.Type == FlowNodeTypeStart {
			return node, true
		}
	}
	return nil, false
}

func (d *DesignProcessDefinition) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func Unmarshal(b []byte) (*DesignProcessDefinition, error) {
	d := &DesignProcessDefinition{}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, errors.WithMessagef(ErrInvalidDesign, "unmarshal design failed: %v", err)
	}
	return d, nil
}
