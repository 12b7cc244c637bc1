package engine

import "github.com/pkg/errors"

var (
	// ErrInvalidState 流程实例或节点当前状态不允许该操作
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidData 数据未声明或者类型不匹配
	ErrInvalidData = errors.New("invalid data")
	// ErrDefinitionCorrupted 数据库中的流程设计无法解析
	ErrDefinitionCorrupted = errors.New("process design corrupted")
	// ErrTooManySteps 一次推进执行的节点过多, 一般是自动任务组成的死循环
	ErrTooManySteps = errors.New("too many flow node steps")
)

type ProcessInstanceState = string

const (
	ProcessInstanceStateStarted   ProcessInstanceState = "STARTED"
	ProcessInstanceStateCompleted ProcessInstanceState = "COMPLETED"
	ProcessInstanceStateCancelled ProcessInstanceState = "CANCELLED"
)

// IsOverProcessInstanceState 终止状态, 不再执行
func IsOverProcessInstanceState(state ProcessInstanceState) bool {
	return state == ProcessInstanceStateCompleted || state == ProcessInstanceStateCancelled
}

type FlowNodeState = string

const (
	FlowNodeStateExecuting FlowNodeState = "EXECUTING"
	// READY 人工任务等待执行
	FlowNodeStateReady FlowNodeState = "READY"
	// FAILED 连接器或者连线条件失败, 可以重试
	FlowNodeStateFailed    FlowNodeState = "FAILED"
	FlowNodeStateCompleted FlowNodeState = "COMPLETED"
	// ABORTED 流程取消时未完成的节点
	FlowNodeStateAborted FlowNodeState = "ABORTED"
)

// OpenFlowNodeStates 没有结束的节点状态, 流程实例只有在没有这些节点时才完成
func OpenFlowNodeStates() []FlowNodeState {
	return []FlowNodeState{FlowNodeStateExecuting, FlowNodeStateReady, FlowNodeStateFailed}
}

func IsOpenFlowNodeState(state FlowNodeState) bool {
	for _, s := range OpenFlowNodeStates() {
		if s == state {
			return true
		}
	}
	return false
}

type ConnectorState = string

const (
	ConnectorStateToBeExecuted ConnectorState = "TO_BE_EXECUTED"
	ConnectorStateDone         ConnectorState = "DONE"
	ConnectorStateFailed       ConnectorState = "FAILED"
	ConnectorStateSkipped      ConnectorState = "SKIPPED"
)

const (
	PriorityNormal = "NORMAL"
)

// LocalDataKey 节点本地数据的 key
type LocalDataKey = string

const (
	// LocalDataKeyData 节点数据定义的值
	LocalDataKeyData LocalDataKey = "data"
	// LocalDataKeySystem 引擎自己使用, 记录失败阶段和原因
	LocalDataKeySystem LocalDataKey = "system"
	LocalDataKeyPhase  LocalDataKey = "failed_phase"
	LocalDataKeyReason LocalDataKey = "reason"
)

// phase 节点执行阶段, 失败后从失败的阶段重试
type phase = string

const (
	phaseEnter      phase = "enter"
	phaseFinish     phase = "finish"
	phaseTransition phase = "transition"
)
