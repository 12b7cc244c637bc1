package bpm

import (
	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/document"
	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/expression"
	"github.com/blingmoon/simple-bpm/internal/jsondata"
	"github.com/blingmoon/simple-bpm/internal/lock"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validatorUtil = validator.New()

// notFoundError 各种不存在的错误, 都可以用 errors.Is(err, ErrNotFound) 判断
type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func newNotFound(msg string) error { return &notFoundError{msg: msg} }

var (
	ErrNotFound = errors.New("not found")

	ErrUserNotFound              = newNotFound("user not found")
	ErrRoleNotFound              = newNotFound("role not found")
	ErrGroupNotFound             = newNotFound("group not found")
	ErrMembershipNotFound        = newNotFound("membership not found")
	ErrTenantNotFound            = newNotFound("tenant not found")
	ErrProcessDefinitionNotFound = newNotFound("process definition not found")
	ErrProcessInstanceNotFound   = newNotFound("process instance not found")
	ErrActivityInstanceNotFound  = newNotFound("activity instance not found")
	ErrDataNotFound              = newNotFound("data not found")
	ErrActorNotFound             = newNotFound("actor not found")
	ErrActorMemberNotFound       = newNotFound("actor member not found")
	ErrCategoryNotFound          = newNotFound("category not found")
	ErrCommentNotFound           = newNotFound("comment not found")
	ErrDocumentNotFound          = newNotFound("document not found")
	ErrConnectorInstanceNotFound = newNotFound("connector instance not found")
	ErrBusinessDataNotFound      = newNotFound("business data not found")
	ErrPlatformNotFound          = newNotFound("platform not found")

	ErrAlreadyExists = errors.New("already exists")
	ErrCreation      = errors.New("creation failed")
	ErrDeletion      = errors.New("deletion failed")
	ErrUpdate        = errors.New("update failed")
	ErrRetrieve      = errors.New("retrieve failed")
	ErrSearch        = errors.New("search failed")
	ErrInvalidParam  = errors.New("invalid param")

	ErrInvalidSession = errors.New("invalid session")
	ErrLoginFailed    = errors.New("login failed")

	// ErrProcessEnablement 启用/禁用流程失败, 比如流程还没有解析完成
	ErrProcessEnablement = errors.New("process enablement failed")
	// ErrProcessActivation 流程没有启用, 不能启动
	ErrProcessActivation    = errors.New("process not enabled")
	ErrTaskAssignment       = errors.New("task assignment failed")
	ErrFlowNodeExecution    = errors.New("flow node execution failed")
	ErrExpressionEvaluation = errors.New("expression evaluation failed")
	ErrConnectorExecution   = errors.New("connector execution failed")
	// ErrTenantStatus 租户状态不允许当前操作
	ErrTenantStatus = errors.New("tenant status not allowed")
	// ErrLockFailed 流程实例正在被其他请求操作
	ErrLockFailed = errors.New("lock failed")
)

var publicErrors = []error{
	ErrNotFound, ErrAlreadyExists, ErrCreation, ErrDeletion, ErrUpdate, ErrRetrieve, ErrSearch,
	ErrInvalidParam, ErrInvalidSession, ErrLoginFailed, ErrProcessEnablement, ErrProcessActivation,
	ErrTaskAssignment, ErrFlowNodeExecution, ErrExpressionEvaluation, ErrConnectorExecution,
	ErrTenantStatus, ErrLockFailed,
}

func isPublicError(err error) bool {
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// translateError 内部错误转换成对外的错误
//
//	记录不存在 -> notFound
//	唯一键冲突 -> ErrAlreadyExists
//	其他 -> fallback, 原始错误保留在信息里
func translateError(err error, notFound error, fallback error) error {
	if err == nil {
		return nil
	}
	if isPublicError(err) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		if notFound == nil {
			notFound = ErrNotFound
		}
		return errors.Wrapf(notFound, "%v", err)
	case errors.Is(err, store.ErrDuplicateKey):
		return errors.Wrapf(ErrAlreadyExists, "%v", err)
	case errors.Is(err, store.ErrInvalidQuery):
		return errors.Wrapf(ErrSearch, "%v", err)
	case errors.Is(err, lock.LockFailedError), errors.Is(err, lock.LockFailedTimeOutError):
		return errors.Wrapf(ErrLockFailed, "%v", err)
	case errors.Is(err, expression.ErrExpressionCompile), errors.Is(err, expression.ErrExpressionEvaluation):
		return errors.Wrapf(ErrExpressionEvaluation, "%v", err)
	case errors.Is(err, engine.ErrInvalidData), errors.Is(err, design.ErrInvalidDesign),
		errors.Is(err, jsondata.ErrNotObject):
		return errors.Wrapf(ErrInvalidParam, "%v", err)
	case errors.Is(err, jsondata.ErrPathNotFound), errors.Is(err, document.ErrContentNotFound):
		if notFound == nil {
			notFound = ErrNotFound
		}
		return errors.Wrapf(notFound, "%v", err)
	}
	return errors.Wrapf(fallback, "%v", err)
}

func invalidParam(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidParam, format, args...)
}

// TenantStatus 租户状态
type TenantStatus = string

const (
	TenantStatusActivated   TenantStatus = "ACTIVATED"
	TenantStatusDeactivated TenantStatus = "DEACTIVATED"
	TenantStatusPaused      TenantStatus = "PAUSED"
)

type ActivationState = string

const (
	ActivationStateEnabled  ActivationState = "ENABLED"
	ActivationStateDisabled ActivationState = "DISABLED"
)

type ConfigurationState = string

const (
	// ConfigurationStateResolved 所有参与者都有成员, 所有连接器都已注册
	ConfigurationStateResolved   ConfigurationState = "RESOLVED"
	ConfigurationStateUnresolved ConfigurationState = "UNRESOLVED"
)

type ProcessInstanceState = engine.ProcessInstanceState

const (
	ProcessInstanceStateStarted   = engine.ProcessInstanceStateStarted
	ProcessInstanceStateCompleted = engine.ProcessInstanceStateCompleted
	ProcessInstanceStateCancelled = engine.ProcessInstanceStateCancelled
)

type FlowNodeState = engine.FlowNodeState

const (
	FlowNodeStateExecuting = engine.FlowNodeStateExecuting
	FlowNodeStateReady     = engine.FlowNodeStateReady
	FlowNodeStateFailed    = engine.FlowNodeStateFailed
	FlowNodeStateCompleted = engine.FlowNodeStateCompleted
	FlowNodeStateAborted   = engine.FlowNodeStateAborted
)

type ConnectorState = engine.ConnectorState

const (
	ConnectorStateToBeExecuted = engine.ConnectorStateToBeExecuted
	ConnectorStateDone         = engine.ConnectorStateDone
	ConnectorStateFailed       = engine.ConnectorStateFailed
	ConnectorStateSkipped      = engine.ConnectorStateSkipped
)

type TaskPriority = string

const (
	TaskPriorityLowest  TaskPriority = "LOWEST"
	TaskPriorityUnder   TaskPriority = "UNDER_NORMAL"
	TaskPriorityNormal  TaskPriority = engine.PriorityNormal
	TaskPriorityAbove   TaskPriority = "ABOVE_NORMAL"
	TaskPriorityHighest TaskPriority = "HIGHEST"
)

func isTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLowest, TaskPriorityUnder, TaskPriorityNormal, TaskPriorityAbove, TaskPriorityHighest:
		return true
	}
	return false
}

func GetTenantStatusText(status TenantStatus) string {
	switch status {
	case TenantStatusActivated:
		return "已激活"
	case TenantStatusDeactivated:
		return "未激活"
	case TenantStatusPaused:
		return "暂停"
	}
	return "未知"
}

// batchSize 批量删除和批量查询每一批的数量
const batchSize = 100
