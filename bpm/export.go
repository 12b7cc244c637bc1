package bpm

import (
	"context"
	"strings"
	"time"

	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/auth"
	"github.com/blingmoon/simple-bpm/internal/document"
	"github.com/blingmoon/simple-bpm/internal/lock"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type IdentityAPI interface {
	/**
	 * @description: 创建用户, 密码使用 bcrypt 保存, 用户名在租户内唯一
	 * @param ctx context.Context
	 * @param creator *UserCreator
	 *				  creator.Enabled 为空时默认启用
	 * @return *User, error 用户名已存在返回 ErrAlreadyExists
	 */
	CreateUser(ctx context.Context, creator *UserCreator) (*User, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetUserByUserName(ctx context.Context, userName string) (*User, error)
	// GetUsers 不存在的ID 不在结果中
	GetUsers(ctx context.Context, userIDs []int64) (map[int64]*User, error)
	// GetUserContactData personal 为 true 返回个人联系方式, 否则返回工作联系方式
	GetUserContactData(ctx context.Context, userID int64, personal bool) (*ContactData, error)
	UpdateUser(ctx context.Context, userID int64, updater *UserUpdater) (*User, error)
	/**
	 * @description: 删除用户, 同时删除用户的成员关系、参与者成员, 并释放分配给用户的任务
	 * @param ctx context.Context
	 * @param userID int64
	 * @return error
	 */
	DeleteUser(ctx context.Context, userID int64) error
	DeleteUserByName(ctx context.Context, userName string) error
	DeleteUsers(ctx context.Context, userIDs []int64) error
	GetNumberOfUsers(ctx context.Context) (int64, error)
	GetUsersPage(ctx context.Context, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error)
	SearchUsers(ctx context.Context, options *SearchOptions) (*SearchResult[*User], error)
	GetUsersInRole(ctx context.Context, roleID int64, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error)
	GetUsersInGroup(ctx context.Context, groupID int64, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error)
	GetActiveUsersInGroup(ctx context.Context, groupID int64, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error)

	CreateRole(ctx context.Context, creator *RoleCreator) (*Role, error)
	GetRole(ctx context.Context, roleID int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	UpdateRole(ctx context.Context, roleID int64, updater *RoleUpdater) (*Role, error)
	// DeleteRole 同时删除使用该角色的成员关系和参与者成员
	DeleteRole(ctx context.Context, roleID int64) error
	DeleteRoles(ctx context.Context, roleIDs []int64) error
	GetNumberOfRoles(ctx context.Context) (int64, error)
	GetRoles(ctx context.Context, startIndex, maxResults int64, criterion RoleCriterion) ([]*Role, error)
	SearchRoles(ctx context.Context, options *SearchOptions) (*SearchResult[*Role], error)

	/**
	 * @description: 创建组, 组的路径为 parentPath + "/" + name
	 * @param ctx context.Context
	 * @param name string 组名, 不能包含 "/"
	 * @param parentPath string 父组路径, 为空表示根组, 父组必须存在
	 * @return *Group, error
	 */
	CreateGroup(ctx context.Context, name string, parentPath string) (*Group, error)
	CreateGroupFromCreator(ctx context.Context, creator *GroupCreator) (*Group, error)
	GetGroup(ctx context.Context, groupID int64) (*Group, error)
	GetGroupByPath(ctx context.Context, path string) (*Group, error)
	/**
	 * @description: 更新组, 修改组名或者父组时, 所有子孙组的路径一起修改
	 * @param ctx context.Context
	 * @param groupID int64
	 * @param updater *GroupUpdater
	 * @return *Group, error 新路径已经存在返回 ErrAlreadyExists
	 */
	UpdateGroup(ctx context.Context, groupID int64, updater *GroupUpdater) (*Group, error)
	// DeleteGroup 删除组和所有子孙组, 以及这些组的成员关系
	DeleteGroup(ctx context.Context, groupID int64) error
	DeleteGroups(ctx context.Context, groupIDs []int64) error
	GetChildrenGroups(ctx context.Context, groupID int64, startIndex, maxResults int64, criterion GroupCriterion) ([]*Group, error)
	GetNumberOfGroups(ctx context.Context) (int64, error)
	GetGroups(ctx context.Context, startIndex, maxResults int64, criterion GroupCriterion) ([]*Group, error)
	SearchGroups(ctx context.Context, options *SearchOptions) (*SearchResult[*Group], error)

	// AddUserMembership 用户在组里担任某个角色, 重复添加返回 ErrAlreadyExists
	AddUserMembership(ctx context.Context, userID, groupID, roleID int64) (*UserMembership, error)
	AddUserMemberships(ctx context.Context, userIDs []int64, groupID, roleID int64) error
	UpdateUserMembership(ctx context.Context, membershipID int64, newGroupID, newRoleID int64) (*UserMembership, error)
	DeleteUserMembership(ctx context.Context, userID, groupID, roleID int64) error
	DeleteUserMemberships(ctx context.Context, userIDs []int64, groupID, roleID int64) error
	GetUserMembership(ctx context.Context, membershipID int64) (*UserMembership, error)
	GetUserMemberships(ctx context.Context, userID int64, startIndex, maxResults int64, criterion UserMembershipCriterion) ([]*UserMembership, error)
	GetNumberOfUserMemberships(ctx context.Context, userID int64) (int64, error)
}

// LoginResult 登录成功返回会话和 token
type LoginResult struct {
	Session *APISession `json:"session"`
	Token   string      `json:"token"`
}

type LoginAPI interface {
	/**
	 * @description: 登录, 技术用户登录后 UserID 为 0
	 * @param ctx context.Context
	 * @param tenantName string 租户名, 为空使用默认租户
	 * @param userName string
	 * @param password string
	 * @return *LoginResult, error 用户不存在、密码错误、用户被禁用都返回 ErrLoginFailed
	 */
	Login(ctx context.Context, tenantName, userName, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	SessionFromToken(ctx context.Context, token string) (*APISession, error)
}

type PlatformAPI interface {
	// CreatePlatform 初始化平台, 已经初始化过直接返回
	CreatePlatform(ctx context.Context, createdBy string) (*Platform, error)
	GetPlatform(ctx context.Context) (*Platform, error)
	IsPlatformCreated(ctx context.Context) (bool, error)
	/**
	 * @description: 创建租户, 新租户为 DEACTIVATED, 第一个创建的租户是默认租户
	 * @param ctx context.Context
	 * @param creator *TenantCreator
	 * @return *Tenant, error 租户名已存在返回 ErrAlreadyExists
	 */
	CreateTenant(ctx context.Context, creator *TenantCreator) (*Tenant, error)
	GetTenantByID(ctx context.Context, tenantID int64) (*Tenant, error)
	GetTenantByName(ctx context.Context, name string) (*Tenant, error)
	GetDefaultTenant(ctx context.Context) (*Tenant, error)
	UpdateTenant(ctx context.Context, tenantID int64, updater *TenantUpdater) (*Tenant, error)
	ActivateTenant(ctx context.Context, tenantID int64) error
	DeactivateTenant(ctx context.Context, tenantID int64) error
	// PauseTenant 暂停后只有技术用户可以操作租户
	PauseTenant(ctx context.Context, tenantID int64) error
	ResumeTenant(ctx context.Context, tenantID int64) error
	/**
	 * @description: 删除租户, 租户必须是 DEACTIVATED, 分批删除租户下所有数据和文档内容
	 * @param ctx context.Context
	 * @param tenantID int64
	 * @return error
	 */
	DeleteTenant(ctx context.Context, tenantID int64) error
	GetTenants(ctx context.Context, startIndex, maxResults int64, criterion TenantCriterion) ([]*Tenant, error)
	SearchTenants(ctx context.Context, options *SearchOptions) (*SearchResult[*Tenant], error)
	GetNumberOfTenants(ctx context.Context) (int64, error)
}

// ProcessDefinitionAPI 流程定义的部署和生命周期
type ProcessDefinitionAPI interface {
	/**
	 * @description: 部署流程, (name, version) 唯一
	 *				 部署后是 DISABLED, 所有参与者都有成员时为 RESOLVED, 否则为 UNRESOLVED
	 * @param ctx context.Context
	 * @param d *design.DesignProcessDefinition 流程设计, 部署前校验图结构和表达式
	 * @return *ProcessDefinition, error
	 */
	Deploy(ctx context.Context, d *design.DesignProcessDefinition) (*ProcessDefinition, error)
	GetProcessDefinition(ctx context.Context, processDefinitionID int64) (*ProcessDefinition, error)
	GetDesignProcessDefinition(ctx context.Context, processDefinitionID int64) (*design.DesignProcessDefinition, error)
	GetProcessDeploymentInfo(ctx context.Context, processDefinitionID int64) (*ProcessDeploymentInfo, error)
	GetProcessDefinitionID(ctx context.Context, name, version string) (int64, error)
	// GetLatestProcessDefinitionID 同名流程中最后部署的
	GetLatestProcessDefinitionID(ctx context.Context, name string) (int64, error)
	// EnableProcess 流程必须是 RESOLVED, 否则返回 ErrProcessEnablement
	EnableProcess(ctx context.Context, processDefinitionID int64) error
	DisableProcess(ctx context.Context, processDefinitionID int64) error
	/**
	 * @description: 删除流程定义, 流程必须是 DISABLED 且没有运行中的实例
	 *				 同时删除参与者、参与者成员、分类关联和归档实例
	 * @param ctx context.Context
	 * @param processDefinitionID int64
	 * @return error
	 */
	DeleteProcessDefinition(ctx context.Context, processDefinitionID int64) error
	DeleteProcessDefinitions(ctx context.Context, processDefinitionIDs []int64) error
	GetNumberOfProcessDeploymentInfos(ctx context.Context) (int64, error)
	GetProcessDeploymentInfos(ctx context.Context, startIndex, maxResults int64, criterion ProcessDeploymentInfoCriterion) ([]*ProcessDeploymentInfo, error)
	SearchProcessDeploymentInfos(ctx context.Context, options *SearchOptions) (*SearchResult[*ProcessDeploymentInfo], error)
	GetProcessResolutionProblems(ctx context.Context, processDefinitionID int64) ([]*Problem, error)
}

type ProcessInstanceAPI interface {
	/**
	 * @description: 启动流程, 流程必须是 ENABLED
	 *				 variables 初始化流程数据, 没有提供的数据使用默认值表达式
	 *				 返回时流程已经执行到第一个人工任务或者结束
	 * @param ctx context.Context
	 * @param processDefinitionID int64
	 * @param variables map[string]any
	 * @return *ProcessInstance, error
	 */
	StartProcess(ctx context.Context, processDefinitionID int64, variables map[string]any) (*ProcessInstance, error)
	// StartProcessFor 替 userID 启动, 会话用户记录为代理人
	StartProcessFor(ctx context.Context, processDefinitionID int64, userID int64, variables map[string]any) (*ProcessInstance, error)
	/**
	 * @description: 取消流程实例, 在流程实例锁内执行
	 *				 未结束的节点变成 ABORTED, 实例变成 CANCELLED 并归档
	 * @param ctx context.Context
	 * @param processInstanceID int64
	 * @return error 实例已经结束返回 ErrUpdate, 其他请求持有锁返回 ErrLockFailed
	 */
	CancelProcessInstance(ctx context.Context, processInstanceID int64) error
	// DeleteProcessInstance 删除实例和节点、数据、评论、文档、连接器实例、业务数据引用
	DeleteProcessInstance(ctx context.Context, processInstanceID int64) error
	// DeleteProcessInstances 返回删除的数量
	DeleteProcessInstances(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64) (int64, error)
	DeleteArchivedProcessInstances(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64) (int64, error)
	GetProcessInstance(ctx context.Context, processInstanceID int64) (*ProcessInstance, error)
	// GetNumberOfProcessInstances 运行中的实例数量
	GetNumberOfProcessInstances(ctx context.Context) (int64, error)
	SearchOpenProcessInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ProcessInstance], error)
	SearchArchivedProcessInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ArchivedProcessInstance], error)
	GetFinalArchivedProcessInstance(ctx context.Context, sourceProcessInstanceID int64) (*ArchivedProcessInstance, error)
	GetActivityInstance(ctx context.Context, activityInstanceID int64) (*ActivityInstance, error)
	SearchActivityInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ActivityInstance], error)
	GetFlowNodeInstances(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*ActivityInstance, error)
	// RetryTask 从失败的阶段重新执行 FAILED 节点
	RetryTask(ctx context.Context, activityInstanceID int64) error
}

type HumanTaskAPI interface {
	GetHumanTaskInstance(ctx context.Context, taskID int64) (*HumanTaskInstance, error)
	// AssignUserTask 任务必须是 READY, 用户必须存在
	AssignUserTask(ctx context.Context, taskID int64, userID int64) error
	// AssignUserTaskIfNotAssigned 已经分配给其他人时返回 ErrTaskAssignment
	AssignUserTaskIfNotAssigned(ctx context.Context, taskID int64, userID int64) error
	ReleaseUserTask(ctx context.Context, taskID int64) error
	ExecuteUserTask(ctx context.Context, taskID int64, inputs map[string]any) error
	/**
	 * @description: 替 userID 执行人工任务
	 *				 任务未分配时自动分配给 userID, 分配给其他人返回 ErrFlowNodeExecution
	 *				 inputs 写入流程数据, 然后继续执行后续节点
	 * @param ctx context.Context
	 * @param userID int64
	 * @param taskID int64
	 * @param inputs map[string]any
	 * @return error
	 */
	ExecuteUserTaskFor(ctx context.Context, userID int64, taskID int64, inputs map[string]any) error
	// GetPendingHumanTaskInstances 用户可以领取的任务: READY, 未分配, 用户是任务参与者的成员
	GetPendingHumanTaskInstances(ctx context.Context, userID int64, startIndex, maxResults int64, criterion ActivityInstanceCriterion) ([]*HumanTaskInstance, error)
	GetAssignedHumanTaskInstances(ctx context.Context, userID int64, startIndex, maxResults int64, criterion ActivityInstanceCriterion) ([]*HumanTaskInstance, error)
	GetNumberOfPendingHumanTaskInstances(ctx context.Context, userID int64) (int64, error)
	GetNumberOfAssignedHumanTaskInstances(ctx context.Context, userID int64) (int64, error)
	SearchHumanTaskInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*HumanTaskInstance], error)
	// SearchMyAvailableHumanTasks 分配给用户或者用户可以领取的 READY 任务
	SearchMyAvailableHumanTasks(ctx context.Context, userID int64, options *SearchOptions) (*SearchResult[*HumanTaskInstance], error)
	UpdateDueDateOfTask(ctx context.Context, taskID int64, dueDate int64) error
	SetTaskPriority(ctx context.Context, taskID int64, priority TaskPriority) error
	GetPossibleUsersOfHumanTask(ctx context.Context, processDefinitionID int64, taskName string, startIndex, maxResults int64) ([]*User, error)
	IsInvolvedInHumanTask(ctx context.Context, userID int64, taskID int64) (bool, error)
}

type ProcessDataAPI interface {
	GetProcessDataInstance(ctx context.Context, name string, processInstanceID int64) (*DataInstance, error)
	GetProcessDataInstances(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*DataInstance, error)
	// UpdateProcessDataInstance 值必须匹配声明的类型
	UpdateProcessDataInstance(ctx context.Context, name string, processInstanceID int64, value any) error
	UpdateProcessDataInstances(ctx context.Context, processInstanceID int64, values map[string]any) error
	GetActivityDataInstance(ctx context.Context, name string, activityInstanceID int64) (*DataInstance, error)
	UpdateActivityDataInstance(ctx context.Context, name string, activityInstanceID int64, value any) error
	// EvaluateExpressionOnProcessInstance 在流程数据上执行表达式
	EvaluateExpressionOnProcessInstance(ctx context.Context, processInstanceID int64, expression string) (any, error)
}

// ActorAPI 参与者映射, 每次修改都会重新计算未启用流程的解析状态
type ActorAPI interface {
	GetActors(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64, criterion ActorCriterion) ([]*Actor, error)
	GetActor(ctx context.Context, actorID int64) (*Actor, error)
	GetActorByName(ctx context.Context, processDefinitionID int64, name string) (*Actor, error)
	GetActorMembers(ctx context.Context, actorID int64, startIndex, maxResults int64) ([]*ActorMember, error)
	GetNumberOfActorMembers(ctx context.Context, actorID int64) (int64, error)
	AddUserToActor(ctx context.Context, actorID int64, userID int64) (*ActorMember, error)
	AddGroupToActor(ctx context.Context, actorID int64, groupID int64) (*ActorMember, error)
	AddRoleToActor(ctx context.Context, actorID int64, roleID int64) (*ActorMember, error)
	AddRoleAndGroupToActor(ctx context.Context, actorID int64, roleID, groupID int64) (*ActorMember, error)
	RemoveActorMember(ctx context.Context, actorMemberID int64) error
	/**
	 * @description: 导入参与者映射
	 *				 {"actors":[{"name":"","users":[],"groups":[],"roles":[],"memberships":[{"group":"","role":""}]}]}
	 *				 用户按用户名, 组按路径, 角色按名字查找, 已经存在的成员忽略
	 * @param ctx context.Context
	 * @param processDefinitionID int64
	 * @param mapping []byte
	 * @return error
	 */
	ImportActorMapping(ctx context.Context, processDefinitionID int64, mapping []byte) error
}

type CategoryAPI interface {
	CreateCategory(ctx context.Context, name, description string) (*Category, error)
	GetCategory(ctx context.Context, categoryID int64) (*Category, error)
	GetCategories(ctx context.Context, startIndex, maxResults int64, criterion CategoryCriterion) ([]*Category, error)
	GetNumberOfCategories(ctx context.Context) (int64, error)
	UpdateCategory(ctx context.Context, categoryID int64, updater *CategoryUpdater) error
	DeleteCategory(ctx context.Context, categoryID int64) error
	AddCategoriesToProcess(ctx context.Context, processDefinitionID int64, categoryIDs []int64) error
	RemoveCategoriesFromProcess(ctx context.Context, processDefinitionID int64, categoryIDs []int64) error
	AddProcessDefinitionsToCategory(ctx context.Context, categoryID int64, processDefinitionIDs []int64) error
	GetCategoriesOfProcessDefinition(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64, criterion CategoryCriterion) ([]*Category, error)
	GetProcessDeploymentInfosOfCategory(ctx context.Context, categoryID int64, startIndex, maxResults int64, criterion ProcessDeploymentInfoCriterion) ([]*ProcessDeploymentInfo, error)
	GetNumberOfProcessDefinitionsOfCategory(ctx context.Context, categoryID int64) (int64, error)
}

type CommentAPI interface {
	// AddProcessComment 作者是会话用户
	AddProcessComment(ctx context.Context, processInstanceID int64, content string) (*Comment, error)
	AddProcessCommentOnBehalfOfUser(ctx context.Context, processInstanceID int64, content string, userID int64) (*Comment, error)
	GetComments(ctx context.Context, processInstanceID int64) ([]*Comment, error)
	SearchComments(ctx context.Context, options *SearchOptions) (*SearchResult[*Comment], error)
	DeleteComment(ctx context.Context, commentID int64) error
}

type DocumentAPI interface {
	/**
	 * @description: 给流程实例添加文档, 同一个实例下文档名唯一, 版本从 1 开始
	 * @param ctx context.Context
	 * @param processInstanceID int64
	 * @param name string 文档名
	 * @param fileName string
	 * @param mimeType string 为空时根据内容识别
	 * @param content []byte
	 * @return *Document, error
	 */
	AttachDocument(ctx context.Context, processInstanceID int64, name, fileName, mimeType string, content []byte) (*Document, error)
	AttachURLDocument(ctx context.Context, processInstanceID int64, name, url string) (*Document, error)
	// AttachNewDocumentVersion 文档必须已经存在, 版本号加一
	AttachNewDocumentVersion(ctx context.Context, processInstanceID int64, name, fileName, mimeType string, content []byte) (*Document, error)
	GetDocument(ctx context.Context, documentID int64) (*Document, error)
	GetDocumentContent(ctx context.Context, storageID string) ([]byte, error)
	GetLastDocument(ctx context.Context, processInstanceID int64, name string) (*Document, error)
	GetDocumentVersions(ctx context.Context, processInstanceID int64, name string) ([]*Document, error)
	// RemoveDocument 删除一个版本, 内容一起删除
	RemoveDocument(ctx context.Context, documentID int64) (*Document, error)
	SearchDocuments(ctx context.Context, options *SearchOptions) (*SearchResult[*Document], error)
	// GetNumberOfDocuments 所有版本的数量
	GetNumberOfDocuments(ctx context.Context, processInstanceID int64) (int64, error)
}

type ConnectorAPI interface {
	GetConnectorInstancesOfActivity(ctx context.Context, activityInstanceID int64, startIndex, maxResults int64) ([]*ConnectorInstance, error)
	GetConnectorInstancesOfProcess(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*ConnectorInstance, error)
	SearchConnectorInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*ConnectorInstance], error)
	// SetConnectorInstanceState 比如把失败的连接器设置为 SKIPPED, 重试节点时跳过
	SetConnectorInstanceState(ctx context.Context, connectorInstanceID int64, state ConnectorState) error
	/**
	 * @description: 在流程实例之外执行连接器
	 * @param ctx context.Context
	 * @param processDefinitionID int64 流程定义必须存在
	 * @param connectorID string 连接器实现的ID
	 * @param inputExpressions map[string]string 输入名 -> 表达式
	 * @param inputValues map[string]any 表达式的变量
	 * @return map[string]any, error 连接器的输出
	 */
	ExecuteConnectorOnProcessDefinition(ctx context.Context, processDefinitionID int64, connectorID string, inputExpressions map[string]string, inputValues map[string]any) (map[string]any, error)
}

// ProcessAPI 流程相关的所有接口
type ProcessAPI interface {
	ProcessDefinitionAPI
	ProcessInstanceAPI
	HumanTaskAPI
	ProcessDataAPI
	ActorAPI
	CategoryAPI
	CommentAPI
	DocumentAPI
	ConnectorAPI
}

type BusinessDataAPI interface {
	/**
	 * @description: 保存业务对象, 内容必须是 json 对象
	 * @param ctx context.Context
	 * @param className string 业务对象类型
	 * @param payload []byte
	 * @return int64, error 业务对象ID
	 */
	SaveBusinessData(ctx context.Context, className string, payload []byte) (int64, error)
	UpdateBusinessData(ctx context.Context, className string, id int64, payload []byte) error
	DeleteBusinessData(ctx context.Context, className string, id int64) error
	/**
	 * @description: 查询业务对象, 返回 json, 带 persistenceId 字段
	 * @param ctx context.Context
	 * @param className string
	 * @param id int64
	 * @param childName string 为空返回整个对象, 否则返回该字段, 支持 a.b.0 形式
	 * @return []byte, error
	 */
	GetJSONBusinessData(ctx context.Context, className string, id int64, childName string) ([]byte, error)
	// GetJSONBusinessDataList 按 ids 顺序返回 json 数组, 不存在的忽略
	GetJSONBusinessDataList(ctx context.Context, className string, ids []int64) ([]byte, error)
	// AttachBusinessDataReference 多个ID 为多值引用, 同名引用会被替换
	AttachBusinessDataReference(ctx context.Context, processInstanceID int64, name, className string, ids []int64) (*BusinessDataReference, error)
	GetProcessBusinessDataReference(ctx context.Context, name string, processInstanceID int64) (*BusinessDataReference, error)
	GetProcessBusinessDataReferences(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*BusinessDataReference, error)
}

// Options 创建 Client 需要的依赖
type Options struct {
	DB *gorm.DB
	// Redis 为空时使用进程内的锁, 多节点部署需要设置
	Redis             redis.Cmdable
	DocumentDir       string
	DocumentCacheSize uint64
	JWTSecret         string
	TokenTTL          time.Duration
	LockMaxTime       time.Duration
	LockWaitTimeout   time.Duration
	TechnicalUser     string
	TechnicalPassword string
	PlatformVersion   string
	Logger            *zap.Logger
}

// Client 所有接口的入口
type Client struct {
	Identity     IdentityAPI
	Login        LoginAPI
	Platform     PlatformAPI
	Process      ProcessAPI
	BusinessData BusinessDataAPI
}

func New(opts *Options) (*Client, error) {
	// 依赖参数逐个检查, 不做结构体校验: *gorm.DB 有循环指针
	if opts == nil || opts.DB == nil {
		return nil, errors.Wrap(ErrInvalidParam, "New bpm client failed, db is nil")
	}
	if strings.TrimSpace(opts.DocumentDir) == "" {
		return nil, errors.Wrap(ErrInvalidParam, "New bpm client failed, document dir is empty")
	}
	if opts.JWTSecret == "" {
		return nil, errors.Wrap(ErrInvalidParam, "New bpm client failed, jwt secret is empty")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.LockMaxTime <= 0 {
		opts.LockMaxTime = 10 * time.Minute
	}
	if opts.PlatformVersion == "" {
		opts.PlatformVersion = "1.0.0"
	}
	var locker lock.LockService
	if opts.Redis != nil {
		locker = lock.NewRedisLockService(opts.Redis, log)
	} else {
		locker = lock.NewLocalLockService(log)
	}
	accessor, err := tenant.NewServiceAccessor(tenant.Options{
		DB:                opts.DB,
		Lock:              locker,
		Documents:         document.NewStore(opts.DocumentDir, opts.DocumentCacheSize),
		Tokens:            auth.NewTokenIssuer(opts.JWTSecret, opts.TokenTTL),
		Log:               log,
		LockMaxTime:       opts.LockMaxTime,
		LockWaitTimeout:   opts.LockWaitTimeout,
		TechnicalUser:     opts.TechnicalUser,
		TechnicalPassword: opts.TechnicalPassword,
		PlatformVersion:   opts.PlatformVersion,
	})
	if err != nil {
		return nil, err
	}
	base := &apiBase{accessor: accessor}
	return &Client{
		Identity:     &identityAPI{apiBase: base},
		Login:        &loginAPI{apiBase: base},
		Platform:     &platformAPI{apiBase: base},
		Process:      &processAPI{apiBase: base},
		BusinessData: &businessDataAPI{apiBase: base},
	}, nil
}
