package bpm

// 对外的数据结构, 时间都是毫秒时间戳

type Platform struct {
	Version        string `json:"version"`
	InitialVersion string `json:"initial_version"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      int64  `json:"created_at"`
}

type Tenant struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      TenantStatus `json:"status"`
	IsDefault   bool         `json:"is_default"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   int64        `json:"created_at"`
}

type TenantCreator struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type TenantUpdater struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description"`
}

type User struct {
	ID             int64  `json:"id"`
	UserName       string `json:"user_name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Title          string `json:"title"`
	JobTitle       string `json:"job_title"`
	ManagerUserID  int64  `json:"manager_user_id"`
	Enabled        bool   `json:"enabled"`
	CreatedBy      int64  `json:"created_by"`
	LastConnection int64  `json:"last_connection"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type ContactData struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
	City    string `json:"city"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// UserCreator 创建用户, Enabled 为空时默认启用
type UserCreator struct {
	UserName            string       `json:"user_name" validate:"required,max=255"`
	Password            string       `json:"password" validate:"required"`
	FirstName           string       `json:"first_name"`
	LastName            string       `json:"last_name"`
	Title               string       `json:"title"`
	JobTitle            string       `json:"job_title"`
	ManagerUserID       int64        `json:"manager_user_id" validate:"gte=0"`
	Enabled             *bool        `json:"enabled"`
	PersonalContact     *ContactData `json:"personal_contact"`
	ProfessionalContact *ContactData `json:"professional_contact"`
}

// UserUpdater 为空的字段不更新
type UserUpdater struct {
	UserName            *string      `json:"user_name" validate:"omitempty,min=1,max=255"`
	Password            *string      `json:"password" validate:"omitempty,min=1"`
	FirstName           *string      `json:"first_name"`
	LastName            *string      `json:"last_name"`
	Title               *string      `json:"title"`
	JobTitle            *string      `json:"job_title"`
	ManagerUserID       *int64       `json:"manager_user_id" validate:"omitempty,gte=0"`
	Enabled             *bool        `json:"enabled"`
	PersonalContact     *ContactData `json:"personal_contact"`
	ProfessionalContact *ContactData `json:"professional_contact"`
}

type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

type RoleCreator struct {
	Name        string `json:"name" validate:"required,max=255"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

type RoleUpdater struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
}

type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ParentPath  string `json:"parent_path"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// GroupCreator ParentPath 为空表示根组, 组名不能包含 "/"
type GroupCreator struct {
	Name        string `json:"name" validate:"required,max=255,excludes=/"`
	ParentPath  string `json:"parent_path"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

type GroupUpdater struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255,excludes=/"`
	ParentPath  *string `json:"parent_path"`
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
}

type UserMembership struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	UserName   string `json:"user_name"`
	GroupID    int64  `json:"group_id"`
	GroupPath  string `json:"group_path"`
	RoleID     int64  `json:"role_id"`
	RoleName   string `json:"role_name"`
	AssignedBy int64  `json:"assigned_by"`
	AssignedAt int64  `json:"assigned_at"`
}

type ProcessDefinition struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	DeployedAt  int64  `json:"deployed_at"`
}

type ProcessDeploymentInfo struct {
	ProcessDefinition
	ActivationState    ActivationState    `json:"activation_state"`
	ConfigurationState ConfigurationState `json:"configuration_state"`
	DeployedBy         int64              `json:"deployed_by"`
	LastUpdatedAt      int64              `json:"last_updated_at"`
}

// Problem 流程解析问题, 比如参与者没有成员
type Problem struct {
	Resource string `json:"resource"` // actor / connector
	Name     string `json:"name"`
	Message  string `json:"message"`
}

type ProcessInstance struct {
	ID                  int64                `json:"id"`
	ProcessDefinitionID int64                `json:"process_definition_id"`
	Name                string               `json:"name"`
	State               ProcessInstanceState `json:"state"`
	StartedBy           int64                `json:"started_by"`
	StartedBySubstitute int64                `json:"started_by_substitute"`
	StartedAt           int64                `json:"started_at"`
	EndedAt             int64                `json:"ended_at"`
	LastUpdatedAt       int64                `json:"last_updated_at"`
}

type ArchivedProcessInstance struct {
	ID                  int64                `json:"id"`
	SourceObjectID      int64                `json:"source_object_id"`
	ProcessDefinitionID int64                `json:"process_definition_id"`
	Name                string               `json:"name"`
	State               ProcessInstanceState `json:"state"`
	StartedBy           int64                `json:"started_by"`
	StartedAt           int64                `json:"started_at"`
	EndedAt             int64                `json:"ended_at"`
	ArchivedAt          int64                `json:"archived_at"`
}

// ActivityInstance 流程节点实例, 失败时 FailureReason 不为空
type ActivityInstance struct {
	ID                  int64         `json:"id"`
	ProcessInstanceID   int64         `json:"process_instance_id"`
	ProcessDefinitionID int64         `json:"process_definition_id"`
	Name                string        `json:"name"`
	DisplayName         string        `json:"display_name"`
	Type                string        `json:"type"`
	State               FlowNodeState `json:"state"`
	ExecutedBy          int64         `json:"executed_by"`
	ReachedStateAt      int64         `json:"reached_state_at"`
	CreatedAt           int64         `json:"created_at"`
	LastUpdatedAt       int64         `json:"last_updated_at"`
	FailureReason       string        `json:"failure_reason,omitempty"`
}

type HumanTaskInstance struct {
	ActivityInstance
	ActorID    int64        `json:"actor_id"`
	AssigneeID int64        `json:"assignee_id"`
	Priority   TaskPriority `json:"priority"`
	DueDate    int64        `json:"due_date"`
}

// DataInstance 流程数据或者节点数据, ContainerID 是流程实例ID或者节点ID
type DataInstance struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Value       any    `json:"value"`
	ContainerID int64  `json:"container_id"`
}

type Actor struct {
	ID                  int64  `json:"id"`
	ProcessDefinitionID int64  `json:"process_definition_id"`
	Name                string `json:"name"`
	DisplayName         string `json:"display_name"`
	Description         string `json:"description"`
	Initiator           bool   `json:"initiator"`
}

// ActorMember 用户/组/角色/组+角色, 未使用的ID 为 0
type ActorMember struct {
	ID      int64 `json:"id"`
	ActorID int64 `json:"actor_id"`
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
	RoleID  int64 `json:"role_id"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

type CategoryUpdater struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
}

type Comment struct {
	ID                int64  `json:"id"`
	ProcessInstanceID int64  `json:"process_instance_id"`
	UserID            int64  `json:"user_id"`
	Content           string `json:"content"`
	PostedAt          int64  `json:"posted_at"`
}

// Document 流程文档, URL 文档没有内容, StorageID 为空
type Document struct {
	ID                int64  `json:"id"`
	ProcessInstanceID int64  `json:"process_instance_id"`
	Name              string `json:"name"`
	Version           int64  `json:"version"`
	Description       string `json:"description"`
	FileName          string `json:"file_name"`
	MimeType          string `json:"mime_type"`
	StorageID         string `json:"storage_id"`
	URL               string `json:"url"`
	Size              int64  `json:"size"`
	AuthorID          int64  `json:"author_id"`
	CreatedAt         int64  `json:"created_at"`
}

func (d *Document) HasContent() bool {
	return d.StorageID != ""
}

type ConnectorInstance struct {
	ID                int64          `json:"id"`
	ProcessInstanceID int64          `json:"process_instance_id"`
	FlowNodeID        int64          `json:"flow_node_id"`
	Name              string         `json:"name"`
	ConnectorID       string         `json:"connector_id"`
	Event             string         `json:"event"`
	State             ConnectorState `json:"state"`
	ErrorMessage      string         `json:"error_message"`
	ExecutedAt        int64          `json:"executed_at"`
}

// BusinessDataReference 流程实例对业务数据的引用, Multiple 为 false 时只有一个ID
type BusinessDataReference struct {
	Name              string  `json:"name"`
	ProcessInstanceID int64   `json:"process_instance_id"`
	ClassName         string  `json:"class_name"`
	StorageIDs        []int64 `json:"storage_ids"`
	Multiple          bool    `json:"multiple"`
}
