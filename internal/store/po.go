package store

// 持久化模型, 除了平台和租户, 所有表都带 tenant_id, 由 Repo 自动加上租户条件

type PlatformPo struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Version        string `gorm:"column:version"`
	InitialVersion string `gorm:"column:initial_version"`
	CreatedBy      string `gorm:"column:created_by"`
	CreatedAt      int64  `gorm:"column:created_at;autoCreateTime:milli"`
}

func (PlatformPo) TableName() string { return "platform" }

type TenantPo struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string `gorm:"column:name;size:100;uniqueIndex:uk_tenant_name"`
	Description string `gorm:"column:description"`
	Status      string `gorm:"column:status"`
	IsDefault   bool   `gorm:"column:is_default"`
	CreatedBy   string `gorm:"column:created_by"`
	CreatedAt   int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt   int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (TenantPo) TableName() string { return "tenant" }

type UserPo struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID       int64  `gorm:"column:tenant_id;uniqueIndex:uk_user_name"`
	UserName       string `gorm:"column:user_name;size:255;uniqueIndex:uk_user_name"`
	Password       string `gorm:"column:password"`
	FirstName      string `gorm:"column:first_name"`
	LastName       string `gorm:"column:last_name"`
	Title          string `gorm:"column:title"`
	JobTitle       string `gorm:"column:job_title"`
	ManagerUserID  int64  `gorm:"column:manager_user_id"`
	Enabled        bool   `gorm:"column:enabled"`
	CreatedBy      int64  `gorm:"column:created_by"`
	LastConnection int64  `gorm:"column:last_connection"`
	CreatedAt      int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt      int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (UserPo) TableName() string { return "user_" }

// UserContactPo 用户联系方式, Personal 区分个人和工作
type UserContactPo struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID int64  `gorm:"column:tenant_id;uniqueIndex:uk_user_contact"`
	UserID   int64  `gorm:"column:user_id;uniqueIndex:uk_user_contact"`
	Personal bool   `gorm:"column:personal;uniqueIndex:uk_user_contact"`
	Email    string `gorm:"column:email"`
	Phone    string `gorm:"column:phone"`
	Mobile   string `gorm:"column:mobile"`
	Address  string `gorm:"column:address"`
	City     string `gorm:"column:city"`
	ZipCode  string `gorm:"column:zip_code"`
	Country  string `gorm:"column:country"`
}

func (UserContactPo) TableName() string { return "user_contact" }

type RolePo struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID    int64  `gorm:"column:tenant_id;uniqueIndex:uk_role_name"`
	Name        string `gorm:"column:name;size:255;uniqueIndex:uk_role_name"`
	DisplayName string `gorm:"column:display_name"`
	Description string `gorm:"column:description"`
	CreatedBy   int64  `gorm:"column:created_by"`
	CreatedAt   int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt   int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (RolePo) TableName() string { return "role" }

type GroupPo struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID    int64  `gorm:"column:tenant_id;uniqueIndex:uk_group_path"`
	Name        string `gorm:"column:name"`
	ParentPath  string `gorm:"column:parent_path"`
	Path        string `gorm:"column:path;size:512;uniqueIndex:uk_group_path"`
	DisplayName string `gorm:"column:display_name"`
	Description string `gorm:"column:description"`
	CreatedBy   int64  `gorm:"column:created_by"`
	CreatedAt   int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt   int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (GroupPo) TableName() string { return "group_" }

type MembershipPo struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID   int64 `gorm:"column:tenant_id;uniqueIndex:uk_membership"`
	UserID     int64 `gorm:"column:user_id;uniqueIndex:uk_membership"`
	GroupID    int64 `gorm:"column:group_id;uniqueIndex:uk_membership"`
	RoleID     int64 `gorm:"column:role_id;uniqueIndex:uk_membership"`
	AssignedBy int64 `gorm:"column:assigned_by"`
	AssignedAt int64 `gorm:"column:assigned_at;autoCreateTime:milli"`
}

func (MembershipPo) TableName() string { return "user_membership" }

type ProcessDefinitionPo struct {
	ID                 int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID           int64  `gorm:"column:tenant_id;uniqueIndex:uk_process_definition"`
	Name               string `gorm:"column:name;size:255;uniqueIndex:uk_process_definition"`
	Version            string `gorm:"column:version;size:50;uniqueIndex:uk_process_definition"`
	DisplayName        string `gorm:"column:display_name"`
	Description        string `gorm:"column:description"`
	ActivationState    string `gorm:"column:activation_state"`
	ConfigurationState string `gorm:"column:configuration_state"`
	Design             []byte `gorm:"column:design"` // 流程设计, json
	DeployedBy         int64  `gorm:"column:deployed_by"`
	DeployedAt         int64  `gorm:"column:deployed_at;autoCreateTime:milli"`
	LastUpdatedAt      int64  `gorm:"column:last_updated_at;autoUpdateTime:milli"`
}

func (ProcessDefinitionPo) TableName() string { return "process_definition" }

type ActorPo struct {
	ID                  int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID            int64  `gorm:"column:tenant_id;uniqueIndex:uk_actor"`
	ProcessDefinitionID int64  `gorm:"column:process_definition_id;uniqueIndex:uk_actor"`
	Name                string `gorm:"column:name;size:255;uniqueIndex:uk_actor"`
	DisplayName         string `gorm:"column:display_name"`
	Description         string `gorm:"column:description"`
	Initiator           bool   `gorm:"column:initiator"`
}

func (ActorPo) TableName() string { return "actor" }

// ActorMemberPo 用户/组/角色三选一, 组+角色表示成员关系, 未使用的为 0
type ActorMemberPo struct {
	ID       int64 `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID int64 `gorm:"column:tenant_id;uniqueIndex:uk_actor_member"`
	ActorID  int64 `gorm:"column:actor_id;uniqueIndex:uk_actor_member"`
	UserID   int64 `gorm:"column:user_id;uniqueIndex:uk_actor_member"`
	GroupID  int64 `gorm:"column:group_id;uniqueIndex:uk_actor_member"`
	RoleID   int64 `gorm:"column:role_id;uniqueIndex:uk_actor_member"`
}

func (ActorMemberPo) TableName() string { return "actor_member" }

type ProcessInstancePo struct {
	ID                  int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID            int64  `gorm:"column:tenant_id;index:idx_process_instance"`
	ProcessDefinitionID int64  `gorm:"column:process_definition_id;index:idx_process_instance"`
	Name                string `gorm:"column:name"`
	State               string `gorm:"column:state"`
	StartedBy           int64  `gorm:"column:started_by"`
	StartedBySubstitute int64  `gorm:"column:started_by_substitute"`
	StartedAt           int64  `gorm:"column:started_at;autoCreateTime:milli"`
	EndedAt             int64  `gorm:"column:ended_at"`
	LastUpdatedAt       int64  `gorm:"column:last_updated_at;autoUpdateTime:milli"`
}

func (ProcessInstancePo) TableName() string { return "process_instance" }

type ArchivedProcessInstancePo struct {
	ID                  int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID            int64  `gorm:"column:tenant_id"`
	SourceObjectID      int64  `gorm:"column:source_object_id;index"`
	ProcessDefinitionID int64  `gorm:"column:process_definition_id"`
	Name                string `gorm:"column:name"`
	State               string `gorm:"column:state"`
	StartedBy           int64  `gorm:"column:started_by"`
	StartedAt           int64  `gorm:"column:started_at"`
	EndedAt             int64  `gorm:"column:ended_at"`
	ArchivedAt          int64  `gorm:"column:archived_at;autoCreateTime:milli"`
}

func (ArchivedProcessInstancePo) TableName() string { return "arch_process_instance" }

type FlowNodeInstancePo struct {
	ID                  int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID            int64  `gorm:"column:tenant_id;index:idx_flow_node"`
	ProcessInstanceID   int64  `gorm:"column:process_instance_id;index:idx_flow_node"`
	ProcessDefinitionID int64  `gorm:"column:process_definition_id"`
	Name                string `gorm:"column:name"`
	DisplayName         string `gorm:"column:display_name"`
	Type                string `gorm:"column:type"`
	State               string `gorm:"column:state"`
	ActorID             int64  `gorm:"column:actor_id"`
	AssigneeID          int64  `gorm:"column:assignee_id"`
	ExecutedBy          int64  `gorm:"column:executed_by"`
	Priority            string `gorm:"column:priority"`
	DueDate             int64  `gorm:"column:due_date"`
	LocalData           []byte `gorm:"column:local_data"` // 节点本地数据, json
	ReachedStateAt      int64  `gorm:"column:reached_state_at"`
	CreatedAt           int64  `gorm:"column:created_at;autoCreateTime:milli"`
	LastUpdatedAt       int64  `gorm:"column:last_updated_at;autoUpdateTime:milli"`
}

func (FlowNodeInstancePo) TableName() string { return "flownode_instance" }

// DataInstancePo 流程变量, Value 为 json
type DataInstancePo struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID          int64  `gorm:"column:tenant_id;uniqueIndex:uk_data_instance"`
	ProcessInstanceID int64  `gorm:"column:process_instance_id;uniqueIndex:uk_data_instance"`
	Name              string `gorm:"column:name;size:255;uniqueIndex:uk_data_instance"`
	Description       string `gorm:"column:description"`
	Type              string `gorm:"column:type"`
	Value             []byte `gorm:"column:value"`
	UpdatedAt         int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (DataInstancePo) TableName() string { return "data_instance" }

type CategoryPo struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID    int64  `gorm:"column:tenant_id;uniqueIndex:uk_category"`
	Name        string `gorm:"column:name;size:255;uniqueIndex:uk_category"`
	Description string `gorm:"column:description"`
	CreatedBy   int64  `gorm:"column:created_by"`
	CreatedAt   int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt   int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (CategoryPo) TableName() string { return "category" }

type ProcessCategoryPo struct {
	ID                  int64 `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID            int64 `gorm:"column:tenant_id;uniqueIndex:uk_process_category"`
	CategoryID          int64 `gorm:"column:category_id;uniqueIndex:uk_process_category"`
	ProcessDefinitionID int64 `gorm:"column:process_definition_id;uniqueIndex:uk_process_category"`
}

func (ProcessCategoryPo) TableName() string { return "process_category" }

type CommentPo struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID          int64  `gorm:"column:tenant_id;index:idx_comment"`
	ProcessInstanceID int64  `gorm:"column:process_instance_id;index:idx_comment"`
	UserID            int64  `gorm:"column:user_id"`
	Content           string `gorm:"column:content"`
	PostedAt          int64  `gorm:"column:posted_at;autoCreateTime:milli"`
}

func (CommentPo) TableName() string { return "comment" }

// DocumentPo 文档元数据, 内容存放在文档存储中, StorageID 为空表示 url 文档
type DocumentPo struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID          int64  `gorm:"column:tenant_id;index:idx_document"`
	ProcessInstanceID int64  `gorm:"column:process_instance_id;index:idx_document"`
	Name              string `gorm:"column:name;index:idx_document"`
	Version           int64  `gorm:"column:version"`
	Description       string `gorm:"column:description"`
	FileName          string `gorm:"column:file_name"`
	MimeType          string `gorm:"column:mime_type"`
	StorageID         string `gorm:"column:storage_id"`
	URL               string `gorm:"column:url"`
	Size              int64  `gorm:"column:size"`
	AuthorID          int64  `gorm:"column:author_id"`
	CreatedAt         int64  `gorm:"column:created_at;autoCreateTime:milli"`
}

func (DocumentPo) TableName() string { return "document" }

type ConnectorInstancePo struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID          int64  `gorm:"column:tenant_id;index:idx_connector_instance"`
	ProcessInstanceID int64  `gorm:"column:process_instance_id;index:idx_connector_instance"`
	FlowNodeID        int64  `gorm:"column:flow_node_id"` // 0 表示流程级连接器
	Name              string `gorm:"column:name"`
	ConnectorID       string `gorm:"column:connector_id"`
	Event             string `gorm:"column:event"`
	State             string `gorm:"column:state"`
	ErrorMessage      string `gorm:"column:error_message"`
	ExecutedAt        int64  `gorm:"column:executed_at"`
	CreatedAt         int64  `gorm:"column:created_at;autoCreateTime:milli"`
}

func (ConnectorInstancePo) TableName() string { return "connector_instance" }

type BusinessDataPo struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  int64  `gorm:"column:tenant_id;index:idx_business_data"`
	ClassName string `gorm:"column:class_name;size:255;index:idx_business_data"`
	Payload   []byte `gorm:"column:payload"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (BusinessDataPo) TableName() string { return "business_data" }

// BusinessDataRefPo 流程实例对业务数据的引用, DataIDs 为 json 数组
type BusinessDataRefPo struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID          int64  `gorm:"column:tenant_id;uniqueIndex:uk_business_data_ref"`
	ProcessInstanceID int64  `gorm:"column:process_instance_id;uniqueIndex:uk_business_data_ref"`
	Name              string `gorm:"column:name;size:255;uniqueIndex:uk_business_data_ref"`
	ClassName         string `gorm:"column:class_name"`
	DataIDs           []byte `gorm:"column:data_ids"`
	Multiple          bool   `gorm:"column:multiple"`
}

func (BusinessDataRefPo) TableName() string { return "business_data_ref" }

// PlatformModels 平台级别的表
func PlatformModels() []any {
	return []any{&PlatformPo{}, &TenantPo{}}
}

// TenantModels 租户级别的表, 删除租户时逐个清理
func TenantModels() []any {
	return []any{
		&UserPo{}, &UserContactPo{}, &RolePo{}, &GroupPo{}, &MembershipPo{},
		&ProcessDefinitionPo{}, &ActorPo{}, &ActorMemberPo{},
		&ProcessInstancePo{}, &ArchivedProcessInstancePo{}, &FlowNodeInstancePo{}, &DataInstancePo{},
		&CategoryPo{}, &ProcessCategoryPo{}, &CommentPo{}, &DocumentPo{}, &ConnectorInstancePo{},
		&BusinessDataPo{}, &BusinessDataRefPo{},
	}
}

// AllModels 所有需要迁移的表
func AllModels() []any {
	return append(PlatformModels(), TenantModels()...)
}
