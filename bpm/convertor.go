package bpm

import (
	"encoding/json"

	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/store"
)

// 持久化模型转换成对外的数据结构

func toPlatform(po *store.PlatformPo) *Platform {
	return &Platform{
		Version:        po.Version,
		InitialVersion: po.InitialVersion,
		CreatedBy:      po.CreatedBy,
		CreatedAt:      po.CreatedAt,
	}
}

func toTenant(po *store.TenantPo) *Tenant {
	return &Tenant{
		ID:          po.ID,
		Name:        po.Name,
		Description: po.Description,
		Status:      po.Status,
		IsDefault:   po.IsDefault,
		CreatedBy:   po.CreatedBy,
		CreatedAt:   po.CreatedAt,
	}
}

func toUser(po *store.UserPo) *User {
	return &User{
		ID:             po.ID,
		UserName:       po.UserName,
		FirstName:      po.FirstName,
		LastName:       po.LastName,
		Title:          po.Title,
		JobTitle:       po.JobTitle,
		ManagerUserID:  po.ManagerUserID,
		Enabled:        po.Enabled,
		CreatedBy:      po.CreatedBy,
		LastConnection: po.LastConnection,
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
	}
}

func toContactData(po *store.UserContactPo) *ContactData {
	return &ContactData{
		Email:   po.Email,
		Phone:   po.Phone,
		Mobile:  po.Mobile,
		Address: po.Address,
		City:    po.City,
		ZipCode: po.ZipCode,
		Country: po.Country,
	}
}

func contactFields(c *ContactData) map[string]any {
	return map[string]any{
		"email":    c.Email,
		"phone":    c.Phone,
		"mobile":   c.Mobile,
		"address":  c.Address,
		"city":     c.City,
		"zip_code": c.ZipCode,
		"country":  c.Country,
	}
}

func toRole(po *store.RolePo) *Role {
	return &Role{
		ID:          po.ID,
		Name:        po.Name,
		DisplayName: po.DisplayName,
		Description: po.Description,
		CreatedBy:   po.CreatedBy,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}

func toGroup(po *store.GroupPo) *Group {
	return &Group{
		ID:          po.ID,
		Name:        po.Name,
		ParentPath:  po.ParentPath,
		Path:        po.Path,
		DisplayName: po.DisplayName,
		Description: po.Description,
		CreatedBy:   po.CreatedBy,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}

func toMembership(po *store.MembershipPo) *UserMembership {
	return &UserMembership{
		ID:         po.ID,
		UserID:     po.UserID,
		GroupID:    po.GroupID,
		RoleID:     po.RoleID,
		AssignedBy: po.AssignedBy,
		AssignedAt: po.AssignedAt,
	}
}

func toProcessDefinition(po *store.ProcessDefinitionPo) *ProcessDefinition {
	return &ProcessDefinition{
		ID:          po.ID,
		Name:        po.Name,
		Version:     po.Version,
		DisplayName: po.DisplayName,
		Description: po.Description,
		DeployedAt:  po.DeployedAt,
	}
}

func toProcessDeploymentInfo(po *store.ProcessDefinitionPo) *ProcessDeploymentInfo {
	return &ProcessDeploymentInfo{
		ProcessDefinition:  *toProcessDefinition(po),
		ActivationState:    po.ActivationState,
		ConfigurationState: po.ConfigurationState,
		DeployedBy:         po.DeployedBy,
		LastUpdatedAt:      po.LastUpdatedAt,
	}
}

func toProcessInstance(po *store.ProcessInstancePo) *ProcessInstance {
	return &ProcessInstance{
		ID:                  po.ID,
		ProcessDefinitionID: po.ProcessDefinitionID,
		Name:                po.Name,
		State:               po.State,
		StartedBy:           po.StartedBy,
		StartedBySubstitute: po.StartedBySubstitute,
		StartedAt:           po.StartedAt,
		EndedAt:             po.EndedAt,
		LastUpdatedAt:       po.LastUpdatedAt,
	}
}

func toArchivedProcessInstance(po *store.ArchivedProcessInstancePo) *ArchivedProcessInstance {
	return &ArchivedProcessInstance{
		ID:                  po.ID,
		SourceObjectID:      po.SourceObjectID,
		ProcessDefinitionID: po.ProcessDefinitionID,
		Name:                po.Name,
		State:               po.State,
		StartedBy:           po.StartedBy,
		StartedAt:           po.StartedAt,
		EndedAt:             po.EndedAt,
		ArchivedAt:          po.ArchivedAt,
	}
}

func toActivityInstance(po *store.FlowNodeInstancePo) *ActivityInstance {
	activity := &ActivityInstance{
		ID:                  po.ID,
		ProcessInstanceID:   po.ProcessInstanceID,
		ProcessDefinitionID: po.ProcessDefinitionID,
		Name:                po.Name,
		DisplayName:         po.DisplayName,
		Type:                po.Type,
		State:               po.State,
		ExecutedBy:          po.ExecutedBy,
		ReachedStateAt:      po.ReachedStateAt,
		CreatedAt:           po.CreatedAt,
		LastUpdatedAt:       po.LastUpdatedAt,
	}
	if po.State == engine.FlowNodeStateFailed {
		activity.FailureReason = engine.FailureReason(po)
	}
	return activity
}

func toHumanTaskInstance(po *store.FlowNodeInstancePo) *HumanTaskInstance {
	return &HumanTaskInstance{
		ActivityInstance: *toActivityInstance(po),
		ActorID:          po.ActorID,
		AssigneeID:       po.AssigneeID,
		Priority:         po.Priority,
		DueDate:          po.DueDate,
	}
}

func toDataInstance(po *store.DataInstancePo) (*DataInstance, error) {
	value, err := engine.DecodeValue(po.Type, po.Value)
	if err != nil {
		return nil, err
	}
	return &DataInstance{
		ID:          po.ID,
		Name:        po.Name,
		Description: po.Description,
		Type:        po.Type,
		Value:       value,
		ContainerID: po.ProcessInstanceID,
	}, nil
}

func toActor(po *store.ActorPo) *Actor {
	return &Actor{
		ID:                  po.ID,
		ProcessDefinitionID: po.ProcessDefinitionID,
		Name:                po.Name,
		DisplayName:         po.DisplayName,
		Description:         po.Description,
		Initiator:           po.Initiator,
	}
}

func toActorMember(po *store.ActorMemberPo) *ActorMember {
	return &ActorMember{
		ID:      po.ID,
		ActorID: po.ActorID,
		UserID:  po.UserID,
		GroupID: po.GroupID,
		RoleID:  po.RoleID,
	}
}

func toCategory(po *store.CategoryPo) *Category {
	return &Category{
		ID:          po.ID,
		Name:        po.Name,
		Description: po.Description,
		CreatedBy:   po.CreatedBy,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}

func toComment(po *store.CommentPo) *Comment {
	return &Comment{
		ID:                po.ID,
		ProcessInstanceID: po.ProcessInstanceID,
		UserID:            po.UserID,
		Content:           po.Content,
		PostedAt:          po.PostedAt,
	}
}

func toDocument(po *store.DocumentPo) *Document {
	return &Document{
		ID:                po.ID,
		ProcessInstanceID: po.ProcessInstanceID,
		Name:              po.Name,
		Version:           po.Version,
		Description:       po.Description,
		FileName:          po.FileName,
		MimeType:          po.MimeType,
		StorageID:         po.StorageID,
		URL:               po.URL,
		Size:              po.Size,
		AuthorID:          po.AuthorID,
		CreatedAt:         po.CreatedAt,
	}
}

func toConnectorInstance(po *store.ConnectorInstancePo) *ConnectorInstance {
	return &ConnectorInstance{
		ID:                po.ID,
		ProcessInstanceID: po.ProcessInstanceID,
		FlowNodeID:        po.FlowNodeID,
		Name:              po.Name,
		ConnectorID:       po.ConnectorID,
		Event:             po.Event,
		State:             po.State,
		ErrorMessage:      po.ErrorMessage,
		ExecutedAt:        po.ExecutedAt,
	}
}

func toBusinessDataReference(po *store.BusinessDataRefPo) (*BusinessDataReference, error) {
	ids := make([]int64, 0)
	if len(po.DataIDs) > 0 {
		if err := json.Unmarshal(po.DataIDs, &ids); err != nil {
			return nil, err
		}
	}
	return &BusinessDataReference{
		Name:              po.Name,
		ProcessInstanceID: po.ProcessInstanceID,
		ClassName:         po.ClassName,
		StorageIDs:        ids,
		Multiple:          po.Multiple,
	}, nil
}

func convertAll[P any, T any](pos []*P, convert func(*P) T) []T {
	ret := make([]T, 0, len(pos))
	for _, po := range pos {
		ret = append(ret, convert(po))
	}
	return ret
}
