package bpm

import (
	"github.com/blingmoon/simple-bpm/internal/store"
)

// 分页接口的排序方式

type UserCriterion = string

const (
	UserCriterionUserNameAsc   UserCriterion = "USER_NAME_ASC"
	UserCriterionUserNameDesc  UserCriterion = "USER_NAME_DESC"
	UserCriterionFirstNameAsc  UserCriterion = "FIRST_NAME_ASC"
	UserCriterionFirstNameDesc UserCriterion = "FIRST_NAME_DESC"
	UserCriterionLastNameAsc   UserCriterion = "LAST_NAME_ASC"
	UserCriterionLastNameDesc  UserCriterion = "LAST_NAME_DESC"
)

type RoleCriterion = string

const (
	RoleCriterionNameAsc         RoleCriterion = "NAME_ASC"
	RoleCriterionNameDesc        RoleCriterion = "NAME_DESC"
	RoleCriterionDisplayNameAsc  RoleCriterion = "DISPLAY_NAME_ASC"
	RoleCriterionDisplayNameDesc RoleCriterion = "DISPLAY_NAME_DESC"
)

type GroupCriterion = string

const (
	GroupCriterionNameAsc         GroupCriterion = "NAME_ASC"
	GroupCriterionNameDesc        GroupCriterion = "NAME_DESC"
	GroupCriterionLabelAsc        GroupCriterion = "LABEL_ASC"
	GroupCriterionLabelDesc       GroupCriterion = "LABEL_DESC"
	GroupCriterionPathAsc         GroupCriterion = "PATH_ASC"
	GroupCriterionCreationDateAsc GroupCriterion = "CREATION_DATE_ASC"
)

type UserMembershipCriterion = string

const (
	UserMembershipCriterionAssignedDateAsc  UserMembershipCriterion = "ASSIGNED_DATE_ASC"
	UserMembershipCriterionAssignedDateDesc UserMembershipCriterion = "ASSIGNED_DATE_DESC"
	UserMembershipCriterionGroupAsc         UserMembershipCriterion = "GROUP_ASC"
	UserMembershipCriterionRoleAsc          UserMembershipCriterion = "ROLE_ASC"
)

type TenantCriterion = string

const (
	TenantCriterionNameAsc         TenantCriterion = "NAME_ASC"
	TenantCriterionNameDesc        TenantCriterion = "NAME_DESC"
	TenantCriterionCreationDateAsc TenantCriterion = "CREATION_DATE_ASC"
)

type ProcessDeploymentInfoCriterion = string

const (
	ProcessDeploymentInfoCriterionDefault            ProcessDeploymentInfoCriterion = "DEFAULT"
	ProcessDeploymentInfoCriterionNameAsc            ProcessDeploymentInfoCriterion = "NAME_ASC"
	ProcessDeploymentInfoCriterionNameDesc           ProcessDeploymentInfoCriterion = "NAME_DESC"
	ProcessDeploymentInfoCriterionDeploymentDateAsc  ProcessDeploymentInfoCriterion = "DEPLOYMENT_DATE_ASC"
	ProcessDeploymentInfoCriterionDeploymentDateDesc ProcessDeploymentInfoCriterion = "DEPLOYMENT_DATE_DESC"
)

type ActivityInstanceCriterion = string

const (
	ActivityInstanceCriterionDefault          ActivityInstanceCriterion = "DEFAULT"
	ActivityInstanceCriterionNameAsc          ActivityInstanceCriterion = "NAME_ASC"
	ActivityInstanceCriterionNameDesc         ActivityInstanceCriterion = "NAME_DESC"
	ActivityInstanceCriterionPriorityDesc     ActivityInstanceCriterion = "PRIORITY_DESC"
	ActivityInstanceCriterionDueDateAsc       ActivityInstanceCriterion = "EXPECTED_END_DATE_ASC"
	ActivityInstanceCriterionReachedStateAsc  ActivityInstanceCriterion = "REACHED_STATE_DATE_ASC"
	ActivityInstanceCriterionReachedStateDesc ActivityInstanceCriterion = "REACHED_STATE_DATE_DESC"
)

type ActorCriterion = string

const (
	ActorCriterionNameAsc  ActorCriterion = "NAME_ASC"
	ActorCriterionNameDesc ActorCriterion = "NAME_DESC"
)

type CategoryCriterion = string

const (
	CategoryCriterionNameAsc  CategoryCriterion = "NAME_ASC"
	CategoryCriterionNameDesc CategoryCriterion = "NAME_DESC"
)

// orderOf 排序方式转换成排序字段, 不认识的用 fallback
func orderOf(criterion string, options map[string]store.OrderBy, fallback store.OrderBy) []store.OrderBy {
	order, ok := options[criterion]
	if !ok {
		order = fallback
	}
	return withIDOrder(order)
}

// withIDOrder 加上 id 排序保证分页稳定
func withIDOrder(order store.OrderBy) []store.OrderBy {
	if order.Field == "id" {
		return []store.OrderBy{order}
	}
	return []store.OrderBy{order, {Field: "id"}}
}

func userOrder(criterion UserCriterion) []store.OrderBy {
	switch criterion {
	case UserCriterionUserNameDesc:
		return withIDOrder(store.OrderBy{Field: "user_name", Desc: true})
	case UserCriterionFirstNameAsc:
		return withIDOrder(store.OrderBy{Field: "first_name"})
	case UserCriterionFirstNameDesc:
		return withIDOrder(store.OrderBy{Field: "first_name", Desc: true})
	case UserCriterionLastNameAsc:
		return withIDOrder(store.OrderBy{Field: "last_name"})
	case UserCriterionLastNameDesc:
		return withIDOrder(store.OrderBy{Field: "last_name", Desc: true})
	default:
		return withIDOrder(store.OrderBy{Field: "user_name"})
	}
}

var (
	roleOrders = map[string]store.OrderBy{
		RoleCriterionNameAsc:         {Field: "name"},
		RoleCriterionNameDesc:        {Field: "name", Desc: true},
		RoleCriterionDisplayNameAsc:  {Field: "display_name"},
		RoleCriterionDisplayNameDesc: {Field: "display_name", Desc: true},
	}
	groupOrders = map[string]store.OrderBy{
		GroupCriterionNameAsc:         {Field: "name"},
		GroupCriterionNameDesc:        {Field: "name", Desc: true},
		GroupCriterionLabelAsc:        {Field: "display_name"},
		GroupCriterionLabelDesc:       {Field: "display_name", Desc: true},
		GroupCriterionPathAsc:         {Field: "path"},
		GroupCriterionCreationDateAsc: {Field: "created_at"},
	}
	membershipOrders = map[string]store.OrderBy{
		UserMembershipCriterionAssignedDateAsc:  {Field: "assigned_at"},
		UserMembershipCriterionAssignedDateDesc: {Field: "assigned_at", Desc: true},
		UserMembershipCriterionGroupAsc:         {Field: "group_id"},
		UserMembershipCriterionRoleAsc:          {Field: "role_id"},
	}
	tenantOrders = map[string]store.OrderBy{
		TenantCriterionNameAsc:         {Field: "name"},
		TenantCriterionNameDesc:        {Field: "name", Desc: true},
		TenantCriterionCreationDateAsc: {Field: "created_at"},
	}
	processDeploymentInfoOrders = map[string]store.OrderBy{
		ProcessDeploymentInfoCriterionDefault:            {Field: "name"},
		ProcessDeploymentInfoCriterionNameAsc:            {Field: "name"},
		ProcessDeploymentInfoCriterionNameDesc:           {Field: "name", Desc: true},
		ProcessDeploymentInfoCriterionDeploymentDateAsc:  {Field: "deployed_at"},
		ProcessDeploymentInfoCriterionDeploymentDateDesc: {Field: "deployed_at", Desc: true},
	}
	activityInstanceOrders = map[string]store.OrderBy{
		ActivityInstanceCriterionDefault:          {Field: "id"},
		ActivityInstanceCriterionNameAsc:          {Field: "name"},
		ActivityInstanceCriterionNameDesc:         {Field: "name", Desc: true},
		ActivityInstanceCriterionPriorityDesc:     {Field: "priority", Desc: true},
		ActivityInstanceCriterionDueDateAsc:       {Field: "due_date"},
		ActivityInstanceCriterionReachedStateAsc:  {Field: "reached_state_at"},
		ActivityInstanceCriterionReachedStateDesc: {Field: "reached_state_at", Desc: true},
	}
	actorOrders = map[string]store.OrderBy{
		ActorCriterionNameAsc:  {Field: "name"},
		ActorCriterionNameDesc: {Field: "name", Desc: true},
	}
	categoryOrders = map[string]store.OrderBy{
		CategoryCriterionNameAsc:  {Field: "name"},
		CategoryCriterionNameDesc: {Field: "name", Desc: true},
	}
)
