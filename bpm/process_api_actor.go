package bpm

import (
	"context"
	"encoding/json"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// actorMapping 参与者映射文件
//
//	{"actors":[{"name":"approver","users":["walter"],"groups":["/acme/hr"],"roles":["manager"],
//	  "memberships":[{"group":"/acme","role":"member"}]}]}
type actorMapping struct {
	Actors []struct {
		Name        string   `json:"name" validate:"required"`
		Users       []string `json:"users"`
		Groups      []string `json:"groups"`
		Roles       []string `json:"roles"`
		Memberships []struct {
			Group string `json:"group" validate:"required"`
			Role  string `json:"role" validate:"required"`
		} `json:"memberships" validate:"dive"`
	} `json:"actors" validate:"dive"`
}

// deleteActorMembers 删除满足条件的参与者成员, 相关的流程定义重新解析
func deleteActorMembers(ctx context.Context, svc *tenant.Services, cond store.Cond) error {
	members, err := store.Find[store.ActorMemberPo](ctx, svc.Repo, store.Where(cond))
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	actors, err := store.Find[store.ActorPo](ctx, svc.Repo, store.Where(
		store.In("id", uniqueIDs(idsOf(members, func(po *store.ActorMemberPo) int64 { return po.ActorID })))))
	if err != nil {
		return err
	}
	if _, err := store.Delete[store.ActorMemberPo](ctx, svc.Repo,
		store.In("id", idsOf(members, func(po *store.ActorMemberPo) int64 { return po.ID }))); err != nil {
		return err
	}
	for _, id := range uniqueIDs(idsOf(actors, func(po *store.ActorPo) int64 { return po.ProcessDefinitionID })) {
		if err := resolveProcessDefinition(ctx, svc, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *processAPI) GetActors(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64, criterion ActorCriterion) ([]*Actor, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, actorOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.ActorPo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_definition_id", processDefinitionID)}, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActors", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toActor), nil
}

func (a *processAPI) GetActor(ctx context.Context, actorID int64) (*Actor, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.ActorPo](ctx, svc.Repo, actorID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActor", err, ErrActorNotFound, ErrRetrieve)
	}
	return toActor(po), nil
}

func (a *processAPI) GetActorByName(ctx context.Context, processDefinitionID int64, name string) (*Actor, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.First[store.ActorPo](ctx, svc.Repo,
		store.Eq("process_definition_id", processDefinitionID), store.Eq("name", name))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActorByName", err, ErrActorNotFound, ErrRetrieve)
	}
	return toActor(po), nil
}

func (a *processAPI) GetActorMembers(ctx context.Context, actorID int64, startIndex, maxResults int64) ([]*ActorMember, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.ActorMemberPo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("actor_id", actorID)}, startIndex, maxResults, []store.OrderBy{{Field: "id"}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActorMembers", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toActorMember), nil
}

func (a *processAPI) GetNumberOfActorMembers(ctx context.Context, actorID int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.ActorMemberPo](ctx, svc.Repo, store.Where(store.Eq("actor_id", actorID)))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfActorMembers", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *processAPI) AddUserToActor(ctx context.Context, actorID int64, userID int64) (*ActorMember, error) {
	return a.addActorMember(ctx, "AddUserToActor", &store.ActorMemberPo{ActorID: actorID, UserID: userID})
}

func (a *processAPI) AddGroupToActor(ctx context.Context, actorID int64, groupID int64) (*ActorMember, error) {
	return a.addActorMember(ctx, "AddGroupToActor", &store.ActorMemberPo{ActorID: actorID, GroupID: groupID})
}

func (a *processAPI) AddRoleToActor(ctx context.Context, actorID int64, roleID int64) (*ActorMember, error) {
	return a.addActorMember(ctx, "AddRoleToActor", &store.ActorMemberPo{ActorID: actorID, RoleID: roleID})
}

func (a *processAPI) AddRoleAndGroupToActor(ctx context.Context, actorID int64, roleID, groupID int64) (*ActorMember, error) {
	return a.addActorMember(ctx, "AddRoleAndGroupToActor", &store.ActorMemberPo{ActorID: actorID, GroupID: groupID, RoleID: roleID})
}

func (a *processAPI) addActorMember(ctx context.Context, op string, member *store.ActorMemberPo) (*ActorMember, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		actor, err := store.Get[store.ActorPo](ctx, svc.Repo, member.ActorID)
		if err != nil {
			return translateError(err, ErrActorNotFound, ErrCreation)
		}
		if err := checkActorMemberParts(ctx, svc, member); err != nil {
			return err
		}
		if err := store.Create(ctx, svc.Repo, member); err != nil {
			return err
		}
		return resolveProcessDefinition(ctx, svc, actor.ProcessDefinitionID)
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, op, err, nil, ErrCreation)
	}
	svc.Log.Info("actor member added", zap.Int64("actor_id", member.ActorID), zap.Int64("actor_member_id", member.ID))
	return toActorMember(member), nil
}

func checkActorMemberParts(ctx context.Context, svc *tenant.Services, member *store.ActorMemberPo) error {
	if member.UserID == 0 && member.GroupID == 0 && member.RoleID == 0 {
		return invalidParam("actor member needs a user, group or role")
	}
	if member.UserID != 0 {
		if _, err := store.Get[store.UserPo](ctx, svc.Repo, member.UserID); err != nil {
			return translateError(err, ErrUserNotFound, ErrCreation)
		}
	}
	if member.GroupID != 0 {
		if _, err := store.Get[store.GroupPo](ctx, svc.Repo, member.GroupID); err != nil {
			return translateError(err, ErrGroupNotFound, ErrCreation)
		}
	}
	if member.RoleID != 0 {
		if _, err := store.Get[store.RolePo](ctx, svc.Repo, member.RoleID); err != nil {
			return translateError(err, ErrRoleNotFound, ErrCreation)
		}
	}
	return nil
}

func (a *processAPI) RemoveActorMember(ctx context.Context, actorMemberID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := store.Get[store.ActorMemberPo](ctx, svc.Repo, actorMemberID); err != nil {
			return err
		}
		return deleteActorMembers(ctx, svc, store.Eq("id", actorMemberID))
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "RemoveActorMember", err, ErrActorMemberNotFound, ErrDeletion)
	}
	return nil
}

// ImportActorMapping 按名字导入参与者成员, 已存在的成员跳过, 未知的用户/组/角色返回错误
func (a *processAPI) ImportActorMapping(ctx context.Context, processDefinitionID int64, mapping []byte) error {
	var m actorMapping
	if err := json.Unmarshal(mapping, &m); err != nil {
		return invalidParam("ImportActorMapping failed, err: %v", err)
	}
	if err := validatorUtil.Struct(&m); err != nil {
		return invalidParam("ImportActorMapping failed, err: %v", err)
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID); err != nil {
			return translateError(err, ErrProcessDefinitionNotFound, ErrUpdate)
		}
		for _, am := range m.Actors {
			actor, err := store.First[store.ActorPo](ctx, svc.Repo,
				store.Eq("process_definition_id", processDefinitionID), store.Eq("name", am.Name))
			if err != nil {
				return translateError(err, ErrActorNotFound, ErrUpdate)
			}
			var members []*store.ActorMemberPo
			for _, name := range am.Users {
				user, err := store.First[store.UserPo](ctx, svc.Repo, store.Eq("user_name", name))
				if err != nil {
					return translateError(err, ErrUserNotFound, ErrUpdate)
				}
				members = append(members, &store.ActorMemberPo{ActorID: actor.ID, UserID: user.ID})
			}
			for _, path := range am.Groups {
				group, err := store.First[store.GroupPo](ctx, svc.Repo, store.Eq("path", path))
				if err != nil {
					return translateError(err, ErrGroupNotFound, ErrUpdate)
				}
				members = append(members, &store.ActorMemberPo{ActorID: actor.ID, GroupID: group.ID})
			}
			for _, name := range am.Roles {
				role, err := store.First[store.RolePo](ctx, svc.Repo, store.Eq("name", name))
				if err != nil {
					return translateError(err, ErrRoleNotFound, ErrUpdate)
				}
				members = append(members, &store.ActorMemberPo{ActorID: actor.ID, RoleID: role.ID})
			}
			for _, ms := range am.Memberships {
				group, err := store.First[store.GroupPo](ctx, svc.Repo, store.Eq("path", ms.Group))
				if err != nil {
					return translateError(err, ErrGroupNotFound, ErrUpdate)
				}
				role, err := store.First[store.RolePo](ctx, svc.Repo, store.Eq("name", ms.Role))
				if err != nil {
					return translateError(err, ErrRoleNotFound, ErrUpdate)
				}
				members = append(members, &store.ActorMemberPo{ActorID: actor.ID, GroupID: group.ID, RoleID: role.ID})
			}
			for _, member := range members {
				_, err := store.First[store.ActorMemberPo](ctx, svc.Repo, store.Eq("actor_id", member.ActorID),
					store.Eq("user_id", member.UserID), store.Eq("group_id", member.GroupID), store.Eq("role_id", member.RoleID))
				if err == nil {
					continue
				}
				if !errors.Is(err, store.ErrRecordNotFound) {
					return err
				}
				if err := store.Create(ctx, svc.Repo, member); err != nil {
					return err
				}
			}
		}
		return resolveProcessDefinition(ctx, svc, processDefinitionID)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "ImportActorMapping", err, nil, ErrUpdate)
	}
	return nil
}
