package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
)

// checkMembershipParts 用户、组、角色都必须存在
func checkMembershipParts(ctx context.Context, svc *tenant.Services, userID, groupID, roleID int64) error {
	if userID != 0 {
		if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
			return translateError(err, ErrUserNotFound, ErrRetrieve)
		}
	}
	if _, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID); err != nil {
		return translateError(err, ErrGroupNotFound, ErrRetrieve)
	}
	if _, err := store.Get[store.RolePo](ctx, svc.Repo, roleID); err != nil {
		return translateError(err, ErrRoleNotFound, ErrRetrieve)
	}
	return nil
}

func (a *identityAPI) AddUserMembership(ctx context.Context, userID, groupID, roleID int64) (*UserMembership, error) {
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po := &store.MembershipPo{UserID: userID, GroupID: groupID, RoleID: roleID, AssignedBy: session.UserID}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if err := checkMembershipParts(ctx, svc, userID, groupID, roleID); err != nil {
			return err
		}
		return store.Create(ctx, svc.Repo, po)
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "AddUserMembership", err, ErrMembershipNotFound, ErrCreation)
	}
	memberships, err := fillMemberships(ctx, svc, []*store.MembershipPo{po})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "AddUserMembership", err, nil, ErrRetrieve)
	}
	return memberships[0], nil
}

func (a *identityAPI) AddUserMemberships(ctx context.Context, userIDs []int64, groupID, roleID int64) error {
	svc, session, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if err := checkMembershipParts(ctx, svc, 0, groupID, roleID); err != nil {
			return err
		}
		for _, userID := range userIDs {
			if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
				return translateError(err, ErrUserNotFound, ErrRetrieve)
			}
			if err := store.Create(ctx, svc.Repo, &store.MembershipPo{
				UserID: userID, GroupID: groupID, RoleID: roleID, AssignedBy: session.UserID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "AddUserMemberships", err, ErrMembershipNotFound, ErrCreation)
	}
	return nil
}

func (a *identityAPI) UpdateUserMembership(ctx context.Context, membershipID int64, newGroupID, newRoleID int64) (*UserMembership, error) {
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	var po *store.MembershipPo
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := store.Get[store.MembershipPo](ctx, svc.Repo, membershipID); err != nil {
			return translateError(err, ErrMembershipNotFound, ErrRetrieve)
		}
		if err := checkMembershipParts(ctx, svc, 0, newGroupID, newRoleID); err != nil {
			return err
		}
		if err := store.UpdateByID[store.MembershipPo](ctx, svc.Repo, membershipID, map[string]any{
			"group_id":    newGroupID,
			"role_id":     newRoleID,
			"assigned_by": session.UserID,
		}); err != nil {
			return err
		}
		po, err = store.Get[store.MembershipPo](ctx, svc.Repo, membershipID)
		return err
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "UpdateUserMembership", err, ErrMembershipNotFound, ErrUpdate)
	}
	memberships, err := fillMemberships(ctx, svc, []*store.MembershipPo{po})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "UpdateUserMembership", err, nil, ErrRetrieve)
	}
	return memberships[0], nil
}

func (a *identityAPI) DeleteUserMembership(ctx context.Context, userID, groupID, roleID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	affected, err := store.Delete[store.MembershipPo](ctx, svc.Repo,
		store.Eq("user_id", userID), store.Eq("group_id", groupID), store.Eq("role_id", roleID))
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteUserMembership", err, ErrMembershipNotFound, ErrDeletion)
	}
	if affected == 0 {
		return errors.Wrapf(ErrMembershipNotFound, "user: %d, group: %d, role: %d", userID, groupID, roleID)
	}
	return nil
}

// DeleteUserMemberships 不存在的成员关系忽略
func (a *identityAPI) DeleteUserMemberships(ctx context.Context, userIDs []int64, groupID, roleID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(userIDs); start += batchSize {
		end := min(start+batchSize, len(userIDs))
		if _, err := store.Delete[store.MembershipPo](ctx, svc.Repo,
			store.In("user_id", userIDs[start:end]), store.Eq("group_id", groupID), store.Eq("role_id", roleID)); err != nil {
			return a.fail(ctx, svc.Log, "DeleteUserMemberships", err, ErrMembershipNotFound, ErrDeletion)
		}
	}
	return nil
}

func (a *identityAPI) GetUserMembership(ctx context.Context, membershipID int64) (*UserMembership, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.MembershipPo](ctx, svc.Repo, membershipID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUserMembership", err, ErrMembershipNotFound, ErrRetrieve)
	}
	memberships, err := fillMemberships(ctx, svc, []*store.MembershipPo{po})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUserMembership", err, nil, ErrRetrieve)
	}
	return memberships[0], nil
}

func (a *identityAPI) GetUserMemberships(ctx context.Context, userID int64, startIndex, maxResults int64, criterion UserMembershipCriterion) ([]*UserMembership, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, membershipOrders, store.OrderBy{Field: "assigned_at"})
	pos, err := store.Find[store.MembershipPo](ctx, svc.Repo, page([]store.Cond{store.Eq("user_id", userID)}, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUserMemberships", err, nil, ErrRetrieve)
	}
	memberships, err := fillMemberships(ctx, svc, pos)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUserMemberships", err, nil, ErrRetrieve)
	}
	return memberships, nil
}

func (a *identityAPI) GetNumberOfUserMemberships(ctx context.Context, userID int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.MembershipPo](ctx, svc.Repo, store.Where(store.Eq("user_id", userID)))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfUserMemberships", err, nil, ErrRetrieve)
	}
	return count, nil
}

// fillMemberships 转换并补充用户名、组路径、角色名
func fillMemberships(ctx context.Context, svc *tenant.Services, pos []*store.MembershipPo) ([]*UserMembership, error) {
	userIDs := uniqueIDs(idsOf(pos, func(po *store.MembershipPo) int64 { return po.UserID }))
	groupIDs := uniqueIDs(idsOf(pos, func(po *store.MembershipPo) int64 { return po.GroupID }))
	roleIDs := uniqueIDs(idsOf(pos, func(po *store.MembershipPo) int64 { return po.RoleID }))
	users, err := store.Find[store.UserPo](ctx, svc.Repo, store.Where(store.In("id", userIDs)))
	if err != nil {
		return nil, err
	}
	groups, err := store.Find[store.GroupPo](ctx, svc.Repo, store.Where(store.In("id", groupIDs)))
	if err != nil {
		return nil, err
	}
	roles, err := store.Find[store.RolePo](ctx, svc.Repo, store.Where(store.In("id", roleIDs)))
	if err != nil {
		return nil, err
	}
	userNames := make(map[int64]string, len(users))
	for _, u := range users {
		userNames[u.ID] = u.UserName
	}
	groupPaths := make(map[int64]string, len(groups))
	for _, g := range groups {
		groupPaths[g.ID] = g.Path
	}
	roleNames := make(map[int64]string, len(roles))
	for _, r := range roles {
		roleNames[r.ID] = r.Name
	}
	ret := make([]*UserMembership, 0, len(pos))
	for _, po := range pos {
		m := toMembership(po)
		m.UserName = userNames[po.UserID]
		m.GroupPath = groupPaths[po.GroupID]
		m.RoleName = roleNames[po.RoleID]
		ret = append(ret, m)
	}
	return ret, nil
}
