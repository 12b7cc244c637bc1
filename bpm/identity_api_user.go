package bpm

import (
	"context"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/auth"
	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type identityAPI struct {
	*apiBase
}

func (a *identityAPI) CreateUser(ctx context.Context, creator *UserCreator) (*User, error) {
	if creator == nil {
		return nil, invalidParam("CreateUser failed, creator is nil")
	}
	if err := validatorUtil.Struct(creator); err != nil {
		return nil, invalidParam("CreateUser failed, userName: %s, err: %v", creator.UserName, err)
	}
	if strings.TrimSpace(creator.Password) == "" {
		return nil, invalidParam("CreateUser failed, password is blank, userName: %s", creator.UserName)
	}
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	hashed, err := auth.HashPassword(creator.Password)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "CreateUser", err, nil, ErrCreation)
	}
	enabled := true
	if creator.Enabled != nil {
		enabled = *creator.Enabled
	}
	po := &store.UserPo{
		UserName:      creator.UserName,
		Password:      hashed,
		FirstName:     creator.FirstName,
		LastName:      creator.LastName,
		Title:         creator.Title,
		JobTitle:      creator.JobTitle,
		ManagerUserID: creator.ManagerUserID,
		Enabled:       enabled,
		CreatedBy:     session.UserID,
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if err := store.Create(ctx, svc.Repo, po); err != nil {
			return err
		}
		if err := saveContact(ctx, svc, po.ID, false, creator.ProfessionalContact); err != nil {
			return err
		}
		return saveContact(ctx, svc, po.ID, true, creator.PersonalContact)
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "CreateUser", err, nil, ErrCreation)
	}
	svc.Log.Info("user created", zap.Int64("user_id", po.ID), zap.String("user_name", po.UserName))
	return toUser(po), nil
}

// saveContact 联系方式存在时更新, 不存在时创建
func saveContact(ctx context.Context, svc *tenant.Services, userID int64, personal bool, contact *ContactData) error {
	if contact == nil {
		return nil
	}
	existing, err := store.First[store.UserContactPo](ctx, svc.Repo, store.Eq("user_id", userID), store.Eq("personal", personal))
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return err
	}
	if existing != nil {
		return store.UpdateByID[store.UserContactPo](ctx, svc.Repo, existing.ID, contactFields(contact))
	}
	return store.Create(ctx, svc.Repo, &store.UserContactPo{
		UserID:   userID,
		Personal: personal,
		Email:    contact.Email,
		Phone:    contact.Phone,
		Mobile:   contact.Mobile,
		Address:  contact.Address,
		City:     contact.City,
		ZipCode:  contact.ZipCode,
		Country:  contact.Country,
	})
}

func (a *identityAPI) GetUser(ctx context.Context, userID int64) (*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.UserPo](ctx, svc.Repo, userID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUser", err, ErrUserNotFound, ErrRetrieve)
	}
	return toUser(po), nil
}

func (a *identityAPI) GetUserByUserName(ctx context.Context, userName string) (*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.First[store.UserPo](ctx, svc.Repo, store.Eq("user_name", userName))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUserByUserName", err, ErrUserNotFound, ErrRetrieve)
	}
	return toUser(po), nil
}

func (a *identityAPI) GetUsers(ctx context.Context, userIDs []int64) (map[int64]*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	ret := make(map[int64]*User, len(userIDs))
	for start := 0; start < len(userIDs); start += batchSize {
		end := min(start+batchSize, len(userIDs))
		pos, err := store.Find[store.UserPo](ctx, svc.Repo, store.Where(store.In("id", userIDs[start:end])))
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetUsers", err, nil, ErrRetrieve)
		}
		for _, po := range pos {
			ret[po.ID] = toUser(po)
		}
	}
	return ret, nil
}

func (a *identityAPI) GetUserContactData(ctx context.Context, userID int64, personal bool) (*ContactData, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUserContactData", err, ErrUserNotFound, ErrRetrieve)
	}
	po, err := store.First[store.UserContactPo](ctx, svc.Repo, store.Eq("user_id", userID), store.Eq("personal", personal))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// 没有填写联系方式
			return &ContactData{}, nil
		}
		return nil, a.fail(ctx, svc.Log, "GetUserContactData", err, nil, ErrRetrieve)
	}
	return toContactData(po), nil
}

func (a *identityAPI) UpdateUser(ctx context.Context, userID int64, updater *UserUpdater) (*User, error) {
	if updater == nil {
		return nil, invalidParam("UpdateUser failed, updater is nil")
	}
	if err := validatorUtil.Struct(updater); err != nil {
		return nil, invalidParam("UpdateUser failed, userID: %d, err: %v", userID, err)
	}
	if updater.Password != nil && strings.TrimSpace(*updater.Password) == "" {
		return nil, invalidParam("UpdateUser failed, userID: %d, password is blank", userID)
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if updater.UserName != nil {
		fields["user_name"] = *updater.UserName
	}
	if updater.Password != nil {
		hashed, err := auth.HashPassword(*updater.Password)
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "UpdateUser", err, nil, ErrUpdate)
		}
		fields["password"] = hashed
	}
	if updater.FirstName != nil {
		fields["first_name"] = *updater.FirstName
	}
	if updater.LastName != nil {
		fields["last_name"] = *updater.LastName
	}
	if updater.Title != nil {
		fields["title"] = *updater.Title
	}
	if updater.JobTitle != nil {
		fields["job_title"] = *updater.JobTitle
	}
	if updater.ManagerUserID != nil {
		fields["manager_user_id"] = *updater.ManagerUserID
	}
	if updater.Enabled != nil {
		fields["enabled"] = *updater.Enabled
	}
	var po *store.UserPo
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := store.UpdateByID[store.UserPo](ctx, svc.Repo, userID, fields); err != nil {
				return err
			}
		}
		if err := saveContact(ctx, svc, userID, false, updater.ProfessionalContact); err != nil {
			return err
		}
		if err := saveContact(ctx, svc, userID, true, updater.PersonalContact); err != nil {
			return err
		}
		po, err = store.Get[store.UserPo](ctx, svc.Repo, userID)
		return err
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "UpdateUser", err, ErrUserNotFound, ErrUpdate)
	}
	return toUser(po), nil
}

func (a *identityAPI) DeleteUser(ctx context.Context, userID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	if err := deleteUsers(ctx, svc, []int64{userID}, true); err != nil {
		return a.fail(ctx, svc.Log, "DeleteUser", err, ErrUserNotFound, ErrDeletion)
	}
	svc.Log.Info("user deleted", zap.Int64("user_id", userID))
	return nil
}

func (a *identityAPI) DeleteUserByName(ctx context.Context, userName string) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	po, err := store.First[store.UserPo](ctx, svc.Repo, store.Eq("user_name", userName))
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteUserByName", err, ErrUserNotFound, ErrDeletion)
	}
	if err := deleteUsers(ctx, svc, []int64{po.ID}, true); err != nil {
		return a.fail(ctx, svc.Log, "DeleteUserByName", err, ErrUserNotFound, ErrDeletion)
	}
	return nil
}

// DeleteUsers 不存在的用户忽略
func (a *identityAPI) DeleteUsers(ctx context.Context, userIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(userIDs); start += batchSize {
		end := min(start+batchSize, len(userIDs))
		if err := deleteUsers(ctx, svc, userIDs[start:end], false); err != nil {
			return a.fail(ctx, svc.Log, "DeleteUsers", err, ErrUserNotFound, ErrDeletion)
		}
	}
	return nil
}

// deleteUsers 删除用户以及成员关系、参与者成员、联系方式, 分配给用户的任务变成未分配
func deleteUsers(ctx context.Context, svc *tenant.Services, userIDs []int64, mustExist bool) error {
	if len(userIDs) == 0 {
		return nil
	}
	return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if mustExist {
			for _, id := range userIDs {
				if _, err := store.Get[store.UserPo](ctx, svc.Repo, id); err != nil {
					return err
				}
			}
		}
		if _, err := store.Delete[store.MembershipPo](ctx, svc.Repo, store.In("user_id", userIDs)); err != nil {
			return err
		}
		if err := deleteActorMembers(ctx, svc, store.In("user_id", userIDs)); err != nil {
			return err
		}
		if _, err := store.Update[store.FlowNodeInstancePo](ctx, svc.Repo, &store.UpdateParams{
			Where: []store.Cond{
				store.In("assignee_id", userIDs),
				store.In("state", engine.OpenFlowNodeStates()),
			},
			Fields: map[string]any{"assignee_id": 0},
		}); err != nil {
			return err
		}
		if _, err := store.Delete[store.UserContactPo](ctx, svc.Repo, store.In("user_id", userIDs)); err != nil {
			return err
		}
		_, err := store.Delete[store.UserPo](ctx, svc.Repo, store.In("id", userIDs))
		return err
	})
}

func (a *identityAPI) GetNumberOfUsers(ctx context.Context) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.UserPo](ctx, svc.Repo, nil)
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfUsers", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *identityAPI) GetUsersPage(ctx context.Context, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.UserPo](ctx, svc.Repo, page(nil, startIndex, maxResults, userOrder(criterion)))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUsersPage", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toUser), nil
}

func (a *identityAPI) SearchUsers(ctx context.Context, options *SearchOptions) (*SearchResult[*User], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &UserSearchDescriptor, options, toUser)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchUsers", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *identityAPI) GetUsersInRole(ctx context.Context, roleID int64, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.RolePo](ctx, svc.Repo, roleID); err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUsersInRole", err, ErrRoleNotFound, ErrRetrieve)
	}
	users, err := usersOfMemberships(ctx, svc, []store.Cond{store.Eq("role_id", roleID)}, nil, startIndex, maxResults, criterion)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUsersInRole", err, nil, ErrRetrieve)
	}
	return users, nil
}

func (a *identityAPI) GetUsersInGroup(ctx context.Context, groupID int64, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID); err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUsersInGroup", err, ErrGroupNotFound, ErrRetrieve)
	}
	users, err := usersOfMemberships(ctx, svc, []store.Cond{store.Eq("group_id", groupID)}, nil, startIndex, maxResults, criterion)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetUsersInGroup", err, nil, ErrRetrieve)
	}
	return users, nil
}

func (a *identityAPI) GetActiveUsersInGroup(ctx context.Context, groupID int64, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID); err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActiveUsersInGroup", err, ErrGroupNotFound, ErrRetrieve)
	}
	users, err := usersOfMemberships(ctx, svc, []store.Cond{store.Eq("group_id", groupID)},
		[]store.Cond{store.Eq("enabled", true)}, startIndex, maxResults, criterion)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetActiveUsersInGroup", err, nil, ErrRetrieve)
	}
	return users, nil
}

// usersOfMemberships 满足成员关系条件的用户, 去重后分页
func usersOfMemberships(ctx context.Context, svc *tenant.Services, membershipConds []store.Cond, userConds []store.Cond, startIndex, maxResults int64, criterion UserCriterion) ([]*User, error) {
	memberships, err := store.Find[store.MembershipPo](ctx, svc.Repo, store.Where(membershipConds...))
	if err != nil {
		return nil, err
	}
	userIDs := uniqueIDs(idsOf(memberships, func(po *store.MembershipPo) int64 { return po.UserID }))
	conds := append([]store.Cond{store.In("id", userIDs)}, userConds...)
	pos, err := store.Find[store.UserPo](ctx, svc.Repo, page(conds, startIndex, maxResults, userOrder(criterion)))
	if err != nil {
		return nil, err
	}
	return convertAll(pos, toUser), nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	ret := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ret = append(ret, id)
	}
	return ret
}
