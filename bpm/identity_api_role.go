package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"go.uber.org/zap"
)

func (a *identityAPI) CreateRole(ctx context.Context, creator *RoleCreator) (*Role, error) {
	if creator == nil {
		return nil, invalidParam("CreateRole failed, creator is nil")
	}
	if err := validatorUtil.Struct(creator); err != nil {
		return nil, invalidParam("CreateRole failed, name: %s, err: %v", creator.Name, err)
	}
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po := &store.RolePo{
		Name:        creator.Name,
		DisplayName: creator.DisplayName,
		Description: creator.Description,
		CreatedBy:   session.UserID,
	}
	if err := store.Create(ctx, svc.Repo, po); err != nil {
		return nil, a.fail(ctx, svc.Log, "CreateRole", err, nil, ErrCreation)
	}
	return toRole(po), nil
}

func (a *identityAPI) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.RolePo](ctx, svc.Repo, roleID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetRole", err, ErrRoleNotFound, ErrRetrieve)
	}
	return toRole(po), nil
}

func (a *identityAPI) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.First[store.RolePo](ctx, svc.Repo, store.Eq("name", name))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetRoleByName", err, ErrRoleNotFound, ErrRetrieve)
	}
	return toRole(po), nil
}

func (a *identityAPI) UpdateRole(ctx context.Context, roleID int64, updater *RoleUpdater) (*Role, error) {
	if updater == nil {
		return nil, invalidParam("UpdateRole failed, updater is nil")
	}
	if err := validatorUtil.Struct(updater); err != nil {
		return nil, invalidParam("UpdateRole failed, roleID: %d, err: %v", roleID, err)
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if updater.Name != nil {
		fields["name"] = *updater.Name
	}
	if updater.DisplayName != nil {
		fields["display_name"] = *updater.DisplayName
	}
	if updater.Description != nil {
		fields["description"] = *updater.Description
	}
	if len(fields) > 0 {
		if err := store.UpdateByID[store.RolePo](ctx, svc.Repo, roleID, fields); err != nil {
			return nil, a.fail(ctx, svc.Log, "UpdateRole", err, ErrRoleNotFound, ErrUpdate)
		}
	}
	po, err := store.Get[store.RolePo](ctx, svc.Repo, roleID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "UpdateRole", err, ErrRoleNotFound, ErrUpdate)
	}
	return toRole(po), nil
}

func (a *identityAPI) DeleteRole(ctx context.Context, roleID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	if err := deleteRoles(ctx, svc, []int64{roleID}, true); err != nil {
		return a.fail(ctx, svc.Log, "DeleteRole", err, ErrRoleNotFound, ErrDeletion)
	}
	svc.Log.Info("role deleted", zap.Int64("role_id", roleID))
	return nil
}

func (a *identityAPI) DeleteRoles(ctx context.Context, roleIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(roleIDs); start += batchSize {
		end := min(start+batchSize, len(roleIDs))
		if err := deleteRoles(ctx, svc, roleIDs[start:end], false); err != nil {
			return a.fail(ctx, svc.Log, "DeleteRoles", err, ErrRoleNotFound, ErrDeletion)
		}
	}
	return nil
}

func deleteRoles(ctx context.Context, svc *tenant.Services, roleIDs []int64, mustExist bool) error {
	if len(roleIDs) == 0 {
		return nil
	}
	return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if mustExist {
			for _, id := range roleIDs {
				if _, err := store.Get[store.RolePo](ctx, svc.Repo, id); err != nil {
					return err
				}
			}
		}
		if _, err := store.Delete[store.MembershipPo](ctx, svc.Repo, store.In("role_id", roleIDs)); err != nil {
			return err
		}
		if err := deleteActorMembers(ctx, svc, store.In("role_id", roleIDs)); err != nil {
			return err
		}
		_, err := store.Delete[store.RolePo](ctx, svc.Repo, store.In("id", roleIDs))
		return err
	})
}

func (a *identityAPI) GetNumberOfRoles(ctx context.Context) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.RolePo](ctx, svc.Repo, nil)
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfRoles", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *identityAPI) GetRoles(ctx context.Context, startIndex, maxResults int64, criterion RoleCriterion) ([]*Role, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, roleOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.RolePo](ctx, svc.Repo, page(nil, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetRoles", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toRole), nil
}

func (a *identityAPI) SearchRoles(ctx context.Context, options *SearchOptions) (*SearchResult[*Role], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &RoleSearchDescriptor, options, toRole)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchRoles", err, nil, ErrSearch)
	}
	return result, nil
}
