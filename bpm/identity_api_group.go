package bpm

import (
	"context"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const groupPathSeparator = "/"

// normalizeParentPath 去掉结尾的 "/", 根组的父路径为空
func normalizeParentPath(parentPath string) string {
	parentPath = strings.TrimSpace(parentPath)
	parentPath = strings.TrimRight(parentPath, groupPathSeparator)
	if parentPath != "" && !strings.HasPrefix(parentPath, groupPathSeparator) {
		parentPath = groupPathSeparator + parentPath
	}
	return parentPath
}

func groupPath(parentPath, name string) string {
	return parentPath + groupPathSeparator + name
}

func (a *identityAPI) CreateGroup(ctx context.Context, name string, parentPath string) (*Group, error) {
	return a.CreateGroupFromCreator(ctx, &GroupCreator{Name: name, ParentPath: parentPath})
}

func (a *identityAPI) CreateGroupFromCreator(ctx context.Context, creator *GroupCreator) (*Group, error) {
	if creator == nil {
		return nil, invalidParam("CreateGroup failed, creator is nil")
	}
	if err := validatorUtil.Struct(creator); err != nil {
		return nil, invalidParam("CreateGroup failed, name: %s, err: %v", creator.Name, err)
	}
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	parentPath := normalizeParentPath(creator.ParentPath)
	po := &store.GroupPo{
		Name:        creator.Name,
		ParentPath:  parentPath,
		Path:        groupPath(parentPath, creator.Name),
		DisplayName: creator.DisplayName,
		Description: creator.Description,
		CreatedBy:   session.UserID,
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if parentPath != "" {
			if _, err := store.First[store.GroupPo](ctx, svc.Repo, store.Eq("path", parentPath)); err != nil {
				return errors.WithMessagef(err, "parent group %s", parentPath)
			}
		}
		return store.Create(ctx, svc.Repo, po)
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "CreateGroup", err, ErrGroupNotFound, ErrCreation)
	}
	return toGroup(po), nil
}

func (a *identityAPI) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetGroup", err, ErrGroupNotFound, ErrRetrieve)
	}
	return toGroup(po), nil
}

func (a *identityAPI) GetGroupByPath(ctx context.Context, path string) (*Group, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.First[store.GroupPo](ctx, svc.Repo, store.Eq("path", normalizeParentPath(path)))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetGroupByPath", err, ErrGroupNotFound, ErrRetrieve)
	}
	return toGroup(po), nil
}

func (a *identityAPI) UpdateGroup(ctx context.Context, groupID int64, updater *GroupUpdater) (*Group, error) {
	if updater == nil {
		return nil, invalidParam("UpdateGroup failed, updater is nil")
	}
	if err := validatorUtil.Struct(updater); err != nil {
		return nil, invalidParam("UpdateGroup failed, groupID: %d, err: %v", groupID, err)
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	var po *store.GroupPo
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		old, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID)
		if err != nil {
			return err
		}
		fields := map[string]any{}
		if updater.DisplayName != nil {
			fields["display_name"] = *updater.DisplayName
		}
		if updater.Description != nil {
			fields["description"] = *updater.Description
		}
		name, parentPath := old.Name, old.ParentPath
		if updater.Name != nil {
			name = *updater.Name
		}
		if updater.ParentPath != nil {
			parentPath = normalizeParentPath(*updater.ParentPath)
		}
		newPath := groupPath(parentPath, name)
		if newPath != old.Path {
			if parentPath == old.Path || strings.HasPrefix(parentPath, old.Path+groupPathSeparator) {
				return invalidParam("group %s can not move under itself", old.Path)
			}
			if parentPath != "" {
				if _, err := store.First[store.GroupPo](ctx, svc.Repo, store.Eq("path", parentPath)); err != nil {
					return errors.WithMessagef(err, "parent group %s", parentPath)
				}
			}
			fields["name"] = name
			fields["parent_path"] = parentPath
			fields["path"] = newPath
		}
		if len(fields) > 0 {
			if err := store.UpdateByID[store.GroupPo](ctx, svc.Repo, groupID, fields); err != nil {
				return err
			}
		}
		if newPath != old.Path {
			if err := movePath(ctx, svc, old.Path, newPath); err != nil {
				return err
			}
		}
		po, err = store.Get[store.GroupPo](ctx, svc.Repo, groupID)
		return err
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "UpdateGroup", err, ErrGroupNotFound, ErrUpdate)
	}
	return toGroup(po), nil
}

// movePath 子孙组的路径从 oldPath 开头改成 newPath 开头
// 修改后的记录不再匹配 oldPath, 每批都从头开始查询
func movePath(ctx context.Context, svc *tenant.Services, oldPath, newPath string) error {
	descendants := []store.Cond{store.Prefix("path", oldPath+groupPathSeparator)}
	return eachBatch(ctx, svc.Repo, descendants, true, func(ctx context.Context, batch []*store.GroupPo) error {
		for _, g := range batch {
			if err := store.UpdateByID[store.GroupPo](ctx, svc.Repo, g.ID, map[string]any{
				"parent_path": newPath + strings.TrimPrefix(g.ParentPath, oldPath),
				"path":        newPath + strings.TrimPrefix(g.Path, oldPath),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *identityAPI) DeleteGroup(ctx context.Context, groupID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	po, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID)
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteGroup", err, ErrGroupNotFound, ErrDeletion)
	}
	if err := deleteGroupTree(ctx, svc, po); err != nil {
		return a.fail(ctx, svc.Log, "DeleteGroup", err, ErrGroupNotFound, ErrDeletion)
	}
	svc.Log.Info("group deleted", zap.Int64("group_id", groupID), zap.String("path", po.Path))
	return nil
}

func (a *identityAPI) DeleteGroups(ctx context.Context, groupIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	for _, id := range groupIDs {
		po, err := store.Get[store.GroupPo](ctx, svc.Repo, id)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				// 可能已经作为子组被删除
				continue
			}
			return a.fail(ctx, svc.Log, "DeleteGroups", err, ErrGroupNotFound, ErrDeletion)
		}
		if err := deleteGroupTree(ctx, svc, po); err != nil {
			return a.fail(ctx, svc.Log, "DeleteGroups", err, ErrGroupNotFound, ErrDeletion)
		}
	}
	return nil
}

// deleteGroupTree 分批删除子孙组和它们的成员关系, 最后删除组本身
func deleteGroupTree(ctx context.Context, svc *tenant.Services, group *store.GroupPo) error {
	return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		descendants := []store.Cond{store.Prefix("path", group.Path+groupPathSeparator)}
		err := eachBatch(ctx, svc.Repo, descendants, true, func(ctx context.Context, batch []*store.GroupPo) error {
			return deleteGroups(ctx, svc, idsOf(batch, func(po *store.GroupPo) int64 { return po.ID }))
		})
		if err != nil {
			return err
		}
		return deleteGroups(ctx, svc, []int64{group.ID})
	})
}

func deleteGroups(ctx context.Context, svc *tenant.Services, groupIDs []int64) error {
	if _, err := store.Delete[store.MembershipPo](ctx, svc.Repo, store.In("group_id", groupIDs)); err != nil {
		return err
	}
	if err := deleteActorMembers(ctx, svc, store.In("group_id", groupIDs)); err != nil {
		return err
	}
	_, err := store.Delete[store.GroupPo](ctx, svc.Repo, store.In("id", groupIDs))
	return err
}

func (a *identityAPI) GetChildrenGroups(ctx context.Context, groupID int64, startIndex, maxResults int64, criterion GroupCriterion) ([]*Group, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	parent, err := store.Get[store.GroupPo](ctx, svc.Repo, groupID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetChildrenGroups", err, ErrGroupNotFound, ErrRetrieve)
	}
	order := orderOf(criterion, groupOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.GroupPo](ctx, svc.Repo, page([]store.Cond{store.Eq("parent_path", parent.Path)}, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetChildrenGroups", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toGroup), nil
}

func (a *identityAPI) GetNumberOfGroups(ctx context.Context) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.GroupPo](ctx, svc.Repo, nil)
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfGroups", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *identityAPI) GetGroups(ctx context.Context, startIndex, maxResults int64, criterion GroupCriterion) ([]*Group, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, groupOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.GroupPo](ctx, svc.Repo, page(nil, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetGroups", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toGroup), nil
}

func (a *identityAPI) SearchGroups(ctx context.Context, options *SearchOptions) (*SearchResult[*Group], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &GroupSearchDescriptor, options, toGroup)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchGroups", err, nil, ErrSearch)
	}
	return result, nil
}
