package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type platformAPI struct {
	*apiBase
}

func (a *platformAPI) CreatePlatform(ctx context.Context, createdBy string) (*Platform, error) {
	repo := a.accessor.Platform()
	var po *store.PlatformPo
	err := repo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := store.First[store.PlatformPo](ctx, repo)
		if err == nil {
			po = existing
			return nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		po = &store.PlatformPo{
			Version:        a.accessor.PlatformVersion(),
			InitialVersion: a.accessor.PlatformVersion(),
			CreatedBy:      createdBy,
		}
		return store.Create(ctx, repo, po)
	})
	if err != nil {
		return nil, a.fail(ctx, a.log(), "CreatePlatform", err, nil, ErrCreation)
	}
	return toPlatform(po), nil
}

func (a *platformAPI) GetPlatform(ctx context.Context) (*Platform, error) {
	po, err := store.First[store.PlatformPo](ctx, a.accessor.Platform())
	if err != nil {
		return nil, a.fail(ctx, a.log(), "GetPlatform", err, ErrPlatformNotFound, ErrRetrieve)
	}
	return toPlatform(po), nil
}

func (a *platformAPI) IsPlatformCreated(ctx context.Context) (bool, error) {
	count, err := store.Count[store.PlatformPo](ctx, a.accessor.Platform(), nil)
	if err != nil {
		return false, a.fail(ctx, a.log(), "IsPlatformCreated", err, nil, ErrRetrieve)
	}
	return count > 0, nil
}

func (a *platformAPI) CreateTenant(ctx context.Context, creator *TenantCreator) (*Tenant, error) {
	if creator == nil {
		return nil, invalidParam("CreateTenant failed, creator is nil")
	}
	if err := validatorUtil.Struct(creator); err != nil {
		return nil, invalidParam("CreateTenant failed, name: %s, err: %v", creator.Name, err)
	}
	createdBy := "platform"
	if session, _ := SessionFromContext(ctx); session != nil {
		createdBy = session.UserName
	}
	repo := a.accessor.Platform()
	po := &store.TenantPo{
		Name:        creator.Name,
		Description: creator.Description,
		Status:      TenantStatusDeactivated,
		CreatedBy:   createdBy,
	}
	err := repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := store.First[store.PlatformPo](ctx, repo); err != nil {
			return errors.WithMessage(err, "platform is not created")
		}
		count, err := store.Count[store.TenantPo](ctx, repo, nil)
		if err != nil {
			return err
		}
		po.IsDefault = count == 0
		return store.Create(ctx, repo, po)
	})
	if err != nil {
		return nil, a.fail(ctx, a.log(), "CreateTenant", err, ErrPlatformNotFound, ErrCreation)
	}
	a.log().Info("tenant created", zap.Int64("tenant_id", po.ID), zap.String("name", po.Name), zap.Bool("default", po.IsDefault))
	return toTenant(po), nil
}

func (a *platformAPI) GetTenantByID(ctx context.Context, tenantID int64) (*Tenant, error) {
	po, err := store.Get[store.TenantPo](ctx, a.accessor.Platform(), tenantID)
	if err != nil {
		return nil, a.fail(ctx, a.log(), "GetTenantByID", err, ErrTenantNotFound, ErrRetrieve)
	}
	return toTenant(po), nil
}

func (a *platformAPI) GetTenantByName(ctx context.Context, name string) (*Tenant, error) {
	po, err := store.First[store.TenantPo](ctx, a.accessor.Platform(), store.Eq("name", name))
	if err != nil {
		return nil, a.fail(ctx, a.log(), "GetTenantByName", err, ErrTenantNotFound, ErrRetrieve)
	}
	return toTenant(po), nil
}

func (a *platformAPI) GetDefaultTenant(ctx context.Context) (*Tenant, error) {
	po, err := store.First[store.TenantPo](ctx, a.accessor.Platform(), store.Eq("is_default", true))
	if err != nil {
		return nil, a.fail(ctx, a.log(), "GetDefaultTenant", err, ErrTenantNotFound, ErrRetrieve)
	}
	return toTenant(po), nil
}

func (a *platformAPI) UpdateTenant(ctx context.Context, tenantID int64, updater *TenantUpdater) (*Tenant, error) {
	if updater == nil {
		return nil, invalidParam("UpdateTenant failed, updater is nil")
	}
	if err := validatorUtil.Struct(updater); err != nil {
		return nil, invalidParam("UpdateTenant failed, tenantID: %d, err: %v", tenantID, err)
	}
	fields := map[string]any{}
	if updater.Name != nil {
		fields["name"] = *updater.Name
	}
	if updater.Description != nil {
		fields["description"] = *updater.Description
	}
	repo := a.accessor.Platform()
	if len(fields) > 0 {
		if err := store.UpdateByID[store.TenantPo](ctx, repo, tenantID, fields); err != nil {
			return nil, a.fail(ctx, a.log(), "UpdateTenant", err, ErrTenantNotFound, ErrUpdate)
		}
	}
	return a.GetTenantByID(ctx, tenantID)
}

// changeTenantStatus from 为空表示任意状态, 已经是目标状态时直接返回, 和删除租户互斥
func (a *platformAPI) changeTenantStatus(ctx context.Context, op string, tenantID int64, to TenantStatus, from ...TenantStatus) error {
	repo := a.accessor.Platform()
	err := a.accessor.SynchronizedTenant(ctx, tenantID, func(ctx context.Context) error {
		return repo.Transaction(ctx, func(ctx context.Context) error {
			po, err := store.Get[store.TenantPo](ctx, repo, tenantID)
			if err != nil {
				return err
			}
			if po.Status == to {
				return nil
			}
			allowed := len(from) == 0
			for _, status := range from {
				if po.Status == status {
					allowed = true
				}
			}
			if !allowed {
				return errors.Wrapf(ErrTenantStatus, "%s: tenant %s is %s", op, po.Name, po.Status)
			}
			return store.UpdateByID[store.TenantPo](ctx, repo, tenantID, map[string]any{"status": to})
		})
	})
	if err != nil {
		return a.fail(ctx, a.log(), op, err, ErrTenantNotFound, ErrUpdate)
	}
	a.log().Info("tenant status changed", zap.Int64("tenant_id", tenantID), zap.String("status", to),
		zap.String("status_text", GetTenantStatusText(to)))
	return nil
}

func (a *platformAPI) ActivateTenant(ctx context.Context, tenantID int64) error {
	return a.changeTenantStatus(ctx, "ActivateTenant", tenantID, TenantStatusActivated, TenantStatusDeactivated)
}

func (a *platformAPI) DeactivateTenant(ctx context.Context, tenantID int64) error {
	return a.changeTenantStatus(ctx, "DeactivateTenant", tenantID, TenantStatusDeactivated)
}

func (a *platformAPI) PauseTenant(ctx context.Context, tenantID int64) error {
	return a.changeTenantStatus(ctx, "PauseTenant", tenantID, TenantStatusPaused, TenantStatusActivated)
}

func (a *platformAPI) ResumeTenant(ctx context.Context, tenantID int64) error {
	return a.changeTenantStatus(ctx, "ResumeTenant", tenantID, TenantStatusActivated, TenantStatusPaused)
}

func (a *platformAPI) DeleteTenant(ctx context.Context, tenantID int64) error {
	repo := a.accessor.Platform()
	var name string
	// 状态在锁内检查, 和激活租户互斥
	err := a.accessor.SynchronizedTenant(ctx, tenantID, func(ctx context.Context) error {
		po, err := store.Get[store.TenantPo](ctx, repo, tenantID)
		if err != nil {
			return err
		}
		if po.Status != TenantStatusDeactivated {
			return errors.Wrapf(ErrTenantStatus, "DeleteTenant: tenant %s is %s", po.Name, po.Status)
		}
		if po.IsDefault {
			return errors.Wrapf(ErrDeletion, "default tenant %s can not be deleted", po.Name)
		}
		name = po.Name
		tenantRepo := a.accessor.Tenant(tenantID).Repo
		for _, model := range store.TenantModels() {
			if err := tenantRepo.DeleteTenantData(ctx, model, batchSize); err != nil {
				return err
			}
		}
		if err := a.accessor.Documents().DeleteTenant(ctx, tenantID); err != nil {
			return err
		}
		_, err = store.Delete[store.TenantPo](ctx, repo, store.Eq("id", tenantID))
		return err
	})
	if err != nil {
		return a.fail(ctx, a.log(), "DeleteTenant", err, ErrTenantNotFound, ErrDeletion)
	}
	a.accessor.Forget(tenantID)
	a.log().Info("tenant deleted", zap.Int64("tenant_id", tenantID), zap.String("name", name))
	return nil
}

func (a *platformAPI) GetTenants(ctx context.Context, startIndex, maxResults int64, criterion TenantCriterion) ([]*Tenant, error) {
	order := orderOf(criterion, tenantOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.TenantPo](ctx, a.accessor.Platform(), page(nil, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, a.log(), "GetTenants", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toTenant), nil
}

func (a *platformAPI) SearchTenants(ctx context.Context, options *SearchOptions) (*SearchResult[*Tenant], error) {
	result, err := search(ctx, a.accessor.Platform(), &TenantSearchDescriptor, options, toTenant)
	if err != nil {
		return nil, a.fail(ctx, a.log(), "SearchTenants", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *platformAPI) GetNumberOfTenants(ctx context.Context) (int64, error) {
	count, err := store.Count[store.TenantPo](ctx, a.accessor.Platform(), nil)
	if err != nil {
		return 0, a.fail(ctx, a.log(), "GetNumberOfTenants", err, nil, ErrRetrieve)
	}
	return count, nil
}
