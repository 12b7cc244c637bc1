package bpm

import (
	"context"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
)

func (a *processAPI) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidParam("CreateCategory failed, name is empty")
	}
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po := &store.CategoryPo{Name: name, Description: description, CreatedBy: session.UserID}
	if err := store.Create(ctx, svc.Repo, po); err != nil {
		return nil, a.fail(ctx, svc.Log, "CreateCategory", err, nil, ErrCreation)
	}
	return toCategory(po), nil
}

func (a *processAPI) GetCategory(ctx context.Context, categoryID int64) (*Category, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.CategoryPo](ctx, svc.Repo, categoryID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetCategory", err, ErrCategoryNotFound, ErrRetrieve)
	}
	return toCategory(po), nil
}

func (a *processAPI) GetCategories(ctx context.Context, startIndex, maxResults int64, criterion CategoryCriterion) ([]*Category, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, categoryOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.CategoryPo](ctx, svc.Repo, page(nil, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetCategories", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toCategory), nil
}

func (a *processAPI) GetNumberOfCategories(ctx context.Context) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.CategoryPo](ctx, svc.Repo, nil)
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfCategories", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *processAPI) UpdateCategory(ctx context.Context, categoryID int64, updater *CategoryUpdater) error {
	if updater == nil {
		return invalidParam("UpdateCategory failed, updater is nil")
	}
	if err := validatorUtil.Struct(updater); err != nil {
		return invalidParam("UpdateCategory failed, err: %v", err)
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	fields := make(map[string]any)
	if updater.Name != nil {
		fields["name"] = *updater.Name
	}
	if updater.Description != nil {
		fields["description"] = *updater.Description
	}
	if len(fields) == 0 {
		if _, err := store.Get[store.CategoryPo](ctx, svc.Repo, categoryID); err != nil {
			return a.fail(ctx, svc.Log, "UpdateCategory", err, ErrCategoryNotFound, ErrUpdate)
		}
		return nil
	}
	if err := store.UpdateByID[store.CategoryPo](ctx, svc.Repo, categoryID, fields); err != nil {
		return a.fail(ctx, svc.Log, "UpdateCategory", err, ErrCategoryNotFound, ErrUpdate)
	}
	return nil
}

func (a *processAPI) DeleteCategory(ctx context.Context, categoryID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := store.Delete[store.ProcessCategoryPo](ctx, svc.Repo, store.Eq("category_id", categoryID)); err != nil {
			return err
		}
		deleted, err := store.Delete[store.CategoryPo](ctx, svc.Repo, store.Eq("id", categoryID))
		if err != nil {
			return err
		}
		if deleted == 0 {
			return errors.Wrapf(ErrCategoryNotFound, "category %d", categoryID)
		}
		return nil
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteCategory", err, ErrCategoryNotFound, ErrDeletion)
	}
	return nil
}

// linkCategories 已经存在的关联跳过
func linkCategories(ctx context.Context, svc *tenant.Services, processDefinitionIDs, categoryIDs []int64) error {
	for _, defID := range uniqueIDs(processDefinitionIDs) {
		if _, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, defID); err != nil {
			return translateError(err, ErrProcessDefinitionNotFound, ErrCreation)
		}
		for _, catID := range uniqueIDs(categoryIDs) {
			if _, err := store.Get[store.CategoryPo](ctx, svc.Repo, catID); err != nil {
				return translateError(err, ErrCategoryNotFound, ErrCreation)
			}
			count, err := store.Count[store.ProcessCategoryPo](ctx, svc.Repo, store.Where(
				store.Eq("category_id", catID), store.Eq("process_definition_id", defID)))
			if err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := store.Create(ctx, svc.Repo, &store.ProcessCategoryPo{CategoryID: catID, ProcessDefinitionID: defID}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *processAPI) AddCategoriesToProcess(ctx context.Context, processDefinitionID int64, categoryIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		return linkCategories(ctx, svc, []int64{processDefinitionID}, categoryIDs)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "AddCategoriesToProcess", err, nil, ErrCreation)
	}
	return nil
}

func (a *processAPI) AddProcessDefinitionsToCategory(ctx context.Context, categoryID int64, processDefinitionIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		return linkCategories(ctx, svc, processDefinitionIDs, []int64{categoryID})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "AddProcessDefinitionsToCategory", err, nil, ErrCreation)
	}
	return nil
}

func (a *processAPI) RemoveCategoriesFromProcess(ctx context.Context, processDefinitionID int64, categoryIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	_, err = store.Delete[store.ProcessCategoryPo](ctx, svc.Repo,
		store.Eq("process_definition_id", processDefinitionID), store.In("category_id", categoryIDs))
	if err != nil {
		return a.fail(ctx, svc.Log, "RemoveCategoriesFromProcess", err, nil, ErrDeletion)
	}
	return nil
}

func (a *processAPI) GetCategoriesOfProcessDefinition(ctx context.Context, processDefinitionID int64, startIndex, maxResults int64, criterion CategoryCriterion) ([]*Category, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	links, err := store.Find[store.ProcessCategoryPo](ctx, svc.Repo, store.Where(store.Eq("process_definition_id", processDefinitionID)))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetCategoriesOfProcessDefinition", err, nil, ErrRetrieve)
	}
	order := orderOf(criterion, categoryOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.CategoryPo](ctx, svc.Repo, page(
		[]store.Cond{store.In("id", idsOf(links, func(po *store.ProcessCategoryPo) int64 { return po.CategoryID }))},
		startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetCategoriesOfProcessDefinition", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toCategory), nil
}

func (a *processAPI) GetProcessDeploymentInfosOfCategory(ctx context.Context, categoryID int64, startIndex, maxResults int64, criterion ProcessDeploymentInfoCriterion) ([]*ProcessDeploymentInfo, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	links, err := store.Find[store.ProcessCategoryPo](ctx, svc.Repo, store.Where(store.Eq("category_id", categoryID)))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDeploymentInfosOfCategory", err, nil, ErrRetrieve)
	}
	order := orderOf(criterion, processDeploymentInfoOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.ProcessDefinitionPo](ctx, svc.Repo, page(
		[]store.Cond{store.In("id", idsOf(links, func(po *store.ProcessCategoryPo) int64 { return po.ProcessDefinitionID }))},
		startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDeploymentInfosOfCategory", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toProcessDeploymentInfo), nil
}

func (a *processAPI) GetNumberOfProcessDefinitionsOfCategory(ctx context.Context, categoryID int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.ProcessCategoryPo](ctx, svc.Repo, store.Where(store.Eq("category_id", categoryID)))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfProcessDefinitionsOfCategory", err, nil, ErrRetrieve)
	}
	return count, nil
}
