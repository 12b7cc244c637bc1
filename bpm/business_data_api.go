package bpm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/jsondata"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
)

// persistenceIDField 返回的 json 中业务对象ID 的字段名, 保存时忽略
const persistenceIDField = "persistenceId"

type businessDataAPI struct {
	*apiBase
}

// parsePayload 必须是 json 对象, 去掉 persistenceId 后重新序列化
func parsePayload(payload []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, invalidParam("business data payload is empty")
	}
	obj, err := jsondata.Parse(payload)
	if err != nil {
		return nil, invalidParam("business data payload must be a json object: %v", err)
	}
	obj.Delete(persistenceIDField)
	b, err := obj.Bytes()
	if err != nil {
		return nil, invalidParam("%v", err)
	}
	return b, nil
}

func getBusinessData(ctx context.Context, svc *tenant.Services, className string, id int64) (*store.BusinessDataPo, error) {
	po, err := store.First[store.BusinessDataPo](ctx, svc.Repo, store.Eq("id", id), store.Eq("class_name", className))
	if err != nil {
		return nil, translateError(err, ErrBusinessDataNotFound, ErrRetrieve)
	}
	return po, nil
}

func withPersistenceID(po *store.BusinessDataPo) (*jsondata.Object, error) {
	obj, err := jsondata.Parse(po.Payload)
	if err != nil {
		return nil, err
	}
	if err := obj.Set([]string{persistenceIDField}, po.ID); err != nil {
		return nil, err
	}
	return obj, nil
}

func (a *businessDataAPI) SaveBusinessData(ctx context.Context, className string, payload []byte) (int64, error) {
	if strings.TrimSpace(className) == "" {
		return 0, invalidParam("SaveBusinessData failed, className is empty")
	}
	b, err := parsePayload(payload)
	if err != nil {
		return 0, err
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	po := &store.BusinessDataPo{ClassName: className, Payload: b}
	if err := store.Create(ctx, svc.Repo, po); err != nil {
		return 0, a.fail(ctx, svc.Log, "SaveBusinessData", err, nil, ErrCreation)
	}
	return po.ID, nil
}

func (a *businessDataAPI) UpdateBusinessData(ctx context.Context, className string, id int64, payload []byte) error {
	b, err := parsePayload(payload)
	if err != nil {
		return err
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	affected, err := store.Update[store.BusinessDataPo](ctx, svc.Repo, &store.UpdateParams{
		Where:  []store.Cond{store.Eq("id", id), store.Eq("class_name", className)},
		Fields: map[string]any{"payload": b},
	})
	if err == nil && affected == 0 {
		err = errors.Wrapf(ErrBusinessDataNotFound, "%s %d", className, id)
	}
	if err != nil {
		return a.fail(ctx, svc.Log, "UpdateBusinessData", err, ErrBusinessDataNotFound, ErrUpdate)
	}
	return nil
}

func (a *businessDataAPI) DeleteBusinessData(ctx context.Context, className string, id int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	deleted, err := store.Delete[store.BusinessDataPo](ctx, svc.Repo, store.Eq("id", id), store.Eq("class_name", className))
	if err == nil && deleted == 0 {
		err = errors.Wrapf(ErrBusinessDataNotFound, "%s %d", className, id)
	}
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteBusinessData", err, ErrBusinessDataNotFound, ErrDeletion)
	}
	return nil
}

func (a *businessDataAPI) GetJSONBusinessData(ctx context.Context, className string, id int64, childName string) ([]byte, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := getBusinessData(ctx, svc, className, id)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetJSONBusinessData", err, ErrBusinessDataNotFound, ErrRetrieve)
	}
	obj, err := withPersistenceID(po)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetJSONBusinessData", err, ErrBusinessDataNotFound, ErrRetrieve)
	}
	b, err := obj.Lookup(childName)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetJSONBusinessData", err, ErrBusinessDataNotFound, ErrRetrieve)
	}
	return b, nil
}

func (a *businessDataAPI) GetJSONBusinessDataList(ctx context.Context, className string, ids []int64) ([]byte, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.BusinessDataPo, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		pos, err := store.Find[store.BusinessDataPo](ctx, svc.Repo, store.Where(
			store.In("id", ids[start:end]), store.Eq("class_name", className)))
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetJSONBusinessDataList", err, nil, ErrRetrieve)
		}
		for _, po := range pos {
			byID[po.ID] = po
		}
	}
	list := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		po, ok := byID[id]
		if !ok {
			continue
		}
		obj, err := withPersistenceID(po)
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetJSONBusinessDataList", err, nil, ErrRetrieve)
		}
		list = append(list, obj.Map())
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetJSONBusinessDataList", err, nil, ErrRetrieve)
	}
	return b, nil
}

func (a *businessDataAPI) AttachBusinessDataReference(ctx context.Context, processInstanceID int64, name, className string, ids []int64) (*BusinessDataReference, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(className) == "" {
		return nil, invalidParam("AttachBusinessDataReference failed, name and className are required")
	}
	if len(ids) == 0 {
		return nil, invalidParam("AttachBusinessDataReference failed, ids is empty")
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	dataIDs, err := json.Marshal(ids)
	if err != nil {
		return nil, invalidParam("%v", err)
	}
	po := &store.BusinessDataRefPo{
		ProcessInstanceID: processInstanceID,
		Name:              name,
		ClassName:         className,
		DataIDs:           dataIDs,
		Multiple:          len(ids) > 1,
	}
	err = svc.Synchronized(ctx, processInstanceID, func(ctx context.Context) error {
		return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
			if _, err := store.Get[store.ProcessInstancePo](ctx, svc.Repo, processInstanceID); err != nil {
				return translateError(err, ErrProcessInstanceNotFound, ErrCreation)
			}
			unique := uniqueIDs(ids)
			count, err := store.Count[store.BusinessDataPo](ctx, svc.Repo, store.Where(
				store.In("id", unique), store.Eq("class_name", className)))
			if err != nil {
				return err
			}
			if count != int64(len(unique)) {
				return errors.Wrapf(ErrBusinessDataNotFound, "some of %v are not %s", ids, className)
			}
			if _, err := store.Delete[store.BusinessDataRefPo](ctx, svc.Repo,
				store.Eq("process_instance_id", processInstanceID), store.Eq("name", name)); err != nil {
				return err
			}
			return store.Create(ctx, svc.Repo, po)
		})
	})
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "AttachBusinessDataReference", err, nil, ErrCreation)
	}
	return toBusinessDataReference(po)
}

func (a *businessDataAPI) GetProcessBusinessDataReference(ctx context.Context, name string, processInstanceID int64) (*BusinessDataReference, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.First[store.BusinessDataRefPo](ctx, svc.Repo,
		store.Eq("process_instance_id", processInstanceID), store.Eq("name", name))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessBusinessDataReference", err, ErrDataNotFound, ErrRetrieve)
	}
	ref, err := toBusinessDataReference(po)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessBusinessDataReference", err, nil, ErrRetrieve)
	}
	return ref, nil
}

func (a *businessDataAPI) GetProcessBusinessDataReferences(ctx context.Context, processInstanceID int64, startIndex, maxResults int64) ([]*BusinessDataReference, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := store.Find[store.BusinessDataRefPo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_instance_id", processInstanceID)},
		startIndex, maxResults, []store.OrderBy{{Field: "name"}, {Field: "id"}}))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessBusinessDataReferences", err, nil, ErrRetrieve)
	}
	refs := make([]*BusinessDataReference, 0, len(pos))
	for _, po := range pos {
		ref, err := toBusinessDataReference(po)
		if err != nil {
			return nil, a.fail(ctx, svc.Log, "GetProcessBusinessDataReferences", err, nil, ErrRetrieve)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
