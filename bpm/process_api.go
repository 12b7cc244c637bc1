package bpm

import (
	"context"
	"fmt"

	"github.com/blingmoon/simple-bpm/connector"
	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type processAPI struct {
	*apiBase
}

func (a *processAPI) Deploy(ctx context.Context, d *design.DesignProcessDefinition) (*ProcessDefinition, error) {
	if d == nil {
		return nil, invalidParam("Deploy failed, design is nil")
	}
	if err := d.Validate(); err != nil {
		return nil, invalidParam("Deploy failed, process: %s, err: %v", d.Name, err)
	}
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if err := svc.Engine.ValidateExpressions(d); err != nil {
		return nil, invalidParam("Deploy failed, process: %s, err: %v", d.Name, err)
	}
	b, err := d.Marshal()
	if err != nil {
		return nil, invalidParam("Deploy failed, process: %s, err: %v", d.Name, err)
	}
	po := &store.ProcessDefinitionPo{
		Name:               d.Name,
		Version:            d.Version,
		DisplayName:        d.DisplayName,
		Description:        d.Description,
		ActivationState:    ActivationStateDisabled,
		ConfigurationState: ConfigurationStateUnresolved,
		Design:             b,
		DeployedBy:         session.UserID,
	}
	err = svc.Repo.Transaction(ctx, func(ctx context.Context) error {
		if err := store.Create(ctx, svc.Repo, po); err != nil {
			return err
		}
		for _, actor := range d.Actors {
			if err := store.Create(ctx, svc.Repo, &store.ActorPo{
				ProcessDefinitionID: po.ID,
				Name:                actor.Name,
				Description:         actor.Description,
				Initiator:           actor.Name == d.ActorInitiator,
			}); err != nil {
				return err
			}
		}
		return resolveProcessDefinition(ctx, svc, po.ID)
	})
	if err != nil {
		if po.ID != 0 {
			// 解析时可能已经缓存了回滚掉的定义
			svc.Engine.Forget(po.ID)
		}
		return nil, a.fail(ctx, svc.Log, "Deploy", err, nil, ErrCreation)
	}
	svc.Log.Info("process deployed", zap.Int64("process_definition_id", po.ID),
		zap.String("name", po.Name), zap.String("version", po.Version))
	return toProcessDefinition(po), nil
}

// resolutionProblems 参与者没有成员, 连接器没有注册
func resolutionProblems(ctx context.Context, svc *tenant.Services, processDefinitionID int64) ([]*Problem, error) {
	def, err := svc.Engine.Definition(ctx, processDefinitionID)
	if err != nil {
		return nil, err
	}
	actors, err := store.Find[store.ActorPo](ctx, svc.Repo, store.Where(store.Eq("process_definition_id", processDefinitionID)))
	if err != nil {
		return nil, err
	}
	problems := make([]*Problem, 0)
	for _, actor := range actors {
		count, err := store.Count[store.ActorMemberPo](ctx, svc.Repo, store.Where(store.Eq("actor_id", actor.ID)))
		if err != nil {
			return nil, err
		}
		if count == 0 {
			problems = append(problems, &Problem{Resource: "actor", Name: actor.Name, Message: "actor has no member"})
		}
	}
	for _, node := range def.Design.FlowNodes {
		for _, c := range node.Connectors {
			if !connector.IsRegistered(c.ConnectorID) {
				problems = append(problems, &Problem{
					Resource: "connector",
					Name:     c.ConnectorID,
					Message:  fmt.Sprintf("connector implementation %s is not registered", c.ConnectorID),
				})
			}
		}
	}
	return problems, nil
}

// resolveProcessDefinition 重新计算未启用流程的解析状态
func resolveProcessDefinition(ctx context.Context, svc *tenant.Services, processDefinitionID int64) error {
	po, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
	if err != nil {
		return err
	}
	if po.ActivationState != ActivationStateDisabled {
		return nil
	}
	problems, err := resolutionProblems(ctx, svc, processDefinitionID)
	if err != nil {
		return err
	}
	state := ConfigurationStateResolved
	if len(problems) > 0 {
		state = ConfigurationStateUnresolved
	}
	if state == po.ConfigurationState {
		return nil
	}
	return store.UpdateByID[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID, map[string]any{
		"configuration_state": state,
	})
}

func (a *processAPI) GetProcessDefinition(ctx context.Context, processDefinitionID int64) (*ProcessDefinition, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDefinition", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	return toProcessDefinition(po), nil
}

func (a *processAPI) GetDesignProcessDefinition(ctx context.Context, processDefinitionID int64) (*design.DesignProcessDefinition, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	def, err := svc.Engine.Definition(ctx, processDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetDesignProcessDefinition", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	return def.Design, nil
}

func (a *processAPI) GetProcessDeploymentInfo(ctx context.Context, processDefinitionID int64) (*ProcessDeploymentInfo, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDeploymentInfo", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	return toProcessDeploymentInfo(po), nil
}

func (a *processAPI) GetProcessDefinitionID(ctx context.Context, name, version string) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	po, err := store.First[store.ProcessDefinitionPo](ctx, svc.Repo, store.Eq("name", name), store.Eq("version", version))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetProcessDefinitionID", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	return po.ID, nil
}

func (a *processAPI) GetLatestProcessDefinitionID(ctx context.Context, name string) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	pos, err := store.Find[store.ProcessDefinitionPo](ctx, svc.Repo, page([]store.Cond{store.Eq("name", name)}, 0, 1,
		[]store.OrderBy{{Field: "deployed_at", Desc: true}, {Field: "id", Desc: true}}))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetLatestProcessDefinitionID", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	if len(pos) == 0 {
		return 0, errors.Wrapf(ErrProcessDefinitionNotFound, "no process definition named %s", name)
	}
	return pos[0].ID, nil
}

func (a *processAPI) EnableProcess(ctx context.Context, processDefinitionID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.SynchronizedDefinition(ctx, processDefinitionID, func(ctx context.Context) error {
		return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
			// 连接器可能在部署之后才注册, 启用前重新解析
			if err := resolveProcessDefinition(ctx, svc, processDefinitionID); err != nil {
				return err
			}
			po, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
			if err != nil {
				return err
			}
			if po.ActivationState == ActivationStateEnabled {
				return errors.Wrapf(ErrProcessEnablement, "process %s %s is already enabled", po.Name, po.Version)
			}
			if po.ConfigurationState != ConfigurationStateResolved {
				return errors.Wrapf(ErrProcessEnablement, "process %s %s is not resolved", po.Name, po.Version)
			}
			return store.UpdateByID[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID, map[string]any{
				"activation_state": ActivationStateEnabled,
			})
		})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "EnableProcess", err, ErrProcessDefinitionNotFound, ErrProcessEnablement)
	}
	svc.Log.Info("process enabled", zap.Int64("process_definition_id", processDefinitionID))
	return nil
}

func (a *processAPI) DisableProcess(ctx context.Context, processDefinitionID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	err = svc.SynchronizedDefinition(ctx, processDefinitionID, func(ctx context.Context) error {
		return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
			po, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
			if err != nil {
				return err
			}
			if po.ActivationState != ActivationStateEnabled {
				return errors.Wrapf(ErrProcessEnablement, "process %s %s is not enabled", po.Name, po.Version)
			}
			return store.UpdateByID[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID, map[string]any{
				"activation_state": ActivationStateDisabled,
			})
		})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "DisableProcess", err, ErrProcessDefinitionNotFound, ErrProcessEnablement)
	}
	svc.Log.Info("process disabled", zap.Int64("process_definition_id", processDefinitionID))
	return nil
}

func (a *processAPI) DeleteProcessDefinition(ctx context.Context, processDefinitionID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	if err := a.deleteProcessDefinition(ctx, svc, processDefinitionID); err != nil {
		return a.fail(ctx, svc.Log, "DeleteProcessDefinition", err, ErrProcessDefinitionNotFound, ErrDeletion)
	}
	return nil
}

func (a *processAPI) DeleteProcessDefinitions(ctx context.Context, processDefinitionIDs []int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	for _, id := range processDefinitionIDs {
		if err := a.deleteProcessDefinition(ctx, svc, id); err != nil {
			return a.fail(ctx, svc.Log, "DeleteProcessDefinitions", err, ErrProcessDefinitionNotFound, ErrDeletion)
		}
	}
	return nil
}

// deleteProcessDefinition 流程必须是 DISABLED 且没有运行中的实例
// 已经结束的实例和归档一起删除
func (a *processAPI) deleteProcessDefinition(ctx context.Context, svc *tenant.Services, processDefinitionID int64) error {
	var storageIDs []string
	err := svc.SynchronizedDefinition(ctx, processDefinitionID, func(ctx context.Context) error {
		return svc.Repo.Transaction(ctx, func(ctx context.Context) error {
			po, err := store.Get[store.ProcessDefinitionPo](ctx, svc.Repo, processDefinitionID)
			if err != nil {
				return err
			}
			if po.ActivationState != ActivationStateDisabled {
				return errors.Wrapf(ErrDeletion, "process %s %s must be disabled before deletion", po.Name, po.Version)
			}
			open, err := store.Count[store.ProcessInstancePo](ctx, svc.Repo, store.Where(
				store.Eq("process_definition_id", processDefinitionID),
				store.Eq("state", ProcessInstanceStateStarted)))
			if err != nil {
				return err
			}
			if open > 0 {
				return errors.Wrapf(ErrDeletion, "process %s %s still has %d open instances", po.Name, po.Version, open)
			}
			err = eachBatch(ctx, svc.Repo, []store.Cond{store.Eq("process_definition_id", processDefinitionID)}, true,
				func(ctx context.Context, batch []*store.ProcessInstancePo) error {
					ids, err := deleteInstanceRows(ctx, svc, idsOf(batch, func(po *store.ProcessInstancePo) int64 { return po.ID }))
					storageIDs = append(storageIDs, ids...)
					return err
				})
			if err != nil {
				return err
			}
			if _, err := store.Delete[store.ArchivedProcessInstancePo](ctx, svc.Repo, store.Eq("process_definition_id", processDefinitionID)); err != nil {
				return err
			}
			actors, err := store.Find[store.ActorPo](ctx, svc.Repo, store.Where(store.Eq("process_definition_id", processDefinitionID)))
			if err != nil {
				return err
			}
			if _, err := store.Delete[store.ActorMemberPo](ctx, svc.Repo,
				store.In("actor_id", idsOf(actors, func(po *store.ActorPo) int64 { return po.ID }))); err != nil {
				return err
			}
			if _, err := store.Delete[store.ActorPo](ctx, svc.Repo, store.Eq("process_definition_id", processDefinitionID)); err != nil {
				return err
			}
			if _, err := store.Delete[store.ProcessCategoryPo](ctx, svc.Repo, store.Eq("process_definition_id", processDefinitionID)); err != nil {
				return err
			}
			_, err = store.Delete[store.ProcessDefinitionPo](ctx, svc.Repo, store.Eq("id", processDefinitionID))
			return err
		})
	})
	if err != nil {
		return err
	}
	svc.Engine.Forget(processDefinitionID)
	purgeContents(ctx, svc, storageIDs)
	svc.Log.Info("process definition deleted", zap.Int64("process_definition_id", processDefinitionID))
	return nil
}

func (a *processAPI) GetNumberOfProcessDeploymentInfos(ctx context.Context) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.ProcessDefinitionPo](ctx, svc.Repo, nil)
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfProcessDeploymentInfos", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *processAPI) GetProcessDeploymentInfos(ctx context.Context, startIndex, maxResults int64, criterion ProcessDeploymentInfoCriterion) ([]*ProcessDeploymentInfo, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, processDeploymentInfoOrders, store.OrderBy{Field: "name"})
	pos, err := store.Find[store.ProcessDefinitionPo](ctx, svc.Repo, page(nil, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessDeploymentInfos", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toProcessDeploymentInfo), nil
}

func (a *processAPI) SearchProcessDeploymentInfos(ctx context.Context, options *SearchOptions) (*SearchResult[*ProcessDeploymentInfo], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &ProcessDeploymentInfoSearchDescriptor, options, toProcessDeploymentInfo)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchProcessDeploymentInfos", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *processAPI) GetProcessResolutionProblems(ctx context.Context, processDefinitionID int64) ([]*Problem, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	problems, err := resolutionProblems(ctx, svc, processDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetProcessResolutionProblems", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	return problems, nil
}
