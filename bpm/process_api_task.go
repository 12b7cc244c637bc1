package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// humanTaskConds 人工任务的公共条件
func humanTaskConds(conds ...store.Cond) []store.Cond {
	return append([]store.Cond{store.Eq("type", design.FlowNodeTypeUser)}, conds...)
}

func getHumanTask(ctx context.Context, svc *tenant.Services, taskID int64) (*store.FlowNodeInstancePo, error) {
	po, err := store.First[store.FlowNodeInstancePo](ctx, svc.Repo, humanTaskConds(store.Eq("id", taskID))...)
	if err != nil {
		return nil, translateError(err, ErrActivityInstanceNotFound, ErrRetrieve)
	}
	return po, nil
}

// candidateActorIDs 用户可以参与的参与者: 直接指定, 通过组, 通过角色, 通过组+角色
func candidateActorIDs(ctx context.Context, svc *tenant.Services, userID int64) ([]int64, error) {
	memberships, err := store.Find[store.MembershipPo](ctx, svc.Repo, store.Where(store.Eq("user_id", userID)))
	if err != nil {
		return nil, err
	}
	groups := make(map[int64]bool, len(memberships))
	roles := make(map[int64]bool, len(memberships))
	pairs := make(map[[2]int64]bool, len(memberships))
	for _, m := range memberships {
		groups[m.GroupID] = true
		roles[m.RoleID] = true
		pairs[[2]int64{m.GroupID, m.RoleID}] = true
	}
	members, err := store.Find[store.ActorMemberPo](ctx, svc.Repo, store.Where(store.Eq("user_id", userID)))
	if err != nil {
		return nil, err
	}
	byGroup, err := store.Find[store.ActorMemberPo](ctx, svc.Repo, store.Where(store.In("group_id", keys(groups))))
	if err != nil {
		return nil, err
	}
	byRole, err := store.Find[store.ActorMemberPo](ctx, svc.Repo, store.Where(store.In("role_id", keys(roles)), store.Eq("group_id", 0)))
	if err != nil {
		return nil, err
	}
	actorIDs := idsOf(members, func(po *store.ActorMemberPo) int64 { return po.ActorID })
	for _, m := range byGroup {
		if m.RoleID == 0 || pairs[[2]int64{m.GroupID, m.RoleID}] {
			actorIDs = append(actorIDs, m.ActorID)
		}
	}
	for _, m := range byRole {
		actorIDs = append(actorIDs, m.ActorID)
	}
	return uniqueIDs(actorIDs), nil
}

func keys(m map[int64]bool) []int64 {
	ret := make([]int64, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}

// actorUserIDs 参与者成员展开后的用户
func actorUserIDs(ctx context.Context, svc *tenant.Services, actorID int64) ([]int64, error) {
	members, err := store.Find[store.ActorMemberPo](ctx, svc.Repo, store.Where(store.Eq("actor_id", actorID)))
	if err != nil {
		return nil, err
	}
	var userIDs []int64
	for _, m := range members {
		var conds []store.Cond
		switch {
		case m.UserID != 0:
			userIDs = append(userIDs, m.UserID)
			continue
		case m.GroupID != 0 && m.RoleID != 0:
			conds = []store.Cond{store.Eq("group_id", m.GroupID), store.Eq("role_id", m.RoleID)}
		case m.GroupID != 0:
			conds = []store.Cond{store.Eq("group_id", m.GroupID)}
		default:
			conds = []store.Cond{store.Eq("role_id", m.RoleID)}
		}
		memberships, err := store.Find[store.MembershipPo](ctx, svc.Repo, store.Where(conds...))
		if err != nil {
			return nil, err
		}
		userIDs = append(userIDs, idsOf(memberships, func(po *store.MembershipPo) int64 { return po.UserID })...)
	}
	return uniqueIDs(userIDs), nil
}

func (a *processAPI) GetHumanTaskInstance(ctx context.Context, taskID int64) (*HumanTaskInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := getHumanTask(ctx, svc, taskID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetHumanTaskInstance", err, ErrActivityInstanceNotFound, ErrRetrieve)
	}
	return toHumanTaskInstance(po), nil
}

func (a *processAPI) AssignUserTask(ctx context.Context, taskID int64, userID int64) error {
	return a.assign(ctx, "AssignUserTask", taskID, userID, true)
}

func (a *processAPI) AssignUserTaskIfNotAssigned(ctx context.Context, taskID int64, userID int64) error {
	return a.assign(ctx, "AssignUserTaskIfNotAssigned", taskID, userID, false)
}

// assign force 为 false 时, 已经分配给其他人的任务返回 ErrTaskAssignment
func (a *processAPI) assign(ctx context.Context, op string, taskID int64, userID int64, force bool) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
		return a.fail(ctx, svc.Log, op, err, ErrUserNotFound, ErrTaskAssignment)
	}
	task, err := getHumanTask(ctx, svc, taskID)
	if err != nil {
		return a.fail(ctx, svc.Log, op, err, ErrActivityInstanceNotFound, ErrTaskAssignment)
	}
	err = svc.Synchronized(ctx, task.ProcessInstanceID, func(ctx context.Context) error {
		task, err := getHumanTask(ctx, svc, taskID)
		if err != nil {
			return err
		}
		if task.State != FlowNodeStateReady {
			return errors.Wrapf(ErrTaskAssignment, "task %d is %s", taskID, task.State)
		}
		if task.AssigneeID == userID {
			return nil
		}
		if !force && task.AssigneeID != 0 {
			return errors.Wrapf(ErrTaskAssignment, "task %d is already assigned to %d", taskID, task.AssigneeID)
		}
		return store.UpdateByID[store.FlowNodeInstancePo](ctx, svc.Repo, taskID, map[string]any{"assignee_id": userID})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, op, err, ErrActivityInstanceNotFound, ErrTaskAssignment)
	}
	svc.Log.Info("task assigned", zap.Int64("task_id", taskID), zap.Int64("user_id", userID))
	return nil
}

func (a *processAPI) ReleaseUserTask(ctx context.Context, taskID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	task, err := getHumanTask(ctx, svc, taskID)
	if err != nil {
		return a.fail(ctx, svc.Log, "ReleaseUserTask", err, ErrActivityInstanceNotFound, ErrTaskAssignment)
	}
	err = svc.Synchronized(ctx, task.ProcessInstanceID, func(ctx context.Context) error {
		task, err := getHumanTask(ctx, svc, taskID)
		if err != nil {
			return err
		}
		if task.State != FlowNodeStateReady {
			return errors.Wrapf(ErrTaskAssignment, "task %d is %s", taskID, task.State)
		}
		return store.UpdateByID[store.FlowNodeInstancePo](ctx, svc.Repo, taskID, map[string]any{"assignee_id": 0})
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "ReleaseUserTask", err, ErrActivityInstanceNotFound, ErrTaskAssignment)
	}
	return nil
}

func (a *processAPI) ExecuteUserTask(ctx context.Context, taskID int64, inputs map[string]any) error {
	svc, session, err := a.services(ctx)
	if err != nil {
		return err
	}
	return a.executeUserTask(ctx, svc, session.UserID, taskID, inputs)
}

func (a *processAPI) ExecuteUserTaskFor(ctx context.Context, userID int64, taskID int64, inputs map[string]any) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
		return a.fail(ctx, svc.Log, "ExecuteUserTaskFor", err, ErrUserNotFound, ErrFlowNodeExecution)
	}
	return a.executeUserTask(ctx, svc, userID, taskID, inputs)
}

func (a *processAPI) executeUserTask(ctx context.Context, svc *tenant.Services, executorID int64, taskID int64, inputs map[string]any) error {
	task, err := getHumanTask(ctx, svc, taskID)
	if err != nil {
		return a.fail(ctx, svc.Log, "ExecuteUserTask", err, ErrActivityInstanceNotFound, ErrFlowNodeExecution)
	}
	err = svc.Synchronized(ctx, task.ProcessInstanceID, func(ctx context.Context) error {
		task, err := getHumanTask(ctx, svc, taskID)
		if err != nil {
			return err
		}
		if task.State != FlowNodeStateReady {
			return errors.Wrapf(ErrFlowNodeExecution, "task %d is %s", taskID, task.State)
		}
		if task.AssigneeID != 0 && task.AssigneeID != executorID {
			return errors.Wrapf(ErrFlowNodeExecution, "task %d is assigned to %d", taskID, task.AssigneeID)
		}
		return svc.Engine.ExecuteUserTask(ctx, taskID, executorID, inputs)
	})
	if err != nil {
		return a.fail(ctx, svc.Log, "ExecuteUserTask", err, ErrActivityInstanceNotFound, ErrFlowNodeExecution)
	}
	svc.Log.Info("task executed", zap.Int64("task_id", taskID), zap.Int64("executed_by", executorID))
	return nil
}

func (a *processAPI) pendingConds(ctx context.Context, svc *tenant.Services, userID int64) ([]store.Cond, error) {
	actorIDs, err := candidateActorIDs(ctx, svc, userID)
	if err != nil {
		return nil, err
	}
	return humanTaskConds(
		store.Eq("state", FlowNodeStateReady),
		store.Eq("assignee_id", 0),
		store.In("actor_id", actorIDs),
	), nil
}

func assignedConds(userID int64) []store.Cond {
	return humanTaskConds(store.Eq("state", FlowNodeStateReady), store.Eq("assignee_id", userID))
}

func (a *processAPI) GetPendingHumanTaskInstances(ctx context.Context, userID int64, startIndex, maxResults int64, criterion ActivityInstanceCriterion) ([]*HumanTaskInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	conds, err := a.pendingConds(ctx, svc, userID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetPendingHumanTaskInstances", err, nil, ErrRetrieve)
	}
	order := orderOf(criterion, activityInstanceOrders, store.OrderBy{Field: "id"})
	pos, err := store.Find[store.FlowNodeInstancePo](ctx, svc.Repo, page(conds, startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetPendingHumanTaskInstances", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toHumanTaskInstance), nil
}

func (a *processAPI) GetAssignedHumanTaskInstances(ctx context.Context, userID int64, startIndex, maxResults int64, criterion ActivityInstanceCriterion) ([]*HumanTaskInstance, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	order := orderOf(criterion, activityInstanceOrders, store.OrderBy{Field: "id"})
	pos, err := store.Find[store.FlowNodeInstancePo](ctx, svc.Repo, page(assignedConds(userID), startIndex, maxResults, order))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetAssignedHumanTaskInstances", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toHumanTaskInstance), nil
}

func (a *processAPI) GetNumberOfPendingHumanTaskInstances(ctx context.Context, userID int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	conds, err := a.pendingConds(ctx, svc, userID)
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfPendingHumanTaskInstances", err, nil, ErrRetrieve)
	}
	count, err := store.Count[store.FlowNodeInstancePo](ctx, svc.Repo, store.Where(conds...))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfPendingHumanTaskInstances", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *processAPI) GetNumberOfAssignedHumanTaskInstances(ctx context.Context, userID int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.FlowNodeInstancePo](ctx, svc.Repo, store.Where(assignedConds(userID)...))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfAssignedHumanTaskInstances", err, nil, ErrRetrieve)
	}
	return count, nil
}

func (a *processAPI) SearchHumanTaskInstances(ctx context.Context, options *SearchOptions) (*SearchResult[*HumanTaskInstance], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &ActivityInstanceSearchDescriptor, options, toHumanTaskInstance, humanTaskConds()...)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchHumanTaskInstances", err, nil, ErrSearch)
	}
	return result, nil
}

// SearchMyAvailableHumanTasks 用户可以执行的任务: 候选人, 未分配或者分配给自己
func (a *processAPI) SearchMyAvailableHumanTasks(ctx context.Context, userID int64, options *SearchOptions) (*SearchResult[*HumanTaskInstance], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	actorIDs, err := candidateActorIDs(ctx, svc, userID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchMyAvailableHumanTasks", err, nil, ErrSearch)
	}
	result, err := search(ctx, svc.Repo, &ActivityInstanceSearchDescriptor, options, toHumanTaskInstance, humanTaskConds(
		store.Eq("state", FlowNodeStateReady),
		store.In("actor_id", actorIDs),
		store.In("assignee_id", []int64{0, userID}),
	)...)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchMyAvailableHumanTasks", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *processAPI) UpdateDueDateOfTask(ctx context.Context, taskID int64, dueDate int64) error {
	return a.updateTask(ctx, "UpdateDueDateOfTask", taskID, map[string]any{"due_date": dueDate})
}

func (a *processAPI) SetTaskPriority(ctx context.Context, taskID int64, priority TaskPriority) error {
	if !isTaskPriority(priority) {
		return invalidParam("SetTaskPriority failed, unknown priority: %s", priority)
	}
	return a.updateTask(ctx, "SetTaskPriority", taskID, map[string]any{"priority": priority})
}

func (a *processAPI) updateTask(ctx context.Context, op string, taskID int64, fields map[string]any) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	task, err := getHumanTask(ctx, svc, taskID)
	if err != nil {
		return a.fail(ctx, svc.Log, op, err, ErrActivityInstanceNotFound, ErrUpdate)
	}
	if !engine.IsOpenFlowNodeState(task.State) {
		return a.fail(ctx, svc.Log, op, errors.Wrapf(ErrUpdate, "task %d is %s", taskID, task.State), nil, ErrUpdate)
	}
	if err := store.UpdateByID[store.FlowNodeInstancePo](ctx, svc.Repo, taskID, fields); err != nil {
		return a.fail(ctx, svc.Log, op, err, ErrActivityInstanceNotFound, ErrUpdate)
	}
	return nil
}

func (a *processAPI) GetPossibleUsersOfHumanTask(ctx context.Context, processDefinitionID int64, taskName string, startIndex, maxResults int64) ([]*User, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	def, err := svc.Engine.Definition(ctx, processDefinitionID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetPossibleUsersOfHumanTask", err, ErrProcessDefinitionNotFound, ErrRetrieve)
	}
	node, ok := def.Design.GetFlowNode(taskName)
	if !ok || node.Type != design.FlowNodeTypeUser {
		return nil, errors.Wrapf(ErrActivityInstanceNotFound, "no user task %s in process %s", taskName, def.Name)
	}
	actor, err := store.First[store.ActorPo](ctx, svc.Repo,
		store.Eq("process_definition_id", processDefinitionID), store.Eq("name", node.ActorName))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetPossibleUsersOfHumanTask", err, ErrActorNotFound, ErrRetrieve)
	}
	userIDs, err := actorUserIDs(ctx, svc, actor.ID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetPossibleUsersOfHumanTask", err, nil, ErrRetrieve)
	}
	pos, err := store.Find[store.UserPo](ctx, svc.Repo, page([]store.Cond{store.In("id", userIDs)},
		startIndex, maxResults, userOrder(UserCriterionUserNameAsc)))
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetPossibleUsersOfHumanTask", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toUser), nil
}

// IsInvolvedInHumanTask 任务的执行人, 或者未分配时的候选人
func (a *processAPI) IsInvolvedInHumanTask(ctx context.Context, userID int64, taskID int64) (bool, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return false, err
	}
	task, err := getHumanTask(ctx, svc, taskID)
	if err != nil {
		return false, a.fail(ctx, svc.Log, "IsInvolvedInHumanTask", err, ErrActivityInstanceNotFound, ErrRetrieve)
	}
	if task.AssigneeID != 0 || task.ExecutedBy != 0 {
		return task.AssigneeID == userID || task.ExecutedBy == userID, nil
	}
	actorIDs, err := candidateActorIDs(ctx, svc, userID)
	if err != nil {
		return false, a.fail(ctx, svc.Log, "IsInvolvedInHumanTask", err, nil, ErrRetrieve)
	}
	for _, id := range actorIDs {
		if id == task.ActorID {
			return true, nil
		}
	}
	return false, nil
}
