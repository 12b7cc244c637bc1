package bpm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityAPI_User(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Identity

	walter, err := api.CreateUser(ctx, &UserCreator{
		UserName:        "walter.bates",
		Password:        "bpm",
		FirstName:       "Walter",
		LastName:        "Bates",
		PersonalContact: &ContactData{Email: "walter@home.org", City: "Grenoble"},
	})
	require.NoError(t, err)
	helen := createUser(t, ctx, client, "helen.kelly")

	t.Run("默认启用", func(t *testing.T) {
		assert.True(t, walter.Enabled)
		got, err := api.GetUserByUserName(ctx, "walter.bates")
		require.NoError(t, err)
		assert.Equal(t, walter.ID, got.ID)
		assert.Equal(t, "Bates", got.LastName)
	})

	t.Run("用户名重复", func(t *testing.T) {
		_, err := api.CreateUser(ctx, &UserCreator{UserName: "walter.bates", Password: "x"})
		assert.True(t, errors.Is(err, ErrAlreadyExists), "err: %v", err)
	})

	t.Run("参数校验", func(t *testing.T) {
		_, err := api.CreateUser(ctx, &UserCreator{UserName: "no.password"})
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})

	t.Run("联系方式", func(t *testing.T) {
		personal, err := api.GetUserContactData(ctx, walter.ID, true)
		require.NoError(t, err)
		assert.Equal(t, "walter@home.org", personal.Email)
		professional, err := api.GetUserContactData(ctx, walter.ID, false)
		require.NoError(t, err)
		assert.Empty(t, professional.Email)
	})

	t.Run("批量查询忽略不存在的ID", func(t *testing.T) {
		users, err := api.GetUsers(ctx, []int64{walter.ID, helen.ID, 9999})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "helen.kelly", users[helen.ID].UserName)
	})

	t.Run("更新", func(t *testing.T) {
		job := "Manager"
		disabled := false
		updated, err := api.UpdateUser(ctx, helen.ID, &UserUpdater{JobTitle: &job, Enabled: &disabled})
		require.NoError(t, err)
		assert.Equal(t, "Manager", updated.JobTitle)
		assert.False(t, updated.Enabled)
	})

	t.Run("密码不能为空白", func(t *testing.T) {
		blank := "  "
		_, err := api.UpdateUser(ctx, helen.ID, &UserUpdater{Password: &blank})
		assert.True(t, errors.Is(err, ErrInvalidParam), "err: %v", err)
	})

	t.Run("分页和搜索", func(t *testing.T) {
		count, err := api.GetNumberOfUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		users, err := api.GetUsersPage(ctx, 0, 10, UserCriterionUserNameDesc)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "walter.bates", users[0].UserName)

		result, err := api.SearchUsers(ctx, NewSearchOptions(0, 10).SearchTerm("hel"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Count)
		assert.Equal(t, helen.ID, result.Result[0].ID)

		result, err = api.SearchUsers(ctx, NewSearchOptions(0, 10).Filter("enabled", true))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Count)

		_, err = api.SearchUsers(ctx, NewSearchOptions(0, 10).Filter("password", "x"))
		assert.True(t, errors.Is(err, ErrSearch))
	})

	t.Run("删除", func(t *testing.T) {
		require.NoError(t, api.DeleteUserByName(ctx, "helen.kelly"))
		_, err := api.GetUser(ctx, helen.ID)
		assert.True(t, errors.Is(err, ErrUserNotFound))
		assert.True(t, errors.Is(err, ErrNotFound))

		err = api.DeleteUser(ctx, helen.ID)
		assert.True(t, errors.Is(err, ErrUserNotFound))
		assert.NoError(t, api.DeleteUsers(ctx, []int64{helen.ID, walter.ID}))
		count, err := api.GetNumberOfUsers(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestIdentityAPI_Group(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Identity

	acme, err := api.CreateGroup(ctx, "acme", "")
	require.NoError(t, err)
	hr, err := api.CreateGroup(ctx, "hr", "/acme")
	require.NoError(t, err)
	payroll, err := api.CreateGroup(ctx, "payroll", "/acme/hr")
	require.NoError(t, err)

	t.Run("路径", func(t *testing.T) {
		assert.Equal(t, "/acme", acme.Path)
		assert.Equal(t, "/acme/hr", hr.Path)
		assert.Equal(t, "/acme/hr/payroll", payroll.Path)
		got, err := api.GetGroupByPath(ctx, "/acme/hr")
		require.NoError(t, err)
		assert.Equal(t, hr.ID, got.ID)
	})

	t.Run("父组不存在", func(t *testing.T) {
		_, err := api.CreateGroup(ctx, "it", "/missing")
		assert.True(t, errors.Is(err, ErrGroupNotFound), "err: %v", err)
	})

	t.Run("组名不能包含分隔符", func(t *testing.T) {
		_, err := api.CreateGroup(ctx, "a/b", "")
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})

	t.Run("子组", func(t *testing.T) {
		children, err := api.GetChildrenGroups(ctx, acme.ID, 0, 10, GroupCriterionNameAsc)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, hr.ID, children[0].ID)
	})

	t.Run("改名时子孙组的路径一起修改", func(t *testing.T) {
		name := "people"
		updated, err := api.UpdateGroup(ctx, hr.ID, &GroupUpdater{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "/acme/people", updated.Path)
		got, err := api.GetGroup(ctx, payroll.ID)
		require.NoError(t, err)
		assert.Equal(t, "/acme/people", got.ParentPath)
		assert.Equal(t, "/acme/people/payroll", got.Path)
	})

	t.Run("不能移动到自己下面", func(t *testing.T) {
		parent := "/acme/people/payroll"
		_, err := api.UpdateGroup(ctx, hr.ID, &GroupUpdater{ParentPath: &parent})
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})

	t.Run("组名里的通配符按字面匹配", func(t *testing.T) {
		_, err := api.CreateGroup(ctx, "x_y", "")
		require.NoError(t, err)
		child, err := api.CreateGroup(ctx, "c", "/x_y")
		require.NoError(t, err)
		_, err = api.CreateGroup(ctx, "xZy", "")
		require.NoError(t, err)
		sibling, err := api.CreateGroup(ctx, "c", "/xZy")
		require.NoError(t, err)
		_, err = api.CreateGroup(ctx, "x%", "")
		require.NoError(t, err)
		percent, err := api.CreateGroup(ctx, "c", "/x%")
		require.NoError(t, err)

		xy, err := api.GetGroupByPath(ctx, "/x_y")
		require.NoError(t, err)
		name := "moved"
		_, err = api.UpdateGroup(ctx, xy.ID, &GroupUpdater{Name: &name})
		require.NoError(t, err)
		got, err := api.GetGroup(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, "/moved/c", got.Path)
		got, err = api.GetGroup(ctx, sibling.ID)
		require.NoError(t, err)
		assert.Equal(t, "/xZy/c", got.Path)

		require.NoError(t, api.DeleteGroup(ctx, xy.ID))
		_, err = api.GetGroup(ctx, child.ID)
		assert.True(t, errors.Is(err, ErrGroupNotFound))
		for _, id := range []int64{sibling.ID, percent.ID} {
			_, err = api.GetGroup(ctx, id)
			assert.NoError(t, err)
		}
		xzy, err := api.GetGroupByPath(ctx, "/xZy")
		require.NoError(t, err)
		xp, err := api.GetGroupByPath(ctx, "/x%")
		require.NoError(t, err)
		require.NoError(t, api.DeleteGroups(ctx, []int64{xzy.ID, xp.ID}))
	})

	t.Run("删除组和子孙组", func(t *testing.T) {
		user := createUser(t, ctx, client, "april.sanchez")
		role, err := api.CreateRole(ctx, &RoleCreator{Name: "member"})
		require.NoError(t, err)
		_, err = api.AddUserMembership(ctx, user.ID, payroll.ID, role.ID)
		require.NoError(t, err)

		require.NoError(t, api.DeleteGroup(ctx, hr.ID))
		_, err = api.GetGroup(ctx, payroll.ID)
		assert.True(t, errors.Is(err, ErrGroupNotFound))
		count, err := api.GetNumberOfUserMemberships(ctx, user.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
		count, err = api.GetNumberOfGroups(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestIdentityAPI_RoleAndMembership(t *testing.T) {
	client, ctx := setupClient(t)
	api := client.Identity

	walter := createUser(t, ctx, client, "walter.bates")
	helen := createUser(t, ctx, client, "helen.kelly")
	group, err := api.CreateGroup(ctx, "acme", "")
	require.NoError(t, err)
	member, err := api.CreateRole(ctx, &RoleCreator{Name: "member", DisplayName: "Member"})
	require.NoError(t, err)
	manager, err := api.CreateRole(ctx, &RoleCreator{Name: "manager", DisplayName: "Manager"})
	require.NoError(t, err)

	t.Run("角色名重复", func(t *testing.T) {
		_, err := api.CreateRole(ctx, &RoleCreator{Name: "member"})
		assert.True(t, errors.Is(err, ErrAlreadyExists))
	})

	t.Run("角色排序", func(t *testing.T) {
		roles, err := api.GetRoles(ctx, 0, 10, RoleCriterionNameAsc)
		require.NoError(t, err)
		require.Len(t, roles, 2)
		assert.Equal(t, "manager", roles[0].Name)
	})

	var membership *UserMembership
	t.Run("添加成员关系", func(t *testing.T) {
		membership, err = api.AddUserMembership(ctx, walter.ID, group.ID, member.ID)
		require.NoError(t, err)
		assert.Equal(t, "walter.bates", membership.UserName)
		assert.Equal(t, "/acme", membership.GroupPath)
		assert.Equal(t, "member", membership.RoleName)

		_, err = api.AddUserMembership(ctx, walter.ID, group.ID, member.ID)
		assert.True(t, errors.Is(err, ErrAlreadyExists))
		_, err = api.AddUserMembership(ctx, walter.ID, group.ID, 9999)
		assert.True(t, errors.Is(err, ErrNotFound), "err: %v", err)

		require.NoError(t, api.AddUserMemberships(ctx, []int64{helen.ID}, group.ID, member.ID))
	})

	t.Run("组和角色下的用户", func(t *testing.T) {
		users, err := api.GetUsersInRole(ctx, member.ID, 0, 10, UserCriterionUserNameAsc)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "helen.kelly", users[0].UserName)

		disabled := false
		_, err = api.UpdateUser(ctx, helen.ID, &UserUpdater{Enabled: &disabled})
		require.NoError(t, err)
		users, err = api.GetActiveUsersInGroup(ctx, group.ID, 0, 10, UserCriterionUserNameAsc)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, walter.ID, users[0].ID)
	})

	t.Run("修改成员关系", func(t *testing.T) {
		updated, err := api.UpdateUserMembership(ctx, membership.ID, group.ID, manager.ID)
		require.NoError(t, err)
		assert.Equal(t, "manager", updated.RoleName)
		memberships, err := api.GetUserMemberships(ctx, walter.ID, 0, 10, UserMembershipCriterionRoleAsc)
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		assert.Equal(t, manager.ID, memberships[0].RoleID)
	})

	t.Run("删除成员关系", func(t *testing.T) {
		err := api.DeleteUserMembership(ctx, walter.ID, group.ID, member.ID)
		assert.True(t, errors.Is(err, ErrMembershipNotFound))
		require.NoError(t, api.DeleteUserMembership(ctx, walter.ID, group.ID, manager.ID))
		require.NoError(t, api.DeleteUserMemberships(ctx, []int64{helen.ID, walter.ID}, group.ID, member.ID))
		count, err := api.GetNumberOfUserMemberships(ctx, helen.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("删除角色", func(t *testing.T) {
		_, err := api.AddUserMembership(ctx, walter.ID, group.ID, member.ID)
		require.NoError(t, err)
		require.NoError(t, api.DeleteRole(ctx, member.ID))
		_, err = api.GetRoleByName(ctx, "member")
		assert.True(t, errors.Is(err, ErrRoleNotFound))
		count, err := api.GetNumberOfUserMemberships(ctx, walter.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestIdentityAPI_Session(t *testing.T) {
	client, ctx := setupClient(t)

	t.Run("没有会话", func(t *testing.T) {
		_, err := client.Identity.GetNumberOfUsers(t.Context())
		assert.True(t, errors.Is(err, ErrInvalidSession))
	})

	t.Run("租户暂停后普通用户不能访问", func(t *testing.T) {
		user := createUser(t, ctx, client, "walter.bates")
		session, err := SessionFromContext(ctx)
		require.NoError(t, err)
		require.NoError(t, client.Platform.PauseTenant(ctx, session.TenantID))
		defer func() {
			require.NoError(t, client.Platform.ResumeTenant(ctx, session.TenantID))
		}()

		userCtx := WithSession(t.Context(), &APISession{TenantID: session.TenantID, UserID: user.ID, UserName: user.UserName})
		_, err = client.Identity.GetUser(userCtx, user.ID)
		assert.True(t, errors.Is(err, ErrTenantStatus))
		_, err = client.Identity.GetUser(ctx, user.ID)
		assert.NoError(t, err)
	})
}
