package store

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepos(t *testing.T) (*Repo, *Repo) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	return NewTenantRepo(db, 1), NewTenantRepo(db, 2)
}

func TestRepoTenantScope(t *testing.T) {
	ctx := context.Background()
	repoA, repoB := setupRepos(t)

	t.Run("创建时自动填充租户", func(t *testing.T) {
		user := &UserPo{UserName: "walter.bates", Enabled: true}
		require.NoError(t, Create(ctx, repoA, user))
		assert.Equal(t, int64(1), user.TenantID)
		assert.Greater(t, user.CreatedAt, int64(0))
	})

	t.Run("不同租户互相不可见", func(t *testing.T) {
		_, err := First[UserPo](ctx, repoB, Eq("user_name", "walter.bates"))
		assert.True(t, errors.Is(err, ErrRecordNotFound))

		user, err := First[UserPo](ctx, repoA, Eq("user_name", "walter.bates"))
		require.NoError(t, err)
		assert.Equal(t, "walter.bates", user.UserName)
	})

	t.Run("同一租户唯一键冲突", func(t *testing.T) {
		err := Create(ctx, repoA, &UserPo{UserName: "walter.bates"})
		assert.True(t, errors.Is(err, ErrDuplicateKey), "err: %v", err)
	})

	t.Run("不同租户可以同名", func(t *testing.T) {
		assert.NoError(t, Create(ctx, repoB, &UserPo{UserName: "walter.bates"}))
	})
}

func TestRepoQuery(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepos(t)
	for _, name := range []string{"april", "anthony", "helen", "daniela", "giovanna"} {
		require.NoError(t, Create(ctx, repo, &UserPo{UserName: name, Enabled: name != "helen"}))
	}

	t.Run("分页和排序", func(t *testing.T) {
		users, err := Find[UserPo](ctx, repo, &QueryParams{
			OrderBy: []OrderBy{{Field: "user_name"}},
			Page:    Range(1, 2),
		})
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "april", users[0].UserName)
		assert.Equal(t, "daniela", users[1].UserName)
	})

	t.Run("前缀搜索", func(t *testing.T) {
		count, err := Count[UserPo](ctx, repo, &QueryParams{Term: &Term{Fields: []string{"user_name", "first_name"}, Value: "a"}})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("IN 空集合没有结果", func(t *testing.T) {
		users, err := Find[UserPo](ctx, repo, Where(In("id", []int64{})))
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("非法字段", func(t *testing.T) {
		_, err := Find[UserPo](ctx, repo, &QueryParams{
			OrderBy: []OrderBy{{Field: "user_name; drop table user_"}},
			Page:    Range(0, 10),
		})
		assert.True(t, errors.Is(err, ErrInvalidQuery))
	})

	t.Run("没有分页参数", func(t *testing.T) {
		_, err := Find[UserPo](ctx, repo, &QueryParams{})
		assert.Error(t, err)
	})

	t.Run("按条件更新和删除", func(t *testing.T) {
		affected, err := Update[UserPo](ctx, repo, &UpdateParams{
			Where:  []Cond{Eq("enabled", false)},
			Fields: map[string]any{"title": "Mrs"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		helen, err := First[UserPo](ctx, repo, Eq("user_name", "helen"))
		require.NoError(t, err)
		assert.Equal(t, "Mrs", helen.Title)

		_, err = Update[UserPo](ctx, repo, &UpdateParams{Fields: map[string]any{"title": "x"}})
		assert.True(t, errors.Is(err, ErrInvalidQuery), "更新必须带条件")

		deleted, err := Delete[UserPo](ctx, repo, Eq("id", helen.ID))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		err = UpdateByID[UserPo](ctx, repo, helen.ID, map[string]any{"title": "y"})
		assert.True(t, errors.Is(err, ErrRecordNotFound))
	})
}

func TestRepoQueryTermEscape(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepos(t)
	for _, name := range []string{"a_x", "abx", "a%y", "azy", "a!b"} {
		require.NoError(t, Create(ctx, repo, &UserPo{UserName: name}))
	}
	tests := []struct {
		term     string
		expected []string
	}{
		{term: "a_", expected: []string{"a_x"}},
		{term: "a%", expected: []string{"a%y"}},
		{term: "a!", expected: []string{"a!b"}},
		{term: "a", expected: []string{"a!b", "a%y", "a_x", "abx", "azy"}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			users, err := Find[UserPo](ctx, repo, &QueryParams{
				Term:    &Term{Fields: []string{"user_name"}, Value: tt.term},
				OrderBy: []OrderBy{{Field: "user_name"}},
				Page:    Range(0, 10),
			})
			require.NoError(t, err)
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.UserName)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
	assert.Equal(t, "a!_b!%c!!", EscapeLike("a_b%c!"))
}

func TestRepoTransaction(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepos(t)

	t.Run("出错回滚", func(t *testing.T) {
		err := repo.Transaction(ctx, func(ctx context.Context) error {
			if err := Create(ctx, repo, &RolePo{Name: "member"}); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)
		count, err := Count[RolePo](ctx, repo, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("成功提交, 嵌套复用事务", func(t *testing.T) {
		err := repo.Transaction(ctx, func(ctx context.Context) error {
			if err := Create(ctx, repo, &RolePo{Name: "member"}); err != nil {
				return err
			}
			return repo.Transaction(ctx, func(ctx context.Context) error {
				return Create(ctx, repo, &RolePo{Name: "manager"})
			})
		})
		require.NoError(t, err)
		count, err := Count[RolePo](ctx, repo, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestRepoDeleteTenantData(t *testing.T) {
	ctx := context.Background()
	repoA, repoB := setupRepos(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, Create(ctx, repoA, &RolePo{Name: name}))
	}
	require.NoError(t, Create(ctx, repoB, &RolePo{Name: "a"}))

	// 批次小于数据量, 需要多轮
	require.NoError(t, repoA.DeleteTenantData(ctx, &RolePo{}, 2))
	count, err := Count[RolePo](ctx, repoA, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	count, err = Count[RolePo](ctx, repoB, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "其他租户的数据不受影响")

	assert.True(t, errors.Is(repoA.DeleteTenantData(ctx, &RolePo{}, 0), ErrInvalidQuery))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}
