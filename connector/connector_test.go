package connector

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	echo := Func(func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"echo": inputs["message"]}, nil
	})

	t.Run("注册和执行", func(t *testing.T) {
		require.NoError(t, Register("test-echo", echo))
		assert.True(t, IsRegistered("test-echo"))
		c, err := Get("test-echo")
		require.NoError(t, err)
		out, err := c.Execute(context.Background(), map[string]any{"message": "hi"})
		require.NoError(t, err)
		assert.Equal(t, "hi", out["echo"])
	})

	t.Run("重复注册", func(t *testing.T) {
		err := Register("test-echo", echo)
		assert.True(t, errors.Is(err, ErrConnectorAlreadyRegistered))
		assert.Panics(t, func() { MustRegister("test-echo", echo) })
	})

	t.Run("参数错误", func(t *testing.T) {
		assert.Error(t, Register("test-nil", nil))
		assert.Error(t, Register("", echo))
	})

	t.Run("不存在", func(t *testing.T) {
		_, err := Get("test-missing")
		assert.True(t, errors.Is(err, ErrConnectorNotFound))
		assert.False(t, IsRegistered("test-missing"))
	})
}
