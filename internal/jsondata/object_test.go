package jsondata

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	t.Run("嵌套读写", func(t *testing.T) {
		o := New(nil)
		require.NoError(t, o.Set([]string{"user", "name"}, "张三"))
		require.NoError(t, o.Set([]string{"user", "age"}, 25))
		name, ok := o.GetString("user", "name")
		assert.True(t, ok)
		assert.Equal(t, "张三", name)
		age, ok := o.GetInt64("user", "age")
		assert.True(t, ok)
		assert.Equal(t, int64(25), age)

		o.Delete("user", "age")
		_, ok = o.Get("user", "age")
		assert.False(t, ok)
		assert.Error(t, o.Set(nil, 1))
	})

	t.Run("解析和路径", func(t *testing.T) {
		o, err := Parse([]byte(`{"customer":{"name":"Acme","address":{"city":"Grenoble"}},"lines":[{"sku":"A1"},{"sku":"B2"}]}`))
		require.NoError(t, err)

		b, err := o.Lookup("customer.address.city")
		require.NoError(t, err)
		assert.JSONEq(t, `"Grenoble"`, string(b))

		b, err = o.Lookup("lines.1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"sku":"B2"}`, string(b))

		b, err = o.Lookup("")
		require.NoError(t, err)
		assert.Contains(t, string(b), "Acme")

		_, err = o.Lookup("lines.5")
		assert.True(t, errors.Is(err, ErrPathNotFound))
		_, err = o.Lookup("customer.name.first")
		assert.True(t, errors.Is(err, ErrPathNotFound))
	})

	t.Run("不是对象", func(t *testing.T) {
		_, err := Parse([]byte(`[1,2]`))
		assert.True(t, errors.Is(err, ErrNotObject))
		o, err := Parse([]byte(`null`))
		require.NoError(t, err)
		assert.Empty(t, o.Map())
	})

	t.Run("合并", func(t *testing.T) {
		o := New(map[string]any{"a": 1, "b": 2})
		o.Merge(map[string]any{"b": 3, "c": 4})
		assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, o.Map())
	})
}

func TestNumbers(t *testing.T) {
	t.Run("大整数原样保存", func(t *testing.T) {
		o, err := Parse([]byte(`{"externalId":9007199254740993,"amount":120.5}`))
		require.NoError(t, err)
		b, err := o.Bytes()
		require.NoError(t, err)
		assert.Contains(t, string(b), `"externalId":9007199254740993`)
		assert.Contains(t, string(b), `"amount":120.5`)
		id, ok := o.GetInt64("externalId")
		assert.True(t, ok)
		assert.Equal(t, int64(9007199254740993), id)
	})

	t.Run("结尾有多余内容", func(t *testing.T) {
		_, err := Parse([]byte(`{"a":1} {"b":2}`))
		assert.True(t, errors.Is(err, ErrNotObject))
	})

	t.Run("浮点转整数", func(t *testing.T) {
		for _, f := range []float64{1e20, -1e20, 0.5, 9223372036854775807} {
			_, ok := FloatToInt64(f)
			assert.False(t, ok, "%v", f)
		}
		i, ok := FloatToInt64(-42)
		assert.True(t, ok)
		assert.Equal(t, int64(-42), i)
	})

	t.Run("Normalize", func(t *testing.T) {
		var v any
		require.NoError(t, Unmarshal([]byte(`{"n":[1,2.5,{"m":9007199254740993}]}`), &v))
		assert.Equal(t, map[string]any{"n": []any{int64(1), 2.5, map[string]any{"m": int64(9007199254740993)}}}, Normalize(v))
	})
}
