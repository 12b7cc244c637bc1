package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("开发环境", func(t *testing.T) {
		l, err := New(Options{Env: "development"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(-1), "开发环境默认 debug 级别")
	})

	t.Run("生产环境写文件", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "bpm.log")
		l, err := New(Options{Env: "production", File: file})
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(-1), "生产环境默认 info 级别")

		l.Info("hello")
		_ = l.Sync()
		_, err = os.Stat(file)
		assert.NoError(t, err)
	})

	t.Run("非法级别回退到 info", func(t *testing.T) {
		l, err := New(Options{Level: "not-a-level"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(0))
		assert.False(t, l.Core().Enabled(-1))
	})
}
