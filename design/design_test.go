package design

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaveRequest() *Builder {
	return NewBuilder("LeaveRequest", "1.0").
		AddActor("employee", true).
		AddActor("manager", false).
		AddData("days", DataTypeInteger, "1").
		AddStartEvent("start").
		AddUserTask("approve", "manager").
		AddAutomaticTask("notify").
		AddEndEvent("approved").
		AddEndEvent("rejected").
		AddTransition("start", "approve").
		AddConditionalTransition("approve", "notify", "accepted == true").
		AddConditionalTransition("approve", "rejected", "accepted != true").
		AddTransition("notify", "approved")
}

func TestBuilder(t *testing.T) {
	t.Run("构建成功", func(t *testing.T) {
		d, err := leaveRequest().Description("leave").Done()
		require.NoError(t, err)
		assert.Equal(t, "employee", d.ActorInitiator)
		start, ok := d.StartNode()
		require.True(t, ok)
		assert.Equal(t, "start", start.Name)
		node, ok := d.GetFlowNode("approve")
		require.True(t, ok)
		assert.Len(t, node.Transitions, 2)
		_, ok = d.GetData("days")
		assert.True(t, ok)
	})

	t.Run("连线源节点不存在", func(t *testing.T) {
		_, err := leaveRequest().AddTransition("missing", "approved").Done()
		assert.True(t, errors.Is(err, ErrInvalidDesign))
	})

	t.Run("序列化", func(t *testing.T) {
		d, err := leaveRequest().Done()
		require.NoError(t, err)
		b, err := d.Marshal()
		require.NoError(t, err)
		back, err := Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, d, back)
		_, err = Unmarshal([]byte("{"))
		assert.True(t, errors.Is(err, ErrInvalidDesign))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
	}{
		{
			name: "没有开始节点",
			builder: NewBuilder("p", "1").AddAutomaticTask("a").AddEndEvent("end").
				AddTransition("a", "end"),
		},
		{
			name: "两个开始节点",
			builder: NewBuilder("p", "1").AddStartEvent("s1").AddStartEvent("s2").AddEndEvent("end").
				AddTransition("s1", "end").AddTransition("s2", "end"),
		},
		{
			name:    "没有结束节点",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddAutomaticTask("a").AddTransition("start", "a").AddTransition("a", "a"),
		},
		{
			name:    "连线目标不存在",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddEndEvent("end").AddTransition("start", "missing"),
		},
		{
			name: "回到开始节点",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddAutomaticTask("a").AddEndEvent("end").
				AddTransition("start", "a").AddTransition("a", "start").AddTransition("a", "end"),
		},
		{
			name: "节点不可达",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddAutomaticTask("orphan").AddEndEvent("end").
				AddTransition("start", "end").AddTransition("orphan", "end"),
		},
		{
			name: "人工任务参与者未声明",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddUserTask("review", "nobody").AddEndEvent("end").
				AddTransition("start", "review").AddTransition("review", "end"),
		},
		{
			name: "节点重名",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddEndEvent("start").
				AddTransition("start", "start"),
		},
		{
			name: "数据类型错误",
			builder: NewBuilder("p", "1").AddData("x", "DATE", "").AddStartEvent("start").AddEndEvent("end").
				AddTransition("start", "end"),
		},
		{
			name: "结束节点有出线",
			builder: NewBuilder("p", "1").AddStartEvent("start").AddEndEvent("end").AddAutomaticTask("a").
				AddTransition("start", "end").AddTransition("end", "a").AddTransition("a", "end"),
		},
		{
			name:    "缺少版本",
			builder: NewBuilder("p", "").AddStartEvent("start").AddEndEvent("end").AddTransition("start", "end"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Done()
			assert.True(t, errors.Is(err, ErrInvalidDesign), "err: %v", err)
		})
	}

	t.Run("退回修改的环可以通过", func(t *testing.T) {
		d, err := NewBuilder("p", "1").AddActor("employee", true).
			AddStartEvent("start").AddUserTask("review", "employee").AddUserTask("rework", "employee").AddEndEvent("end").
			AddTransition("start", "review").
			AddConditionalTransition("review", "rework", "accepted != true").
			AddConditionalTransition("review", "end", "accepted == true").
			AddTransition("rework", "review").
			Done()
		require.NoError(t, err)
		node, ok := d.GetFlowNode("rework")
		require.True(t, ok)
		assert.Equal(t, "review", node.Transitions[0].Target)
	})

	t.Run("连接器事件错误", func(t *testing.T) {
		_, err := NewBuilder("p", "1").AddStartEvent("start").AddAutomaticTask("a").AddEndEvent("end").
			AddTransition("start", "a").AddTransition("a", "end").
			AddConnector("a", &ConnectorDefinition{Name: "c", ConnectorID: "echo", Event: "ON_LEAVE"}).
			Done()
		assert.True(t, errors.Is(err, ErrInvalidDesign), "err: %v", err)
	})
}
