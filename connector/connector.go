// Package connector 连接器: 流程节点进入或结束时同步调用的外部实现
package connector

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrConnectorNotFound          = errors.New("connector not found")
	ErrConnectorAlreadyRegistered = errors.New("connector already registered")
)

var connectors = sync.Map{}

// Connector 连接器实现,需要外部注册
type Connector interface {
	/**
	 * @description: 执行连接器
	 * @param ctx context.Context
	 * @param inputs map[string]any 输入, 由连接器定义中的表达式计算得到
	 * @return map[string]any 输出, 按连接器定义中的输出映射写回流程变量
	 * @return error 返回错误时, 节点变成失败状态, 可以重试
	 */
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// Func 函数形式的连接器
type Func func(ctx context.Context, inputs map[string]any) (map[string]any, error)

func (f Func) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return f(ctx, inputs)
}

// Register 注册连接器, 同名重复注册返回错误
func Register(connectorID string, c Connector) error {
	if c == nil {
		return errors.New("connector is nil")
	}
	if connectorID == "" {
		return errors.New("connectorID is empty")
	}
	if _, loaded := connectors.LoadOrStore(connectorID, c); loaded {
		return errors.WithMessagef(ErrConnectorAlreadyRegistered, "connectorID: %s", connectorID)
	}
	return nil
}

// MustRegister 注册失败直接 panic, 在 init 中使用
func MustRegister(connectorID string, c Connector) {
	if err := Register(connectorID, c); err != nil {
		panic(err)
	}
}

func Get(connectorID string) (Connector, error) {
	c, ok := connectors.Load(connectorID)
	if !ok {
		return nil, errors.WithMessagef(ErrConnectorNotFound, "connectorID: %s", connectorID)
	}
	impl, ok := c.(Connector)
	if !ok {
		return nil, errors.WithMessagef(ErrConnectorNotFound, "connectorID: %s, type error", connectorID)
	}
	return impl, nil
}

// IsRegistered 部署流程时检查连接器是否存在
func IsRegistered(connectorID string) bool {
	_, ok := connectors.Load(connectorID)
	return ok
}
