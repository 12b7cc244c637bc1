package bpm

import (
	"context"

	"github.com/pkg/errors"
)

// APISession 调用方的会话, 通过 context 传递
// UserID 为 0 表示技术用户, 用于初始化租户
type APISession struct {
	TenantID int64  `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

func (s *APISession) IsTechnical() bool {
	return s.UserID == 0
}

type sessionContextKey struct{}

// WithSession 把会话放到 context 里, 租户相关的接口都从这里取租户
func WithSession(ctx context.Context, session *APISession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext 没有会话返回 ErrInvalidSession
func SessionFromContext(ctx context.Context) (*APISession, error) {
	session, ok := ctx.Value(sessionContextKey{}).(*APISession)
	if !ok || session == nil {
		return nil, errors.WithMessage(ErrInvalidSession, "no session in context")
	}
	if session.TenantID <= 0 {
		return nil, errors.WithMessagef(ErrInvalidSession, "session without tenant, user: %s", session.UserName)
	}
	return session, nil
}
