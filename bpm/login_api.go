package bpm

import (
	"context"
	"time"

	"github.com/blingmoon/simple-bpm/internal/auth"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type loginAPI struct {
	*apiBase
}

func (a *loginAPI) Login(ctx context.Context, tenantName, userName, password string) (*LoginResult, error) {
	tenantPo, err := a.loginTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	session := &APISession{TenantID: tenantPo.ID, UserName: userName}
	if a.accessor.IsTechnicalUser(userName, password) {
		if tenantPo.Status != TenantStatusActivated && tenantPo.Status != TenantStatusPaused {
			return nil, errors.Wrapf(ErrTenantStatus, "tenant %s is %s", tenantPo.Name, tenantPo.Status)
		}
	} else {
		if tenantPo.Status != TenantStatusActivated {
			return nil, errors.Wrapf(ErrTenantStatus, "tenant %s is %s", tenantPo.Name, tenantPo.Status)
		}
		svc := a.accessor.Tenant(tenantPo.ID)
		user, err := store.First[store.UserPo](ctx, svc.Repo, store.Eq("user_name", userName))
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil, errors.Wrapf(ErrLoginFailed, "tenant: %s, user: %s", tenantPo.Name, userName)
			}
			return nil, a.fail(ctx, svc.Log, "Login", err, nil, ErrLoginFailed)
		}
		if !user.Enabled || !auth.VerifyPassword(password, user.Password) {
			svc.Log.Info("login refused", zap.String("user_name", userName), zap.Bool("enabled", user.Enabled))
			return nil, errors.Wrapf(ErrLoginFailed, "tenant: %s, user: %s", tenantPo.Name, userName)
		}
		if err := store.UpdateByID[store.UserPo](ctx, svc.Repo, user.ID, map[string]any{
			"last_connection": time.Now().UnixMilli(),
		}); err != nil {
			// 不影响登录
			svc.Log.Warn("update last connection failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		session.UserID = user.ID
	}
	token, err := a.accessor.Tokens().Generate(auth.Session{
		TenantID: session.TenantID,
		UserID:   session.UserID,
		UserName: session.UserName,
	})
	if err != nil {
		return nil, a.fail(ctx, a.log(), "Login", err, nil, ErrLoginFailed)
	}
	return &LoginResult{Session: session, Token: token}, nil
}

// loginTenant 租户名为空时使用默认租户
func (a *loginAPI) loginTenant(ctx context.Context, tenantName string) (*store.TenantPo, error) {
	cond := store.Eq("name", tenantName)
	if tenantName == "" {
		cond = store.Eq("is_default", true)
	}
	po, err := store.First[store.TenantPo](ctx, a.accessor.Platform(), cond)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrLoginFailed, "tenant %q not found", tenantName)
		}
		return nil, a.fail(ctx, a.log(), "Login", err, nil, ErrLoginFailed)
	}
	return po, nil
}

func (a *loginAPI) Logout(ctx context.Context, token string) error {
	if err := a.accessor.Tokens().Revoke(token); err != nil {
		return errors.Wrapf(ErrInvalidSession, "%v", err)
	}
	return nil
}

func (a *loginAPI) SessionFromToken(ctx context.Context, token string) (*APISession, error) {
	claims, err := a.accessor.Tokens().Validate(token)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSession, "%v", err)
	}
	return &APISession{
		TenantID: claims.Session.TenantID,
		UserID:   claims.Session.UserID,
		UserName: claims.Session.UserName,
	}, nil
}
