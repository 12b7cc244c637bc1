package bpm

import (
	"context"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// apiBase 各个接口共用: 从会话取租户服务, 边界处记录日志并转换错误
type apiBase struct {
	accessor *tenant.ServiceAccessor
}

// services 会话对应租户的服务, 租户必须是 ACTIVATED, 技术用户还可以操作 PAUSED 的租户
func (b *apiBase) services(ctx context.Context) (*tenant.Services, *APISession, error) {
	session, err := SessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	tenantPo, err := store.Get[store.TenantPo](ctx, b.accessor.Platform(), session.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, errors.Wrapf(ErrInvalidSession, "tenant %d not found", session.TenantID)
		}
		return nil, nil, errors.Wrapf(ErrRetrieve, "get tenant failed, tenantID: %d, err: %v", session.TenantID, err)
	}
	switch {
	case tenantPo.Status == TenantStatusActivated:
	case tenantPo.Status == TenantStatusPaused && session.IsTechnical():
	default:
		return nil, nil, errors.Wrapf(ErrTenantStatus, "tenant %s is %s", tenantPo.Name, tenantPo.Status)
	}
	return b.accessor.Tenant(session.TenantID), session, nil
}

// fail 记录日志并转换成对外的错误
func (b *apiBase) fail(ctx context.Context, log *zap.Logger, op string, err error, notFound error, fallback error) error {
	if err == nil {
		return nil
	}
	out := translateError(err, notFound, fallback)
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	if session, _ := SessionFromContext(ctx); session != nil {
		fields = append(fields, zap.Int64("user_id", session.UserID))
	}
	if errors.Is(out, ErrNotFound) || errors.Is(out, ErrInvalidParam) || errors.Is(out, ErrAlreadyExists) {
		log.Debug("bpm api failed", fields...)
	} else {
		log.Warn("bpm api failed", fields...)
	}
	return out
}

func (b *apiBase) log() *zap.Logger {
	return b.accessor.Log()
}

// eachBatch 按 batchSize 分批查询并处理, 处理函数会删除数据时 fromStart 为 true, 每次都从头开始取
func eachBatch[P any](ctx context.Context, repo *store.Repo, conds []store.Cond, fromStart bool, fn func(ctx context.Context, batch []*P) error) error {
	var offset int64
	for {
		pos, err := store.Find[P](ctx, repo, &store.QueryParams{
			Where:   conds,
			OrderBy: []store.OrderBy{{Field: "id"}},
			Page:    store.Range(offset, batchSize),
		})
		if err != nil {
			return err
		}
		if len(pos) == 0 {
			return nil
		}
		if err := fn(ctx, pos); err != nil {
			return err
		}
		if len(pos) < batchSize {
			return nil
		}
		if !fromStart {
			offset += batchSize
		}
	}
}

// page 简单分页查询
func page(conds []store.Cond, startIndex, maxResults int64, order []store.OrderBy) *store.QueryParams {
	return &store.QueryParams{Where: conds, OrderBy: order, Page: pager(startIndex, maxResults)}
}

func idsOf[P any](pos []*P, id func(*P) int64) []int64 {
	ids := make([]int64, 0, len(pos))
	for _, po := range pos {
		ids = append(ids, id(po))
	}
	return ids
}
