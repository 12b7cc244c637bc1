// Package tenant 按租户组装服务, 会话里的租户ID 决定使用哪一组服务
package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/blingmoon/simple-bpm/internal/auth"
	"github.com/blingmoon/simple-bpm/internal/document"
	"github.com/blingmoon/simple-bpm/internal/engine"
	"github.com/blingmoon/simple-bpm/internal/expression"
	"github.com/blingmoon/simple-bpm/internal/lock"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 组装服务需要的依赖, 由调用方创建
type Options struct {
	DB          *gorm.DB
	Lock        lock.LockService
	Documents   *document.Store
	Tokens      *auth.TokenIssuer
	Expressions *expression.Engine // 为空时新建
	Log         *zap.Logger

	LockMaxTime     time.Duration
	LockWaitTimeout time.Duration
	// 技术用户, 不在用户表里
	TechnicalUser     string
	TechnicalPassword string
	PlatformVersion   string
}

// Services 一个租户的服务
type Services struct {
	TenantID  int64
	Repo      *store.Repo
	Engine    *engine.Engine
	Documents *document.Store
	Log       *zap.Logger
	locker    lock.LockService
	maxLock   time.Duration
	wait      time.Duration
}

// Synchronized 在流程实例锁内执行
func (s *Services) Synchronized(ctx context.Context, processInstanceID int64, f func(context.Context) error) error {
	return lock.Synchronized(ctx, s.locker, lock.ProcessInstanceKey(s.TenantID, processInstanceID), s.maxLock, s.wait, f)
}

// SynchronizedDefinition 在流程定义锁内执行
func (s *Services) SynchronizedDefinition(ctx context.Context, processDefinitionID int64, f func(context.Context) error) error {
	return lock.Synchronized(ctx, s.locker, lock.ProcessDefinitionKey(s.TenantID, processDefinitionID), s.maxLock, s.wait, f)
}

// ServiceAccessor 平台服务和租户服务的入口, 租户服务按需创建并缓存
type ServiceAccessor struct {
	opts     Options
	platform *store.Repo
	tenants  sync.Map // tenantID -> *Services
}

func NewServiceAccessor(opts Options) (*ServiceAccessor, error) {
	if opts.DB == nil || opts.Lock == nil || opts.Documents == nil || opts.Tokens == nil {
		return nil, errors.New("ServiceAccessor needs db, lock, documents and tokens")
	}
	if opts.Expressions == nil {
		opts.Expressions = expression.NewEngine()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &ServiceAccessor{opts: opts, platform: store.NewPlatformRepo(opts.DB)}, nil
}

func (a *ServiceAccessor) Platform() *store.Repo {
	return a.platform
}

func (a *ServiceAccessor) Tenant(tenantID int64) *Services {
	if v, ok := a.tenants.Load(tenantID); ok {
		return v.(*Services)
	}
	repo := store.NewTenantRepo(a.opts.DB, tenantID)
	log := a.opts.Log.With(zap.Int64("tenant_id", tenantID))
	services := &Services{
		TenantID:  tenantID,
		Repo:      repo,
		Engine:    engine.New(repo, a.opts.Expressions, log),
		Documents: a.opts.Documents,
		Log:       log,
		locker:    a.opts.Lock,
		maxLock:   a.opts.LockMaxTime,
		wait:      a.opts.LockWaitTimeout,
	}
	actual, _ := a.tenants.LoadOrStore(tenantID, services)
	return actual.(*Services)
}

// Forget 删除租户后清理缓存
func (a *ServiceAccessor) Forget(tenantID int64) {
	a.tenants.Delete(tenantID)
}

// SynchronizedTenant 在租户锁内执行, 删除租户时使用
func (a *ServiceAccessor) SynchronizedTenant(ctx context.Context, tenantID int64, f func(context.Context) error) error {
	return lock.Synchronized(ctx, a.opts.Lock, lock.TenantKey(tenantID), a.opts.LockMaxTime, a.opts.LockWaitTimeout, f)
}

func (a *ServiceAccessor) Tokens() *auth.TokenIssuer       { return a.opts.Tokens }
func (a *ServiceAccessor) Documents() *document.Store      { return a.opts.Documents }
func (a *ServiceAccessor) Expressions() *expression.Engine { return a.opts.Expressions }
func (a *ServiceAccessor) Log() *zap.Logger                { return a.opts.Log }
func (a *ServiceAccessor) PlatformVersion() string         { return a.opts.PlatformVersion }

// IsTechnicalUser 技术用户账号密码校验
func (a *ServiceAccessor) IsTechnicalUser(userName, password string) bool {
	return a.opts.TechnicalUser != "" && userName == a.opts.TechnicalUser && password == a.opts.TechnicalPassword
}
