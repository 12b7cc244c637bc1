// Package rest 用 gin 暴露引擎的 http 接口
//
// 除了登录, 所有接口都需要 Authorization: Bearer <token>,
// 中间件把 token 对应的会话放到请求的 context 里
package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const tokenContextKey = "bpm_token"

type Server struct {
	client *bpm.Client
	log    *zap.Logger
}

func NewServer(client *bpm.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{client: client, log: log}
}

// Router 注册所有路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/login", s.login)

	authed := api.Group("")
	authed.Use(s.requireSession())
	authed.POST("/logout", s.logout)
	authed.GET("/session", s.currentSession)

	platform := authed.Group("/platform")
	platform.Use(requireTechnical())
	{
		platform.GET("/tenants", s.listTenants)
		platform.POST("/tenants", s.createTenant)
		platform.GET("/tenants/:id", s.getTenant)
		platform.POST("/tenants/:id/:action", s.changeTenantStatus)
		platform.DELETE("/tenants/:id", s.deleteTenant)
	}

	identity := authed.Group("/identity")
	{
		identity.POST("/users", s.createUser)
		identity.GET("/users/:id", s.getUser)
		identity.PUT("/users/:id", s.updateUser)
		identity.DELETE("/users/:id", s.deleteUser)
		identity.POST("/users/search", s.searchUsers)
		identity.POST("/roles", s.createRole)
		identity.GET("/roles/:id", s.getRole)
		identity.POST("/groups", s.createGroup)
		identity.GET("/groups/:id", s.getGroup)
		identity.DELETE("/groups/:id", s.deleteGroup)
		identity.POST("/memberships", s.addMembership)
	}

	process := authed.Group("/process")
	{
		process.POST("/definitions", s.deploy)
		process.POST("/definitions/search", s.searchDefinitions)
		process.GET("/definitions/:id", s.getDeploymentInfo)
		process.DELETE("/definitions/:id", s.deleteDefinition)
		process.POST("/definitions/:id/enable", s.enableDefinition)
		process.POST("/definitions/:id/disable", s.disableDefinition)
		process.GET("/definitions/:id/problems", s.getProblems)
		process.POST("/definitions/:id/actor-mapping", s.importActorMapping)
		process.POST("/definitions/:id/instances", s.startProcess)
		process.POST("/instances/search", s.searchInstances)
		process.GET("/instances/:id", s.getInstance)
		process.DELETE("/instances/:id", s.deleteInstance)
		process.POST("/instances/:id/cancel", s.cancelInstance)
		process.GET("/instances/:id/data", s.getInstanceData)
		process.GET("/instances/:id/activities", s.getActivities)
		process.GET("/instances/:id/comments", s.getComments)
		process.POST("/instances/:id/comments", s.addComment)
		process.GET("/instances/:id/documents", s.getDocuments)
		process.POST("/instances/:id/documents", s.attachDocument)
		process.POST("/activities/:id/retry", s.retryActivity)
		process.GET("/tasks", s.myTasks)
		process.POST("/tasks/:id/claim", s.claimTask)
		process.POST("/tasks/:id/assign", s.assignTask)
		process.POST("/tasks/:id/release", s.releaseTask)
		process.POST("/tasks/:id/execute", s.executeTask)
	}

	bdm := authed.Group("/bdm")
	{
		bdm.POST("/:class", s.saveBusinessData)
		bdm.GET("/:class/:id", s.getBusinessData)
		bdm.PUT("/:class/:id", s.updateBusinessData)
		bdm.DELETE("/:class/:id", s.deleteBusinessData)
	}
	return router
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)))
	}
}

// requireSession 校验 token, 会话放到 c.Request 的 context 里
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			s.respondError(c, errors.WithMessage(bpm.ErrInvalidSession, "missing bearer token"))
			return
		}
		session, err := s.client.Login.SessionFromToken(c.Request.Context(), parts[1])
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Set(tokenContextKey, parts[1])
		c.Request = c.Request.WithContext(bpm.WithSession(c.Request.Context(), session))
		c.Next()
	}
}

// requireTechnical 平台接口只允许技术用户调用
func requireTechnical() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := bpm.SessionFromContext(c.Request.Context())
		if err != nil || !session.IsTechnical() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    CodeForbidden,
				"message": "platform api requires technical user",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
