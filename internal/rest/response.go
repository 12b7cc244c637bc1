package rest

import (
	"net/http"
	"strconv"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// 错误码, 返回给调用方
const (
	CodeOK           = "OK"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInvalidParam = "INVALID_PARAM"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeLocked       = "LOCKED"
	CodeInternal     = "INTERNAL"
)

// statusOf 引擎错误 -> http 状态码
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, bpm.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, bpm.ErrAlreadyExists):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, bpm.ErrInvalidParam), errors.Is(err, bpm.ErrSearch),
		errors.Is(err, bpm.ErrExpressionEvaluation):
		return http.StatusBadRequest, CodeInvalidParam
	case errors.Is(err, bpm.ErrInvalidSession), errors.Is(err, bpm.ErrLoginFailed):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, bpm.ErrLockFailed):
		return http.StatusLocked, CodeLocked
	case errors.Is(err, bpm.ErrTenantStatus), errors.Is(err, bpm.ErrProcessEnablement),
		errors.Is(err, bpm.ErrProcessActivation), errors.Is(err, bpm.ErrTaskAssignment),
		errors.Is(err, bpm.ErrFlowNodeExecution), errors.Is(err, bpm.ErrUpdate),
		errors.Is(err, bpm.ErrDeletion):
		// 状态不允许, 比如删除启用中的流程
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": err.Error(),
		"data":    nil,
	})
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": CodeOK, "message": "", "data": data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"code": CodeOK, "message": "", "data": data})
}

// bindJSON 失败时直接返回 400
func (s *Server) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "body: %v", err))
		return false
	}
	return true
}

func (s *Server) paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "invalid %s: %s", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

const defaultPageSize = 20

type pageQuery struct {
	StartIndex int64 `form:"start_index" binding:"gte=0"`
	MaxResults int64 `form:"max_results" binding:"gte=0,lte=1000"`
}

func (s *Server) bindPage(c *gin.Context) (*pageQuery, bool) {
	q := &pageQuery{}
	if err := c.ShouldBindQuery(q); err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "query: %v", err))
		return nil, false
	}
	if q.MaxResults == 0 {
		q.MaxResults = defaultPageSize
	}
	return q, true
}
