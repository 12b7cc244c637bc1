package rest

import (
	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type loginRequest struct {
	Tenant   string `json:"tenant"`
	UserName string `json:"user_name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !s.bindJSON(c, &req) {
		return
	}
	result, err := s.client.Login.Login(c.Request.Context(), req.Tenant, req.UserName, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) logout(c *gin.Context) {
	if err := s.client.Login.Logout(c.Request.Context(), c.GetString(tokenContextKey)); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) currentSession(c *gin.Context) {
	session, err := bpm.SessionFromContext(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, session)
}

func (s *Server) listTenants(c *gin.Context) {
	page, ok := s.bindPage(c)
	if !ok {
		return
	}
	tenants, err := s.client.Platform.GetTenants(c.Request.Context(), page.StartIndex, page.MaxResults, bpm.TenantCriterionNameAsc)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, tenants)
}

func (s *Server) createTenant(c *gin.Context) {
	var req bpm.TenantCreator
	if !s.bindJSON(c, &req) {
		return
	}
	tenant, err := s.client.Platform.CreateTenant(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, tenant)
}

func (s *Server) getTenant(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	tenant, err := s.client.Platform.GetTenantByID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, tenant)
}

func (s *Server) changeTenantStatus(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var err error
	switch action := c.Param("action"); action {
	case "activate":
		err = s.client.Platform.ActivateTenant(ctx, id)
	case "deactivate":
		err = s.client.Platform.DeactivateTenant(ctx, id)
	case "pause":
		err = s.client.Platform.PauseTenant(ctx, id)
	case "resume":
		err = s.client.Platform.ResumeTenant(ctx, id)
	default:
		err = errors.Wrapf(bpm.ErrInvalidParam, "unknown tenant action: %s", action)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	tenant, err := s.client.Platform.GetTenantByID(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, tenant)
}

func (s *Server) deleteTenant(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Platform.DeleteTenant(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}
