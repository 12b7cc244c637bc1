package rest

import (
	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/gin-gonic/gin"
)

func (s *Server) createUser(c *gin.Context) {
	var req bpm.UserCreator
	if !s.bindJSON(c, &req) {
		return
	}
	user, err := s.client.Identity.CreateUser(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, user)
}

func (s *Server) getUser(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	user, err := s.client.Identity.GetUser(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) updateUser(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var req bpm.UserUpdater
	if !s.bindJSON(c, &req) {
		return
	}
	user, err := s.client.Identity.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) deleteUser(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Identity.DeleteUser(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) searchUsers(c *gin.Context) {
	var req bpm.SearchOptions
	if !s.bindJSON(c, &req) {
		return
	}
	result, err := s.client.Identity.SearchUsers(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) createRole(c *gin.Context) {
	var req bpm.RoleCreator
	if !s.bindJSON(c, &req) {
		return
	}
	role, err := s.client.Identity.CreateRole(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, role)
}

func (s *Server) getRole(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	role, err := s.client.Identity.GetRole(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, role)
}

func (s *Server) createGroup(c *gin.Context) {
	var req bpm.GroupCreator
	if !s.bindJSON(c, &req) {
		return
	}
	group, err := s.client.Identity.CreateGroupFromCreator(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, group)
}

func (s *Server) getGroup(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	group, err := s.client.Identity.GetGroup(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, group)
}

func (s *Server) deleteGroup(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Identity.DeleteGroup(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

type membershipRequest struct {
	UserID  int64 `json:"user_id" binding:"required"`
	GroupID int64 `json:"group_id" binding:"required"`
	RoleID  int64 `json:"role_id" binding:"required"`
}

func (s *Server) addMembership(c *gin.Context) {
	var req membershipRequest
	if !s.bindJSON(c, &req) {
		return
	}
	membership, err := s.client.Identity.AddUserMembership(c.Request.Context(), req.UserID, req.GroupID, req.RoleID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, membership)
}
