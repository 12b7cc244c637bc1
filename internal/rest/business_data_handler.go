package rest

import (
	"encoding/json"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func (s *Server) saveBusinessData(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "read body: %v", err))
		return
	}
	id, err := s.client.BusinessData.SaveBusinessData(c.Request.Context(), c.Param("class"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"persistenceId": id})
}

// getBusinessData ?child=a.b 只返回对象的某个字段
func (s *Server) getBusinessData(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	b, err := s.client.BusinessData.GetJSONBusinessData(c.Request.Context(), c.Param("class"), id, c.Query("child"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, json.RawMessage(b))
}

func (s *Server) updateBusinessData(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "read body: %v", err))
		return
	}
	if err := s.client.BusinessData.UpdateBusinessData(c.Request.Context(), c.Param("class"), id, body); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) deleteBusinessData(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.BusinessData.DeleteBusinessData(c.Request.Context(), c.Param("class"), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}
