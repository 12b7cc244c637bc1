package rest

import (
	"context"
	"io"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/blingmoon/simple-bpm/design"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// deploy 请求体是流程设计的 json
func (s *Server) deploy(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "read body: %v", err))
		return
	}
	d, err := design.Unmarshal(body)
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "%v", err))
		return
	}
	def, err := s.client.Process.Deploy(c.Request.Context(), d)
	if err != nil {
		s.respondError(c, err)
		return
	}
	info, err := s.client.Process.GetProcessDeploymentInfo(c.Request.Context(), def.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, info)
}

func (s *Server) getDeploymentInfo(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	info, err := s.client.Process.GetProcessDeploymentInfo(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, info)
}

func (s *Server) deleteDefinition(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Process.DeleteProcessDefinition(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) enableDefinition(c *gin.Context) {
	s.definitionAction(c, s.client.Process.EnableProcess)
}

func (s *Server) disableDefinition(c *gin.Context) {
	s.definitionAction(c, s.client.Process.DisableProcess)
}

func (s *Server) definitionAction(c *gin.Context, action func(ctx context.Context, id int64) error) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := action(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	s.getDeploymentInfo(c)
}

func (s *Server) getProblems(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	problems, err := s.client.Process.GetProcessResolutionProblems(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, problems)
}

func (s *Server) importActorMapping(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "read body: %v", err))
		return
	}
	if err := s.client.Process.ImportActorMapping(c.Request.Context(), id, body); err != nil {
		s.respondError(c, err)
		return
	}
	s.getProblems(c)
}

type startRequest struct {
	// UserID 不为 0 时替该用户启动
	UserID    int64          `json:"user_id"`
	Variables map[string]any `json:"variables"`
}

func (s *Server) startProcess(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var req startRequest
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}
	var (
		instance *bpm.ProcessInstance
		err      error
	)
	if req.UserID != 0 {
		instance, err = s.client.Process.StartProcessFor(c.Request.Context(), id, req.UserID, req.Variables)
	} else {
		instance, err = s.client.Process.StartProcess(c.Request.Context(), id, req.Variables)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, instance)
}

func (s *Server) getInstance(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	instance, err := s.client.Process.GetProcessInstance(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, instance)
}

func (s *Server) deleteInstance(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Process.DeleteProcessInstance(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) cancelInstance(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Process.CancelProcessInstance(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) getInstanceData(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	page, ok := s.bindPage(c)
	if !ok {
		return
	}
	data, err := s.client.Process.GetProcessDataInstances(c.Request.Context(), id, page.StartIndex, page.MaxResults)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, data)
}

func (s *Server) getActivities(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	page, ok := s.bindPage(c)
	if !ok {
		return
	}
	activities, err := s.client.Process.GetFlowNodeInstances(c.Request.Context(), id, page.StartIndex, page.MaxResults)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, activities)
}

func (s *Server) retryActivity(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Process.RetryTask(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	activity, err := s.client.Process.GetActivityInstance(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, activity)
}

// myTasks 会话用户可以处理的任务
func (s *Server) myTasks(c *gin.Context) {
	page, ok := s.bindPage(c)
	if !ok {
		return
	}
	session, err := bpm.SessionFromContext(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	result, err := s.client.Process.SearchMyAvailableHumanTasks(c.Request.Context(), session.UserID,
		bpm.NewSearchOptions(page.StartIndex, page.MaxResults))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) claimTask(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	session, err := bpm.SessionFromContext(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.client.Process.AssignUserTaskIfNotAssigned(c.Request.Context(), id, session.UserID); err != nil {
		s.respondError(c, err)
		return
	}
	s.getTask(c, id)
}

func (s *Server) releaseTask(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.client.Process.ReleaseUserTask(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	s.getTask(c, id)
}

func (s *Server) executeTask(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	inputs := map[string]any{}
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &inputs) {
		return
	}
	if err := s.client.Process.ExecuteUserTask(c.Request.Context(), id, inputs); err != nil {
		s.respondError(c, err)
		return
	}
	s.getTask(c, id)
}

func (s *Server) getTask(c *gin.Context, id int64) {
	task, err := s.client.Process.GetHumanTaskInstance(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, task)
}

// bindSearch 请求体就是 bpm.SearchOptions, 为空时取第一页
func (s *Server) bindSearch(c *gin.Context) (*bpm.SearchOptions, bool) {
	options := bpm.NewSearchOptions(0, defaultPageSize)
	if c.Request.ContentLength != 0 && !s.bindJSON(c, options) {
		return nil, false
	}
	return options, true
}

func (s *Server) searchDefinitions(c *gin.Context) {
	options, ok := s.bindSearch(c)
	if !ok {
		return
	}
	result, err := s.client.Process.SearchProcessDeploymentInfos(c.Request.Context(), options)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, result)
}

// searchInstances archived=true 时检索归档实例
func (s *Server) searchInstances(c *gin.Context) {
	options, ok := s.bindSearch(c)
	if !ok {
		return
	}
	if c.Query("archived") == "true" {
		result, err := s.client.Process.SearchArchivedProcessInstances(c.Request.Context(), options)
		if err != nil {
			s.respondError(c, err)
			return
		}
		respondOK(c, result)
		return
	}
	result, err := s.client.Process.SearchOpenProcessInstances(c.Request.Context(), options)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) getComments(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	comments, err := s.client.Process.GetComments(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, comments)
}

type commentRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) addComment(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if !s.bindJSON(c, &req) {
		return
	}
	comment, err := s.client.Process.AddProcessComment(c.Request.Context(), id, req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, comment)
}

func (s *Server) getDocuments(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	page, ok := s.bindPage(c)
	if !ok {
		return
	}
	options := bpm.NewSearchOptions(page.StartIndex, page.MaxResults).Filter("processInstanceId", id)
	result, err := s.client.Process.SearchDocuments(c.Request.Context(), options)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, result)
}

// attachDocument multipart 上传, 表单字段 name 和 file, mime 类型由内容识别
func (s *Server) attachDocument(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	name := c.PostForm("name")
	header, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "file: %v", err))
		return
	}
	f, err := header.Open()
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "open file: %v", err))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		s.respondError(c, errors.Wrapf(bpm.ErrInvalidParam, "read file: %v", err))
		return
	}
	doc, err := s.client.Process.AttachDocument(c.Request.Context(), id, name, header.Filename, "", content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondCreated(c, doc)
}

type assignRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func (s *Server) assignTask(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.client.Process.AssignUserTask(c.Request.Context(), id, req.UserID); err != nil {
		s.respondError(c, err)
		return
	}
	s.getTask(c, id)
}
