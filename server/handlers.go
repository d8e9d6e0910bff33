package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/model"
	"auto_linkedin_poster/settings"
)

const (
	defaultTopicLimit = 50
	defaultPostLimit  = 20
	defaultLogLimit   = 100
	maxListLimit      = 500
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type acceptedBody struct {
	Accepted bool   `json:"accepted"`
	Action   string `json:"action"`
}

type generateRequest struct {
	TopicIDs []int64 `json:"topic_ids"`
}

type updatePostRequest struct {
	Content *string `json:"content"`
}

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation, model.KindInvalidTopics:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindAlreadyRunning, model.KindImmutable:
		return http.StatusConflict
	case model.KindNotConfigured:
		return http.StatusPreconditionFailed
	case model.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := model.KindOf(err)
	code := statusFor(kind)
	msg := err.Error()
	var me *model.Error
	switch {
	case code == http.StatusInternalServerError:
		s.deps.Logger.WithFields(logging.Fields{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString("request_id"),
		}).WithError(err).Error("request failed")
		msg = "internal error"
	case errors.As(err, &me) && me.Message != "":
		msg = me.Message
	}
	c.AbortWithStatusJSON(code, errorBody{Error: string(kind), Message: msg})
}

func badRequest(msg string) error {
	return model.Errorf(model.KindValidation, "%s", msg)
}

func queryLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, model.Errorf(model.KindValidation, "limit must be between 1 and %d", maxListLimit)
	}
	return n, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("post id must be a positive integer")
	}
	return id, nil
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Settings.Status())
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Settings.Get())
}

func (s *Server) updateSettings(c *gin.Context) {
	var u settings.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		s.fail(c, badRequest("invalid settings payload: "+err.Error()))
		return
	}
	updated, err := s.deps.Settings.Update(u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) listTopics(c *gin.Context) {
	limit, err := queryLimit(c, defaultTopicLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	source := model.Source(c.Query("source"))
	if source != "" && !source.Valid() {
		s.fail(c, badRequest("unknown source "+strconv.Quote(string(source))))
		return
	}
	topics, err := s.deps.Store.ListTopics(limit, source)
	if err != nil {
		s.fail(c, err)
		return
	}
	if topics == nil {
		topics = []model.Topic{}
	}
	c.JSON(http.StatusOK, topics)
}

func (s *Server) listPosts(c *gin.Context) {
	limit, err := queryLimit(c, defaultPostLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := model.PostStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		s.fail(c, badRequest("unknown status "+strconv.Quote(string(status))))
		return
	}
	posts, err := s.deps.Store.ListPosts(limit, status)
	if err != nil {
		s.fail(c, err)
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

func (s *Server) generatePost(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid generate payload: "+err.Error()))
		return
	}
	post, err := s.deps.Generator.Generate(c.Request.Context(), req.TopicIDs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) publishPost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	post, err := s.deps.Publisher.Publish(c.Request.Context(), id, model.TriggerManual)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) updatePost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		s.fail(c, badRequest("content is required"))
		return
	}
	post, err := s.deps.Publisher.Edit(id, func(p *model.Post) error {
		return p.Edit(*req.Content, s.opts.MaxPostLength)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.opts.Journal.Info(logging.ComponentPublisher, "post edited", map[string]any{"post_id": id})
	c.JSON(http.StatusOK, post)
}

func (s *Server) deletePost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Publisher.Delete(id); err != nil {
		s.fail(c, err)
		return
	}
	s.opts.Journal.Info(logging.ComponentPublisher, "post deleted", map[string]any{"post_id": id})
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

func (s *Server) fetchNow(c *gin.Context) {
	if err := s.deps.Scheduler.FetchNow(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptedBody{Accepted: true, Action: "fetch"})
}

func (s *Server) generateNow(c *gin.Context) {
	if err := s.deps.Scheduler.GenerateNow(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptedBody{Accepted: true, Action: "generate"})
}

func (s *Server) pause(c *gin.Context) {
	if _, err := s.deps.Scheduler.Pause(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Settings.Status())
}

func (s *Server) resume(c *gin.Context) {
	if _, err := s.deps.Scheduler.Resume(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Settings.Status())
}

func (s *Server) listLogs(c *gin.Context) {
	limit, err := queryLimit(c, defaultLogLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	logs, err := s.deps.Store.ListLogs(limit, c.Query("component"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if logs == nil {
		logs = []model.SystemLog{}
	}
	c.JSON(http.StatusOK, logs)
}
