// Package server exposes the dashboard API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
	"auto_linkedin_poster/settings"
)

type Store interface {
	ListTopics(limit int, source model.Source) ([]model.Topic, error)
	ListPosts(limit int, status model.PostStatus) ([]model.Post, error)
	ListLogs(limit int, component string) ([]model.SystemLog, error)
}

type Settings interface {
	Get() model.Settings
	Update(u settings.Update) (model.Settings, error)
	Status() model.Status
}

type Generator interface {
	Generate(ctx context.Context, topicIDs []int64) (model.Post, error)
}

type Publisher interface {
	Publish(ctx context.Context, id int64, trigger model.Trigger) (model.Post, error)
	Edit(id int64, fn func(p *model.Post) error) (model.Post, error)
	Delete(id int64) error
}

type Scheduler interface {
	FetchNow(ctx context.Context) error
	GenerateNow(ctx context.Context) error
	Pause() (model.Settings, error)
	Resume() (model.Settings, error)
}

type Deps struct {
	Store     Store
	Settings  Settings
	Generator Generator
	Publisher Publisher
	Scheduler Scheduler
	Metrics   *metrics.Metrics
	Logger    logging.Logger
}

type Options struct {
	Addr          string
	CORSOrigins   []string
	MaxPostLength int
	// Journal records operator actions alongside the scheduler's entries.
	Journal *logging.Journal
}

type Server struct {
	deps Deps
	opts Options
	http *http.Server
}

func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	s := &Server{deps: deps, opts: opts}
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID())
	r.Use(accessLog(s.deps.Logger, s.deps.Metrics))
	r.Use(recovery(s.deps.Logger))
	r.Use(cors(s.opts.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	api := r.Group("/api")
	api.GET("/status", s.getStatus)
	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.updateSettings)
	api.GET("/topics", s.listTopics)
	api.GET("/posts", s.listPosts)
	api.POST("/posts/generate", s.generatePost)
	api.POST("/posts/:id/publish", s.publishPost)
	api.PUT("/posts/:id", s.updatePost)
	api.DELETE("/posts/:id", s.deletePost)
	api.POST("/fetch-now", s.fetchNow)
	api.POST("/generate-now", s.generateNow)
	api.POST("/scheduler/pause", s.pause)
	api.POST("/scheduler/resume", s.resume)
	api.GET("/logs", s.listLogs)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.WithField("addr", s.opts.Addr).Info("starting http server")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.deps.Logger.Info("http server stopped")
	return nil
}
