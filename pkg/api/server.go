// Package api exposes the daemon's HTTP surface: task submission, task and
// event polling, and a health endpoint backed by the supervisor snapshot.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentswarm/swarmd/pkg/actors"
	"github.com/agentswarm/swarmd/pkg/events"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
	"github.com/agentswarm/swarmd/pkg/version"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// defaultListLimit applies when a list request carries no limit.
const defaultListLimit = 100

// TaskSubmitter accepts external task assignments; the dispatcher
// implements it.
type TaskSubmitter interface {
	Submit(assigned models.TaskAssigned) bool
}

// StatsSource serves supervisor counters; the supervisor implements it.
type StatsSource interface {
	Snapshot() (actors.Stats, error)
}

// Server is the HTTP API server.
type Server struct {
	registry  *registry.Registry
	bus       *events.Bus
	submitter TaskSubmitter
	stats     StatsSource
	engine    *gin.Engine
	http      *http.Server
	logger    *slog.Logger
}

// NewServer wires routes onto a gin engine. stats may be nil, in which case
// /healthz reports healthy without counters.
func NewServer(reg *registry.Registry, bus *events.Bus, submitter TaskSubmitter, stats StatsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		registry:  reg,
		bus:       bus,
		submitter: submitter,
		stats:     stats,
		engine:    engine,
		logger:    logger.With("component", "api"),
	}

	engine.GET("/healthz", s.health)
	v1 := engine.Group("/api/v1")
	{
		v1.POST("/tasks", s.createTask)
		v1.GET("/tasks", s.listTasks)
		v1.GET("/tasks/:id", s.getTask)
		v1.GET("/events", s.listEvents)
	}
	return s
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves on addr until Shutdown. Returns http.ErrServerClosed on a
// clean stop.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP API listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"version": version.Full(),
	}
	if s.stats != nil {
		stats, err := s.stats.Snapshot()
		if err != nil {
			if errors.Is(err, actors.ErrSupervisorBusy) {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		resp["tasks"] = gin.H{
			"started":     stats.Started,
			"completed":   stats.Completed,
			"failed":      stats.Failed,
			"escalations": stats.Escalations,
		}
	}
	c.JSON(http.StatusOK, resp)
}
