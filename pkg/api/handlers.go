package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
)

// createTaskRequest is the POST /api/v1/tasks body. TaskID is optional;
// omitted ids are generated.
type createTaskRequest struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	accepted := s.submitter.Submit(models.TaskAssigned{
		TaskID:      req.TaskID,
		Title:       req.Title,
		Description: req.Description,
		AssignedAt:  time.Now().UTC(),
	})
	if !accepted {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatcher is shutting down"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": req.TaskID})
}

func (s *Server) listTasks(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tasks := s.registry.GetTasks(limit)
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) getTask(c *gin.Context) {
	snap, err := s.registry.GetTask(c.Param("id"))
	if err != nil {
		if errors.Is(err, registry.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) listEvents(c *gin.Context) {
	after, err := queryInt64(c, "after", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	envs := s.bus.Since(after, c.Query("task_id"), limit)
	c.JSON(http.StatusOK, gin.H{
		"events": envs,
		"cursor": s.bus.Cursor(),
	})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func queryInt64(c *gin.Context, key string, fallback int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
