package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/metrics"
)

const defaultWait = 5 * time.Second

// FrameView is the JSON form of a frame.
type FrameView struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
}

func viewOf(f frame.Frame) FrameView {
	return FrameView{ID: f.ID(), ParentID: f.ParentID()}
}

func viewsOf(frames []frame.Frame) []FrameView {
	views := make([]FrameView, 0, len(frames))
	for _, f := range frames {
		views = append(views, viewOf(f))
	}
	return views
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/health", s.handleHealth)
	r.GET(s.cfg.MetricsPath, gin.WrapH(metrics.Handler()))

	frames := r.Group("/frames")
	frames.GET("", s.handleFrames)
	frames.GET("/root", s.handleRoot)
	frames.GET("/:id", s.handleFrame)
	frames.GET("/:id/children", s.handleChildren)
	frames.GET("/:id/parent", s.handleParent)
	frames.GET("/:id/wait", s.handleWait)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
		"tree":   s.tree.Stats(),
	}
	if s.status != nil {
		body["components"] = s.status(c.Request.Context())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleFrames(c *gin.Context) {
	frames := s.tree.Frames()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(frames),
		"frames": viewsOf(frames),
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	root, ok := s.tree.Root()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no root frame"})
		return
	}
	c.JSON(http.StatusOK, viewOf(root))
}

func (s *Server) handleFrame(c *gin.Context) {
	id := c.Param("id")
	f, ok := s.tree.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "frame not found", "id": id})
		return
	}
	c.JSON(http.StatusOK, viewOf(f))
}

func (s *Server) handleChildren(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"children": viewsOf(s.tree.ChildFrames(id)),
	})
}

func (s *Server) handleParent(c *gin.Context) {
	id := c.Param("id")
	parent, ok := s.tree.ParentFrame(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "parent not found", "id": id})
		return
	}
	c.JSON(http.StatusOK, viewOf(parent))
}

// handleWait blocks until the frame is registered or the timeout passes.
func (s *Server) handleWait(c *gin.Context) {
	id := c.Param("id")

	timeout := defaultWait
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout", "timeout": raw})
			return
		}
		timeout = d
	}
	if timeout > s.cfg.MaxWait {
		timeout = s.cfg.MaxWait
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	f, err := s.tree.WaitFor(ctx, id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, viewOf(f))
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "frame not registered in time", "id": id, "timeout": timeout.String()})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "id": id})
	}
}
