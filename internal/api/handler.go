package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/quake-notify/internal/repository"
)

// Runner triggers one ingestion run on demand; implemented by the
// ingestion coordinator.
type Runner interface {
	RunSource(ctx context.Context, name string) error
}

type Handler struct {
	repo   repository.EventRepository
	runner Runner
}

func NewHandler(repo repository.EventRepository, runner Runner) *Handler {
	return &Handler{
		repo:   repo,
		runner: runner,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/events", h.getEvents)
	r.GET("/health", h.health)
	r.POST("/api/debug/run/:source", h.triggerRun)
}

func (h *Handler) getEvents(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 events if limit param not supplied
	}

	if s := c.Query("source"); s != "" {
		filter.Source = s
	}
	if m := c.Query("min_magnitude"); m != "" {
		if mag, err := strconv.ParseFloat(m, 64); err == nil {
			filter.MinMagnitude = &mag
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	events, err := h.repo.ListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch events",
		})
		return
	}

	fc := toGeoJSON(events)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// triggerRun kicks off one run for a source outside its polling
// schedule. Debug only; the scheduler is responsible for not overlapping
// runs of the same source.
func (h *Handler) triggerRun(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion not running"})
		return
	}

	source := c.Param("source")
	if err := h.runner.RunSource(c.Request.Context(), source); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "run complete", "source": source})
}
