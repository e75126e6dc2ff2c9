package health

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"renderwatch/internal/core/limiter"
	"renderwatch/internal/logger"
	"renderwatch/internal/platform/engine"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports process health: engine connectivity, inbox
// accessibility, and queue pressure.
type HealthHandler struct {
	log       *logger.Logger
	engine    *engine.Engine
	limiter   *limiter.Limiter
	inboxDir  string
	startTime time.Time
	isReady   bool
}

func NewHealthHandler(eng *engine.Engine, lim *limiter.Limiter, inboxDir string) *HealthHandler {
	return &HealthHandler{
		log:       logger.New("HealthCheck"),
		engine:    eng,
		limiter:   lim,
		inboxDir:  inboxDir,
		startTime: time.Now(),
	}
}

// SetReady marks the application as ready to receive traffic
func (h *HealthHandler) SetReady() {
	h.isReady = true
	h.log.LogSuccessf("Application marked as ready for traffic after %v", time.Since(h.startTime))
}

// ComponentStatus holds the status of a dependent component
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OverallHealth represents the overall health status including components
type OverallHealth struct {
	OverallStatus string                     `json:"overall_status"`
	Timestamp     string                     `json:"timestamp"`
	Ready         bool                       `json:"ready"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	QueueDepth    int                        `json:"queue_depth"`
	ActiveJobs    int                        `json:"active_jobs"`
	Components    map[string]ComponentStatus `json:"components"`
}

// HandleHealth responds with the system's health status, including dependencies
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	statuses := make(map[string]ComponentStatus)
	allOk := true

	check := func(name string, fn func() error) {
		state := ComponentStatus{Status: "ok"}
		if err := fn(); err != nil {
			state = ComponentStatus{Status: "error", Error: err.Error()}
			allOk = false
			h.log.LogErrorf("health check failed for %s: %v", name, err)
		}
		statuses[name] = state
	}

	check("engine", func() error {
		if !h.engine.Connected() {
			return fmt.Errorf("browser disconnected")
		}
		return nil
	})
	check("inbox", func() error {
		info, err := os.Stat(h.inboxDir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", h.inboxDir)
		}
		return nil
	})

	response := OverallHealth{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Ready:         h.isReady,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		QueueDepth:    h.limiter.Len(),
		ActiveJobs:    h.limiter.Active(),
		Components:    statuses,
	}

	if allOk && h.isReady {
		response.OverallStatus = "ok"
		return c.Status(http.StatusOK).JSON(response)
	}
	if !h.isReady {
		response.OverallStatus = "starting"
		return c.Status(http.StatusServiceUnavailable).JSON(response)
	}
	response.OverallStatus = "error"
	h.log.LogWarnf("health check failed. Statuses: %+v", statuses)
	return c.Status(http.StatusServiceUnavailable).JSON(response)
}
