package api

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	appName    = "voxd"
	appVersion = "2.0.0"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"system":      appName,
		"version":     appVersion,
		"status":      "operational",
		"mode":        s.cfg.Mode,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"connections": s.hub.ConnectionCount(),
	})
}

// handleHealth reports per-service health; any degraded dependency flips the
// overall status but never fails the endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	services := gin.H{}

	if err := s.store.Ping(c.Request.Context()); err != nil {
		services["database"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		services["database"] = "healthy"
	}

	if s.cache.Ping(c.Request.Context()) {
		services["cache"] = "healthy"
	} else {
		services["cache"] = "unhealthy"
		status = "degraded"
	}

	services["voice"] = readiness(s.voice.Ready())
	services["vision"] = readiness(s.vision.Ready())
	services["brain"] = readiness(s.brain.Ready())

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

func readiness(ready bool) string {
	if ready {
		return "healthy"
	}
	return "not_ready"
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ready": true, "timestamp": time.Now().Unix()})
}

func (s *Server) handleAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true, "timestamp": time.Now().Unix()})
}

// handleSystemStats exposes live hub counters for dashboards.
func (s *Server) handleSystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": s.hub.ConnectionCount(),
		"rooms":       s.hub.RoomCount(),
	})
}

func (s *Server) handleSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":       appName,
		"version":    appVersion,
		"mode":       s.cfg.Mode,
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSystemConfig exposes the non-sensitive configuration subset; secrets,
// credentials and connection strings stay out.
func (s *Server) handleSystemConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":      s.cfg.Mode,
		"log_level": s.cfg.LogLevel,
		"hub": gin.H{
			"send_queue_size": s.cfg.SendQueueSize,
			"broadcast_echo":  s.cfg.BroadcastEcho,
			"ping_period":     s.cfg.PingPeriod.String(),
		},
		"limits": gin.H{
			"read_limit":      s.cfg.ReadLimit,
			"message_rate":    s.cfg.MessageRate,
			"message_burst":   s.cfg.MessageBurst,
			"adapter_timeout": s.cfg.AdapterTimeout.String(),
		},
		"llm": gin.H{
			"model": s.cfg.OpenAIModel,
		},
	})
}

func (s *Server) handleSystemUptime(c *gin.Context) {
	uptime := time.Since(s.started)
	c.JSON(http.StatusOK, gin.H{
		"started_at":       s.started.Format(time.RFC3339),
		"uptime_seconds":   int64(uptime.Seconds()),
		"uptime_formatted": formatUptime(uptime),
	})
}

func formatUptime(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}
