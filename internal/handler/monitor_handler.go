package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/middleware"
	"github.com/safeexaminer/proctor-backend/internal/model"
	"github.com/safeexaminer/proctor-backend/internal/response"
	"github.com/safeexaminer/proctor-backend/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second

	// Buffered bridge between bus callbacks and the SSE write loop. The bus
	// delivers on the signal producer's goroutine, so a slow admin client
	// must never block it; overflow drops status frames (the next one
	// carries the full picture anyway).
	statusBridgeSize   = 8
	activityBridgeSize = 64
)

// MonitorHandler streams live proctoring state to admin dashboards over SSE.
type MonitorHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

func NewMonitorHandler(proctorService *service.ProctorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorSSE godoc
// GET /api/v1/admin/proctor/monitor
// Streams an initial snapshot followed by live status and activity frames.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	// Initial snapshot so the dashboard renders before the first event.
	students := h.proctorService.ListStudents()
	inExam := 0
	for _, s := range students {
		if s.IsInExam {
			inExam++
		}
	}
	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"students": students,
			"stats": gin.H{
				"total_monitored": len(students),
				"total_in_exam":   inExam,
			},
		},
	})
	c.Writer.Flush()

	statusCh := make(chan []model.StudentStatus, statusBridgeSize)
	activityCh := make(chan model.ActivityEvent, activityBridgeSize)

	unsubStatus := h.proctorService.Bus().SubscribeStatus(func(snapshot []model.StudentStatus) {
		select {
		case statusCh <- snapshot:
		default:
		}
	})
	defer unsubStatus()

	unsubActivity := h.proctorService.Bus().SubscribeActivity(func(ev model.ActivityEvent) {
		select {
		case activityCh <- ev:
		default:
			h.log.Warn().Str("type", string(ev.Type)).Msg("Activity frame dropped for slow SSE client")
		}
	})
	defer unsubActivity()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Int("admin_id", claims.UserID).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int("admin_id", claims.UserID).Msg("Admin disconnected from live monitor SSE")
			return

		case snapshot := <-statusCh:
			c.SSEvent("message", gin.H{
				"type":     "status",
				"students": snapshot,
			})
			c.Writer.Flush()

		case ev := <-activityCh:
			c.SSEvent("message", gin.H{
				"type":  "activity",
				"event": ev,
			})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}
