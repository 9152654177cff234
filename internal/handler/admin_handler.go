package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safeexaminer/proctor-backend/internal/model"
	"github.com/safeexaminer/proctor-backend/internal/monitor"
	"github.com/safeexaminer/proctor-backend/internal/repository"
	"github.com/safeexaminer/proctor-backend/internal/response"
	"github.com/safeexaminer/proctor-backend/internal/service"
	"github.com/safeexaminer/proctor-backend/internal/validator"
)

const defaultActivityLimit = 50

// AdminHandler exposes the proctor dashboard REST endpoints.
type AdminHandler struct {
	proctorService *service.ProctorService
	activityRepo   *repository.ActivityRepository
	recordRepo     *repository.ExamRecordRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	proctorService *service.ProctorService,
	activityRepo *repository.ActivityRepository,
	recordRepo *repository.ExamRecordRepository,
) *AdminHandler {
	return &AdminHandler{
		proctorService: proctorService,
		activityRepo:   activityRepo,
		recordRepo:     recordRepo,
	}
}

// ListStudents godoc
// GET /api/v1/admin/proctor/students
// Returns all monitored sessions in registration order.
func (h *AdminHandler) ListStudents(c *gin.Context) {
	students := h.proctorService.ListStudents()
	response.Success(c, http.StatusOK, gin.H{
		"students": students,
		"total":    len(students),
	})
}

// GetStudent godoc
// GET /api/v1/admin/proctor/students/:id
func (h *AdminHandler) GetStudent(c *gin.Context) {
	status, err := h.proctorService.GetStudent(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrStudentNotMonitored)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"student": status})
}

// SendWarning godoc
// POST /api/v1/admin/proctor/students/:id/warning
// Increments the student's warning count and pushes the warning to their stream.
func (h *AdminHandler) SendWarning(c *gin.Context) {
	var req model.SendWarningRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctorService.SendWarning(c.Param("id"), req.Reason); err != nil {
		if errors.Is(err, monitor.ErrStudentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrStudentNotMonitored)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	status, err := h.proctorService.GetStudent(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"warnings": status.Warnings})
}

// GetProgress godoc
// GET /api/v1/admin/proctor/students/:id/progress?duration=3600
// Returns the in-flight attempt plus a pace analysis against the given
// exam duration in seconds.
func (h *AdminHandler) GetProgress(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.proctorService.GetStudent(sessionID); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrStudentNotMonitored)
		return
	}

	progress, ok := h.proctorService.GetExamProgress(sessionID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveExam)
		return
	}

	duration, err := strconv.Atoi(c.DefaultQuery("duration", "0"))
	if err != nil || duration < 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	data := gin.H{"progress": progress}
	if duration > 0 {
		data["time_analysis"] = h.proctorService.AnalyzeTime(sessionID, duration)
	}
	response.Success(c, http.StatusOK, data)
}

// GetStats godoc
// GET /api/v1/admin/proctor/students/:id/stats
// Returns the exam history summary for one monitored session.
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.proctorService.GetExamStats(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrStudentNotMonitored)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// GetRecentActivities godoc
// GET /api/v1/admin/proctor/students/:id/activities?limit=50
// Returns persisted activity events for one session, newest first.
func (h *AdminHandler) GetRecentActivities(c *gin.Context) {
	sessionID := c.Param("id")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultActivityLimit)))
	if err != nil || limit < 1 || limit > 500 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	events, err := h.activityRepo.ListRecentByStudent(c.Request.Context(), sessionID, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"activities": events,
		"total":      len(events),
	})
}

// GetExamHistory godoc
// GET /api/v1/admin/proctor/students/:id/history
// Returns persisted exam records for one session, oldest first.
func (h *AdminHandler) GetExamHistory(c *gin.Context) {
	records, err := h.recordRepo.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}
