package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safeexaminer/proctor-backend/internal/middleware"
	"github.com/safeexaminer/proctor-backend/internal/model"
	"github.com/safeexaminer/proctor-backend/internal/monitor"
	"github.com/safeexaminer/proctor-backend/internal/repository"
	"github.com/safeexaminer/proctor-backend/internal/response"
	"github.com/safeexaminer/proctor-backend/internal/service"
	"github.com/safeexaminer/proctor-backend/internal/validator"
)

// AuthHandler handles authentication endpoints. Student login also creates
// the live monitor session, so a freshly logged-in student shows up on the
// proctor dashboard immediately.
type AuthHandler struct {
	authService    *service.AuthService
	proctorService *service.ProctorService
	studentRepo    *repository.StudentRepository
	adminRepo      *repository.AdminRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	proctorService *service.ProctorService,
	studentRepo *repository.StudentRepository,
	adminRepo *repository.AdminRepository,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		proctorService: proctorService,
		studentRepo:    studentRepo,
		adminRepo:      adminRepo,
	}
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Validates enrollment number + password, registers the monitor session
// (rejecting or replacing an active one per policy), returns JWT.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := h.studentRepo.GetByEnrollmentNo(c.Request.Context(), req.EnrollmentNo)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(student.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	sessionID, err := h.proctorService.RegisterSession(student.EnrollmentNo, student.Name)
	if err != nil {
		if errors.Is(err, monitor.ErrDuplicateSession) {
			response.Fail(c, http.StatusConflict, response.ErrDuplicateSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	token, err := h.authService.GenerateStudentToken(c.Request.Context(), student.ID, sessionID)
	if err != nil {
		h.proctorService.UnregisterSession(sessionID)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	status, err := h.proctorService.GetStudent(sessionID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.StudentLoginResponse{
		Token:     token,
		StudentID: sessionID,
		Status:    status,
	})
}

// StudentLogout godoc
// POST /api/v1/auth/student/logout
// Ends the monitor session and clears the single-device session key.
func (h *AuthHandler) StudentLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.proctorService.UnregisterSession(claims.SessionID)

	if err := h.authService.ClearStudentSession(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password, returns JWT.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, err := h.adminRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateAdminToken(admin.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.AdminLoginResponse{
		Token: token,
		Admin: *admin,
	})
}
