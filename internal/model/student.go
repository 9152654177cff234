package model

import "time"

// Student is a registered student account (persisted, distinct from the
// live StudentStatus session record).
type Student struct {
	ID           int       `json:"id"`
	EnrollmentNo string    `json:"enrollment_no"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	EnrollmentNo string `json:"enrollment_no" binding:"required,min=4,max=20"`
	Password     string `json:"password" binding:"required,min=4,max=128"`
}

// StudentLoginResponse is returned after successful student login.
type StudentLoginResponse struct {
	Token     string        `json:"token"`
	StudentID string        `json:"student_id"` // monitor session id
	Status    StudentStatus `json:"status"`
}
