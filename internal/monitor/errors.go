package monitor

import "errors"

// Store errors surfaced to callers. Handlers map these onto response codes.
var (
	ErrStudentNotFound  = errors.New("student not found")
	ErrDuplicateSession = errors.New("enrollment number already has an active session")
)
