package exam

import "errors"

// Tracker errors surfaced to callers.
var (
	ErrAlreadyInExam     = errors.New("an exam attempt is already in progress")
	ErrNoActiveExam      = errors.New("no active exam attempt")
	ErrInvalidQuestionID = errors.New("question id out of range")
)
