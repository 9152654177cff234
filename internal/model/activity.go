package model

import "time"

// ActivityType enumerates every observable occurrence during a monitored session.
type ActivityType string

const (
	ActivityTabSwitch       ActivityType = "tab_switch"
	ActivityCameraOff       ActivityType = "camera_off"
	ActivityCameraOn        ActivityType = "camera_on"
	ActivityMicOff          ActivityType = "mic_off"
	ActivityMicOn           ActivityType = "mic_on"
	ActivitySpeaking        ActivityType = "speaking"
	ActivitySilent          ActivityType = "silent"
	ActivityDisconnected    ActivityType = "disconnected"
	ActivityReconnected     ActivityType = "reconnected"
	ActivityLogin           ActivityType = "login"
	ActivityLogout          ActivityType = "logout"
	ActivityExamStart       ActivityType = "exam_start"
	ActivityExamSubmit      ActivityType = "exam_submit"
	ActivityQuestionAnswer  ActivityType = "question_answer"
	ActivityQuestionSkip    ActivityType = "question_skip"
	ActivityWarningReceived ActivityType = "warning_received"
)

// Severity classifies how suspicious an activity is. High-severity events
// auto-increment the student's warning counter.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ActivityEvent is an immutable record of one observed occurrence.
// Ordering is creation order per student.
type ActivityEvent struct {
	StudentID string                 `json:"student_id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      ActivityType           `json:"type"`
	Detail    string                 `json:"detail,omitempty"`
	Severity  Severity               `json:"severity"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
