package model

import "time"

// ConnectionQuality enumerates the observed network quality of a session.
type ConnectionQuality string

const (
	ConnectionExcellent    ConnectionQuality = "excellent"
	ConnectionGood         ConnectionQuality = "good"
	ConnectionPoor         ConnectionQuality = "poor"
	ConnectionDisconnected ConnectionQuality = "disconnected"
)

// StudentStatus is the live per-session record for one monitored student.
// The status store owns these records; callers only ever see copies.
type StudentStatus struct {
	ID           string `json:"id"`
	EnrollmentNo string `json:"enrollment_no"`
	Name         string `json:"name"`

	IsOnline          bool              `json:"is_online"`
	IsTabActive       bool              `json:"is_tab_active"`
	ConnectionQuality ConnectionQuality `json:"connection_quality"`

	IsCameraOn bool `json:"is_camera_on"`
	IsMicOn    bool `json:"is_mic_on"`
	IsSpeaking bool `json:"is_speaking"`

	Warnings      int `json:"warnings"`
	ActivityCount int `json:"activity_count"`

	IsInExam      bool       `json:"is_in_exam"`
	ExamStartTime *time.Time `json:"exam_start_time,omitempty"`

	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`

	TotalExamsTaken int          `json:"total_exams_taken"`
	AverageScore    float64      `json:"average_score"`
	LastExamScore   *int         `json:"last_exam_score,omitempty"`
	LastExamDate    *time.Time   `json:"last_exam_date,omitempty"`
	TotalTimeSpent  int          `json:"total_time_spent"`
	ExamHistory     []ExamRecord `json:"exam_history"`
}

// Clone returns a deep copy so store snapshots never alias live records.
func (s *StudentStatus) Clone() StudentStatus {
	out := *s
	if s.ExamStartTime != nil {
		t := *s.ExamStartTime
		out.ExamStartTime = &t
	}
	if s.LastExamScore != nil {
		v := *s.LastExamScore
		out.LastExamScore = &v
	}
	if s.LastExamDate != nil {
		t := *s.LastExamDate
		out.LastExamDate = &t
	}
	out.ExamHistory = make([]ExamRecord, len(s.ExamHistory))
	for i := range s.ExamHistory {
		out.ExamHistory[i] = s.ExamHistory[i].Clone()
	}
	return out
}

// StatusPatch is a partial update for a StudentStatus. Nil fields are left
// untouched; unknown fields cannot exist because the set is closed here.
type StatusPatch struct {
	IsOnline          *bool
	IsTabActive       *bool
	ConnectionQuality *ConnectionQuality
	IsCameraOn        *bool
	IsMicOn           *bool
	IsSpeaking        *bool
}

// ExamStats is the aggregate view exposed to the admin surface.
type ExamStats struct {
	TotalExams     int          `json:"total_exams"`
	AverageScore   float64      `json:"average_score"`
	LastExamScore  *int         `json:"last_exam_score,omitempty"`
	LastExamDate   *time.Time   `json:"last_exam_date,omitempty"`
	TotalTimeSpent int          `json:"total_time_spent"`
	ExamHistory    []ExamRecord `json:"exam_history"`
}
