package model

import "time"

// ExamRecordStatus enumerates the lifecycle of one exam attempt.
type ExamRecordStatus string

const (
	ExamStatusCompleted  ExamRecordStatus = "completed"
	ExamStatusInProgress ExamRecordStatus = "in_progress"
	ExamStatusAbandoned  ExamRecordStatus = "abandoned"
)

// ExamAnswer is one question slot of an exam attempt. At most one of
// IsAnswered/IsSkipped is true; both false means the slot is untouched.
type ExamAnswer struct {
	QuestionID     int     `json:"question_id"`
	SelectedAnswer *string `json:"selected_answer,omitempty"`
	IsAnswered     bool    `json:"is_answered"`
	IsSkipped      bool    `json:"is_skipped"`
	TimeSpent      int     `json:"time_spent"` // seconds since exam start at time of action
	Category       string  `json:"category"`
}

// ExamProgress is the in-flight state of one exam attempt. Derived counts are
// recomputed on every mutation so observers never see a half-applied update.
type ExamProgress struct {
	StudentID          string       `json:"student_id"`
	ExamStartTime      time.Time    `json:"exam_start_time"`
	ExamEndTime        *time.Time   `json:"exam_end_time,omitempty"`
	TotalQuestions     int          `json:"total_questions"`
	QuestionsAttempted int          `json:"questions_attempted"`
	QuestionsAnswered  int          `json:"questions_answered"`
	QuestionsSkipped   int          `json:"questions_skipped"`
	TimeSpent          int          `json:"time_spent"` // seconds, finalized at submission
	Answers            []ExamAnswer `json:"answers"`
	Categories         []string     `json:"categories"`
}

// Clone returns a deep copy of the progress record.
func (p *ExamProgress) Clone() ExamProgress {
	out := *p
	if p.ExamEndTime != nil {
		t := *p.ExamEndTime
		out.ExamEndTime = &t
	}
	out.Answers = make([]ExamAnswer, len(p.Answers))
	for i, a := range p.Answers {
		out.Answers[i] = a
		if a.SelectedAnswer != nil {
			v := *a.SelectedAnswer
			out.Answers[i].SelectedAnswer = &v
		}
	}
	out.Categories = append([]string(nil), p.Categories...)
	return out
}

// CategoryPerformance is the per-category rollup of one exam attempt.
type CategoryPerformance struct {
	Category  string `json:"category"`
	Attempted int    `json:"attempted"`
	Answered  int    `json:"answered"`
	Skipped   int    `json:"skipped"`
	Score     int    `json:"score"`
}

// ExamRecord is the immutable, finalized summary of a completed attempt.
type ExamRecord struct {
	ExamID             string                `json:"exam_id"`
	ExamDate           time.Time             `json:"exam_date"`
	ExamDuration       int                   `json:"exam_duration"` // seconds
	TotalQuestions     int                   `json:"total_questions"`
	QuestionsAttempted int                   `json:"questions_attempted"`
	QuestionsAnswered  int                   `json:"questions_answered"`
	QuestionsSkipped   int                   `json:"questions_skipped"`
	Score              *int                  `json:"score,omitempty"` // 0-100
	Status             ExamRecordStatus      `json:"status"`
	Categories         []CategoryPerformance `json:"categories"`
}

// Clone returns a deep copy of the record.
func (r ExamRecord) Clone() ExamRecord {
	out := r
	if r.Score != nil {
		v := *r.Score
		out.Score = &v
	}
	out.Categories = append([]CategoryPerformance(nil), r.Categories...)
	return out
}

// SaveProgressRequest is the bulk checkpoint payload sent by the exam UI.
// Keys are 1-based question ids; statuses other than "skipped" are ignored.
type SaveProgressRequest struct {
	CurrentQuestion  int            `json:"current_question"`
	Answers          map[int]string `json:"answers"`
	QuestionStatuses map[int]string `json:"question_statuses"`
}
