package exam

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

// StatusSink receives the monitoring side effects of exam actions. The
// monitor status store satisfies it; tests use an in-memory fake.
type StatusSink interface {
	MarkExamStarted(studentID string, startTime time.Time) error
	RecordQuestionActivity(studentID string, typ model.ActivityType, questionID int, detail string) error
	RecordExamCompletion(studentID string, record model.ExamRecord) error
}

// Tracker owns the in-flight ExamProgress for every student with an exam
// attempt. Attempts move NotStarted → InProgress → Completed; the finalized
// ExamRecord is handed to the status sink by value on submission.
type Tracker struct {
	mu       sync.Mutex
	attempts map[string]*model.ExamProgress

	catalog *Catalog
	sink    StatusSink
	clock   func() time.Time
	log     zerolog.Logger
}

// NewTracker creates a Tracker with an injected clock and status sink.
func NewTracker(catalog *Catalog, sink StatusSink, clock func() time.Time, log zerolog.Logger) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		attempts: make(map[string]*model.ExamProgress),
		catalog:  catalog,
		sink:     sink,
		clock:    clock,
		log:      log.With().Str("component", "exam_tracker").Logger(),
	}
}

// Start begins a new attempt with every question slot untouched. Fails with
// ErrAlreadyInExam while a previous attempt is still in progress; a
// completed attempt is replaced.
func (t *Tracker) Start(studentID string) (model.ExamProgress, error) {
	t.mu.Lock()
	if prior, ok := t.attempts[studentID]; ok && prior.ExamEndTime == nil {
		t.mu.Unlock()
		return model.ExamProgress{}, ErrAlreadyInExam
	}

	now := t.clock()
	total := t.catalog.Total()
	progress := &model.ExamProgress{
		StudentID:      studentID,
		ExamStartTime:  now,
		TotalQuestions: total,
		Answers:        make([]model.ExamAnswer, 0, total),
		Categories:     t.catalog.Categories(),
	}
	for i := 1; i <= total; i++ {
		progress.Answers = append(progress.Answers, model.ExamAnswer{
			QuestionID: i,
			Category:   t.catalog.CategoryFor(i),
		})
	}
	t.attempts[studentID] = progress
	out := progress.Clone()
	t.mu.Unlock()

	if err := t.sink.MarkExamStarted(studentID, now); err != nil {
		t.log.Warn().Err(err).Str("student_id", studentID).Msg("Exam start not reflected in status store")
	}
	return out, nil
}

// RecordAnswer sets a question slot to answered, stamping the elapsed time
// since exam start. The paired skip flag is cleared.
func (t *Tracker) RecordAnswer(studentID string, questionID int, answer string) error {
	t.mu.Lock()
	progress, err := t.activeLocked(studentID)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if questionID < 1 || questionID > progress.TotalQuestions {
		t.mu.Unlock()
		return ErrInvalidQuestionID
	}

	slot := &progress.Answers[questionID-1]
	slot.SelectedAnswer = &answer
	slot.IsAnswered = true
	slot.IsSkipped = false
	slot.TimeSpent = int(t.clock().Sub(progress.ExamStartTime).Seconds())
	recountLocked(progress)
	category := slot.Category
	t.mu.Unlock()

	if err := t.sink.RecordQuestionActivity(studentID, model.ActivityQuestionAnswer, questionID,
		fmt.Sprintf("Answered question %d in %s", questionID, category)); err != nil {
		t.log.Warn().Err(err).Str("student_id", studentID).Msg("Answer activity not recorded")
	}
	return nil
}

// RecordSkip sets a question slot to skipped, clearing any previous answer.
func (t *Tracker) RecordSkip(studentID string, questionID int) error {
	t.mu.Lock()
	progress, err := t.activeLocked(studentID)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if questionID < 1 || questionID > progress.TotalQuestions {
		t.mu.Unlock()
		return ErrInvalidQuestionID
	}

	slot := &progress.Answers[questionID-1]
	slot.SelectedAnswer = nil
	slot.IsAnswered = false
	slot.IsSkipped = true
	slot.TimeSpent = int(t.clock().Sub(progress.ExamStartTime).Seconds())
	recountLocked(progress)
	category := slot.Category
	t.mu.Unlock()

	if err := t.sink.RecordQuestionActivity(studentID, model.ActivityQuestionSkip, questionID,
		fmt.Sprintf("Skipped question %d in %s", questionID, category)); err != nil {
		t.log.Warn().Err(err).Str("student_id", studentID).Msg("Skip activity not recorded")
	}
	return nil
}

// SaveProgress bulk-merges a checkpoint snapshot into the attempt. Keys are
// 1-based question ids; out-of-range entries are ignored. Reapplying the
// same snapshot yields the same state.
func (t *Tracker) SaveProgress(studentID string, req model.SaveProgressRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	progress, err := t.activeLocked(studentID)
	if err != nil {
		return err
	}

	for questionID, answer := range req.Answers {
		if questionID < 1 || questionID > progress.TotalQuestions {
			continue
		}
		slot := &progress.Answers[questionID-1]
		a := answer
		slot.SelectedAnswer = &a
		slot.IsAnswered = true
		slot.IsSkipped = false
	}

	for questionID, status := range req.QuestionStatuses {
		if questionID < 1 || questionID > progress.TotalQuestions {
			continue
		}
		if status != "skipped" {
			continue
		}
		slot := &progress.Answers[questionID-1]
		slot.SelectedAnswer = nil
		slot.IsAnswered = false
		slot.IsSkipped = true
	}

	recountLocked(progress)
	return nil
}

// Submit finalizes the attempt: freezes the end time, computes the score and
// per-category breakdown, and hands the read-only record to the status sink.
// A second submit on the same attempt fails with ErrNoActiveExam.
func (t *Tracker) Submit(studentID string) (model.ExamRecord, error) {
	t.mu.Lock()
	progress, err := t.activeLocked(studentID)
	if err != nil {
		t.mu.Unlock()
		return model.ExamRecord{}, err
	}

	now := t.clock()
	progress.ExamEndTime = &now
	progress.TimeSpent = int(now.Sub(progress.ExamStartTime).Seconds())
	recountLocked(progress)

	score := int(math.Round(float64(progress.QuestionsAnswered) / float64(progress.TotalQuestions) * 100))
	record := model.ExamRecord{
		ExamID:             uuid.New().String(),
		ExamDate:           now,
		ExamDuration:       progress.TimeSpent,
		TotalQuestions:     progress.TotalQuestions,
		QuestionsAttempted: progress.QuestionsAttempted,
		QuestionsAnswered:  progress.QuestionsAnswered,
		QuestionsSkipped:   progress.QuestionsSkipped,
		Score:              &score,
		Status:             model.ExamStatusCompleted,
		Categories:         breakdownLocked(progress),
	}
	t.mu.Unlock()

	if err := t.sink.RecordExamCompletion(studentID, record); err != nil {
		t.log.Warn().Err(err).Str("student_id", studentID).Msg("Exam completion not reflected in status store")
	}
	return record, nil
}

// Progress returns a copy of the student's attempt, completed or not.
// The boolean is false when the student never started an exam.
func (t *Tracker) Progress(studentID string) (model.ExamProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	progress, ok := t.attempts[studentID]
	if !ok {
		return model.ExamProgress{}, false
	}
	return progress.Clone(), true
}

// CategoryBreakdown returns the per-category rollup of the current attempt.
func (t *Tracker) CategoryBreakdown(studentID string) []model.CategoryPerformance {
	t.mu.Lock()
	defer t.mu.Unlock()
	progress, ok := t.attempts[studentID]
	if !ok {
		return nil
	}
	return breakdownLocked(progress)
}

// TimeAnalysis summarizes pacing for the current attempt against an exam
// duration given in seconds.
type TimeAnalysis struct {
	AvgTimePerQuestion int `json:"avg_time_per_question"`
	TotalTime          int `json:"total_time"`
	TimeRemaining      int `json:"time_remaining"`
}

// AnalyzeTime computes pacing statistics over the attempted slots.
func (t *Tracker) AnalyzeTime(studentID string, examDurationSeconds int) TimeAnalysis {
	t.mu.Lock()
	defer t.mu.Unlock()
	progress, ok := t.attempts[studentID]
	if !ok {
		return TimeAnalysis{}
	}

	attempted, totalSpent := 0, 0
	for _, a := range progress.Answers {
		if a.IsAnswered || a.IsSkipped {
			attempted++
			totalSpent += a.TimeSpent
		}
	}

	avg := 0
	if attempted > 0 {
		avg = int(math.Round(float64(totalSpent) / float64(attempted)))
	}
	elapsed := progress.TimeSpent
	if progress.ExamEndTime == nil {
		elapsed = int(t.clock().Sub(progress.ExamStartTime).Seconds())
	}
	remaining := examDurationSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return TimeAnalysis{AvgTimePerQuestion: avg, TotalTime: elapsed, TimeRemaining: remaining}
}

// Clear drops a student's attempt, completed or not. Used at logout.
func (t *Tracker) Clear(studentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, studentID)
}

// activeLocked returns the in-progress attempt or ErrNoActiveExam.
func (t *Tracker) activeLocked(studentID string) (*model.ExamProgress, error) {
	progress, ok := t.attempts[studentID]
	if !ok || progress.ExamEndTime != nil {
		return nil, ErrNoActiveExam
	}
	return progress, nil
}

// recountLocked rederives the attempted/answered/skipped counters so they
// are never out of step with the slots.
func recountLocked(progress *model.ExamProgress) {
	answered, skipped := 0, 0
	for _, a := range progress.Answers {
		if a.IsAnswered {
			answered++
		} else if a.IsSkipped {
			skipped++
		}
	}
	progress.QuestionsAnswered = answered
	progress.QuestionsSkipped = skipped
	progress.QuestionsAttempted = answered + skipped
}

// breakdownLocked folds the answer slots by category, preserving the paper's
// category order. Per-category score is answered over attempted.
func breakdownLocked(progress *model.ExamProgress) []model.CategoryPerformance {
	byName := make(map[string]*model.CategoryPerformance, len(progress.Categories))
	out := make([]model.CategoryPerformance, len(progress.Categories))
	for i, name := range progress.Categories {
		out[i] = model.CategoryPerformance{Category: name}
		byName[name] = &out[i]
	}

	for _, a := range progress.Answers {
		stats, ok := byName[a.Category]
		if !ok {
			continue
		}
		if a.IsAnswered {
			stats.Answered++
			stats.Attempted++
		} else if a.IsSkipped {
			stats.Skipped++
			stats.Attempted++
		}
	}

	for i := range out {
		if out[i].Attempted > 0 {
			out[i].Score = int(math.Round(float64(out[i].Answered) / float64(out[i].Attempted) * 100))
		}
	}
	return out
}
