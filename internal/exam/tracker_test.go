package exam

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeSink records sink calls in order.
type fakeSink struct {
	started     []string
	activities  []model.ActivityType
	completions []model.ExamRecord
}

func (f *fakeSink) MarkExamStarted(studentID string, startTime time.Time) error {
	f.started = append(f.started, studentID)
	return nil
}

func (f *fakeSink) RecordQuestionActivity(studentID string, typ model.ActivityType, questionID int, detail string) error {
	f.activities = append(f.activities, typ)
	return nil
}

func (f *fakeSink) RecordExamCompletion(studentID string, record model.ExamRecord) error {
	f.completions = append(f.completions, record)
	return nil
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock, *fakeSink) {
	t.Helper()
	catalog, err := NewCatalog(70)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	sink := &fakeSink{}
	return NewTracker(catalog, sink, clock.Now, zerolog.Nop()), clock, sink
}

func TestStartInitializesAllSlots(t *testing.T) {
	tracker, clock, sink := newTestTracker(t)

	progress, err := tracker.Start("s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if progress.TotalQuestions != 70 || len(progress.Answers) != 70 {
		t.Fatalf("expected 70 slots, got total=%d len=%d", progress.TotalQuestions, len(progress.Answers))
	}
	if !progress.ExamStartTime.Equal(clock.now) {
		t.Fatalf("expected start time %v, got %v", clock.now, progress.ExamStartTime)
	}
	for i, a := range progress.Answers {
		if a.QuestionID != i+1 {
			t.Fatalf("slot %d has question id %d", i, a.QuestionID)
		}
		if a.IsAnswered || a.IsSkipped {
			t.Fatalf("slot %d not untouched at start", i)
		}
		if a.Category == "" {
			t.Fatalf("slot %d has no category", i)
		}
	}
	if progress.QuestionsAttempted != 0 {
		t.Fatalf("expected 0 attempted at start, got %d", progress.QuestionsAttempted)
	}
	if len(sink.started) != 1 || sink.started[0] != "s1" {
		t.Fatalf("expected sink start for s1, got %v", sink.started)
	}

	// A second start while in progress is refused.
	if _, err := tracker.Start("s1"); !errors.Is(err, ErrAlreadyInExam) {
		t.Fatalf("expected ErrAlreadyInExam, got %v", err)
	}
}

func TestAnswerAndSkipMaintainCounters(t *testing.T) {
	tracker, clock, sink := newTestTracker(t)
	tracker.Start("s1")

	clock.Advance(30 * time.Second)
	if err := tracker.RecordAnswer("s1", 1, "B"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	clock.Advance(15 * time.Second)
	if err := tracker.RecordSkip("s1", 2); err != nil {
		t.Fatalf("skip: %v", err)
	}

	progress, ok := tracker.Progress("s1")
	if !ok {
		t.Fatal("expected progress")
	}
	if progress.QuestionsAnswered != 1 || progress.QuestionsSkipped != 1 || progress.QuestionsAttempted != 2 {
		t.Fatalf("expected 1/1/2 answered/skipped/attempted, got %d/%d/%d",
			progress.QuestionsAnswered, progress.QuestionsSkipped, progress.QuestionsAttempted)
	}
	if progress.Answers[0].TimeSpent != 30 {
		t.Fatalf("expected 30s on question 1, got %d", progress.Answers[0].TimeSpent)
	}
	if progress.Answers[1].TimeSpent != 45 {
		t.Fatalf("expected 45s on question 2, got %d", progress.Answers[1].TimeSpent)
	}

	// Answering a previously skipped question flips it, attempted stays 2.
	tracker.RecordAnswer("s1", 2, "C")
	progress, _ = tracker.Progress("s1")
	if progress.QuestionsAnswered != 2 || progress.QuestionsSkipped != 0 || progress.QuestionsAttempted != 2 {
		t.Fatalf("expected 2/0/2 after re-answer, got %d/%d/%d",
			progress.QuestionsAnswered, progress.QuestionsSkipped, progress.QuestionsAttempted)
	}

	if len(sink.activities) != 3 {
		t.Fatalf("expected 3 activity calls, got %d", len(sink.activities))
	}
	if sink.activities[0] != model.ActivityQuestionAnswer || sink.activities[1] != model.ActivityQuestionSkip {
		t.Fatalf("unexpected activity order: %v", sink.activities)
	}
}

func TestAnswerValidation(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	if err := tracker.RecordAnswer("s1", 1, "A"); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("expected ErrNoActiveExam before start, got %v", err)
	}

	tracker.Start("s1")
	if err := tracker.RecordAnswer("s1", 0, "A"); !errors.Is(err, ErrInvalidQuestionID) {
		t.Fatalf("expected ErrInvalidQuestionID for 0, got %v", err)
	}
	if err := tracker.RecordAnswer("s1", 71, "A"); !errors.Is(err, ErrInvalidQuestionID) {
		t.Fatalf("expected ErrInvalidQuestionID for 71, got %v", err)
	}
	if err := tracker.RecordSkip("s1", -3); !errors.Is(err, ErrInvalidQuestionID) {
		t.Fatalf("expected ErrInvalidQuestionID for -3, got %v", err)
	}
}

func TestSaveProgressIsIdempotent(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.Start("s1")

	req := model.SaveProgressRequest{
		CurrentQuestion: 4,
		Answers:         map[int]string{1: "A", 2: "D", 99: "X"},
		QuestionStatuses: map[int]string{
			3:   "skipped",
			4:   "current", // only "skipped" matters
			120: "skipped",
		},
	}

	if err := tracker.SaveProgress("s1", req); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, _ := tracker.Progress("s1")

	if err := tracker.SaveProgress("s1", req); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, _ := tracker.Progress("s1")

	if first.QuestionsAnswered != 2 || first.QuestionsSkipped != 1 || first.QuestionsAttempted != 3 {
		t.Fatalf("expected 2/1/3 after save, got %d/%d/%d",
			first.QuestionsAnswered, first.QuestionsSkipped, first.QuestionsAttempted)
	}
	if second.QuestionsAnswered != first.QuestionsAnswered ||
		second.QuestionsSkipped != first.QuestionsSkipped ||
		second.QuestionsAttempted != first.QuestionsAttempted {
		t.Fatal("expected reapplying the same snapshot to leave counters unchanged")
	}
	if second.Answers[0].SelectedAnswer == nil || *second.Answers[0].SelectedAnswer != "A" {
		t.Fatalf("expected question 1 answer A, got %v", second.Answers[0].SelectedAnswer)
	}
	if !second.Answers[2].IsSkipped {
		t.Fatal("expected question 3 skipped")
	}
}

func TestSubmitScoresAndFreezes(t *testing.T) {
	tracker, clock, sink := newTestTracker(t)
	tracker.Start("s1")

	// Answer exactly one of 70 questions: score rounds 1.43% → 1.
	tracker.RecordAnswer("s1", 10, "B")
	tracker.RecordSkip("s1", 11)
	clock.Advance(10 * time.Minute)

	record, err := tracker.Submit("s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.Score == nil || *record.Score != 1 {
		t.Fatalf("expected score 1, got %v", record.Score)
	}
	if record.Status != model.ExamStatusCompleted {
		t.Fatalf("expected completed status, got %s", record.Status)
	}
	if record.ExamDuration != 600 {
		t.Fatalf("expected 600s duration, got %d", record.ExamDuration)
	}
	if record.QuestionsAttempted != 2 || record.QuestionsAnswered != 1 || record.QuestionsSkipped != 1 {
		t.Fatalf("unexpected counters: %d/%d/%d",
			record.QuestionsAttempted, record.QuestionsAnswered, record.QuestionsSkipped)
	}
	if record.ExamID == "" {
		t.Fatal("expected a generated exam id")
	}

	if len(sink.completions) != 1 {
		t.Fatalf("expected 1 completion sink call, got %d", len(sink.completions))
	}

	// The attempt is frozen: no further mutations, no double submit.
	if err := tracker.RecordAnswer("s1", 12, "A"); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("expected ErrNoActiveExam after submit, got %v", err)
	}
	if _, err := tracker.Submit("s1"); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("expected ErrNoActiveExam on double submit, got %v", err)
	}

	// Progress is still readable after completion.
	progress, ok := tracker.Progress("s1")
	if !ok || progress.ExamEndTime == nil {
		t.Fatalf("expected completed progress to remain readable, ok=%v", ok)
	}

	// A new attempt replaces the completed one.
	if _, err := tracker.Start("s1"); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
}

func TestCategoryBreakdown(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.Start("s1")

	// Data Structures (1-5): 2 answered, 1 skipped → score 67.
	tracker.RecordAnswer("s1", 1, "A")
	tracker.RecordAnswer("s1", 2, "B")
	tracker.RecordSkip("s1", 3)
	// Computer Networks spans two bands (26-30 and 61-65); both fold together.
	tracker.RecordAnswer("s1", 26, "C")
	tracker.RecordAnswer("s1", 61, "D")

	breakdown := tracker.CategoryBreakdown("s1")
	if len(breakdown) != 12 {
		t.Fatalf("expected 12 categories, got %d", len(breakdown))
	}

	byName := make(map[string]model.CategoryPerformance)
	for _, c := range breakdown {
		byName[c.Category] = c
	}

	ds := byName["Data Structures"]
	if ds.Attempted != 3 || ds.Answered != 2 || ds.Skipped != 1 {
		t.Fatalf("Data Structures: expected 3/2/1, got %d/%d/%d", ds.Attempted, ds.Answered, ds.Skipped)
	}
	if ds.Score != 67 {
		t.Fatalf("Data Structures: expected score 67, got %d", ds.Score)
	}

	cn := byName["Computer Networks"]
	if cn.Attempted != 2 || cn.Answered != 2 {
		t.Fatalf("Computer Networks: expected both bands folded (2/2), got %d/%d", cn.Attempted, cn.Answered)
	}
	if cn.Score != 100 {
		t.Fatalf("Computer Networks: expected score 100, got %d", cn.Score)
	}

	algo := byName["Algorithms"]
	if algo.Attempted != 0 || algo.Score != 0 {
		t.Fatalf("Algorithms: expected untouched 0/0, got %d/%d", algo.Attempted, algo.Score)
	}
}

func TestAnalyzeTime(t *testing.T) {
	tracker, clock, _ := newTestTracker(t)
	tracker.Start("s1")

	clock.Advance(40 * time.Second)
	tracker.RecordAnswer("s1", 1, "A") // TimeSpent 40
	clock.Advance(20 * time.Second)
	tracker.RecordSkip("s1", 2) // TimeSpent 60

	analysis := tracker.AnalyzeTime("s1", 3600)
	if analysis.AvgTimePerQuestion != 50 {
		t.Fatalf("expected avg 50s, got %d", analysis.AvgTimePerQuestion)
	}
	if analysis.TotalTime != 60 {
		t.Fatalf("expected 60s elapsed, got %d", analysis.TotalTime)
	}
	if analysis.TimeRemaining != 3540 {
		t.Fatalf("expected 3540s remaining, got %d", analysis.TimeRemaining)
	}

	// Elapsed past the duration clamps remaining to zero.
	clock.Advance(2 * time.Hour)
	analysis = tracker.AnalyzeTime("s1", 3600)
	if analysis.TimeRemaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", analysis.TimeRemaining)
	}

	if got := tracker.AnalyzeTime("nobody", 3600); got != (TimeAnalysis{}) {
		t.Fatalf("expected zero analysis for unknown student, got %+v", got)
	}
}

func TestClearDropsAttempt(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.Start("s1")
	tracker.RecordAnswer("s1", 1, "A")

	tracker.Clear("s1")

	if _, ok := tracker.Progress("s1"); ok {
		t.Fatal("expected no progress after clear")
	}
	if err := tracker.RecordAnswer("s1", 2, "B"); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("expected ErrNoActiveExam after clear, got %v", err)
	}
}
