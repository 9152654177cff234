package service

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/config"
	"github.com/safeexaminer/proctor-backend/internal/exam"
	"github.com/safeexaminer/proctor-backend/internal/monitor"
)

func newTestProctorService(t *testing.T, policy config.DuplicateSessionPolicy) *ProctorService {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	catalog, err := exam.NewCatalog(70)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	bus := monitor.NewBus(zerolog.Nop())
	store := monitor.NewStore(bus, policy, 30, clock, zerolog.Nop())
	tracker := exam.NewTracker(catalog, store, clock, zerolog.Nop())
	return NewProctorService(store, tracker, bus, zerolog.Nop())
}

func TestRegisterSessionRejectsDuplicate(t *testing.T) {
	svc := newTestProctorService(t, config.DuplicatePolicyReject)

	if _, err := svc.RegisterSession("EN-001", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterSession("EN-001", "Alice"); !errors.Is(err, monitor.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestReplaceDropsPriorExamAttempt(t *testing.T) {
	svc := newTestProctorService(t, config.DuplicatePolicyReplace)

	first, err := svc.RegisterSession("EN-001", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.StartExam(first); err != nil {
		t.Fatalf("start exam: %v", err)
	}

	second, err := svc.RegisterSession("EN-001", "Alice")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if first == second {
		t.Fatal("expected a new session id")
	}

	// The replaced session's attempt is gone with it.
	if _, ok := svc.GetExamProgress(first); ok {
		t.Fatal("expected prior attempt dropped on replace")
	}
	// The new session starts clean and can begin its own exam.
	if _, err := svc.StartExam(second); err != nil {
		t.Fatalf("start exam on new session: %v", err)
	}
}

func TestExamFlowThroughService(t *testing.T) {
	svc := newTestProctorService(t, config.DuplicatePolicyReject)
	id, _ := svc.RegisterSession("EN-001", "Alice")

	if err := svc.AnswerQuestion(id, 1, "A"); !errors.Is(err, exam.ErrNoActiveExam) {
		t.Fatalf("expected ErrNoActiveExam before start, got %v", err)
	}

	if _, err := svc.StartExam(id); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, _ := svc.GetStudent(id)
	if !st.IsInExam {
		t.Fatal("expected student marked in exam")
	}

	if err := svc.AnswerQuestion(id, 1, "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := svc.SkipQuestion(id, 2); err != nil {
		t.Fatalf("skip: %v", err)
	}

	record, err := svc.SubmitExam(id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.Score == nil || *record.Score != 1 {
		t.Fatalf("expected score 1, got %v", record.Score)
	}

	st, _ = svc.GetStudent(id)
	if st.IsInExam {
		t.Fatal("expected exam flag cleared after submit")
	}
	stats, err := svc.GetExamStats(id)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalExams != 1 || stats.AverageScore != 1 {
		t.Fatalf("expected 1 exam with average 1, got %d/%v", stats.TotalExams, stats.AverageScore)
	}
}

func TestStartExamUnknownSession(t *testing.T) {
	svc := newTestProctorService(t, config.DuplicatePolicyReject)
	if _, err := svc.StartExam("nope"); !errors.Is(err, monitor.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}
