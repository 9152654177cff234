package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/exam"
	"github.com/safeexaminer/proctor-backend/internal/model"
	"github.com/safeexaminer/proctor-backend/internal/monitor"
)

const (
	// Connection quality is re-evaluated on this cadence. A student idle
	// past staleAfter is marked poor; past offlineAfter, disconnected.
	reevaluateInterval = 15 * time.Second
	staleAfter         = 45 * time.Second
	offlineAfter       = 3 * time.Minute
)

// ProctorService orchestrates the status store, the exam tracker, and the
// notification bus behind one API for the HTTP/WS surface.
type ProctorService struct {
	store   *monitor.Store
	tracker *exam.Tracker
	bus     *monitor.Bus
	log     zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(store *monitor.Store, tracker *exam.Tracker, bus *monitor.Bus, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		store:   store,
		tracker: tracker,
		bus:     bus,
		log:     log.With().Str("component", "proctor_service").Logger(),
	}
}

// Bus exposes the notification bus for observers (admin SSE, relays).
func (s *ProctorService) Bus() *monitor.Bus {
	return s.bus
}

// ─── Session lifecycle ──────────────────────────────────────────────

// RegisterSession registers a live monitoring session at login. Under the
// replace policy the prior session's exam attempt is dropped with it.
func (s *ProctorService) RegisterSession(enrollmentNo, name string) (string, error) {
	prior, hadPrior := s.store.FindByEnrollment(enrollmentNo)

	sessionID, err := s.store.Register(enrollmentNo, name)
	if err != nil {
		return "", err
	}

	if hadPrior {
		// Register only succeeds with a prior session under "replace".
		s.tracker.Clear(prior.ID)
		s.log.Info().
			Str("enrollment_no", enrollmentNo).
			Str("replaced_session", prior.ID).
			Msg("Replaced prior session on duplicate login")
	}
	return sessionID, nil
}

// UnregisterSession removes a session at logout.
func (s *ProctorService) UnregisterSession(sessionID string) {
	s.store.Unregister(sessionID)
	s.tracker.Clear(sessionID)
}

// ─── Reads ──────────────────────────────────────────────────────────

func (s *ProctorService) GetStudent(sessionID string) (model.StudentStatus, error) {
	return s.store.Get(sessionID)
}

func (s *ProctorService) ListStudents() []model.StudentStatus {
	return s.store.ListAll()
}

func (s *ProctorService) GetExamStats(sessionID string) (model.ExamStats, error) {
	return s.store.GetExamStats(sessionID)
}

// GetExamProgress returns the current attempt, or ok=false when the student
// never started one.
func (s *ProctorService) GetExamProgress(sessionID string) (model.ExamProgress, bool) {
	return s.tracker.Progress(sessionID)
}

func (s *ProctorService) AnalyzeTime(sessionID string, examDurationSeconds int) exam.TimeAnalysis {
	return s.tracker.AnalyzeTime(sessionID, examDurationSeconds)
}

// ─── Signals ────────────────────────────────────────────────────────

func (s *ProctorService) SetTabVisibility(sessionID string, visible bool) error {
	return s.store.SetTabVisibility(sessionID, visible)
}

func (s *ProctorService) SetFacePresence(sessionID string, present bool) error {
	return s.store.SetFacePresence(sessionID, present)
}

func (s *ProctorService) SetAudioLevel(sessionID string, level float64) error {
	return s.store.SetAudioLevel(sessionID, level)
}

func (s *ProctorService) SetMicState(sessionID string, on bool) error {
	return s.store.SetMicState(sessionID, on)
}

func (s *ProctorService) Disconnect(sessionID string) error {
	return s.store.Disconnect(sessionID)
}

func (s *ProctorService) Reconnect(sessionID string) error {
	return s.store.Reconnect(sessionID)
}

// SendWarning is the manual escalation path used by the admin surface.
func (s *ProctorService) SendWarning(sessionID, reason string) error {
	return s.store.SendWarning(sessionID, reason)
}

// ─── Exam operations ────────────────────────────────────────────────

func (s *ProctorService) StartExam(sessionID string) (model.ExamProgress, error) {
	if _, err := s.store.Get(sessionID); err != nil {
		return model.ExamProgress{}, err
	}
	return s.tracker.Start(sessionID)
}

func (s *ProctorService) AnswerQuestion(sessionID string, questionID int, answer string) error {
	return s.tracker.RecordAnswer(sessionID, questionID, answer)
}

func (s *ProctorService) SkipQuestion(sessionID string, questionID int) error {
	return s.tracker.RecordSkip(sessionID, questionID)
}

func (s *ProctorService) SaveProgress(sessionID string, req model.SaveProgressRequest) error {
	return s.tracker.SaveProgress(sessionID, req)
}

func (s *ProctorService) SubmitExam(sessionID string) (model.ExamRecord, error) {
	return s.tracker.Submit(sessionID)
}

// ─── Periodic re-evaluation ─────────────────────────────────────────

// RunReevaluator ticks until the context is cancelled, re-evaluating
// connection quality for every student. The tick carries no randomness;
// it only applies the deterministic staleness rules.
func (s *ProctorService) RunReevaluator(ctx context.Context) {
	ticker := time.NewTicker(reevaluateInterval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", reevaluateInterval).Msg("Connection re-evaluator started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Connection re-evaluator stopped")
			return
		case <-ticker.C:
			s.store.Reevaluate(staleAfter, offlineAfter)
		}
	}
}
