package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/config"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

// Store is the authoritative in-memory table of live per-student state.
// One mutex serializes all mutations; compound updates (patch status, emit
// event, broadcast snapshot) appear atomic to observers. Scale is a
// classroom, not a population, so the single lock is a deliberate trade.
type Store struct {
	mu       sync.Mutex
	students map[string]*model.StudentStatus
	order    []string // registration order, keeps ListAll stable

	policy         config.DuplicateSessionPolicy
	audioThreshold float64
	clock          func() time.Time
	bus            *Bus
	log            zerolog.Logger
}

// NewStore creates a Store with an injected clock and notification bus.
func NewStore(bus *Bus, policy config.DuplicateSessionPolicy, audioThreshold float64, clock func() time.Time, log zerolog.Logger) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		students:       make(map[string]*model.StudentStatus),
		policy:         policy,
		audioThreshold: audioThreshold,
		clock:          clock,
		bus:            bus,
		log:            log.With().Str("component", "status_store").Logger(),
	}
}

// severityFor is the pure classification function: severity depends on the
// event type alone. Threshold comparisons happen before the type is chosen.
func severityFor(t model.ActivityType) model.Severity {
	switch t {
	case model.ActivityTabSwitch, model.ActivityDisconnected:
		return model.SeverityHigh
	case model.ActivityCameraOff, model.ActivityMicOff, model.ActivitySpeaking,
		model.ActivityExamStart, model.ActivityExamSubmit, model.ActivityWarningReceived:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// ─── Registration lifecycle ─────────────────────────────────────────

// Register creates a live session for a student at login and returns the
// opaque session id. A second login with the same enrollment number is
// rejected or replaces the prior session, depending on the configured policy.
func (s *Store) Register(enrollmentNo, name string) (string, error) {
	s.mu.Lock()

	var events []model.ActivityEvent

	if prior := s.findByEnrollmentLocked(enrollmentNo); prior != nil {
		if s.policy == config.DuplicatePolicyReject {
			s.mu.Unlock()
			return "", ErrDuplicateSession
		}
		events = append(events, s.removeLocked(prior.ID))
	}

	now := s.clock()
	id := uuid.New().String()
	st := &model.StudentStatus{
		ID:                id,
		EnrollmentNo:      enrollmentNo,
		Name:              name,
		IsOnline:          true,
		IsTabActive:       true,
		ConnectionQuality: model.ConnectionExcellent,
		LoginTime:         now,
		LastActivity:      now,
		ExamHistory:       []model.ExamRecord{},
	}
	s.students[id] = st
	s.order = append(s.order, id)

	events = append(events, s.recordLocked(id, model.ActivityLogin,
		fmt.Sprintf("Student %s (%s) logged in", name, enrollmentNo), nil))
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(events, snapshot)
	return id, nil
}

// Unregister removes a session at logout, emitting a logout event first.
// Unknown ids are silently ignored.
func (s *Store) Unregister(studentID string) {
	s.mu.Lock()
	if _, ok := s.students[studentID]; !ok {
		s.mu.Unlock()
		return
	}
	ev := s.removeLocked(studentID)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
}

// removeLocked emits the logout event and deletes the record.
func (s *Store) removeLocked(studentID string) model.ActivityEvent {
	st := s.students[studentID]
	ev := s.recordLocked(studentID, model.ActivityLogout,
		fmt.Sprintf("Student %s (%s) logged out", st.Name, st.EnrollmentNo), nil)
	delete(s.students, studentID)
	for i, id := range s.order {
		if id == studentID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return ev
}

// ─── Read surface ───────────────────────────────────────────────────

// Get returns a copy of one student's status.
func (s *Store) Get(studentID string) (model.StudentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return model.StudentStatus{}, ErrStudentNotFound
	}
	return st.Clone(), nil
}

// FindByEnrollment returns the live session for an enrollment number, if any.
func (s *Store) FindByEnrollment(enrollmentNo string) (model.StudentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.findByEnrollmentLocked(enrollmentNo); st != nil {
		return st.Clone(), true
	}
	return model.StudentStatus{}, false
}

// ListAll returns a stable snapshot of every student in registration order.
// Later mutations never affect a returned snapshot.
func (s *Store) ListAll() []model.StudentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CountInExam returns how many students currently have an active attempt.
func (s *Store) CountInExam() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.students {
		if st.IsInExam {
			n++
		}
	}
	return n
}

// GetExamStats returns the historical aggregates for one student.
func (s *Store) GetExamStats(studentID string) (model.ExamStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return model.ExamStats{}, ErrStudentNotFound
	}
	c := st.Clone()
	return model.ExamStats{
		TotalExams:     c.TotalExamsTaken,
		AverageScore:   c.AverageScore,
		LastExamScore:  c.LastExamScore,
		LastExamDate:   c.LastExamDate,
		TotalTimeSpent: c.TotalTimeSpent,
		ExamHistory:    c.ExamHistory,
	}, nil
}

// ─── Generic patching ───────────────────────────────────────────────

// ApplyPatch merges the non-nil fields of a patch into a student record and
// refreshes last activity. No activity event is emitted; use the typed
// signal methods for classified transitions.
func (s *Store) ApplyPatch(studentID string, patch model.StatusPatch) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	if patch.IsOnline != nil {
		st.IsOnline = *patch.IsOnline
	}
	if patch.IsTabActive != nil {
		st.IsTabActive = *patch.IsTabActive
	}
	if patch.ConnectionQuality != nil {
		st.ConnectionQuality = *patch.ConnectionQuality
	}
	if patch.IsCameraOn != nil {
		st.IsCameraOn = *patch.IsCameraOn
	}
	if patch.IsMicOn != nil {
		st.IsMicOn = *patch.IsMicOn
	}
	if patch.IsSpeaking != nil {
		st.IsSpeaking = *patch.IsSpeaking
	}
	st.LastActivity = s.clock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(nil, snapshot)
	return nil
}

// ─── Signal ingestion (edge-triggered classification) ───────────────

// SetTabVisibility ingests a tab-visibility signal. Only the true→false
// transition emits a tab_switch; repeated losses never double-count.
func (s *Store) SetTabVisibility(studentID string, visible bool) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	if st.IsTabActive == visible {
		s.mu.Unlock()
		return nil
	}
	st.IsTabActive = visible

	var events []model.ActivityEvent
	if !visible {
		events = append(events, s.recordLocked(studentID, model.ActivityTabSwitch,
			"Student switched to another tab", nil))
	} else {
		st.LastActivity = s.clock()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(events, snapshot)
	return nil
}

// SetFacePresence ingests the face-detector output. present→absent is
// classified as camera_off semantics; absent→present as camera_on.
func (s *Store) SetFacePresence(studentID string, present bool) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	if st.IsCameraOn == present {
		s.mu.Unlock()
		return nil
	}
	st.IsCameraOn = present

	typ, detail := model.ActivityCameraOn, "Face detected"
	if !present {
		typ, detail = model.ActivityCameraOff, "Face not detected"
	}
	ev := s.recordLocked(studentID, typ, detail, nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// SetAudioLevel ingests the microphone level. Crossing the configured
// threshold upward emits speaking; crossing downward emits silent.
func (s *Store) SetAudioLevel(studentID string, level float64) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	speaking := level > s.audioThreshold
	if st.IsSpeaking == speaking {
		s.mu.Unlock()
		return nil
	}
	st.IsSpeaking = speaking

	typ, detail := model.ActivitySilent, "Student stopped speaking"
	if speaking {
		typ, detail = model.ActivitySpeaking, "Student started speaking"
	}
	ev := s.recordLocked(studentID, typ, detail, map[string]interface{}{"audio_level": level})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// SetMicState ingests an explicit microphone on/off toggle from the client.
func (s *Store) SetMicState(studentID string, on bool) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	if st.IsMicOn == on {
		s.mu.Unlock()
		return nil
	}
	st.IsMicOn = on

	typ, detail := model.ActivityMicOn, "Microphone turned on"
	if !on {
		typ, detail = model.ActivityMicOff, "Microphone turned off"
	}
	ev := s.recordLocked(studentID, typ, detail, nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// Disconnect marks a student as dropped. High severity: an unexplained
// disconnect during an exam is treated like a tab switch.
func (s *Store) Disconnect(studentID string) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	if !st.IsOnline {
		s.mu.Unlock()
		return nil
	}
	st.IsOnline = false
	st.IsCameraOn = false
	st.IsMicOn = false
	st.IsTabActive = false
	st.ConnectionQuality = model.ConnectionDisconnected

	ev := s.recordLocked(studentID, model.ActivityDisconnected, "Student disconnected", nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// Reconnect marks a dropped student as back online.
func (s *Store) Reconnect(studentID string) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	if st.IsOnline {
		s.mu.Unlock()
		return nil
	}
	st.IsOnline = true
	st.IsTabActive = true
	st.ConnectionQuality = model.ConnectionGood

	ev := s.recordLocked(studentID, model.ActivityReconnected, "Student reconnected", nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// Reevaluate downgrades connection quality for students whose last activity
// is stale, and disconnects those silent past offlineAfter. Deterministic:
// driven only by the injected clock, never by randomness. Intended to be
// called from a periodic tick.
func (s *Store) Reevaluate(staleAfter, offlineAfter time.Duration) {
	s.mu.Lock()
	now := s.clock()

	var events []model.ActivityEvent
	changed := false
	for _, id := range s.order {
		st := s.students[id]
		if !st.IsOnline {
			continue
		}
		idle := now.Sub(st.LastActivity)
		switch {
		case idle >= offlineAfter:
			st.IsOnline = false
			st.IsCameraOn = false
			st.IsMicOn = false
			st.IsTabActive = false
			st.ConnectionQuality = model.ConnectionDisconnected
			events = append(events, s.recordLocked(id, model.ActivityDisconnected,
				"Student disconnected (no activity)", nil))
			changed = true
		case idle >= staleAfter && st.ConnectionQuality != model.ConnectionPoor:
			st.ConnectionQuality = model.ConnectionPoor
			changed = true
		}
	}

	var snapshot []model.StudentStatus
	if changed {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.publish(events, snapshot)
	}
}

// ─── Warnings and exam linkage ──────────────────────────────────────

// SendWarning is the manual escalation path: it unconditionally increments
// the warning counter and emits a medium warning_received event. The
// automatic path (high-severity classification) uses the same counter.
func (s *Store) SendWarning(studentID, reason string) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	st.Warnings++
	if reason == "" {
		reason = "Warning sent by admin"
	}
	ev := s.recordLocked(studentID, model.ActivityWarningReceived, reason, nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// MarkExamStarted links the student to an in-flight exam attempt.
func (s *Store) MarkExamStarted(studentID string, startTime time.Time) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	st.IsInExam = true
	st.ExamStartTime = &startTime

	ev := s.recordLocked(studentID, model.ActivityExamStart,
		fmt.Sprintf("Student %s started an exam", st.Name),
		map[string]interface{}{"exam_start_time": startTime})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// RecordQuestionActivity logs an answer or skip action against the session.
func (s *Store) RecordQuestionActivity(studentID string, typ model.ActivityType, questionID int, detail string) error {
	s.mu.Lock()
	if _, ok := s.students[studentID]; !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}
	ev := s.recordLocked(studentID, typ, detail, map[string]interface{}{"question_id": questionID})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// RecordExamCompletion folds a finalized exam record into the student's
// history: rolling average, last-score markers, total time, exam flags.
func (s *Store) RecordExamCompletion(studentID string, record model.ExamRecord) error {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if !ok {
		s.mu.Unlock()
		return ErrStudentNotFound
	}

	st.ExamHistory = append(st.ExamHistory, record.Clone())
	st.TotalExamsTaken++
	date := record.ExamDate
	st.LastExamDate = &date
	if record.Score != nil {
		score := *record.Score
		st.LastExamScore = &score
	}
	st.TotalTimeSpent += record.ExamDuration

	total := 0
	for _, r := range st.ExamHistory {
		if r.Score != nil {
			total += *r.Score
		}
	}
	st.AverageScore = float64(total) / float64(len(st.ExamHistory))

	st.IsInExam = false
	st.ExamStartTime = nil

	detail := fmt.Sprintf("Student %s completed exam", st.Name)
	if record.Score != nil {
		detail = fmt.Sprintf("Student %s completed exam with score %d%%", st.Name, *record.Score)
	}
	ev := s.recordLocked(studentID, model.ActivityExamSubmit, detail,
		map[string]interface{}{"exam_record": record})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish([]model.ActivityEvent{ev}, snapshot)
	return nil
}

// ─── Internals ──────────────────────────────────────────────────────

// recordLocked builds the activity event and applies its side effects:
// high severity bumps the warning counter by exactly one, and every event
// refreshes last activity and the activity counter.
func (s *Store) recordLocked(studentID string, typ model.ActivityType, detail string, metadata map[string]interface{}) model.ActivityEvent {
	now := s.clock()
	severity := severityFor(typ)

	if st, ok := s.students[studentID]; ok {
		if severity == model.SeverityHigh {
			st.Warnings++
		}
		st.LastActivity = now
		st.ActivityCount++
	}

	return model.ActivityEvent{
		StudentID: studentID,
		Timestamp: now,
		Type:      typ,
		Detail:    detail,
		Severity:  severity,
		Metadata:  metadata,
	}
}

func (s *Store) findByEnrollmentLocked(enrollmentNo string) *model.StudentStatus {
	for _, st := range s.students {
		if st.EnrollmentNo == enrollmentNo {
			return st
		}
	}
	return nil
}

func (s *Store) snapshotLocked() []model.StudentStatus {
	out := make([]model.StudentStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.students[id].Clone())
	}
	return out
}

// publish delivers events then the snapshot, outside the store lock so a
// subscriber may call back into the store without deadlocking.
func (s *Store) publish(events []model.ActivityEvent, snapshot []model.StudentStatus) {
	if s.bus == nil {
		return
	}
	for _, ev := range events {
		s.bus.PublishActivity(ev)
	}
	if snapshot != nil {
		s.bus.PublishStatus(snapshot)
	}
}
