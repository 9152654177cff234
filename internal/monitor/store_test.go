package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/config"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type eventCollector struct {
	events []model.ActivityEvent
}

func (e *eventCollector) last() model.ActivityEvent {
	return e.events[len(e.events)-1]
}

func (e *eventCollector) ofType(typ model.ActivityType) []model.ActivityEvent {
	var out []model.ActivityEvent
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestStore(t *testing.T, policy config.DuplicateSessionPolicy) (*Store, *fakeClock, *eventCollector) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	collector := &eventCollector{}
	bus := NewBus(zerolog.Nop())
	bus.SubscribeActivity(func(ev model.ActivityEvent) {
		collector.events = append(collector.events, ev)
	})
	store := NewStore(bus, policy, 30, clock.Now, zerolog.Nop())
	return store, clock, collector
}

func TestRegisterDefaults(t *testing.T) {
	store, clock, collector := newTestStore(t, config.DuplicatePolicyReject)

	id, err := store.Register("EN-001", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	st, err := store.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !st.IsOnline || !st.IsTabActive {
		t.Fatalf("expected online and tab active, got online=%v tab=%v", st.IsOnline, st.IsTabActive)
	}
	if st.ConnectionQuality != model.ConnectionExcellent {
		t.Fatalf("expected excellent quality, got %s", st.ConnectionQuality)
	}
	if !st.LoginTime.Equal(clock.now) {
		t.Fatalf("expected login time %v, got %v", clock.now, st.LoginTime)
	}
	if st.Warnings != 0 {
		t.Fatalf("expected 0 warnings at login, got %d", st.Warnings)
	}

	ev := collector.last()
	if ev.Type != model.ActivityLogin || ev.Severity != model.SeverityLow {
		t.Fatalf("expected low login event, got %s/%s", ev.Type, ev.Severity)
	}
}

func TestDuplicateLoginRejected(t *testing.T) {
	store, _, _ := newTestStore(t, config.DuplicatePolicyReject)

	if _, err := store.Register("EN-001", "Alice"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := store.Register("EN-001", "Alice"); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestDuplicateLoginReplaces(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReplace)

	first, err := store.Register("EN-001", "Alice")
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := store.Register("EN-001", "Alice")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh session id on replace")
	}

	if _, err := store.Get(first); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("expected prior session gone, got %v", err)
	}
	st, ok := store.FindByEnrollment("EN-001")
	if !ok || st.ID != second {
		t.Fatalf("expected live session %s, got %s (ok=%v)", second, st.ID, ok)
	}

	if n := len(collector.ofType(model.ActivityLogout)); n != 1 {
		t.Fatalf("expected 1 logout event from replacement, got %d", n)
	}
}

func TestTabSwitchIsEdgeTriggered(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	// First loss of visibility.
	if err := store.SetTabVisibility(id, false); err != nil {
		t.Fatalf("set visibility: %v", err)
	}
	// Same state repeated: no new event.
	if err := store.SetTabVisibility(id, false); err != nil {
		t.Fatalf("set visibility repeat: %v", err)
	}
	if n := len(collector.ofType(model.ActivityTabSwitch)); n != 1 {
		t.Fatalf("expected 1 tab_switch after repeated loss, got %d", n)
	}

	// Regaining visibility emits nothing.
	store.SetTabVisibility(id, true)
	if n := len(collector.ofType(model.ActivityTabSwitch)); n != 1 {
		t.Fatalf("expected no event on regaining visibility, got %d tab_switch", n)
	}

	// A second genuine loss counts again.
	store.SetTabVisibility(id, false)
	if n := len(collector.ofType(model.ActivityTabSwitch)); n != 2 {
		t.Fatalf("expected 2 tab_switch after second loss, got %d", n)
	}

	st, _ := store.Get(id)
	if st.Warnings != 2 {
		t.Fatalf("expected 2 warnings from high-severity events, got %d", st.Warnings)
	}
	ev := collector.ofType(model.ActivityTabSwitch)[0]
	if ev.Severity != model.SeverityHigh {
		t.Fatalf("expected high severity for tab_switch, got %s", ev.Severity)
	}
}

func TestAudioThresholdCrossing(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	// Crossing up emits speaking once.
	store.SetAudioLevel(id, 35)
	store.SetAudioLevel(id, 80)
	speaking := collector.ofType(model.ActivitySpeaking)
	if len(speaking) != 1 {
		t.Fatalf("expected 1 speaking event, got %d", len(speaking))
	}
	if speaking[0].Severity != model.SeverityMedium {
		t.Fatalf("expected medium severity for speaking, got %s", speaking[0].Severity)
	}
	if lvl, ok := speaking[0].Metadata["audio_level"].(float64); !ok || lvl != 35 {
		t.Fatalf("expected audio_level 35 in metadata, got %v", speaking[0].Metadata["audio_level"])
	}

	// Crossing down emits silent.
	store.SetAudioLevel(id, 10)
	if n := len(collector.ofType(model.ActivitySilent)); n != 1 {
		t.Fatalf("expected 1 silent event, got %d", n)
	}

	// Exactly at the threshold counts as not speaking.
	store.SetAudioLevel(id, 30)
	if n := len(collector.ofType(model.ActivitySpeaking)); n != 1 {
		t.Fatalf("expected level at threshold not to emit speaking, got %d events", n)
	}

	st, _ := store.Get(id)
	if st.Warnings != 0 {
		t.Fatalf("expected no warnings from audio events, got %d", st.Warnings)
	}
}

func TestMicToggle(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	store.SetMicState(id, true)
	store.SetMicState(id, true)
	store.SetMicState(id, false)

	if n := len(collector.ofType(model.ActivityMicOn)); n != 1 {
		t.Fatalf("expected 1 mic_on, got %d", n)
	}
	off := collector.ofType(model.ActivityMicOff)
	if len(off) != 1 {
		t.Fatalf("expected 1 mic_off, got %d", len(off))
	}
	if off[0].Severity != model.SeverityMedium {
		t.Fatalf("expected medium severity for mic_off, got %s", off[0].Severity)
	}
}

func TestFacePresence(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	store.SetFacePresence(id, true)
	store.SetFacePresence(id, false)
	store.SetFacePresence(id, false)

	on := collector.ofType(model.ActivityCameraOn)
	off := collector.ofType(model.ActivityCameraOff)
	if len(on) != 1 || len(off) != 1 {
		t.Fatalf("expected 1 camera_on and 1 camera_off, got %d and %d", len(on), len(off))
	}
	if off[0].Detail != "Face not detected" {
		t.Fatalf("unexpected camera_off detail: %q", off[0].Detail)
	}
}

func TestDisconnectAndReconnect(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")
	store.SetMicState(id, true)

	store.Disconnect(id)
	store.Disconnect(id) // already offline, no-op

	st, _ := store.Get(id)
	if st.IsOnline || st.IsMicOn || st.IsCameraOn || st.IsTabActive {
		t.Fatal("expected all presence flags cleared after disconnect")
	}
	if st.ConnectionQuality != model.ConnectionDisconnected {
		t.Fatalf("expected disconnected quality, got %s", st.ConnectionQuality)
	}
	if n := len(collector.ofType(model.ActivityDisconnected)); n != 1 {
		t.Fatalf("expected 1 disconnected event, got %d", n)
	}
	if st.Warnings != 1 {
		t.Fatalf("expected disconnect to add a warning, got %d", st.Warnings)
	}

	store.Reconnect(id)
	st, _ = store.Get(id)
	if !st.IsOnline || st.ConnectionQuality != model.ConnectionGood {
		t.Fatalf("expected online with good quality after reconnect, got online=%v quality=%s", st.IsOnline, st.ConnectionQuality)
	}
	if n := len(collector.ofType(model.ActivityReconnected)); n != 1 {
		t.Fatalf("expected 1 reconnected event, got %d", n)
	}
}

func TestSendWarningAccumulates(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	for i := 0; i < 3; i++ {
		if err := store.SendWarning(id, "Please focus on your exam"); err != nil {
			t.Fatalf("send warning: %v", err)
		}
	}

	st, _ := store.Get(id)
	if st.Warnings != 3 {
		t.Fatalf("expected 3 warnings, got %d", st.Warnings)
	}
	warns := collector.ofType(model.ActivityWarningReceived)
	if len(warns) != 3 {
		t.Fatalf("expected 3 warning events, got %d", len(warns))
	}
	if warns[0].Severity != model.SeverityMedium {
		t.Fatalf("expected medium severity, got %s", warns[0].Severity)
	}

	if err := store.SendWarning("bogus", ""); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestRecordExamCompletionAggregates(t *testing.T) {
	store, clock, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	score1, score2 := 80, 90
	rec1 := model.ExamRecord{
		ExamID:       "e1",
		ExamDate:     clock.now,
		ExamDuration: 600,
		Score:        &score1,
		Status:       model.ExamStatusCompleted,
	}
	clock.Advance(time.Hour)
	rec2 := model.ExamRecord{
		ExamID:       "e2",
		ExamDate:     clock.now,
		ExamDuration: 900,
		Score:        &score2,
		Status:       model.ExamStatusCompleted,
	}

	store.MarkExamStarted(id, clock.now)
	store.RecordExamCompletion(id, rec1)
	store.RecordExamCompletion(id, rec2)

	st, _ := store.Get(id)
	if st.TotalExamsTaken != 2 {
		t.Fatalf("expected 2 exams taken, got %d", st.TotalExamsTaken)
	}
	if st.AverageScore != 85 {
		t.Fatalf("expected average 85, got %v", st.AverageScore)
	}
	if st.LastExamScore == nil || *st.LastExamScore != 90 {
		t.Fatalf("expected last score 90, got %v", st.LastExamScore)
	}
	if st.TotalTimeSpent != 1500 {
		t.Fatalf("expected 1500s total time, got %d", st.TotalTimeSpent)
	}
	if st.IsInExam || st.ExamStartTime != nil {
		t.Fatal("expected exam flags cleared after completion")
	}
	if len(st.ExamHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(st.ExamHistory))
	}

	submits := collector.ofType(model.ActivityExamSubmit)
	if len(submits) != 2 {
		t.Fatalf("expected 2 exam_submit events, got %d", len(submits))
	}
	if submits[0].Severity != model.SeverityMedium {
		t.Fatalf("expected medium severity for exam_submit, got %s", submits[0].Severity)
	}
}

func TestListAllSnapshotIsStable(t *testing.T) {
	store, _, _ := newTestStore(t, config.DuplicatePolicyReject)
	a, _ := store.Register("EN-001", "Alice")
	store.Register("EN-002", "Bob")

	before := store.ListAll()
	if len(before) != 2 || before[0].EnrollmentNo != "EN-001" {
		t.Fatalf("expected registration order [EN-001 EN-002], got %+v", before)
	}

	store.SendWarning(a, "sit down")

	if before[0].Warnings != 0 {
		t.Fatal("expected earlier snapshot to be unaffected by later mutations")
	}
	after := store.ListAll()
	if after[0].Warnings != 1 {
		t.Fatalf("expected fresh snapshot to see the warning, got %d", after[0].Warnings)
	}
}

func TestReevaluateDowngradesStaleSessions(t *testing.T) {
	store, clock, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	staleAfter := 45 * time.Second
	offlineAfter := 3 * time.Minute

	// Fresh session: nothing changes.
	store.Reevaluate(staleAfter, offlineAfter)
	st, _ := store.Get(id)
	if st.ConnectionQuality != model.ConnectionExcellent {
		t.Fatalf("expected excellent quality while fresh, got %s", st.ConnectionQuality)
	}

	// Past the stale mark: quality degrades, still online.
	clock.Advance(50 * time.Second)
	store.Reevaluate(staleAfter, offlineAfter)
	st, _ = store.Get(id)
	if st.ConnectionQuality != model.ConnectionPoor || !st.IsOnline {
		t.Fatalf("expected poor quality and online, got %s online=%v", st.ConnectionQuality, st.IsOnline)
	}

	// Past the offline mark: session is dropped with a disconnected event.
	clock.Advance(3 * time.Minute)
	store.Reevaluate(staleAfter, offlineAfter)
	st, _ = store.Get(id)
	if st.IsOnline || st.ConnectionQuality != model.ConnectionDisconnected {
		t.Fatalf("expected disconnected session, got online=%v quality=%s", st.IsOnline, st.ConnectionQuality)
	}
	if n := len(collector.ofType(model.ActivityDisconnected)); n != 1 {
		t.Fatalf("expected 1 disconnected event, got %d", n)
	}

	// Offline sessions are left alone on later ticks.
	clock.Advance(10 * time.Minute)
	store.Reevaluate(staleAfter, offlineAfter)
	if n := len(collector.ofType(model.ActivityDisconnected)); n != 1 {
		t.Fatalf("expected no further disconnect events, got %d", n)
	}
}

func TestUnregisterRemovesSession(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")

	store.Unregister(id)
	store.Unregister(id) // unknown id, silent

	if _, err := store.Get(id); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if n := len(collector.ofType(model.ActivityLogout)); n != 1 {
		t.Fatalf("expected 1 logout event, got %d", n)
	}
	if n := len(store.ListAll()); n != 0 {
		t.Fatalf("expected empty roster, got %d", n)
	}
}

func TestApplyPatchMergesOnlyProvidedFields(t *testing.T) {
	store, _, collector := newTestStore(t, config.DuplicatePolicyReject)
	id, _ := store.Register("EN-001", "Alice")
	eventsBefore := len(collector.events)

	quality := model.ConnectionGood
	speaking := true
	if err := store.ApplyPatch(id, model.StatusPatch{
		ConnectionQuality: &quality,
		IsSpeaking:        &speaking,
	}); err != nil {
		t.Fatalf("apply patch: %v", err)
	}

	st, _ := store.Get(id)
	if st.ConnectionQuality != model.ConnectionGood || !st.IsSpeaking {
		t.Fatalf("expected patched fields applied, got quality=%s speaking=%v", st.ConnectionQuality, st.IsSpeaking)
	}
	if !st.IsOnline || !st.IsTabActive {
		t.Fatal("expected untouched fields preserved")
	}
	if len(collector.events) != eventsBefore {
		t.Fatalf("expected no activity events from a patch, got %d new", len(collector.events)-eventsBefore)
	}
}
