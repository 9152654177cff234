package monitor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

func testEvent(typ model.ActivityType) model.ActivityEvent {
	return model.ActivityEvent{
		StudentID: "s1",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Type:      typ,
		Severity:  model.SeverityLow,
	}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got1, got2 []model.ActivityEvent
	bus.SubscribeActivity(func(ev model.ActivityEvent) { got1 = append(got1, ev) })
	bus.SubscribeActivity(func(ev model.ActivityEvent) { got2 = append(got2, ev) })

	bus.PublishActivity(testEvent(model.ActivityLogin))

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("expected both subscribers to receive 1 event, got %d and %d", len(got1), len(got2))
	}
	if got1[0].Type != model.ActivityLogin {
		t.Fatalf("expected login event, got %s", got1[0].Type)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []model.ActivityEvent
	unsubscribe := bus.SubscribeActivity(func(ev model.ActivityEvent) { got = append(got, ev) })

	bus.PublishActivity(testEvent(model.ActivityLogin))
	unsubscribe()
	bus.PublishActivity(testEvent(model.ActivityLogout))

	if len(got) != 1 {
		t.Fatalf("expected 1 event after unsubscribe, got %d", len(got))
	}
}

func TestBusUnsubscribeMidBroadcast(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	// The first handler cancels the second during delivery; the second must
	// not be called for the in-flight event.
	var secondCalls int
	var unsubSecond func()
	bus.SubscribeActivity(func(ev model.ActivityEvent) { unsubSecond() })
	unsubSecond = bus.SubscribeActivity(func(ev model.ActivityEvent) { secondCalls++ })

	bus.PublishActivity(testEvent(model.ActivityTabSwitch))

	if secondCalls != 0 {
		t.Fatalf("expected unsubscribed handler to receive 0 events, got %d", secondCalls)
	}
}

func TestBusPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got int
	bus.SubscribeActivity(func(ev model.ActivityEvent) { panic("boom") })
	bus.SubscribeActivity(func(ev model.ActivityEvent) { got++ })

	bus.PublishActivity(testEvent(model.ActivityLogin))
	bus.PublishActivity(testEvent(model.ActivityLogout))

	if got != 2 {
		t.Fatalf("expected healthy subscriber to receive 2 events, got %d", got)
	}
}

func TestBusStatusSnapshots(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var snapshots [][]model.StudentStatus
	unsubscribe := bus.SubscribeStatus(func(s []model.StudentStatus) { snapshots = append(snapshots, s) })

	bus.PublishStatus([]model.StudentStatus{{ID: "a"}, {ID: "b"}})
	unsubscribe()
	bus.PublishStatus([]model.StudentStatus{{ID: "a"}})

	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if len(snapshots[0]) != 2 {
		t.Fatalf("expected 2 students in snapshot, got %d", len(snapshots[0]))
	}
}
