package monitor

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

// ActivityHandler receives every new activity event.
type ActivityHandler func(model.ActivityEvent)

// StatusHandler receives a full snapshot of all known students after every
// status change. Snapshots are value copies owned by the subscriber.
type StatusHandler func([]model.StudentStatus)

type activitySub struct {
	fn     ActivityHandler
	active bool
}

type statusSub struct {
	fn     StatusHandler
	active bool
}

// Bus is the in-process notification fan-out. Delivery is synchronous, in
// subscriber-registration order, on the caller's goroutine. A panicking
// subscriber is isolated so it cannot block delivery to the others.
type Bus struct {
	mu       sync.Mutex
	log      zerolog.Logger
	activity []*activitySub
	status   []*statusSub
}

// NewBus creates a new Bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "bus").Logger()}
}

// SubscribeActivity registers a handler for activity events and returns its
// unsubscribe function. Unsubscribing is safe from within the handler itself.
func (b *Bus) SubscribeActivity(fn ActivityHandler) func() {
	sub := &activitySub{fn: fn, active: true}
	b.mu.Lock()
	b.activity = append(b.activity, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.active = false
		for i, s := range b.activity {
			if s == sub {
				b.activity = append(b.activity[:i], b.activity[i+1:]...)
				break
			}
		}
	}
}

// SubscribeStatus registers a handler for status snapshots and returns its
// unsubscribe function.
func (b *Bus) SubscribeStatus(fn StatusHandler) func() {
	sub := &statusSub{fn: fn, active: true}
	b.mu.Lock()
	b.status = append(b.status, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.active = false
		for i, s := range b.status {
			if s == sub {
				b.status = append(b.status[:i], b.status[i+1:]...)
				break
			}
		}
	}
}

// PublishActivity delivers an event to every current activity subscriber.
func (b *Bus) PublishActivity(ev model.ActivityEvent) {
	b.mu.Lock()
	subs := append([]*activitySub(nil), b.activity...)
	b.mu.Unlock()

	for _, sub := range subs {
		if !b.stillActive(sub, nil) {
			continue
		}
		b.safeCallActivity(sub.fn, ev)
	}
}

// PublishStatus delivers a snapshot to every current status subscriber.
// Each subscriber gets its own copy of the slice header; the elements are
// already value copies produced by the store.
func (b *Bus) PublishStatus(snapshot []model.StudentStatus) {
	b.mu.Lock()
	subs := append([]*statusSub(nil), b.status...)
	b.mu.Unlock()

	for _, sub := range subs {
		if !b.stillActive(nil, sub) {
			continue
		}
		b.safeCallStatus(sub.fn, snapshot)
	}
}

// stillActive re-checks a subscription right before delivery so a handler
// that unsubscribed mid-broadcast is not called again.
func (b *Bus) stillActive(a *activitySub, s *statusSub) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a != nil {
		return a.active
	}
	return s.active
}

func (b *Bus) safeCallActivity(fn ActivityHandler, ev model.ActivityEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("type", string(ev.Type)).
				Str("student_id", ev.StudentID).
				Msg("Activity subscriber panicked")
		}
	}()
	fn(ev)
}

func (b *Bus) safeCallStatus(fn StatusHandler, snapshot []model.StudentStatus) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Int("students", len(snapshot)).
				Msg("Status subscriber panicked")
		}
	}()
	fn(snapshot)
}
