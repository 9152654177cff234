package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/config"
	"github.com/safeexaminer/proctor-backend/internal/model"
	"github.com/safeexaminer/proctor-backend/internal/monitor"
)

// EventRelay bridges the in-process notification bus to Redis: activity
// events and finalized exam records are queued for the persistence workers,
// and both activity and status streams are published on pub/sub channels
// for external consumers (recording service, other nodes).
//
// Durability is the workers' concern; the relay itself never blocks the
// signal producers on I/O beyond a Redis round trip.
type EventRelay struct {
	bus *monitor.Bus
	rdb *redis.Client
	log zerolog.Logger

	unsubActivity func()
	unsubStatus   func()
}

// NewEventRelay creates a relay; call Start to attach it to the bus.
func NewEventRelay(bus *monitor.Bus, rdb *redis.Client, log zerolog.Logger) *EventRelay {
	return &EventRelay{
		bus: bus,
		rdb: rdb,
		log: log.With().Str("component", "event_relay").Logger(),
	}
}

// recordEnvelope pairs a finalized exam record with its session for the
// persistence worker.
type recordEnvelope struct {
	StudentID string           `json:"student_id"`
	Record    model.ExamRecord `json:"record"`
}

// Start subscribes the relay to the bus. Delivery is synchronous on the
// producer goroutine, so the handlers stay small.
func (r *EventRelay) Start(ctx context.Context) {
	r.unsubActivity = r.bus.SubscribeActivity(func(ev model.ActivityEvent) {
		r.forwardActivity(ctx, ev)
	})
	r.unsubStatus = r.bus.SubscribeStatus(func(snapshot []model.StudentStatus) {
		r.forwardStatus(ctx, snapshot)
	})
	r.log.Info().Msg("Event relay attached to bus")
}

// Stop detaches the relay from the bus.
func (r *EventRelay) Stop() {
	if r.unsubActivity != nil {
		r.unsubActivity()
	}
	if r.unsubStatus != nil {
		r.unsubStatus()
	}
	r.log.Info().Msg("Event relay detached")
}

func (r *EventRelay) forwardActivity(ctx context.Context, ev model.ActivityEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		r.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Marshal activity failed")
		return
	}

	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistActivitiesQueue, raw).Err(); err != nil {
		r.log.Error().Err(err).Msg("Queue activity for persistence failed")
	}
	if err := r.rdb.Publish(ctx, config.CacheKey.ProctorActivityChannel(), raw).Err(); err != nil {
		r.log.Warn().Err(err).Msg("Publish activity failed")
	}

	// Exam submissions also carry the finalized record; queue it for the
	// record worker so history survives restarts.
	if ev.Type != model.ActivityExamSubmit {
		return
	}
	rec, ok := ev.Metadata["exam_record"].(model.ExamRecord)
	if !ok {
		return
	}
	payload, err := json.Marshal(recordEnvelope{StudentID: ev.StudentID, Record: rec})
	if err != nil {
		r.log.Error().Err(err).Msg("Marshal exam record failed")
		return
	}
	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistExamRecordsQueue, payload).Err(); err != nil {
		r.log.Error().Err(err).Msg("Queue exam record for persistence failed")
	}
}

func (r *EventRelay) forwardStatus(ctx context.Context, snapshot []model.StudentStatus) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		r.log.Error().Err(err).Msg("Marshal status snapshot failed")
		return
	}
	if err := r.rdb.Publish(ctx, config.CacheKey.ProctorStatusChannel(), raw).Err(); err != nil {
		r.log.Warn().Err(err).Msg("Publish status snapshot failed")
	}
}
