package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/config"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

const (
	RecordBatchSize    = 50
	RecordBatchTimeout = 2 * time.Second
	RecordPollTimeout  = 1 * time.Second
)

// RecordWorker drains the exam record persistence queue and writes
// finalized attempt summaries to Postgres.
type RecordWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewRecordWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *RecordWorker {
	return &RecordWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "record_worker").Logger(),
	}
}

type recordPayload struct {
	StudentID string           `json:"student_id"`
	Record    model.ExamRecord `json:"record"`
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *RecordWorker) Start(ctx context.Context) {
	w.log.Info().Msg("RecordWorker started")

	batch := make([]*recordPayload, 0, RecordBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= RecordBatchSize || time.Since(lastFlush) >= RecordBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, RecordPollTimeout, config.WorkerKey.PersistExamRecordsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p recordPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *RecordWorker) flushSafe(ctx context.Context, batch []*recordPayload) {
	if len(batch) == 0 {
		return
	}

	for _, p := range batch {
		if err := w.persistSingle(ctx, p); err != nil {
			w.log.Error().Err(err).Str("exam_id", p.Record.ExamID).Msg("Persist record failed, requeueing")
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.PersistExamRecordsQueue, raw)
		}
	}
}

func (w *RecordWorker) persistSingle(ctx context.Context, p *recordPayload) error {
	examID, err := uuid.Parse(p.Record.ExamID)
	if err != nil {
		// Invalid UUIDs cannot be retried. Log and drop.
		w.log.Error().Str("exam_id", p.Record.ExamID).Msg("Dropping record with invalid UUID")
		return nil
	}

	categories, err := json.Marshal(p.Record.Categories)
	if err != nil {
		w.log.Error().Err(err).Str("exam_id", p.Record.ExamID).Msg("Dropping record with unmarshalable categories")
		return nil
	}

	// Replays after a requeue are harmless: exam_id is the natural key.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO exam_records
		    (exam_id, student_id, exam_date, exam_duration, total_questions,
		     questions_attempted, questions_answered, questions_skipped, score, status, categories)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		 ON CONFLICT (exam_id) DO NOTHING`,
		examID, p.StudentID, p.Record.ExamDate, p.Record.ExamDuration, p.Record.TotalQuestions,
		p.Record.QuestionsAttempted, p.Record.QuestionsAnswered, p.Record.QuestionsSkipped,
		p.Record.Score, string(p.Record.Status), categories,
	)
	return err
}
