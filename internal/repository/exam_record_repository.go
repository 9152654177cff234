package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

// ExamRecordRepository handles read access to persisted exam records.
// Writes go through the persistence worker, not this repository.
type ExamRecordRepository struct {
	pool *pgxpool.Pool
}

// NewExamRecordRepository creates a new ExamRecordRepository.
func NewExamRecordRepository(pool *pgxpool.Pool) *ExamRecordRepository {
	return &ExamRecordRepository{pool: pool}
}

// GetByExamID retrieves a single exam record by its UUID.
func (r *ExamRecordRepository) GetByExamID(ctx context.Context, examID string) (*model.ExamRecord, error) {
	rec := &model.ExamRecord{}
	var rawCategories []byte
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, exam_date, exam_duration, total_questions, questions_attempted,
		        questions_answered, questions_skipped, score, status, categories
		 FROM exam_records WHERE exam_id = $1`, examID,
	).Scan(&rec.ExamID, &rec.ExamDate, &rec.ExamDuration, &rec.TotalQuestions, &rec.QuestionsAttempted,
		&rec.QuestionsAnswered, &rec.QuestionsSkipped, &rec.Score, &rec.Status, &rawCategories)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(rawCategories) > 0 {
		if err := json.Unmarshal(rawCategories, &rec.Categories); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// ListByStudent retrieves all persisted exam records for one monitor
// session, oldest first.
func (r *ExamRecordRepository) ListByStudent(ctx context.Context, studentID string) ([]model.ExamRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, exam_date, exam_duration, total_questions, questions_attempted,
		        questions_answered, questions_skipped, score, status, categories
		 FROM exam_records
		 WHERE student_id = $1
		 ORDER BY exam_date`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.ExamRecord, 0)
	for rows.Next() {
		var rec model.ExamRecord
		var rawCategories []byte
		if err := rows.Scan(&rec.ExamID, &rec.ExamDate, &rec.ExamDuration, &rec.TotalQuestions, &rec.QuestionsAttempted,
			&rec.QuestionsAnswered, &rec.QuestionsSkipped, &rec.Score, &rec.Status, &rawCategories); err != nil {
			return nil, err
		}
		if len(rawCategories) > 0 {
			if err := json.Unmarshal(rawCategories, &rec.Categories); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
