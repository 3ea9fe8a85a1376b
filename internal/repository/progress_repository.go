package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examsim-backend/internal/model"
)

// ProgressRepository maintains per-owner question progress counters.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// BulkRecord applies a batch of answer events using UNNEST. Events for the
// same owner and question must be pre-aggregated by the caller.
func (r *ProgressRepository) BulkRecord(ctx context.Context, rows []model.ProgressAggregate) error {
	n := len(rows)
	owners := make([]string, n)
	questions := make([]string, n)
	attempts := make([]int, n)
	corrects := make([]int, n)
	lastCorrect := make([]bool, n)
	confidences := make([]string, n)
	answeredAts := make([]time.Time, n)

	for i, p := range rows {
		owners[i] = p.OwnerID
		questions[i] = p.QuestionID
		attempts[i] = p.Attempts
		corrects[i] = p.Correct
		lastCorrect[i] = p.LastCorrect
		confidences[i] = string(p.LastConfidence)
		answeredAts[i] = p.LastAnsweredAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO question_progress
			(owner_id, question_id, attempts, correct, last_correct, last_confidence, last_answered_at)
		SELECT u.owner_id, u.question_id, u.attempts, u.correct, u.last_correct, u.last_confidence, u.last_answered_at
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::int[],
			$4::int[],
			$5::bool[],
			$6::text[],
			$7::timestamptz[]
		) AS u (owner_id, question_id, attempts, correct, last_correct, last_confidence, last_answered_at)
		ON CONFLICT (owner_id, question_id) DO UPDATE SET
			attempts = question_progress.attempts + EXCLUDED.attempts,
			correct = question_progress.correct + EXCLUDED.correct,
			last_correct = EXCLUDED.last_correct,
			last_confidence = EXCLUDED.last_confidence,
			last_answered_at = GREATEST(question_progress.last_answered_at, EXCLUDED.last_answered_at)`,
		owners, questions, attempts, corrects, lastCorrect, confidences, answeredAts,
	)
	return err
}

// Record applies a single aggregate row; used when a bulk write fails.
func (r *ProgressRepository) Record(ctx context.Context, p model.ProgressAggregate) error {
	return r.BulkRecord(ctx, []model.ProgressAggregate{p})
}

// ListByOwner returns an owner's progress rows, most recently answered first.
func (r *ProgressRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.ProgressAggregate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT owner_id, question_id, attempts, correct, last_correct, last_confidence, last_answered_at
		 FROM question_progress
		 WHERE owner_id = $1
		 ORDER BY last_answered_at DESC
		 LIMIT $2`, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProgressAggregate
	for rows.Next() {
		var p model.ProgressAggregate
		var conf string
		if err := rows.Scan(&p.OwnerID, &p.QuestionID, &p.Attempts, &p.Correct, &p.LastCorrect, &conf, &p.LastAnsweredAt); err != nil {
			return nil, err
		}
		p.LastConfidence = model.Confidence(conf)
		out = append(out, p)
	}
	return out, rows.Err()
}
