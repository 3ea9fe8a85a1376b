package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examsim-backend/internal/model"
)

// ExamSessionRepository stores durable session snapshots.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Upsert writes a snapshot unless a newer version is already stored. It
// reports whether the row was written.
func (r *ExamSessionRepository) Upsert(ctx context.Context, s *model.ExamSession) (bool, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO exam_sessions
		   (id, owner_id, mode, initial_mode, question_count, time_remaining, is_ended, end_reason,
		    version, snapshot, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   mode = EXCLUDED.mode,
		   time_remaining = EXCLUDED.time_remaining,
		   is_ended = EXCLUDED.is_ended,
		   end_reason = EXCLUDED.end_reason,
		   version = EXCLUDED.version,
		   snapshot = EXCLUDED.snapshot,
		   ended_at = EXCLUDED.ended_at,
		   updated_at = NOW()
		 WHERE exam_sessions.version < EXCLUDED.version`,
		s.ID, s.OwnerID, s.Mode, s.InitialMode, len(s.Questions), s.TimeRemaining, s.IsEnded, string(s.EndReason),
		s.Version, raw, s.StartedAt, s.EndedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetSnapshot retrieves the stored snapshot for a session.
func (r *ExamSessionRepository) GetSnapshot(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT snapshot FROM exam_sessions WHERE id = $1`, id,
	).Scan(&raw)
	if err != nil {
		return nil, err
	}

	var s model.ExamSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// ListByOwner retrieves an owner's sessions, newest first. status may be
// "active", "ended" or empty for both.
func (r *ExamSessionRepository) ListByOwner(ctx context.Context, ownerID, status string, page, perPage int) ([]model.SessionSummary, int64, error) {
	offset := (page - 1) * perPage

	where := `WHERE owner_id = $1`
	switch status {
	case "active":
		where += ` AND NOT is_ended`
	case "ended":
		where += ` AND is_ended`
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_sessions `+where, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, mode, initial_mode, question_count, time_remaining, is_ended, end_reason, started_at, ended_at
		 FROM exam_sessions `+where+`
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := make([]model.SessionSummary, 0, perPage)
	for rows.Next() {
		var s model.SessionSummary
		var reason string
		if err := rows.Scan(&s.ID, &s.Mode, &s.InitialMode, &s.QuestionCount, &s.TimeRemaining, &s.IsEnded, &reason, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, 0, err
		}
		s.EndReason = model.EndReason(reason)
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}
