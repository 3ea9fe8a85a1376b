package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examsim-backend/internal/model"
)

const questionColumns = `id, stem, options, correct_index, explanation, educational_objective,
	category, subcategory, topic_tags, peer_performance, difficulty`

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestions(rows pgx.Rows) ([]model.ExamQuestion, error) {
	defer rows.Close()

	var questions []model.ExamQuestion
	for rows.Next() {
		var r model.QuestionRow
		if err := rows.Scan(&r.ID, &r.Stem, &r.Options, &r.CorrectIndex, &r.Explanation, &r.EducationalObjective,
			&r.Category, &r.Subcategory, &r.TopicTags, &r.PeerPerformance, &r.Difficulty); err != nil {
			return nil, err
		}
		q, err := r.ToQuestion()
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListByIDs retrieves the questions with the given ids. Order is unspecified
// and missing ids are skipped.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []string) ([]model.ExamQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// Sample draws up to limit random questions, optionally filtered by category
// and subcategory.
func (r *QuestionRepository) Sample(ctx context.Context, category, subcategory string, limit int) ([]model.ExamQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE ($1 = '' OR category = $1)
		   AND ($2 = '' OR subcategory = $2)
		 ORDER BY random()
		 LIMIT $3`, category, subcategory, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// Categories counts bank questions per category and subcategory.
func (r *QuestionRepository) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category, subcategory, COUNT(*)
		 FROM questions
		 GROUP BY category, subcategory
		 ORDER BY category, subcategory`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CategoryCount
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Category, &c.Subcategory, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const upsertQuestionSQL = `
	INSERT INTO questions (` + questionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		stem = EXCLUDED.stem,
		options = EXCLUDED.options,
		correct_index = EXCLUDED.correct_index,
		explanation = EXCLUDED.explanation,
		educational_objective = EXCLUDED.educational_objective,
		category = EXCLUDED.category,
		subcategory = EXCLUDED.subcategory,
		topic_tags = EXCLUDED.topic_tags,
		peer_performance = EXCLUDED.peer_performance,
		difficulty = EXCLUDED.difficulty,
		updated_at = NOW()`

// UpsertBatch inserts or replaces questions in a single transaction.
func (r *QuestionRepository) UpsertBatch(ctx context.Context, questions []model.ExamQuestion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, q := range questions {
		row, err := model.NewQuestionRow(q)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		batch.Queue(upsertQuestionSQL,
			row.ID, row.Stem, row.Options, row.CorrectIndex, row.Explanation, row.EducationalObjective,
			row.Category, row.Subcategory, row.TopicTags, row.PeerPerformance, row.Difficulty,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
