package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/model"
)

// Question selection errors.
var (
	ErrQuestionNotInBank = errors.New("question not found in bank")
	ErrTooManyQuestions  = errors.New("too many questions requested")
)

const (
	// DefaultSampleSize is used when a category selection gives no count.
	DefaultSampleSize = 40
	categoriesTTL     = 5 * time.Minute
)

// Selection describes which bank questions a session should contain. Explicit
// ids take precedence over the category filter.
type Selection struct {
	QuestionIDs []string
	Category    string
	Subcategory string
	Count       int
}

// QuestionSource supplies the immutable question list for a new session.
type QuestionSource interface {
	Questions(ctx context.Context, sel Selection) ([]model.ExamQuestion, error)
}

type questionStore interface {
	ListByIDs(ctx context.Context, ids []string) ([]model.ExamQuestion, error)
	Sample(ctx context.Context, category, subcategory string, limit int) ([]model.ExamQuestion, error)
	Categories(ctx context.Context) ([]model.CategoryCount, error)
	UpsertBatch(ctx context.Context, questions []model.ExamQuestion) error
}

// QuestionService serves the question bank.
type QuestionService struct {
	repo         questionStore
	rdb          *redis.Client
	log          zerolog.Logger
	maxQuestions int
}

// NewQuestionService creates a new QuestionService. rdb may be nil to disable
// category caching.
func NewQuestionService(repo questionStore, rdb *redis.Client, maxQuestions int, log zerolog.Logger) *QuestionService {
	if maxQuestions <= 0 {
		maxQuestions = 200
	}
	return &QuestionService{
		repo:         repo,
		rdb:          rdb,
		log:          log.With().Str("component", "question_service").Logger(),
		maxQuestions: maxQuestions,
	}
}

// Questions implements QuestionSource.
func (s *QuestionService) Questions(ctx context.Context, sel Selection) ([]model.ExamQuestion, error) {
	if len(sel.QuestionIDs) > 0 {
		return s.byIDs(ctx, sel.QuestionIDs)
	}

	count := sel.Count
	if count <= 0 {
		count = DefaultSampleSize
	}
	if count > s.maxQuestions {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyQuestions, count, s.maxQuestions)
	}

	qs, err := s.repo.Sample(ctx, sel.Category, sel.Subcategory, count)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	if len(qs) == 0 {
		return nil, engine.ErrNoQuestions
	}
	return qs, nil
}

// byIDs returns the requested questions in request order, dropping repeats.
func (s *QuestionService) byIDs(ctx context.Context, ids []string) ([]model.ExamQuestion, error) {
	ordered := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	if len(ordered) > s.maxQuestions {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyQuestions, len(ordered), s.maxQuestions)
	}

	found, err := s.repo.ListByIDs(ctx, ordered)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	byID := make(map[string]model.ExamQuestion, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}

	out := make([]model.ExamQuestion, 0, len(ordered))
	for _, id := range ordered {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotInBank, id)
		}
		out = append(out, q)
	}
	return out, nil
}

// Categories lists bank categories with question counts. The listing is
// cached briefly in Redis.
func (s *QuestionService) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	key := config.CacheKey.QuestionCategoriesKey()

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var cached []model.CategoryCount
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Category cache read failed")
		}
	}

	cats, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []model.CategoryCount{}
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(cats); err == nil {
			s.rdb.Set(ctx, key, raw, categoriesTTL)
		}
	}
	return cats, nil
}

// Import validates and upserts questions into the bank, then drops the
// category cache.
func (s *QuestionService) Import(ctx context.Context, questions []model.ExamQuestion) error {
	if len(questions) == 0 {
		return engine.ErrNoQuestions
	}
	if err := engine.ValidateQuestions(questions); err != nil {
		return err
	}
	if err := s.repo.UpsertBatch(ctx, questions); err != nil {
		return fmt.Errorf("upsert questions: %w", err)
	}

	if s.rdb != nil {
		s.rdb.Del(ctx, config.CacheKey.QuestionCategoriesKey())
	}
	s.log.Info().Int("count", len(questions)).Msg("Questions imported")
	return nil
}
