package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/database"
	"github.com/stemsi/examsim-backend/internal/logger"
	"github.com/stemsi/examsim-backend/internal/model"
	"github.com/stemsi/examsim-backend/internal/repository"
	"github.com/stemsi/examsim-backend/internal/service"
	"github.com/stemsi/examsim-backend/internal/validator"
)

func main() {
	var file string
	flag.StringVar(&file, "file", "questions.json", "JSON array of questions to import")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read import file")
	}

	var entries []model.ImportQuestionRequest
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Fatal().Err(err).Msg("Import file is not a JSON array of questions")
	}

	questions := make([]model.ExamQuestion, 0, len(entries))
	invalid := 0
	for i := range entries {
		if fields := validator.Struct(&entries[i]); fields != nil {
			invalid++
			fmt.Printf("Entry %d (%s) rejected: %v\n", i, entries[i].ID, fields)
			continue
		}
		questions = append(questions, entries[i].ToQuestion())
	}
	if invalid > 0 {
		log.Fatal().Int("invalid", invalid).Msg("Import aborted, fix the entries above")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Category cache invalidation is skipped; the cache expires on its own.
	questionService := service.NewQuestionService(repository.NewQuestionRepository(pool), nil, cfg.MaxQuestionsPerSession, log)

	fmt.Printf("=== Importing %d questions ===\n", len(questions))
	if err := questionService.Import(ctx, questions); err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}
	fmt.Printf("Import completed! %d questions upserted.\n", len(questions))
}
