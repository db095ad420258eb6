package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// seed-exam creates a demo exam with generated questions and assigned participants.
func main() {
	var (
		title        string
		questions    int
		participants int
		startIn      time.Duration
		duration     time.Duration
		password     string
		prefix       string
	)
	flag.StringVar(&title, "title", "Ujian Demo", "Exam title")
	flag.IntVar(&questions, "questions", 20, "Number of questions")
	flag.IntVar(&participants, "participants", 50, "Number of participants to create")
	flag.DurationVar(&startIn, "start-in", 5*time.Minute, "Delay before the exam opens")
	flag.DurationVar(&duration, "duration", 90*time.Minute, "Length of the exam window")
	flag.StringVar(&password, "password", "stemsijaya", "Password for every seeded participant")
	flag.StringVar(&prefix, "prefix", "peserta", "Username prefix")
	flag.Parse()

	if questions < 0 || participants < 0 || duration <= 0 {
		fmt.Fprintln(os.Stderr, "questions and participants must be >= 0 and duration > 0")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "seed-exam")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)

	startsAt := time.Now().UTC().Add(startIn).Truncate(time.Second)
	def := &model.ExamDefinition{
		Exam: model.Exam{
			Title:    title,
			StartsAt: startsAt,
			EndsAt:   startsAt.Add(duration),
		},
		Questions: make([]model.Question, questions),
	}
	for i := range def.Questions {
		def.Questions[i] = demoQuestion(i + 1)
	}

	if err := examRepo.Create(ctx, def); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s (%d questions), window %s - %s\n",
		def.Exam.ID, len(def.Questions), def.Exam.StartsAt.Format(time.RFC3339), def.Exam.EndsAt.Format(time.RFC3339))

	// One hash for all seeded accounts keeps seeding fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	examID := def.Exam.ID
	successCount := 0
	for i := 0; i < participants; i++ {
		p := &model.Participant{
			Username:     fmt.Sprintf("%s%03d", prefix, i+1),
			Name:         fmt.Sprintf("Peserta %d", i+1),
			PasswordHash: string(hash),
			ExamID:       &examID,
		}
		if err := participantRepo.Create(ctx, p); err != nil {
			fmt.Printf("Error creating participant %s: %v\n", p.Username, err)
			continue
		}
		successCount++
		if successCount%10 == 0 {
			fmt.Printf("Created %d participants...\n", successCount)
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d participants.\n", successCount, participants)
}

func demoQuestion(ordinal int) model.Question {
	options, _ := json.Marshal(map[string]string{
		"a": fmt.Sprintf("%d", ordinal),
		"b": fmt.Sprintf("%d", ordinal*2),
		"c": fmt.Sprintf("%d", ordinal*3),
		"d": fmt.Sprintf("%d", ordinal*4),
		"e": fmt.Sprintf("%d", ordinal*5),
	})
	key := model.OptionAlphabet[(ordinal-1)%len(model.OptionAlphabet)]
	return model.Question{
		Ordinal:       ordinal,
		QuestionText:  fmt.Sprintf("Berapakah %d x %d?", ordinal, int(key-'a')+1),
		Options:       options,
		CorrectOption: string(key),
	}
}
