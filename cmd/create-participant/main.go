package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "create-participant")

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	participantRepo := repository.NewParticipantRepository(pool)
	examRepo := repository.NewExamRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Participant ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		fmt.Println("Error: Username must be at least 3 characters")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	password := string(bytePassword)
	if len(password) < 4 {
		fmt.Println("Error: Password must be at least 4 characters")
		return
	}

	fmt.Print("Assign to Exam ID (blank for none): ")
	examIDStr, _ := reader.ReadString('\n')
	examIDStr = strings.TrimSpace(examIDStr)

	var examID *uuid.UUID
	if examIDStr != "" {
		id, err := uuid.Parse(examIDStr)
		if err != nil {
			fmt.Println("Error: Exam ID must be a UUID")
			return
		}
		def, err := examRepo.GetDefinition(ctx, id)
		if err != nil {
			log.Fatal().Err(err).Str("exam_id", id.String()).Msg("Exam lookup failed")
		}
		fmt.Printf("Assigning to '%s' (%d questions)\n", def.Exam.Title, len(def.Questions))
		examID = &id
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	p := &model.Participant{
		Username:     username,
		Name:         name,
		PasswordHash: string(hashedPassword),
		ExamID:       examID,
	}
	if err := participantRepo.Create(ctx, p); err != nil {
		log.Fatal().Err(err).Msg("Failed to create participant")
	}

	fmt.Printf("\nSuccess! Participant '%s' (%s) created with ID: %d\n", p.Name, p.Username, p.ID)
}
