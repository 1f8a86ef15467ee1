package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pennysilv/zadavalnik"
)

func main() {
	// .env is optional; real deployments use environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := zadavalnik.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	zadavalnik.SetVerbose(cfg.Verbose)

	db, err := zadavalnik.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	quizMaster := zadavalnik.NewQuizMaster(
		cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel,
		cfg.MaxResponseTokens, cfg.OpenAITimeout,
	)
	manager := zadavalnik.NewSessionManager(quizMaster, db, cfg)

	bot, err := zadavalnik.NewBot(cfg.TelegramToken, manager, cfg.OpenAITimeout)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("Starting zadavalnik as @%s (model %s)", bot.Username(), cfg.OpenAIModel)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Bot stopped: %v", err)
	}
	log.Printf("Shutting down")
}
