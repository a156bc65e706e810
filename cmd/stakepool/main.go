package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/susu3304/stakepool/internal/api"
	"github.com/susu3304/stakepool/internal/bot"
	"github.com/susu3304/stakepool/internal/config"
	"github.com/susu3304/stakepool/internal/db"
	"github.com/susu3304/stakepool/internal/pool"
	"github.com/susu3304/stakepool/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(context.Background()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	svc := pool.NewService(session.NewManager(cfg.Policy()), database)
	n, err := svc.Restore(context.Background())
	if err != nil {
		log.Fatalf("Failed to restore sessions: %v", err)
	}
	log.Printf("Restored %d sessions (forfeit mode %s)", n, cfg.ForfeitMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Overdue sweeps and save retries run whether or not Discord is configured
	worker := pool.NewDeadlineWorker(database, svc, pool.DeadlineConfig{
		Deadline: cfg.PaymentDeadline,
		Interval: cfg.DeadlineCheckInterval,
	})
	go worker.Run(ctx)

	if cfg.DiscordToken != "" {
		discordBot, err := bot.New(cfg.DiscordToken, svc)
		if err != nil {
			log.Fatalf("Failed to create discord bot: %v", err)
		}
		if err := discordBot.Start(); err != nil {
			log.Fatalf("Failed to start discord bot: %v", err)
		}
		defer discordBot.Stop()
	} else {
		log.Println("DISCORD_TOKEN not set, running without the bot")
	}

	apiServer := api.New(cfg, svc)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
}
