package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/susu3304/stakepool/internal/settlement"
)

type Config struct {
	// Database
	DatabaseURL string

	// Web Server
	WebBind        string
	AllowedOrigins []string

	// Discord Bot (optional)
	DiscordToken string

	// Settlement
	ForfeitMode      settlement.Mode
	MinTransferCents int64

	// Payment deadlines
	PaymentDeadline       time.Duration
	DeadlineCheckInterval time.Duration
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		WebBind:        getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		AllowedOrigins: splitList(getEnvDefault("CORS_ALLOWED_ORIGINS", "*")),
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	mode, err := settlement.ParseMode(os.Getenv("FORFEIT_MODE"))
	if err != nil {
		return nil, fmt.Errorf("FORFEIT_MODE: %w", err)
	}
	cfg.ForfeitMode = mode

	cfg.MinTransferCents, err = strconv.ParseInt(getEnvDefault("MIN_TRANSFER_CENTS", "0"), 10, 64)
	if err != nil || cfg.MinTransferCents < 0 {
		return nil, fmt.Errorf("MIN_TRANSFER_CENTS must be a non-negative integer")
	}

	if cfg.PaymentDeadline, err = getDuration("PAYMENT_DEADLINE", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DeadlineCheckInterval, err = getDuration("DEADLINE_CHECK_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Policy is the settlement policy derived from the config.
func (c *Config) Policy() settlement.Policy {
	return settlement.Policy{Mode: c.ForfeitMode, MinimumTransfer: c.MinTransferCents}
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
