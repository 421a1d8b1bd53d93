package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration values.
type Config struct {
	DatabaseDSN     string
	HTTPPort        string
	JWTSecret       string
	AppPassword     string
	AppPasswordHash string
	CronSecret      string
	TelegramToken   string
	TelegramChatID  int64
	AllowedOrigins  []string
	Timezone        string
	Env             string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "cuidarmed.db"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev_secret"
	}

	cronSecret := os.Getenv("CRON_SECRET")
	if cronSecret == "" {
		cronSecret = "dev_cron_secret"
	}

	timezone := os.Getenv("TIMEZONE")
	if timezone == "" {
		timezone = "America/Argentina/Buenos_Aires"
	}

	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("invalid TELEGRAM_CHAT_ID value %q, telegram notifications disabled", raw)
		} else {
			chatID = id
		}
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return Config{
		DatabaseDSN:     dsn,
		HTTPPort:        port,
		JWTSecret:       jwtSecret,
		AppPassword:     os.Getenv("APP_PASSWORD"),
		AppPasswordHash: os.Getenv("APP_PASSWORD_HASH"),
		CronSecret:      cronSecret,
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:  chatID,
		AllowedOrigins:  origins,
		Timezone:        timezone,
		Env:             os.Getenv("APP_ENV"),
	}
}
