package config

import (
	"os"
	"strconv"
	"time"
)

type Scheduler struct {
	TickInterval   time.Duration
	BatchLimit     int
	MaxConcurrency int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	StuckAfter     time.Duration
}

type Config struct {
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleRedirectURI    string
	LinkedinClientID     string
	LinkedinClientSecret string
	LinkedinRedirectURI  string
	PostgresURI          string
	FrontendURL          string
	SecretKey            string
	CookieName           string
	Scheduler            Scheduler
}

func LoadConfig() *Config {
	return &Config{
		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:    getEnv("GOOGLE_REDIRECT_URI", "http://localhost:3000/login/callback"),
		LinkedinClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedinRedirectURI:  getEnv("LINKEDIN_REDIRECT_URI", "http://localhost:3000/auth/linkedin/callback"),
		PostgresURI:          getEnv("POSTGRES_URI", ""),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:            getEnv("SECRET_KEY", ""),
		CookieName:           getEnv("COOKIE_NAME", "wsch_session"),
		Scheduler: Scheduler{
			TickInterval:   getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Minute),
			BatchLimit:     getEnvInt("SCHEDULER_BATCH_LIMIT", 20),
			MaxConcurrency: getEnvInt("SCHEDULER_MAX_CONCURRENCY", 10),
			MaxRetries:     getEnvInt("SCHEDULER_MAX_RETRIES", 3),
			BackoffBase:    getEnvDuration("SCHEDULER_BACKOFF_BASE", time.Minute),
			BackoffCap:     getEnvDuration("SCHEDULER_BACKOFF_CAP", 30*time.Minute),
			StuckAfter:     getEnvDuration("SCHEDULER_STUCK_AFTER", 10*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
