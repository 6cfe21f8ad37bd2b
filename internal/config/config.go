package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// SMS gateway
	SMSGatewayURL     string
	SMSGatewayTimeout time.Duration

	// Rate limiting: maximum outbound sends per second
	SendRateLimit int

	// Queue processing policy. The retry numbers are deployment tuning, not
	// code constants.
	RetryLimit         int
	RetryDelay         time.Duration
	RetryBackoff       bool
	JobExpireIn        time.Duration
	JobRetainFor       time.Duration
	BatchJobRetainFor  time.Duration
	DeliverConcurrency int

	// Queue client timing
	PollInterval        time.Duration
	MaintenanceInterval time.Duration
	CronTick            time.Duration

	// Scanner cron expressions
	EventReminderCron  string
	DailyItineraryCron string
}

// Load reads configuration from the environment, after loading a local .env
// file when one exists (development convenience; missing files are fine).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		SMSGatewayURL:     getEnv("SMS_GATEWAY_URL", "http://localhost:9090/send"),
		SMSGatewayTimeout: getDuration("SMS_GATEWAY_TIMEOUT", 10*time.Second),

		SendRateLimit: getInt("SEND_RATE_LIMIT", 10),

		RetryLimit:         getInt("JOB_RETRY_LIMIT", 3),
		RetryDelay:         getDuration("JOB_RETRY_DELAY", 10*time.Second),
		RetryBackoff:       getBool("JOB_RETRY_BACKOFF", true),
		JobExpireIn:        getDuration("JOB_EXPIRE_IN", 5*time.Minute),
		JobRetainFor:       getDuration("JOB_RETAIN_FOR", 7*24*time.Hour),
		BatchJobRetainFor:  getDuration("BATCH_JOB_RETAIN_FOR", time.Hour),
		DeliverConcurrency: getInt("DELIVER_CONCURRENCY", 3),

		PollInterval:        getDuration("QUEUE_POLL_INTERVAL", 2*time.Second),
		MaintenanceInterval: getDuration("QUEUE_MAINTENANCE_INTERVAL", 30*time.Second),
		CronTick:            getDuration("QUEUE_CRON_TICK", 15*time.Second),

		EventReminderCron:  getEnv("EVENT_REMINDER_CRON", "*/5 * * * *"),
		DailyItineraryCron: getEnv("DAILY_ITINERARY_CRON", "*/15 * * * *"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
