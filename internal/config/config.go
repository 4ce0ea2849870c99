package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Postgres connection; when DBHost is empty the store falls back to a
	// local sqlite file (dev mode).
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Downstream automation webhook (n8n or similar).
	AutomationWebhookURL string
	WebhookTimeout       time.Duration

	// WhatsApp session behavior.
	SessionDir         string
	DefaultCountryCode string
	PairingTimeout     time.Duration
	ReconnectDelay     time.Duration

	// Business hours for canned auto-responses, local time.
	BusinessHoursStart int
	BusinessHoursEnd   int

	// Period between rule evaluation passes over active conversations.
	EscalationInterval time.Duration

	// Period between scans for due follow-up messages.
	FollowUpInterval time.Duration

	// Number of goroutines draining the inbound message queue.
	ProcessorWorkers int

	Environment string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DBHost:               getEnv("DB_HOST", ""),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "postgres"),
		DBPassword:           getEnv("DB_PASSWORD", ""),
		DBName:               getEnv("DB_NAME", "omnichannel"),
		DBSSLMode:            getEnv("DB_SSLMODE", "disable"),
		SQLitePath:           getEnv("SQLITE_PATH", "./omnichannel.db"),
		AutomationWebhookURL: getEnv("AUTOMATION_WEBHOOK_URL", ""),
		WebhookTimeout:       getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		SessionDir:           getEnv("WA_SESSION_DIR", "./wa-session"),
		DefaultCountryCode:   getEnv("DEFAULT_COUNTRY_CODE", "55"),
		PairingTimeout:       getDuration("WA_PAIRING_TIMEOUT", 25*time.Second),
		ReconnectDelay:       getDuration("WA_RECONNECT_DELAY", 5*time.Second),
		BusinessHoursStart:   getInt("BUSINESS_HOURS_START", 8),
		BusinessHoursEnd:     getInt("BUSINESS_HOURS_END", 18),
		EscalationInterval:   getDuration("ESCALATION_CHECK_INTERVAL", time.Minute),
		FollowUpInterval:     getDuration("FOLLOWUP_DISPATCH_INTERVAL", 30*time.Second),
		ProcessorWorkers:     getInt("PROCESSOR_WORKERS", 4),
		Environment:          getEnv("ENVIRONMENT", "development"),
	}
}

// UsePostgres reports whether a Postgres host was configured; otherwise the
// store runs on the sqlite fallback.
func (c *Config) UsePostgres() bool {
	return c.DBHost != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
