package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID.
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Config is the flat, env-populated configuration for every process
// mode (api | worker | scheduler | all). Fields map directly onto the
// environment variables in §6 of the sync specification, plus the
// domain-stack fields (Redis, Mongo, scrypt, Graph OAuth) needed to wire
// the rest of the stack.
type Config struct {
	Port        string
	Environment string
	WorkerID    string

	// Database — Postgres mirror store
	DatabaseURL string

	// Mongo — message body cache
	MongoDBURL  string
	MongoDBName string

	// Queue backend — Redis Streams
	QueueURL  string
	QueueUser string
	QueuePass string

	// Credential vault
	EncryptionKey string

	// OAuth — Microsoft Graph
	MSClientID     string
	MSClientSecret string
	MSRedirectURL  string
	MSTenantID     string

	// Auth boundary
	JWTSecret string
	JWTExpiry time.Duration

	// IMAP TLS
	CertsDir              string
	TLSRejectUnauthorized bool

	ClientURL string

	// Attachment sink (§6 uploadBlob external collaborator)
	AttachmentUploadURL    string
	AttachmentUploadAPIKey string

	// Scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// Job queue tuning (§4.6)
	InitialSyncConcurrency     int
	IncrementalSyncConcurrency int
	InitialSyncRateLimit       int
	IncrementalSyncRateLimit   int
	JobMaxAttempts             int
	JobBackoffBase             time.Duration
	CompletedJobRetention      time.Duration
	FailedJobRetention         time.Duration

	// Consumer (Redis Stream)
	ConsumerBlockMS         int
	ConsumerPendingCheckSec int

	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		WorkerID:    getEnv("WORKER_ID", generateWorkerID()),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailmirror"),

		QueueURL:  getEnv("QUEUE_URL", ""),
		QueueUser: getEnv("QUEUE_USER", ""),
		QueuePass: getEnv("QUEUE_PASS", ""),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		MSClientID:     getEnv("MS_CLIENT_ID", ""),
		MSClientSecret: getEnv("MS_CLIENT_SECRET", ""),
		MSRedirectURL:  getEnv("MS_REDIRECT_URL", ""),
		MSTenantID:     getEnv("MS_TENANT_ID", "common"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_MIN", 60)) * time.Minute,

		CertsDir:              getEnv("CERTS_DIR", ""),
		TLSRejectUnauthorized: getEnvBool("TLS_REJECT_UNAUTHORIZED", true),

		ClientURL: getEnv("CLIENT_URL", "http://localhost:5173"),

		AttachmentUploadURL:    getEnv("ATTACHMENT_UPLOAD_URL", ""),
		AttachmentUploadAPIKey: getEnv("ATTACHMENT_UPLOAD_API_KEY", ""),

		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_SEC", 300)) * time.Second,

		InitialSyncConcurrency:     getEnvInt("INITIAL_SYNC_CONCURRENCY", 2),
		IncrementalSyncConcurrency: getEnvInt("INCREMENTAL_SYNC_CONCURRENCY", 2),
		InitialSyncRateLimit:       getEnvInt("INITIAL_SYNC_RATE_LIMIT", 10),
		IncrementalSyncRateLimit:   getEnvInt("INCREMENTAL_SYNC_RATE_LIMIT", 20),
		JobMaxAttempts:             getEnvInt("JOB_MAX_ATTEMPTS", 3),
		JobBackoffBase:             time.Duration(getEnvInt("JOB_BACKOFF_BASE_SEC", 5)) * time.Second,
		CompletedJobRetention:      time.Duration(getEnvInt("COMPLETED_JOB_RETENTION_SEC", 3600)) * time.Second,
		FailedJobRetention:         time.Duration(getEnvInt("FAILED_JOB_RETENTION_SEC", 86400)) * time.Second,

		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the ConfigError-class fatal startup checks named in
// §7: a weak or missing ENCRYPTION_KEY is fatal, as is a missing
// DATABASE_URL.
func (c *Config) validate() error {
	if len(c.EncryptionKey) < 32 {
		return fmt.Errorf("config: ENCRYPTION_KEY must be set and at least 32 characters")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
