package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppToken     string // Shared header token gating all API endpoints
	DatabaseFile string // Path to SQLite database file (default: ./identity.db)

	UsersLimit              int           // Cap on enabled user accounts (default: 10)
	SessionTokenBytes       int           // Entropy of session tokens before encoding (default: 32)
	AuthorizationTokenBytes int           // Entropy of grant tokens before encoding (default: 32)
	SecretLength            int           // Length of generated client/webhook secrets (default: 64)
	ConfirmationCodeLength  int           // Characters per confirmation code (default: 8)
	ConfirmationTTL         time.Duration // How long confirmation codes stay verifiable (default: 30m)
	AuthorizationTTL        time.Duration // Grant lifetime from /authorize (default: 1h)
	AuthorizationRefreshTTL time.Duration // Grant lifetime from the refresh endpoint (default: 30 days)

	MasterKeyPath string // Optional: path to master encryption key for webhook secrets
	PepperFile    string // Path to file containing pepper for password hashing (default: ./pepper)

	MailerEnable   bool   // When false, emails are logged instead of sent
	SMTPHost       string // SMTP relay host
	SMTPPort       int    // SMTP relay port (default: 587)
	SMTPUsername   string // Optional SMTP AUTH username
	SMTPPassword   string // Optional SMTP AUTH password
	SenderAddress  string // From address for outbound mail
	SupportAddress string // Shown in notices, receives admin emails

	GeoIPAPIKey string // Optional: ipgeolocation.io API key

	WorkerPollInterval time.Duration // How often each queue is polled (default: 2s)
	WorkerBatchSize    int           // Jobs leased per poll (default: 10)
	WorkerMaxAttempts  int           // Retries before a job is marked dead (default: 10)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		AppToken:     getEnvOrDefault("IDENTITY_APP_TOKEN", "identity_dev"),
		DatabaseFile: getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),

		UsersLimit:              getEnvIntOrDefault("IDENTITY_USERS_LIMIT", 10),
		SessionTokenBytes:       getEnvIntOrDefault("IDENTITY_SESSION_TOKEN_BYTES", 32),
		AuthorizationTokenBytes: getEnvIntOrDefault("IDENTITY_AUTHORIZATION_TOKEN_BYTES", 32),
		SecretLength:            getEnvIntOrDefault("IDENTITY_SECRET_LENGTH", 64),
		ConfirmationCodeLength:  getEnvIntOrDefault("IDENTITY_CONFIRMATION_CODE_LENGTH", 8),
		ConfirmationTTL:         getEnvDurationOrDefault("IDENTITY_CONFIRMATION_TTL", 30*time.Minute),
		AuthorizationTTL:        getEnvDurationOrDefault("IDENTITY_AUTHORIZATION_TTL", time.Hour),
		AuthorizationRefreshTTL: getEnvDurationOrDefault("IDENTITY_AUTHORIZATION_REFRESH_TTL", 30*24*time.Hour),

		MasterKeyPath: os.Getenv("IDENTITY_MASTER_KEY_PATH"),
		PepperFile:    getEnvOrDefault("IDENTITY_PEPPER_FILE", "pepper"),

		MailerEnable:   getEnvBoolOrDefault("IDENTITY_MAILER_ENABLE", false),
		SMTPHost:       os.Getenv("IDENTITY_SMTP_HOST"),
		SMTPPort:       getEnvIntOrDefault("IDENTITY_SMTP_PORT", 587),
		SMTPUsername:   os.Getenv("IDENTITY_SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("IDENTITY_SMTP_PASSWORD"),
		SenderAddress:  getEnvOrDefault("IDENTITY_MAILER_SENDER", "identity@localhost"),
		SupportAddress: getEnvOrDefault("IDENTITY_SUPPORT_ADDRESS", "support@localhost"),

		GeoIPAPIKey: os.Getenv("IDENTITY_GEOIP_API_KEY"),

		WorkerPollInterval: getEnvDurationOrDefault("IDENTITY_WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerBatchSize:    getEnvIntOrDefault("IDENTITY_WORKER_BATCH_SIZE", 10),
		WorkerMaxAttempts:  getEnvIntOrDefault("IDENTITY_WORKER_MAX_ATTEMPTS", 10),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
