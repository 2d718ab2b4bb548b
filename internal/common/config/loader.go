// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Nested keys can be overridden as BROKER_KAFKA_GROUP_ID etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideFromEnv honours the flat variable names deployments already use
// (EMAIL_PROVIDER, KAFKA_BROKER, TWILIO_AUTH_TOKEN, ...). They win over the file.
func overrideFromEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setInt := func(dst *int, key string) {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	setString(&cfg.App.Environment, "APP_ENVIRONMENT")
	setInt(&cfg.Server.Port, "PORT")

	// Database
	setString(&cfg.Database.Postgres.Host, "DB_HOST")
	setInt(&cfg.Database.Postgres.Port, "DB_PORT")
	setString(&cfg.Database.Postgres.Database, "DB_NAME")
	setString(&cfg.Database.Postgres.User, "DB_USER")
	setString(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Database.Redis.Address, "REDIS_ADDRESS")
	setString(&cfg.Database.Redis.Password, "REDIS_PASSWORD")

	// Broker
	if val := os.Getenv("KAFKA_BROKER"); val != "" {
		cfg.Broker.Kafka.Brokers = splitList(val)
	}
	setString(&cfg.Broker.Kafka.ClientID, "KAFKA_CLIENT_ID")
	setString(&cfg.Broker.Kafka.GroupID, "KAFKA_GROUP_ID")
	setString(&cfg.Broker.NATS.URL, "NATS_URL")
	setString(&cfg.Broker.Driver, "BROKER_DRIVER")

	// Channels
	setString(&cfg.Email.Provider, "EMAIL_PROVIDER")
	setString(&cfg.Email.FromName, "EMAIL_FROM_NAME")
	setString(&cfg.Email.FromAddress, "EMAIL_FROM_ADDRESS")
	setInt(&cfg.Email.Retry.MaxRetries, "EMAIL_MAX_RETRIES")
	setInt(&cfg.Email.Retry.Delay, "EMAIL_RETRY_DELAY")
	setString(&cfg.Email.Retry.Backoff, "EMAIL_RETRY_BACKOFF")
	setString(&cfg.SMS.Provider, "SMS_PROVIDER")
	setInt(&cfg.SMS.Retry.MaxRetries, "SMS_MAX_RETRIES")
	setInt(&cfg.SMS.Retry.Delay, "SMS_RETRY_DELAY")
	setString(&cfg.SMS.Retry.Backoff, "SMS_RETRY_BACKOFF")

	// Provider credentials
	setString(&cfg.Providers.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.Providers.SMTP.Port, "SMTP_PORT")
	setString(&cfg.Providers.SMTP.Username, "SMTP_USER")
	setString(&cfg.Providers.SMTP.Password, "SMTP_PASS")
	setBool(&cfg.Providers.SMTP.UseTLS, "SMTP_SECURE")
	setString(&cfg.Providers.SendGrid.APIKey, "SENDGRID_API_KEY")
	setString(&cfg.Providers.Postmark.ServerToken, "POSTMARK_SERVER_TOKEN")
	setString(&cfg.Providers.Postmark.AccountToken, "POSTMARK_ACCOUNT_TOKEN")
	setString(&cfg.Providers.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.Providers.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.Providers.Twilio.PhoneNumber, "TWILIO_PHONE_NUMBER")
	setString(&cfg.Providers.AWS.Region, "AWS_REGION")

	// Auth
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.FrontendURL, "FRONTEND_URL")
	setString(&cfg.Events.FrontendURL, "FRONTEND_URL")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-service"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3003
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Broker defaults
	if cfg.Broker.Driver == "" {
		cfg.Broker.Driver = "kafka"
	}
	if len(cfg.Broker.Kafka.Brokers) == 0 {
		cfg.Broker.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Broker.Kafka.ClientID == "" {
		cfg.Broker.Kafka.ClientID = "notification-service"
	}
	if cfg.Broker.Kafka.GroupID == "" {
		cfg.Broker.Kafka.GroupID = "notification-service-group"
	}
	if cfg.Broker.Kafka.SessionTimeout == 0 {
		cfg.Broker.Kafka.SessionTimeout = 30000
	}
	if cfg.Broker.Kafka.HeartbeatInterval == 0 {
		cfg.Broker.Kafka.HeartbeatInterval = 3000
	}
	if cfg.Broker.Kafka.Partitions == 0 {
		cfg.Broker.Kafka.Partitions = 1
	}
	if cfg.Broker.Kafka.ReplicationFactor == 0 {
		cfg.Broker.Kafka.ReplicationFactor = 1
	}
	if cfg.Broker.NATS.URL == "" {
		cfg.Broker.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Broker.NATS.Stream == "" {
		cfg.Broker.NATS.Stream = "PLATFORM_EVENTS"
	}
	if cfg.Broker.NATS.Durable == "" {
		cfg.Broker.NATS.Durable = cfg.Broker.Kafka.GroupID
	}

	// Channel defaults
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "smtp"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Platform"
	}
	if cfg.Email.FromAddress == "" {
		cfg.Email.FromAddress = "noreply@example.com"
	}
	if cfg.SMS.Provider == "" {
		cfg.SMS.Provider = "twilio"
	}
	applyRetryDefaults(&cfg.Email.Retry)
	applyRetryDefaults(&cfg.SMS.Retry)

	if cfg.Providers.SMTP.Port == 0 {
		cfg.Providers.SMTP.Port = 587
	}
	if cfg.Providers.SMTP.Timeout == 0 {
		cfg.Providers.SMTP.Timeout = 30000
	}
	if cfg.Providers.Postmark.Timeout == 0 {
		cfg.Providers.Postmark.Timeout = 10000
	}
	if cfg.Providers.AWS.Region == "" {
		cfg.Providers.AWS.Region = "us-east-1"
	}

	// Dispatch defaults
	if cfg.Dispatch.EmailBatchSize == 0 {
		cfg.Dispatch.EmailBatchSize = 10
	}
	if cfg.Dispatch.EmailBatchDelay == 0 {
		cfg.Dispatch.EmailBatchDelay = 1000
	}
	if cfg.Dispatch.SMSBatchSize == 0 {
		cfg.Dispatch.SMSBatchSize = 5
	}
	if cfg.Dispatch.SMSBatchDelay == 0 {
		cfg.Dispatch.SMSBatchDelay = 2000
	}

	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = "@every 30s"
	}
	if cfg.Scheduler.BatchLimit == 0 {
		cfg.Scheduler.BatchLimit = 100
	}

	if cfg.Events.DedupTTL == 0 {
		cfg.Events.DedupTTL = 24 * 60 * 60 * 1000
	}
	if cfg.Events.FrontendURL == "" {
		cfg.Events.FrontendURL = "http://localhost:3000"
	}
	if cfg.Events.SMSAmountThreshold == 0 {
		cfg.Events.SMSAmountThreshold = 1000
	}

	// Auth defaults
	if cfg.Auth.AccessTokenTTL == 0 {
		cfg.Auth.AccessTokenTTL = 15 * 60 * 1000
	}
	if cfg.Auth.RefreshTokenTTL == 0 {
		cfg.Auth.RefreshTokenTTL = 7 * 24 * 60 * 60 * 1000
	}
	if cfg.Auth.RememberMeTTL == 0 {
		cfg.Auth.RememberMeTTL = 30 * 24 * 60 * 60 * 1000
	}
	if cfg.Auth.ResetTokenTTL == 0 {
		cfg.Auth.ResetTokenTTL = 60 * 60 * 1000
	}
	if cfg.Auth.VerificationTokenTTL == 0 {
		cfg.Auth.VerificationTokenTTL = 24 * 60 * 60 * 1000
	}
	if cfg.Auth.LockoutDuration == 0 {
		cfg.Auth.LockoutDuration = 30 * 60 * 1000
	}
	if cfg.Auth.MaxLoginAttempts == 0 {
		cfg.Auth.MaxLoginAttempts = 5
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Auth.FrontendURL == "" {
		cfg.Auth.FrontendURL = cfg.Events.FrontendURL
	}
	if cfg.Auth.Port == 0 {
		cfg.Auth.Port = 3001
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyRetryDefaults(r *RetryPolicy) {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.Delay == 0 {
		r.Delay = 5000
	}
	if r.Backoff == "" {
		r.Backoff = "exponential"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	switch cfg.Broker.Driver {
	case "kafka":
		if len(cfg.Broker.Kafka.Brokers) == 0 {
			return fmt.Errorf("broker.kafka.brokers is required")
		}
	case "nats":
		if cfg.Broker.NATS.URL == "" {
			return fmt.Errorf("broker.nats.url is required")
		}
	default:
		return fmt.Errorf("broker.driver must be kafka or nats, got %q", cfg.Broker.Driver)
	}

	if cfg.Events.DedupEnabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when events.dedup_enabled is set")
	}

	if cfg.Dispatch.EmailBatchSize < 1 || cfg.Dispatch.SMSBatchSize < 1 {
		return fmt.Errorf("dispatch batch sizes must be positive")
	}

	for name, r := range map[string]RetryPolicy{"email": cfg.Email.Retry, "sms": cfg.SMS.Retry} {
		if r.MaxRetries < 0 {
			return fmt.Errorf("%s.retry.max_retries must not be negative", name)
		}
		if r.Backoff != "fixed" && r.Backoff != "exponential" {
			return fmt.Errorf("%s.retry.backoff must be fixed or exponential, got %q", name, r.Backoff)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
