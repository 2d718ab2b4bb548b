// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Email     EmailConfig     `mapstructure:"email"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Events    EventsConfig    `mapstructure:"events"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int `mapstructure:"write_timeout"` // milliseconds
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Broker ---

// BrokerConfig selects and configures the event transport.
type BrokerConfig struct {
	Driver string      `mapstructure:"driver"` // "kafka" or "nats"
	Kafka  KafkaConfig `mapstructure:"kafka"`
	NATS   NATSConfig  `mapstructure:"nats"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	GroupID           string   `mapstructure:"group_id"`
	SessionTimeout    int      `mapstructure:"session_timeout"`    // milliseconds
	HeartbeatInterval int      `mapstructure:"heartbeat_interval"` // milliseconds
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
	Version           string   `mapstructure:"version"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Stream  string `mapstructure:"stream"`
	Durable string `mapstructure:"durable"`
}

// --- Channels ---

// RetryPolicy is parsed and validated for each channel. Nothing resends automatically.
type RetryPolicy struct {
	MaxRetries int    `mapstructure:"max_retries"`
	Delay      int    `mapstructure:"delay"` // milliseconds
	Backoff    string `mapstructure:"backoff"`
}

type EmailConfig struct {
	Provider    string      `mapstructure:"provider"`
	FromName    string      `mapstructure:"from_name"`
	FromAddress string      `mapstructure:"from_address"`
	Retry       RetryPolicy `mapstructure:"retry"`
}

// From renders the default sender header value.
func (e EmailConfig) From() string {
	if e.FromName == "" {
		return e.FromAddress
	}
	return fmt.Sprintf("%s <%s>", e.FromName, e.FromAddress)
}

type SMSConfig struct {
	Provider string      `mapstructure:"provider"`
	Retry    RetryPolicy `mapstructure:"retry"`
}

// ProvidersConfig holds credentials for every delivery provider variant.
type ProvidersConfig struct {
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"smtp"`

	SendGrid struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"sendgrid"`

	Postmark struct {
		ServerToken  string `mapstructure:"server_token"`
		AccountToken string `mapstructure:"account_token"`
		Timeout      int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"postmark"`

	Twilio struct {
		AccountSID  string `mapstructure:"account_sid"`
		AuthToken   string `mapstructure:"auth_token"`
		PhoneNumber string `mapstructure:"phone_number"`
	} `mapstructure:"twilio"`

	AWS struct {
		Region             string `mapstructure:"region"`
		DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
	} `mapstructure:"aws"`
}

// DispatchConfig controls bulk fan-out.
type DispatchConfig struct {
	EmailBatchSize  int `mapstructure:"email_batch_size"`
	EmailBatchDelay int `mapstructure:"email_batch_delay"` // milliseconds
	SMSBatchSize    int `mapstructure:"sms_batch_size"`
	SMSBatchDelay   int `mapstructure:"sms_batch_delay"` // milliseconds
}

type SchedulerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Spec       string `mapstructure:"spec"`
	BatchLimit int    `mapstructure:"batch_limit"`
}

// EventsConfig controls consumer-side behaviour.
type EventsConfig struct {
	DedupEnabled       bool    `mapstructure:"dedup_enabled"`
	DedupTTL           int     `mapstructure:"dedup_ttl"` // milliseconds
	FrontendURL        string  `mapstructure:"frontend_url"`
	SMSAmountThreshold float64 `mapstructure:"sms_amount_threshold"`
}

// AuthConfig holds settings for the auth service.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"`
	AccessTokenTTL       int    `mapstructure:"access_token_ttl"`       // milliseconds
	RefreshTokenTTL      int    `mapstructure:"refresh_token_ttl"`      // milliseconds
	RememberMeTTL        int    `mapstructure:"remember_me_ttl"`        // milliseconds
	ResetTokenTTL        int    `mapstructure:"reset_token_ttl"`        // milliseconds
	VerificationTokenTTL int    `mapstructure:"verification_token_ttl"` // milliseconds
	LockoutDuration      int    `mapstructure:"lockout_duration"`       // milliseconds
	MaxLoginAttempts     int    `mapstructure:"max_login_attempts"`
	BcryptCost           int    `mapstructure:"bcrypt_cost"`
	FrontendURL          string `mapstructure:"frontend_url"`
	Port                 int    `mapstructure:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Delay helpers keep millisecond fields readable at call sites.
func (d DispatchConfig) EmailDelay() time.Duration { return GetDuration(d.EmailBatchDelay) }
func (d DispatchConfig) SMSDelay() time.Duration   { return GetDuration(d.SMSBatchDelay) }
