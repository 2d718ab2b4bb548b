package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
database:
  postgres:
    host: db
    database: notifications
    user: svc
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.Broker.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "notification-service", cfg.Broker.Kafka.ClientID)
	assert.Equal(t, "notification-service-group", cfg.Broker.Kafka.GroupID)
	assert.Equal(t, 30000, cfg.Broker.Kafka.SessionTimeout)
	assert.Equal(t, 3000, cfg.Broker.Kafka.HeartbeatInterval)

	assert.Equal(t, 10, cfg.Dispatch.EmailBatchSize)
	assert.Equal(t, time.Second, cfg.Dispatch.EmailDelay())
	assert.Equal(t, 5, cfg.Dispatch.SMSBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.SMSDelay())

	assert.Equal(t, RetryPolicy{MaxRetries: 3, Delay: 5000, Backoff: "exponential"}, cfg.Email.Retry)
	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 15*time.Minute, GetDuration(cfg.Auth.AccessTokenTTL))
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
}

func TestLoadFromFile_FlatEnvOverrides(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "sendgrid")
	t.Setenv("SMS_PROVIDER", "sns")
	t.Setenv("KAFKA_BROKER", "k1:9092, k2:9092")
	t.Setenv("EMAIL_MAX_RETRIES", "5")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "sendgrid", cfg.Email.Provider)
	assert.Equal(t, "sns", cfg.SMS.Provider)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Email.Retry.MaxRetries)
	assert.Equal(t, "secret", cfg.Providers.Twilio.AuthToken)
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("NOTIF_TEST_DB_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML+"    password: ${NOTIF_TEST_DB_PASSWORD}\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.Postgres = PostgresConfig{Host: "db", Database: "n", User: "u"}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Database.Postgres.Host = "" }, wantErr: "database.postgres.host"},
		{name: "unknown driver", mutate: func(c *Config) { c.Broker.Driver = "rabbit" }, wantErr: "broker.driver"},
		{name: "nats without url", mutate: func(c *Config) { c.Broker.Driver = "nats"; c.Broker.NATS.URL = "" }, wantErr: "broker.nats.url"},
		{name: "dedup without redis", mutate: func(c *Config) { c.Events.DedupEnabled = true }, wantErr: "redis.address"},
		{name: "bad backoff", mutate: func(c *Config) { c.SMS.Retry.Backoff = "linear" }, wantErr: "sms.retry.backoff"},
		{name: "negative retries", mutate: func(c *Config) { c.Email.Retry.MaxRetries = -1 }, wantErr: "email.retry.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmailConfig_From(t *testing.T) {
	assert.Equal(t, "Platform <noreply@example.com>", EmailConfig{FromName: "Platform", FromAddress: "noreply@example.com"}.From())
	assert.Equal(t, "noreply@example.com", EmailConfig{FromAddress: "noreply@example.com"}.From())
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", p.GetDSN())
}
