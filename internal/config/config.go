// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the complete runtime configuration.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"local"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DB        Database  `envconfig:"DB"`
	Auth      Auth      `envconfig:"JWT"`
	RateLimit RateLimit `envconfig:"RATE_LIMIT"`
	Outbox    Outbox    `envconfig:"OUTBOX"`
	SMTP      SMTP      `envconfig:"SMTP"`
	Kafka     Kafka     `envconfig:"KAFKA"`
	Slots     Slots     `envconfig:"AVAILABILITY"`

	RedisAddr      string `envconfig:"REDIS_ADDR"`
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`
}

// Database holds PostgreSQL connection settings read from DB_HOST, DB_PORT,
// DB_SSL_MODE and friends. DB_URL, when set, wins over the individual fields.
type Database struct {
	URL      string `split_words:"true"`
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"5432"`
	User     string `split_words:"true" default:"postgres"`
	Password string `split_words:"true" default:"postgres"`
	Name     string `split_words:"true" default:"bookable"`
	SSLMode  string `split_words:"true" default:"disable"`
	MaxConns int32  `split_words:"true" default:"20"`
	MinConns int32  `split_words:"true" default:"2"`
}

// DSN builds a libpq-compatible connection string.
func (c Database) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// insecureSecret is only accepted when APP_ENV is local.
const insecureSecret = "change-me"

type Auth struct {
	Secret string        `split_words:"true" default:"change-me"`
	TTL    time.Duration `split_words:"true" default:"1h"`
}

type RateLimit struct {
	Enabled  bool          `split_words:"true" default:"true"`
	Requests int           `split_words:"true" default:"100"`
	Window   time.Duration `split_words:"true" default:"1m"`
}

type Outbox struct {
	Interval    time.Duration `split_words:"true" default:"60s"`
	BatchSize   int           `split_words:"true" default:"10"`
	MaxRetries  int           `split_words:"true" default:"5"`
	SendTimeout time.Duration `split_words:"true" default:"10s"`
	StuckAfter  time.Duration `split_words:"true" default:"10m"`
	Notifier    string        `split_words:"true" default:"log"`
	Breaker     bool          `split_words:"true" default:"true"`
}

// Slots shapes the availability scan of time-sliced items.
type Slots struct {
	SlotDuration time.Duration `split_words:"true" default:"60m"`
	SlotBuffer   time.Duration `split_words:"true" default:"15m"`
}

type SMTP struct {
	Host     string `split_words:"true"`
	Port     string `split_words:"true" default:"587"`
	User     string `split_words:"true"`
	Password string `split_words:"true"`
	From     string `split_words:"true"`
}

type Kafka struct {
	Brokers []string `split_words:"true"`
	Topic   string   `split_words:"true" default:"notifications"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.Env != "local" && (c.Auth.Secret == "" || c.Auth.Secret == insecureSecret) {
		return fmt.Errorf("JWT_SECRET must be set when APP_ENV is %q", c.Env)
	}
	if c.Auth.Secret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.Slots.SlotDuration <= 0 || c.Slots.SlotBuffer < 0 {
		return errors.New("AVAILABILITY_SLOT_DURATION must be positive and AVAILABILITY_SLOT_BUFFER not negative")
	}
	return nil
}
