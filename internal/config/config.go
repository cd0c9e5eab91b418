// Package config содержит логику чтения конфигурации сервиса сбора пожертвований.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	ArtifactDir string `env:"ARTIFACT_DIR"`

	AuthSecret  string   `env:"AUTH_SECRET"`
	AdminLogins []string `env:"ADMIN_LOGINS" envSeparator:","`

	GatewaySecret string        `env:"GATEWAY_SECRET" envDefault:"mock-gateway-secret"`
	OrderTTL      time.Duration `env:"ORDER_TTL" envDefault:"30m"`
	RedisURL      string        `env:"REDIS_URL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"donations.settled"`

	OrganizationName string `env:"ORGANIZATION_NAME" envDefault:"CampusSetu Alumni Association"`
	ReceiptLogoPath  string `env:"RECEIPT_LOGO_PATH"`

	SMTP   SMTPConfig
	Twilio TwilioConfig

	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
}

// SMTPConfig описывает параметры почтового канала уведомлений.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"EMAIL_FROM"`
}

// Enabled сообщает, настроен ли почтовый канал.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.User != ""
}

// TwilioConfig описывает параметры SMS-канала уведомлений.
type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	From       string `env:"TWILIO_FROM"`
}

// Enabled сообщает, настроен ли SMS-канал.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	// Отсутствие .env не является ошибкой.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envArtifactDir := cfg.ArtifactDir

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ArtifactDir, "s", "./data", "directory for receipts and campaign images")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envArtifactDir != "" {
		cfg.ArtifactDir = envArtifactDir
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "./data"
	}

	return cfg, nil
}
