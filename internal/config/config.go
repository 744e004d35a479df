// Package config содержит логику чтения конфигурации сервиса пополнения баланса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultGatewayURL = "https://api.cashfree.com/pg"
)

// ErrMissingDatabaseURI возвращается, если не задан адрес базы данных.
var ErrMissingDatabaseURI = errors.New("database URI is not set")

// Config содержит параметры конфигурации сервиса пополнения баланса.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	Port           string `env:"PORT"`
	DatabaseURI    string `env:"DATABASE_URI"`
	GatewayBaseURL string `env:"CASHFREE_BASE_URL"`

	ClientID      string `env:"CASHFREE_CLIENT_ID"`
	ClientSecret  string `env:"CASHFREE_CLIENT_SECRET"`
	APIVersion    string `env:"CASHFREE_API_VERSION" envDefault:"2022-09-01"`
	WebhookSecret string `env:"CASHFREE_WEBHOOK_SECRET"`

	ReturnURL      string        `env:"RETURN_URL" envDefault:"https://your-website.com/return?order_id={order_id}"`
	OrderPrefix    string        `env:"ORDER_PREFIX" envDefault:"TFZ"`
	Currency       string        `env:"ORDER_CURRENCY" envDefault:"INR"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// WebhookTolerance ограничивает возраст метки времени уведомления, 0 отключает проверку.
	WebhookTolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"0s"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	OperatorAPIKey string   `env:"OPERATOR_API_KEY"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами, а .env не перекрывает уже заданные переменные.
func Parse() (*Config, error) {
	environment, err := environ()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayURL := cfg.GatewayBaseURL

	flag.StringVar(&cfg.RunAddress, "a", "", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayBaseURL, "g", defaultGatewayURL, "payment gateway base URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayURL != "" {
		cfg.GatewayBaseURL = envGatewayURL
	}

	if cfg.RunAddress == "" {
		if cfg.Port != "" {
			cfg.RunAddress = ":" + cfg.Port
		} else {
			cfg.RunAddress = defaultRunAddress
		}
	}
	if cfg.GatewayBaseURL == "" {
		cfg.GatewayBaseURL = defaultGatewayURL
	}

	return cfg, nil
}

// Validate проверяет параметры, без которых сервис не может запуститься.
// Отсутствие ключей шлюза не фатально: создание заказа вернёт ошибку при вызове.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURI) == "" {
		return ErrMissingDatabaseURI
	}
	return nil
}

// WebhookSigningSecret возвращает ключ проверки подписи уведомлений.
// Если отдельный ключ не задан, шлюз подписывает уведомления секретом клиента.
func (c *Config) WebhookSigningSecret() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	return c.ClientSecret
}

// environ объединяет переменные окружения процесса со значениями из .env.
func environ() (map[string]string, error) {
	environment := env.ToMap(os.Environ())

	dotenv, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return environment, nil
		}
		return nil, fmt.Errorf("read .env: %w", err)
	}

	for k, v := range dotenv {
		if _, ok := environment[k]; !ok {
			environment[k] = v
		}
	}
	return environment, nil
}
