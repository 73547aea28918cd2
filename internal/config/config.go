package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Model providers.
const (
	ProviderGenAI  = "genai"
	ProviderOpenAI = "openai"
)

// Config holds all application configuration.
type Config struct {
	ServiceName string
	HTTPAddr    string
	LogLevel    string
	Store       StoreConfig
	Auth        AuthConfig
	Model       ModelConfig
	Notify      NotifyConfig
	RabbitMQ    RabbitMQConfig
	PromptsFile string
	MCPEnabled  bool
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// ModelConfig selects and configures the generative model provider.
type ModelConfig struct {
	Provider      string
	Name          string
	Timeout       time.Duration
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NotifyConfig holds anomaly webhook settings.
type NotifyConfig struct {
	WebhookURL string
	Template   string
	Cooldown   time.Duration
}

// RabbitMQConfig holds the optional site event bus settings.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "terralens"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
			SQLitePath:  getEnv("SQLITE_PATH", "terralens.db"),
			DatabaseURL: getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Model: ModelConfig{
			Provider:      strings.ToLower(getEnv("MODEL_PROVIDER", ProviderGenAI)),
			Name:          getEnv("MODEL_NAME", ""),
			Timeout:       getEnvAsDuration("MODEL_TIMEOUT", 60*time.Second),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Template:   getEnv("NOTIFY_TEMPLATE", ""),
			Cooldown:   getEnvAsDuration("NOTIFY_COOLDOWN", 30*time.Minute),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("SITES_EXCHANGE", "terralens.sites"),
		},
		PromptsFile: getEnv("PROMPTS_FILE", ""),
		MCPEnabled:  getEnvAsBool("MCP_ENABLED", false),
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.Model.Provider {
	case ProviderGenAI:
		if c.Model.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when MODEL_PROVIDER=genai"))
		}
	case ProviderOpenAI:
		if c.Model.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when MODEL_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MODEL_PROVIDER %q", c.Model.Provider))
	}
	return errors.Join(errs...)
}

// LoadDotEnv loads the first .env file found in the working directory or its
// parents. It returns the loaded path, or "" when none exists.
func LoadDotEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return "", fmt.Errorf("load %s: %w", path, err)
			}
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
