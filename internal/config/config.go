package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Services ServicesConfig
	Calls    CallsConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	OpenAIAPIKey       string
	GoogleAIAPIKey     string
	LLMProvider        string // "openai" or "gemini"
	LLMModel           string
	StripeSecretKey    string
	ResendAPIKey       string
	DefaultEmailSender string
	WebAppURI          string
	// PublicBaseURL is the externally reachable base URL the telephony
	// provider calls back on.
	PublicBaseURL string
}

// CallsConfig holds session registry and dispatch tunables
type CallsConfig struct {
	MaxConcurrentSessions int
	Retention             time.Duration
	SweepInterval         time.Duration
	DispatchWorkers       int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}

	// Services configuration
	if cfg.Services.TwilioAccountSID, err = requireEnv("TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if cfg.Services.TwilioAuthToken, err = requireEnv("TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Services.TwilioFromNumber, err = requireEnv("TWILIO_FROM_NUMBER"); err != nil {
		return nil, err
	}
	if cfg.Services.OpenAIAPIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.GoogleAIAPIKey, err = requireEnv("GOOGLE_AI_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.StripeSecretKey, err = requireEnv("STRIPE_SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.DefaultEmailSender, err = requireEnv("DEFAULT_EMAIL_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.Services.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}
	if cfg.Services.PublicBaseURL, err = requireEnv("PUBLIC_BASE_URL"); err != nil {
		return nil, err
	}
	cfg.Services.LLMProvider = getEnvWithDefault("LLM_PROVIDER", "openai")
	cfg.Services.LLMModel = os.Getenv("LLM_MODEL")

	// Call session configuration
	maxSessions := getEnvWithDefault("MAX_CONCURRENT_CALLS", "50")
	cfg.Calls.MaxConcurrentSessions, err = strconv.Atoi(maxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MAX_CONCURRENT_CALLS: %w", err)
	}

	retentionMinutes := getEnvWithDefault("SESSION_RETENTION_MINUTES", "5")
	retention, err := strconv.Atoi(retentionMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SESSION_RETENTION_MINUTES: %w", err)
	}
	cfg.Calls.Retention = time.Duration(retention) * time.Minute

	sweepSeconds := getEnvWithDefault("SESSION_SWEEP_SECONDS", "60")
	sweep, err := strconv.Atoi(sweepSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SESSION_SWEEP_SECONDS: %w", err)
	}
	cfg.Calls.SweepInterval = time.Duration(sweep) * time.Second

	dispatchWorkers := getEnvWithDefault("DISPATCH_WORKERS", "4")
	cfg.Calls.DispatchWorkers, err = strconv.Atoi(dispatchWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DISPATCH_WORKERS: %w", err)
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
