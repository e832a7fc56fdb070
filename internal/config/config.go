package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Telegram transport
	BotToken      string
	WebhookURL    string
	WebhookSecret string
	Port          string

	// Authorization: comma-separated Telegram user IDs. The first ID is
	// the administrator.
	AllowedUserIDs []int64

	// Rate limiting (per user)
	RateLimitMax           int
	RateLimitWindowSeconds int

	// Storage
	DBAdapter  string
	SQLiteFile string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// AI provider (OpenAI-compatible endpoint)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIMaxRPM  int

	// Smart home
	HomeAssistantURL   string
	HomeAssistantToken string

	// Vehicle telemetry
	VehicleAPIURL string
	VehicleToken  string

	// Market data
	AlphaVantageAPIKey string

	// News
	NewsAPIKey string

	// Notes
	NotionToken  string
	NotionPageID string

	// Alert webhook authentication: either a bcrypt hash of the expected
	// API key, or an HS256 secret for bearer tokens. Both may be set.
	AlertAPIKeyHash string
	AlertJWTSecret  string

	LogLevel string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}

// ParseUserIDs parses a comma-separated list of numeric user IDs.
func ParseUserIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	// If DSN is provided directly, use it
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		BotToken:      getenv("BOT_TOKEN", ""),
		WebhookURL:    getenv("WEBHOOK_URL", ""),
		WebhookSecret: getenv("WEBHOOK_SECRET", ""),
		Port:          getenv("PORT", "8080"),

		DBAdapter:  getenv("DB_ADAPTER", "sqlite"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/relaybot.db"),
		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "relaybot")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "relaybot")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),

		OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4"),

		HomeAssistantURL:   getenv("HOME_ASSISTANT_URL", ""),
		HomeAssistantToken: getenv("HOME_ASSISTANT_TOKEN", ""),

		VehicleAPIURL: getenv("VEHICLE_API_URL", ""),
		VehicleToken:  getenv("VEHICLE_TOKEN", ""),

		AlphaVantageAPIKey: getenv("ALPHA_VANTAGE_API_KEY", ""),
		NewsAPIKey:         getenv("NEWS_API_KEY", ""),

		NotionToken:  getenv("NOTION_TOKEN", ""),
		NotionPageID: getenv("NOTION_PAGE_ID", ""),

		AlertAPIKeyHash: getenv("ALERT_API_KEY_HASH", ""),
		AlertJWTSecret:  getenv("ALERT_JWT_SECRET", ""),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	if c.BotToken == "" {
		return nil, errors.New("BOT_TOKEN must be set")
	}

	ids, err := ParseUserIDs(getenv("ALLOWED_USER_IDS", ""))
	if err != nil {
		return nil, err
	}
	c.AllowedUserIDs = ids

	c.RateLimitMax, err = getenvInt("RATE_LIMIT_MAX", 10)
	if err != nil {
		return nil, err
	}
	c.RateLimitWindowSeconds, err = getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindowSeconds <= 0 {
		return nil, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	c.OpenAIMaxRPM, err = getenvInt("OPENAI_MAX_RPM", 60)
	if err != nil {
		return nil, err
	}

	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	// Webhook mode needs a secret so the endpoint cannot be driven by
	// arbitrary callers.
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET must be set when WEBHOOK_URL is set")
	}

	// normalize port
	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
