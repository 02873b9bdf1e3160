package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/joho/godotenv"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	Feed     FeedConfig
	Refresh  RefreshConfig
	Broker   BrokerConfig
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// FeedConfig holds the market data feed configuration
type FeedConfig struct {
	BaseURL       string
	Token         string // plain text, decrypted when a key is configured
	RatePerSecond float64
	MaxRetries    uint64
	Timeout       time.Duration
}

// RefreshConfig holds the scheduled refresh configuration
type RefreshConfig struct {
	Enabled        bool
	Schedule       string
	LookbackMonths int
}

// BrokerConfig holds the Interactive Brokers statement import configuration. The import is
// disabled when no token is set.
type BrokerConfig struct {
	Token     string // plain text, decrypted when a key is configured
	QueryID   int
	AccountID string // account the statements are imported into
	Schedule  string
}

// Enabled reports whether a statement import is configured.
func (b BrokerConfig) Enabled() bool { return b.Token != "" }

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	config := &Config{
		Database: DatabaseConfig{
			Path: env.str("DB_PATH", "./data/valuation.db"),
		},
		Log: LogConfig{
			Level:  env.str("LOG_LEVEL", "info"),
			Pretty: env.boolean("LOG_PRETTY", false),
		},
		Feed: FeedConfig{
			BaseURL:       env.str("FEED_BASE_URL", "https://query1.finance.yahoo.com"),
			RatePerSecond: env.float("FEED_RATE_PER_SECOND", 2),
			MaxRetries:    uint64(env.integer("FEED_MAX_RETRIES", 3)),
			Timeout:       env.duration("FEED_TIMEOUT", 15*time.Second),
		},
		Refresh: RefreshConfig{
			Enabled:        env.boolean("REFRESH_ENABLED", true),
			Schedule:       env.str("REFRESH_SCHEDULE", "0 6 * * *"),
			LookbackMonths: env.integer("REFRESH_LOOKBACK_MONTHS", 3),
		},
		Broker: BrokerConfig{
			QueryID:   env.integer("IBKR_FLEX_QUERY_ID", 0),
			AccountID: env.str("IBKR_ACCOUNT_ID", ""),
			Schedule:  env.str("IBKR_SCHEDULE", "0 7 * * *"),
		},
	}
	if env.err != nil {
		return nil, env.err
	}

	token, err := decryptToken("FEED_TOKEN", env.str("FEED_TOKEN", ""), env.str("FEED_TOKEN_KEY", ""))
	if err != nil {
		return nil, err
	}
	config.Feed.Token = token

	token, err = decryptToken("IBKR_FLEX_TOKEN", env.str("IBKR_FLEX_TOKEN", ""), env.str("IBKR_FLEX_TOKEN_KEY", ""))
	if err != nil {
		return nil, err
	}
	config.Broker.Token = token
	if config.Broker.Enabled() && (config.Broker.QueryID <= 0 || config.Broker.AccountID == "") {
		return nil, fmt.Errorf("%w: IBKR_FLEX_QUERY_ID and IBKR_ACCOUNT_ID are required with IBKR_FLEX_TOKEN", apperrors.ErrConfiguration)
	}

	if config.Feed.RatePerSecond <= 0 {
		return nil, fmt.Errorf("%w: FEED_RATE_PER_SECOND must be positive", apperrors.ErrConfiguration)
	}
	if config.Refresh.LookbackMonths < 1 {
		return nil, fmt.Errorf("%w: REFRESH_LOOKBACK_MONTHS must be at least 1", apperrors.ErrConfiguration)
	}

	return config, nil
}

// decryptToken returns the token stored in the variable name. When key is set the token is a
// fernet token encrypted with that key, read from name+"_KEY".
func decryptToken(name, token, key string) (string, error) {
	if token == "" || key == "" {
		return token, nil
	}
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %s_KEY: %v", apperrors.ErrConfiguration, name, err)
	}
	plain := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{k})
	if plain == nil {
		return "", fmt.Errorf("%w: %s cannot be decrypted with %s_KEY", apperrors.ErrConfiguration, name, name)
	}
	return string(plain), nil
}

// envReader reads typed values and keeps the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

// str gets an environment variable or returns a default value
func (e *envReader) str(key, defaultValue string) string {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (e *envReader) integer(key string, defaultValue int) int {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return n
}

func (e *envReader) float(key string, defaultValue float64) float64 {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return f
}

func (e *envReader) boolean(key string, defaultValue bool) bool {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return b
}

func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return d
}

func (e *envReader) fail(key, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: invalid value %q for %s", apperrors.ErrConfiguration, value, key)
	}
}
