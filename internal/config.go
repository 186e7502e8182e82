package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	MonCashModeSandbox    = "sandbox"
	MonCashModeProduction = "production"

	MonCashSandboxURL    = "https://sandbox.moncashbutton.digicelgroup.com/Api"
	MonCashProductionURL = "https://moncashbutton.digicelgroup.com/Api"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	MonCash       MonCashConfig       `mapstructure:"moncash"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Page          PageConfig          `mapstructure:"page"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	// Source is the administrative (service role) DSN.
	Source string `mapstructure:"source"`
	// PublicSource is the restricted DSN used by the redirect landing page.
	PublicSource string `mapstructure:"public_source"`
}

type MonCashConfig struct {
	Mode         string        `mapstructure:"mode"`
	APIURL       string        `mapstructure:"api_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheToken   bool          `mapstructure:"cache_token"`
}

type WebhookConfig struct {
	// Secret is either the shared secret itself or a bcrypt hash of it.
	Secret        string `mapstructure:"secret"`
	RequireSecret bool   `mapstructure:"require_secret"`
}

type PageConfig struct {
	SupportContact string `mapstructure:"support_contact"`
	AppDeepLink    string `mapstructure:"app_deep_link"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfigFromEnv reads the plain environment variables used by the hosted
// deployment, falling back to development defaults.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			QueryTimeout:    getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
			Source:          getEnv("DATABASE_URL", os.Getenv("SUPABASE_DB_URL")),
			PublicSource:    getEnv("SUPABASE_PUBLIC_DB_URL", ""),
		},
		MonCash: MonCashConfig{
			Mode:         getEnv("MONCASH_MODE", MonCashModeProduction),
			APIURL:       os.Getenv("MONCASH_API_URL"),
			ClientID:     os.Getenv("MONCASH_CLIENT_ID"),
			ClientSecret: os.Getenv("MONCASH_CLIENT_SECRET"),
			Timeout:      getEnvAsDuration("MONCASH_TIMEOUT", 5*time.Second),
			CacheToken:   getEnvAsBool("MONCASH_CACHE_TOKEN", false),
		},
		Webhook: WebhookConfig{
			Secret:        os.Getenv("MONCASH_WEBHOOK_SECRET"),
			RequireSecret: getEnvAsBool("MONCASH_WEBHOOK_REQUIRE_SECRET", false),
		},
		Page: PageConfig{
			SupportContact: getEnv("SUPPORT_CONTACT", "le support"),
			AppDeepLink:    getEnv("APP_DEEP_LINK", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.MonCash.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("moncash config: %v", err))
	}

	if err := c.Webhook.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("webhook config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *MonCashConfig) Validate() error {
	switch c.Mode {
	case "", MonCashModeSandbox, MonCashModeProduction:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", MonCashModeSandbox, MonCashModeProduction, c.Mode)
	}
	return nil
}

// BaseURL picks the gateway host for the configured mode. APIURL, when set,
// points the client at a stand-in such as a local mock.
func (c *MonCashConfig) BaseURL() string {
	if c.APIURL != "" {
		return strings.TrimRight(c.APIURL, "/")
	}
	if c.Mode == MonCashModeSandbox {
		return MonCashSandboxURL
	}
	return MonCashProductionURL
}

func (c *MonCashConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c *WebhookConfig) Validate() error {
	if c.RequireSecret && c.Secret == "" {
		return errors.New("secret is required when require_secret is enabled")
	}
	return nil
}
