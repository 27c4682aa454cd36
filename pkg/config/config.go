// Package config loads service configuration from a YAML file, STYLE_*
// environment variables and the legacy variable names of the original
// deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable viper reads automatically
const EnvPrefix = "STYLE"

// APIConfig defines the HTTP server configuration
type APIConfig struct {
	ListenAddress string          `mapstructure:"listen_address"`
	ReadTimeout   time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration   `mapstructure:"idle_timeout"`
	EnableCORS    bool            `mapstructure:"enable_cors"`
	CORSOrigins   []string        `mapstructure:"cors_origins"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the per-client request limiter
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Limit      float64       `mapstructure:"limit"`
	Burst      int           `mapstructure:"burst"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// AuthConfig holds the expected credentials of the three guards
type AuthConfig struct {
	APIKey          string          `mapstructure:"api_key"`
	AdminToken      string          `mapstructure:"admin_token"`
	AllowQueryToken bool            `mapstructure:"allow_query_token"`
	Dashboard       DashboardConfig `mapstructure:"dashboard"`
}

// DashboardConfig configures basic auth and sessions for the dashboard
type DashboardConfig struct {
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SessionStore  string        `mapstructure:"session_store"`
	SecureCookie  bool          `mapstructure:"secure_cookie"`
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries  uint64        `mapstructure:"connect_retries"`
	UseIAMAuth      bool          `mapstructure:"use_iam_auth"`
	Region          string        `mapstructure:"region"`

	MigrationStatementTimeout time.Duration `mapstructure:"migration_statement_timeout"`
}

// RedisConfig configures the optional redis session store
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EmbeddingConfig configures the embedding pipeline
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	Dimension         int           `mapstructure:"dimension"`
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"`
	Normalize         bool          `mapstructure:"normalize"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheSize         int           `mapstructure:"cache_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ProfileConfig holds the single-tenant profile identity and defaults
type ProfileConfig struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	DefaultTone   string `mapstructure:"default_tone"`
	DefaultLength int    `mapstructure:"default_length"`
}

// Config holds the complete application configuration
type Config struct {
	Environment   string               `mapstructure:"environment"`
	Version       string               `mapstructure:"version"`
	API           APIConfig            `mapstructure:"api"`
	Auth          AuthConfig           `mapstructure:"auth"`
	Database      DatabaseConfig       `mapstructure:"database"`
	Redis         RedisConfig          `mapstructure:"redis"`
	Embedding     EmbeddingConfig      `mapstructure:"embedding"`
	Profile       ProfileConfig        `mapstructure:"profile"`
	Observability observability.Config `mapstructure:"observability"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("STYLE_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// The file is optional when everything comes from the environment
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	processEnvExpansion(v)
	setEnvironmentDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// bindLegacyEnv maps the variable names used by existing deployments
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"database.dsn":            "DATABASE_URL",
		"auth.api_key":            "API_KEY",
		"auth.admin_token":        "DB_INIT_TOKEN",
		"auth.dashboard.username": "DASHBOARD_USERNAME",
		"auth.dashboard.password": "DASHBOARD_PASSWORD",
		"profile.id":              "DEFAULT_USER_ID",
		"embedding.region":        "AWS_REGION",
		"embedding.dimension":     "EMBEDDING_DIMENSION",
		"redis.address":           "REDIS_ADDR",
	}
	for key, env := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}
}

// processEnvExpansion expands ${VAR} and ${VAR:-default} inside config values
func processEnvExpansion(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value, ok := v.Get(key).(string)
		if !ok || !strings.Contains(value, "${") {
			continue
		}
		if expanded := expandEnvVars(value); expanded != value {
			v.Set(key, expanded)
		}
	}
}

func expandEnvVars(value string) string {
	return os.Expand(value, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// setEnvironmentDefaults sets the defaults that depend on the resolved
// environment. Plain-HTTP development would drop a Secure cookie.
func setEnvironmentDefaults(v *viper.Viper) {
	v.SetDefault("auth.dashboard.secure_cookie", v.GetString("environment") != "development")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("version", "1.0.0")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 60*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.enable_cors", false)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.limit", 20)
	v.SetDefault("api.rate_limit.burst", 40)
	v.SetDefault("api.rate_limit.expiration", 1*time.Hour)

	// No default values for secrets
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.admin_token", "")
	v.SetDefault("auth.allow_query_token", false)
	v.SetDefault("auth.dashboard.username", "admin")
	v.SetDefault("auth.dashboard.password", "")
	v.SetDefault("auth.dashboard.session_secret", "")
	v.SetDefault("auth.dashboard.session_ttl", 12*time.Hour)
	v.SetDefault("auth.dashboard.session_store", "jwt")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "lbd_style_guide")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 30*time.Second)
	v.SetDefault("database.connect_timeout", 2*time.Second)
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.use_iam_auth", false)
	v.SetDefault("database.region", "")
	v.SetDefault("database.migration_statement_timeout", 30*time.Second)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("embedding.provider", "bedrock")
	v.SetDefault("embedding.model", "amazon.titan-embed-text-v2:0")
	v.SetDefault("embedding.dimension", 1024)
	v.SetDefault("embedding.region", "")
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.normalize", true)
	v.SetDefault("embedding.requests_per_second", 0)
	v.SetDefault("embedding.cache_size", 0)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("profile.id", "00000000-0000-0000-0000-000000000000")
	v.SetDefault("profile.name", "default_user")
	v.SetDefault("profile.default_tone", "professional-casual")
	v.SetDefault("profile.default_length", 20)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.namespace", "style_guide")
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "style-guide-service")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_ratio", 1.0)
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	var problems []string
	if c.Database.DSN == "" && c.Database.Host == "" {
		problems = append(problems, "database.dsn or database.host is required")
	}
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, "embedding.dimension must be positive")
	}
	switch c.Auth.Dashboard.SessionStore {
	case "jwt", "redis":
	default:
		problems = append(problems, fmt.Sprintf("auth.dashboard.session_store %q must be jwt or redis", c.Auth.Dashboard.SessionStore))
	}
	if c.Profile.ID == "" {
		problems = append(problems, "profile.id is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
