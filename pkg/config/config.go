package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Jobs      JobsConfig
	Run       RunConfig
	Gmail     GmailConfig
	Secrets   SecretsConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// JobsConfig governs caching of nested job trees.
type JobsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RunConfig protects the run trigger endpoint.
type RunConfig struct {
	TriggerKey string
}

// GmailConfig locates OAuth material in the secret store.
type GmailConfig struct {
	OAuthKeyName     string
	AuthTokenName    string
	ClientSecretFile string
	SessionTTL       time.Duration
	MaxSessions      int
}

// SecretsConfig holds the key used to seal stored secrets.
type SecretsConfig struct {
	Key string
}

// SchedulerConfig toggles the periodic sweep over connected mailboxes.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	Workers  int
	Retries  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Jobs = JobsConfig{
		CacheEnabled: v.GetBool("ENABLE_JOBS_CACHE"),
		CacheTTL:     parseDuration(v.GetString("JOBS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Run = RunConfig{TriggerKey: v.GetString("RUN_TRIGGER_KEY")}

	cfg.Gmail = GmailConfig{
		OAuthKeyName:     v.GetString("GMAIL_OAUTH_KEY_NAME"),
		AuthTokenName:    v.GetString("GMAIL_AUTH_TOKEN_NAME"),
		ClientSecretFile: v.GetString("GMAIL_CLIENT_SECRET_FILE"),
		SessionTTL:       parseDuration(v.GetString("GMAIL_SESSION_TTL"), 50*time.Minute),
		MaxSessions:      v.GetInt("GMAIL_MAX_SESSIONS"),
	}

	cfg.Secrets = SecretsConfig{Key: v.GetString("SECRETS_KEY")}

	cfg.Scheduler = SchedulerConfig{
		Enabled:  v.GetBool("ENABLE_RUN_SCHEDULER"),
		Interval: parseDuration(v.GetString("RUN_SCHEDULER_INTERVAL"), time.Hour),
		Workers:  v.GetInt("RUN_SCHEDULER_WORKERS"),
		Retries:  v.GetInt("RUN_SCHEDULER_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "inbox_rules")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "inbox-rules-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_JOBS_CACHE", false)
	v.SetDefault("JOBS_CACHE_TTL", "5m")

	v.SetDefault("RUN_TRIGGER_KEY", "")

	v.SetDefault("GMAIL_OAUTH_KEY_NAME", "gmail-oauth-client")
	v.SetDefault("GMAIL_AUTH_TOKEN_NAME", "gmail-auth-token")
	v.SetDefault("GMAIL_CLIENT_SECRET_FILE", "")
	v.SetDefault("GMAIL_SESSION_TTL", "50m")
	v.SetDefault("GMAIL_MAX_SESSIONS", 1000)

	v.SetDefault("SECRETS_KEY", "")

	v.SetDefault("ENABLE_RUN_SCHEDULER", false)
	v.SetDefault("RUN_SCHEDULER_INTERVAL", "1h")
	v.SetDefault("RUN_SCHEDULER_WORKERS", 2)
	v.SetDefault("RUN_SCHEDULER_RETRIES", 2)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
