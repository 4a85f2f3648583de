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

// Image storage backends.
const (
	ImageBackendLocal = "local"
	ImageBackendS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Migrations MigrationsConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Market     MarketConfig
	Images     ImagesConfig
	Cache      CacheConfig
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
}

// MigrationsConfig controls schema migration at boot.
type MigrationsConfig struct {
	AutoApply bool
	Path      string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MarketConfig holds the marketplace rules that are deployment specific.
type MarketConfig struct {
	// BootstrapAdminPhones lists mobile numbers that receive the Administrator
	// role on registration.
	BootstrapAdminPhones []string
	StartingWallet       int64
	UniqueProductNames   bool
}

// ImagesConfig selects and configures the product image store.
type ImagesConfig struct {
	Backend          string
	LocalDir         string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	S3Bucket         string
	S3Region         string
	CDNBaseURL       string
}

// CacheConfig governs the Redis read-through cache for listings.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
	}

	cfg.Migrations = MigrationsConfig{
		AutoApply: v.GetBool("MIGRATIONS_AUTO_APPLY"),
		Path:      v.GetString("MIGRATIONS_PATH"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	startingWallet := v.GetInt64("MARKET_STARTING_WALLET")
	if startingWallet < 0 {
		startingWallet = 1000
	}
	cfg.Market = MarketConfig{
		BootstrapAdminPhones: splitAndTrim(v.GetString("MARKET_BOOTSTRAP_ADMIN_PHONES")),
		StartingWallet:       startingWallet,
		UniqueProductNames:   v.GetBool("MARKET_UNIQUE_PRODUCT_NAMES"),
	}

	maxImageSize := v.GetInt64("IMAGES_MAX_FILE_SIZE")
	if maxImageSize <= 0 {
		maxImageSize = 5 * 1024 * 1024
	}
	cfg.Images = ImagesConfig{
		Backend:          strings.ToLower(v.GetString("IMAGES_BACKEND")),
		LocalDir:         v.GetString("IMAGES_LOCAL_DIR"),
		SignedURLSecret:  v.GetString("IMAGES_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("IMAGES_SIGNED_URL_TTL"), time.Hour),
		MaxFileSizeBytes: maxImageSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("IMAGES_ALLOWED_MIME_TYPES")),
		S3Bucket:         v.GetString("IMAGES_S3_BUCKET"),
		S3Region:         v.GetString("IMAGES_S3_REGION"),
		CDNBaseURL:       v.GetString("IMAGES_CDN_BASE_URL"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 2*time.Minute),
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
	v.SetDefault("DB_NAME", "agromarket")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("MIGRATIONS_AUTO_APPLY", true)
	v.SetDefault("MIGRATIONS_PATH", "./migrations")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "agromarket-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MARKET_BOOTSTRAP_ADMIN_PHONES", "")
	v.SetDefault("MARKET_STARTING_WALLET", 1000)
	v.SetDefault("MARKET_UNIQUE_PRODUCT_NAMES", true)

	v.SetDefault("IMAGES_BACKEND", ImageBackendLocal)
	v.SetDefault("IMAGES_LOCAL_DIR", "./static/product_pics")
	v.SetDefault("IMAGES_SIGNED_URL_SECRET", "dev_images_secret")
	v.SetDefault("IMAGES_SIGNED_URL_TTL", "1h")
	v.SetDefault("IMAGES_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("IMAGES_ALLOWED_MIME_TYPES", "image/jpeg,image/png")
	v.SetDefault("IMAGES_S3_BUCKET", "")
	v.SetDefault("IMAGES_S3_REGION", "eu-central-1")
	v.SetDefault("IMAGES_CDN_BASE_URL", "")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "2m")
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
