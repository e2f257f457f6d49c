package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	DatabaseURL    string   `yaml:"databaseURL"`
	LogLevel       string   `yaml:"logLevel"`
	AuthServiceURL string   `yaml:"authServiceURL"`
	AuthJWKSURL    string   `yaml:"authJWKSURL"`
	JWTIssuer      string   `yaml:"jwtIssuer"`
	JWTAudience    string   `yaml:"jwtAudience"`
	JWTLeeway      string   `yaml:"jwtLeeway"`
	CORSOrigins    []string `yaml:"corsOrigins"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	// RewriteRateLimitPerMinute caps /games/rewrite calls per user.
	RewriteRateLimitPerMinute int `yaml:"rewriteRateLimitPerMinute"`

	GenerationProvider string `yaml:"generationProvider"`
	GenerationModel    string `yaml:"generationModel"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	GeminiAPIKey       string `yaml:"geminiAPIKey"`

	MinioEndpoint    string `yaml:"minioEndpoint"`
	MinioAccessKey   string `yaml:"minioAccessKey"`
	MinioSecretKey   string `yaml:"minioSecretKey"`
	MinioBucket      string `yaml:"minioBucket"`
	MinioUseSSL      bool   `yaml:"minioUseSSL"`
	ExportLinkExpiry string `yaml:"exportLinkExpiry"`
}

// Load reads config from path (defaults to config.yaml), applies
// environment overrides and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Port, "COLLECTION_PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.AuthServiceURL, "AUTH_SERVICE_URL")
	setString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	setString(&cfg.GenerationModel, "GENERATION_MODEL")
	setString(&cfg.GenerationBaseURL, "GENERATION_BASE_URL")
	setString(&cfg.GenerationAPIKey, "GENERATION_API_KEY")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.ExportLinkExpiry, "COLLECTION_EXPORT_LINK_EXPIRY")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		cfg.MinioUseSSL, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("COLLECTION_REWRITE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RewriteRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("COLLECTION_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.RewriteRateLimitPerMinute == 0 {
		cfg.RewriteRateLimitPerMinute = 10
	}
	if cfg.GenerationProvider == "" && cfg.GeminiAPIKey != "" {
		cfg.GenerationProvider = "gemini"
	}
	if strings.EqualFold(cfg.GenerationProvider, "gemini") && cfg.GenerationAPIKey == "" {
		cfg.GenerationAPIKey = cfg.GeminiAPIKey
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.AuthServiceURL == "" {
		return errors.New("config: authServiceURL is required (set in config.yaml or AUTH_SERVICE_URL)")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJWKSURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required for rewrite rate limiting (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.RewriteRateLimitPerMinute < 0 {
		return errors.New("config: rewriteRateLimitPerMinute must not be negative")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
	}
	if _, err := ParseDuration(cfg.JWTLeeway, 30*time.Second); err != nil {
		return fmt.Errorf("config: jwtLeeway: %w", err)
	}
	if _, err := ParseDuration(cfg.ExportLinkExpiry, 15*time.Minute); err != nil {
		return fmt.Errorf("config: exportLinkExpiry: %w", err)
	}
	return nil
}

// ParseDuration parses a Go duration string, returning fallback when empty.
func ParseDuration(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
