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
	Port                string   `yaml:"port"`
	DatabaseURL         string   `yaml:"databaseURL"`
	RedisAddr           string   `yaml:"redisAddr"`
	RedisPassword       string   `yaml:"redisPassword"`
	SessionTTL          string   `yaml:"sessionTTL"`
	RefreshTTL          string   `yaml:"refreshTTL"`
	LogLevel            string   `yaml:"logLevel"`
	JWTPrivateKeyPath   string   `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath    string   `yaml:"jwtPublicKeyPath"`
	JWTKeyID            string   `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys string   `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer           string   `yaml:"jwtIssuer"`
	JWTAudience         string   `yaml:"jwtAudience"`
	JWTLeeway           string   `yaml:"jwtLeeway"`
	CORSOrigins         []string `yaml:"corsOrigins"`
	TrustedProxies      []string `yaml:"trustedProxies"`

	SignupRateLimitPerMinute  int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute   int `yaml:"loginRateLimitPerMinute"`
	RefreshRateLimitPerMinute int `yaml:"refreshRateLimitPerMinute"`
	// SecurityAlerts enables Redis backed burst alerts on security events.
	SecurityAlerts bool `yaml:"securityAlerts"`
}

// Load reads config from path (defaults to config.yaml).
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
	env := map[string]*string{
		"AUTH_PORT":              &cfg.Port,
		"DATABASE_URL":           &cfg.DatabaseURL,
		"REDIS_ADDR":             &cfg.RedisAddr,
		"REDIS_PASSWORD":         &cfg.RedisPassword,
		"LOG_LEVEL":              &cfg.LogLevel,
		"JWT_PRIVATE_KEY_PATH":   &cfg.JWTPrivateKeyPath,
		"JWT_PUBLIC_KEY_PATH":    &cfg.JWTPublicKeyPath,
		"JWT_KEY_ID":             &cfg.JWTKeyID,
		"JWT_VERIFY_PUBLIC_KEYS": &cfg.JWTVerifyPublicKeys,
		"JWT_ISSUER":             &cfg.JWTIssuer,
		"JWT_AUDIENCE":           &cfg.JWTAudience,
		"JWT_LEEWAY":             &cfg.JWTLeeway,
		"AUTH_SESSION_TTL":       &cfg.SessionTTL,
		"AUTH_REFRESH_TTL":       &cfg.RefreshTTL,
	}
	for key, dst := range env {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	limits := map[string]*int{
		"AUTH_SIGNUP_RATE_LIMIT_PER_MINUTE":  &cfg.SignupRateLimitPerMinute,
		"AUTH_LOGIN_RATE_LIMIT_PER_MINUTE":   &cfg.LoginRateLimitPerMinute,
		"AUTH_REFRESH_RATE_LIMIT_PER_MINUTE": &cfg.RefreshRateLimitPerMinute,
	}
	for key, dst := range limits {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	if v := os.Getenv("AUTH_SECURITY_ALERTS"); v != "" {
		cfg.SecurityAlerts, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("AUTH_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("AUTH_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.SignupRateLimitPerMinute == 0 {
		cfg.SignupRateLimitPerMinute = 5
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = 10
	}
	if cfg.RefreshRateLimitPerMinute == 0 {
		cfg.RefreshRateLimitPerMinute = 30
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for token revocation and refresh tokens")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.RefreshRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseRefreshTTL(cfg.RefreshTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseSessionTTL parses optional session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	return parseOptionalDuration("sessionTTL", ttlStr)
}

// ParseRefreshTTL parses optional refresh TTL duration string.
func ParseRefreshTTL(ttlStr string) (time.Duration, error) {
	return parseOptionalDuration("refreshTTL", ttlStr)
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	return parseOptionalDuration("jwtLeeway", leewayStr)
}

func parseOptionalDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, pair := range splitCSV(raw) {
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
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
