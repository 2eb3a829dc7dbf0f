package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "24h" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CourseSeed is one catalogue entry applied at startup.
type CourseSeed struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Config holds the full server configuration. Values load from YAML
// first; a handful of environment variables override the file so
// deployments can keep secrets out of it.
type Config struct {
	Port          int      `yaml:"port"`
	LogLevel      string   `yaml:"logLevel"`
	DatabaseURL   string   `yaml:"databaseUrl"`
	RedisAddr     string   `yaml:"redisAddr"`
	RedisPassword string   `yaml:"redisPassword"`
	JWTSecret     string   `yaml:"jwtSecret"`
	SessionTTL    Duration `yaml:"sessionTtl"`
	UploadDir     string   `yaml:"uploadDir"`

	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	RegisterRateLimitPerMinute int `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`

	Courses []CourseSeed `yaml:"courses"`
}

func defaults() Config {
	return Config{
		Port:       8080,
		LogLevel:   "info",
		SessionTTL: Duration(24 * time.Hour),
		UploadDir:  "uploads",
	}
}

// Load reads configuration from path, falling back to defaults when the
// file is absent, then applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Environment-only configuration is fine.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTESHARE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("NOTESHARE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("NOTESHARE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("NOTESHARE_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("NOTESHARE_SESSION_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.SessionTTL = Duration(ttl)
		}
	}
}

func validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("config: sessionTtl must be positive")
	}
	if cfg.UploadDir == "" {
		return fmt.Errorf("config: uploadDir must not be empty")
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return fmt.Errorf("config: rate limits must not be negative")
	}
	for i, c := range cfg.Courses {
		if c.Code == "" || c.Name == "" {
			return fmt.Errorf("config: courses[%d] needs both code and name", i)
		}
	}
	return nil
}
