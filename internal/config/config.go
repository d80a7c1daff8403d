package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mgate/internal/logger"
)

// Config is the application configuration, read once at startup and treated
// as read-only afterwards.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Broker    BrokerConfig    `yaml:"broker"`
	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	Market    MarketConfig    `yaml:"market"`
	Logging   logger.Config   `yaml:"logging"`
}

// AppConfig identifies the process.
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BrokerConfig holds the vendor API credentials. Username and password are
// optional when login is performed out-of-band. Values are never logged.
type BrokerConfig struct {
	BaseURL     string        `yaml:"base_url"`
	WSURL       string        `yaml:"ws_url"`
	APIKey      string        `yaml:"api_key"`
	APISecret   string        `yaml:"api_secret"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	// Outbound pacing toward the vendor API.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AdminConfig holds the shared admin token checked on every sensitive route.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// RateLimitConfig configures the fixed-window inbound limiter.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// RedisConfig enables the shared rate-limit backend when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig locates the persisted token cache.
type SessionConfig struct {
	TokenFile string `yaml:"token_file"`
}

// MarketConfig configures the instrument master refresh.
type MarketConfig struct {
	SnapshotFile    string `yaml:"snapshot_file"`
	RefreshSchedule string `yaml:"refresh_schedule"` // cron spec, server local time
}

// Load reads the YAML file if present, applies environment overrides, fills
// defaults and validates required fields.
func Load(filename string) (*Config, error) {
	cfg := defaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "mgate", Env: "development"},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Broker: BrokerConfig{
			BaseURL:           "https://api.mstock.trade/openapi/typea",
			WSURL:             "wss://ws.mstock.trade",
			CallTimeout:       30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
		},
		Session: SessionConfig{TokenFile: ".tokens.json"},
		Market: MarketConfig{
			SnapshotFile:    "instrument_scrip_master.csv",
			RefreshSchedule: "45 8 * * *",
		},
		Logging: logger.DefaultConfig,
	}
}

func applyEnv(cfg *Config) {
	env := NewEnvManager("", "")

	cfg.Broker.APIKey = env.GetEncryptedString("api_key", cfg.Broker.APIKey)
	cfg.Broker.APISecret = env.GetEncryptedString("api_secret", cfg.Broker.APISecret)
	cfg.Broker.Username = env.GetString("username", cfg.Broker.Username)
	cfg.Broker.Password = env.GetEncryptedString("password", cfg.Broker.Password)
	cfg.Broker.BaseURL = env.GetString("broker_base_url", cfg.Broker.BaseURL)
	cfg.Broker.WSURL = env.GetString("broker_ws_url", cfg.Broker.WSURL)
	cfg.Admin.Token = env.GetEncryptedString("admin_token", cfg.Admin.Token)

	cfg.Server.Host = env.GetString("host", cfg.Server.Host)
	cfg.Server.Port = env.GetInt("port", cfg.Server.Port)
	cfg.RateLimit.Enabled = env.GetBool("rate_limit_enabled", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = env.GetInt("rate_limit_rpm", cfg.RateLimit.RequestsPerMinute)
	cfg.Redis.Addr = env.GetString("redis_addr", cfg.Redis.Addr)
	cfg.Redis.Password = env.GetString("redis_password", cfg.Redis.Password)
	cfg.Session.TokenFile = env.GetString("token_file", cfg.Session.TokenFile)
	cfg.Logging.Level = env.GetString("log_level", cfg.Logging.Level)
}

// Validate checks the required fields. Username/password stay optional so a
// deployment can perform the OTP login out-of-band.
func (c *Config) Validate() error {
	var missing []string
	if c.Broker.APIKey == "" {
		missing = append(missing, "MGATE_API_KEY")
	}
	if c.Broker.APISecret == "" {
		missing = append(missing, "MGATE_API_SECRET")
	}
	if c.Admin.Token == "" {
		missing = append(missing, "MGATE_ADMIN_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 10
	}
	return nil
}
