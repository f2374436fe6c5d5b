package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)

	// Discovery
	SSDPAddress    string        `yaml:"ssdp_address"`    // multicast group, ex: "239.255.255.250"
	SSDPPort       int           `yaml:"ssdp_port"`       // ex: 1900
	SearchInterval time.Duration `yaml:"search_interval"` // interval between M-SEARCH rounds
	PairingEnabled bool          `yaml:"pairing_enabled"` // discover services that require pairing

	// Config store: "memory" or "redis"
	StoreBackend string `yaml:"store_backend"`

	// Redis (only read when StoreBackend == "redis")
	RedisAddr           string        `yaml:"redis_addr"` // ex: "localhost:6379"
	RedisUser           string        `yaml:"redis_user"`
	RedisPassword       string        `yaml:"redis_password"`
	RedisDB             int           `yaml:"redis_db"`
	RedisDialTimeout    time.Duration `yaml:"redis_dial_timeout"`
	RedisReadTimeout    time.Duration `yaml:"redis_read_timeout"`
	RedisWriteTimeout   time.Duration `yaml:"redis_write_timeout"`
	RedisPoolSize       int           `yaml:"redis_pool_size"`
	RedisConnectTimeout time.Duration `yaml:"redis_connect_timeout"` // total time to retry connecting
	RedisRetryInterval  time.Duration `yaml:"redis_retry_interval"`  // initial wait, grows exponentially
	RedisMaxWait        time.Duration `yaml:"redis_max_wait"`        // cap on the retry backoff
	RedisPingTimeout    time.Duration `yaml:"redis_ping_timeout"`    // per-ping timeout
	RedisWarnThreshold  int           `yaml:"redis_warn_threshold"`  // warn after this many attempts
}

// Load builds the configuration from defaults, an optional YAML file
// (CASTLINK_CONFIG_FILE) and CASTLINK_* environment variables, in that
// order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CASTLINK_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel:  "info",
		PrettyLog: true,

		SSDPAddress:    "239.255.255.250",
		SSDPPort:       1900,
		SearchInterval: 10 * time.Second,
		PairingEnabled: true,

		StoreBackend: "memory",

		RedisUser:           "default",
		RedisDialTimeout:    5 * time.Second,
		RedisReadTimeout:    3 * time.Second,
		RedisWriteTimeout:   3 * time.Second,
		RedisPoolSize:       10,
		RedisConnectTimeout: 30 * time.Second,
		RedisRetryInterval:  2 * time.Second,
		RedisMaxWait:        10 * time.Second,
		RedisPingTimeout:    5 * time.Second,
		RedisWarnThreshold:  3,
	}
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.LogLevel = getenv("CASTLINK_LOG_LEVEL", c.LogLevel)
	c.PrettyLog = mustBool("CASTLINK_PRETTY_LOG", c.PrettyLog)

	c.SSDPAddress = getenv("CASTLINK_SSDP_ADDRESS", c.SSDPAddress)
	c.SSDPPort = getenvInt("CASTLINK_SSDP_PORT", c.SSDPPort)
	c.SearchInterval = mustDuration("CASTLINK_SEARCH_INTERVAL", c.SearchInterval)
	c.PairingEnabled = mustBool("CASTLINK_PAIRING_ENABLED", c.PairingEnabled)

	c.StoreBackend = getenv("CASTLINK_STORE_BACKEND", c.StoreBackend)

	c.RedisAddr = getenv("CASTLINK_REDIS_ADDR", c.RedisAddr)
	c.RedisUser = getenv("CASTLINK_REDIS_USERNAME", c.RedisUser)
	c.RedisPassword = getenv("CASTLINK_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getenvInt("CASTLINK_REDIS_DB", c.RedisDB)
	c.RedisDialTimeout = mustDuration("CASTLINK_REDIS_DIAL_TIMEOUT", c.RedisDialTimeout)
	c.RedisReadTimeout = mustDuration("CASTLINK_REDIS_READ_TIMEOUT", c.RedisReadTimeout)
	c.RedisWriteTimeout = mustDuration("CASTLINK_REDIS_WRITE_TIMEOUT", c.RedisWriteTimeout)
	c.RedisPoolSize = getenvInt("CASTLINK_REDIS_POOL_SIZE", c.RedisPoolSize)
	c.RedisConnectTimeout = mustDuration("CASTLINK_REDIS_CONNECT_TIMEOUT", c.RedisConnectTimeout)
	c.RedisRetryInterval = mustDuration("CASTLINK_REDIS_RETRY_INTERVAL", c.RedisRetryInterval)
	c.RedisMaxWait = mustDuration("CASTLINK_REDIS_MAX_WAIT", c.RedisMaxWait)
	c.RedisPingTimeout = mustDuration("CASTLINK_REDIS_PING_TIMEOUT", c.RedisPingTimeout)
	c.RedisWarnThreshold = getenvInt("CASTLINK_REDIS_WARN_THRESHOLD", c.RedisWarnThreshold)
}

func (c *Config) validate() error {
	switch strings.ToLower(c.StoreBackend) {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("CASTLINK_REDIS_ADDR is required when store backend is redis")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want memory or redis)", c.StoreBackend)
	}
	if c.SSDPPort <= 0 || c.SSDPPort > 65535 {
		return fmt.Errorf("invalid ssdp port %d", c.SSDPPort)
	}
	if c.SearchInterval <= 0 {
		return fmt.Errorf("search interval must be > 0, got %v", c.SearchInterval)
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
