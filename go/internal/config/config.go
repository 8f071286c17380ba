// Package config loads process settings: .env first, then an optional YAML file,
// then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/turnclock/go/internal/dbconfig"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	NotifyPostgres = "postgres"
	NotifyNATS     = "nats"
	NotifyNone     = "none"
)

type Config struct {
	Database       dbconfig.Config `yaml:"database"`
	Store          string          `yaml:"store"`
	GatewayPort    int             `yaml:"gateway_port"`
	NATSURL        string          `yaml:"nats_url"`
	NotifyChannel  string          `yaml:"notify_channel"`
	NotifySource   string          `yaml:"notify_source"`
	PollInterval   time.Duration   `yaml:"poll_interval"`
	TickInterval   time.Duration   `yaml:"tick_interval"`
	RPCTimeout     time.Duration   `yaml:"rpc_timeout"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	LogLevel       string          `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Database:       dbconfig.Default(),
		Store:          StorePostgres,
		GatewayPort:    8081,
		NATSURL:        "nats://localhost:4222",
		NotifyChannel:  "turnclock_changes",
		NotifySource:   NotifyPostgres,
		PollInterval:   5 * time.Second,
		TickInterval:   time.Second,
		RPCTimeout:     5 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		LogLevel:       "info",
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_PATH is used
// if set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg = cfg.overlayEnv()
	return cfg, cfg.Validate()
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c Config) overlayEnv() Config {
	c.Database = c.Database.OverlayEnv()
	c.Store = getEnv("STORE", c.Store)
	c.GatewayPort = getEnvAsInt("GATEWAY_PORT", c.GatewayPort)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NotifyChannel = getEnv("NOTIFY_CHANNEL", c.NotifyChannel)
	c.NotifySource = getEnv("NOTIFY_SOURCE", c.NotifySource)
	c.PollInterval = getEnvAsDuration("POLL_INTERVAL", c.PollInterval)
	c.TickInterval = getEnvAsDuration("TICK_INTERVAL", c.TickInterval)
	c.RPCTimeout = getEnvAsDuration("RPC_TIMEOUT", c.RPCTimeout)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	return c
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	switch c.NotifySource {
	case NotifyPostgres, NotifyNATS, NotifyNone:
	default:
		return fmt.Errorf("unknown NOTIFY_SOURCE %q", c.NotifySource)
	}
	if c.Store == StoreMemory && c.NotifySource != NotifyNone {
		return fmt.Errorf("NOTIFY_SOURCE must be none with the memory store")
	}
	if c.PollInterval <= 0 || c.TickInterval <= 0 || c.RPCTimeout <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

// SetupLogger points the global zerolog logger at the console with the configured level.
func SetupLogger(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
