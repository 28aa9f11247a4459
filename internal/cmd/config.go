package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML server configuration. Every field has a
// working default so the server boots with no config file at all.
type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	} `yaml:"server"`

	Rooms struct {
		GraceWindowSeconds int      `yaml:"grace_window_seconds"`
		EnabledGames       []string `yaml:"enabled_games"`
	} `yaml:"rooms"`

	Auth struct {
		// "jwt" or "insecure". Insecure mode trusts the token as a uid.
		Mode string `yaml:"mode"`
	} `yaml:"auth"`

	Persistence struct {
		// "postgres" or "memory".
		Backend string `yaml:"backend"`
	} `yaml:"persistence"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Rooms.GraceWindowSeconds = 30
	cfg.Rooms.EnabledGames = []string{"cards", "duel", "race", "golf"}
	cfg.Auth.Mode = "jwt"
	cfg.Persistence.Backend = "memory"
	cfg.NATS.Enabled = false
	cfg.NATS.URL = "nats://localhost:4222"
	return &cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) graceWindow() time.Duration {
	return time.Duration(c.Rooms.GraceWindowSeconds) * time.Second
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
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
