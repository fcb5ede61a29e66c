// Package config loads the homed and homewatch settings from a YAML file
// with environment overrides. Everything downstream receives an explicit
// struct; no package reads the environment at call time.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed holds the MQTT broker settings shared by publisher and subscriber.
type Feed struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Session is a pre-issued token for the static resolver; used when no
// external credential service fronts homed.
type Session struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
}

// Server configures homed.
type Server struct {
	HTTPAddr       string    `yaml:"http_addr"`
	LogLevel       string    `yaml:"log_level"`
	DatabaseURL    string    `yaml:"database_url"`
	InternalEmails []string  `yaml:"internal_emails"`
	Sessions       []Session `yaml:"sessions"`
	Feed           Feed      `yaml:"feed"`
}

// Watch configures homewatch.
type Watch struct {
	ServerURL      string `yaml:"server_url"`
	Token          string `yaml:"token"`
	LogLevel       string `yaml:"log_level"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	BypassInternal bool   `yaml:"bypass_internal"`
	Feed           Feed   `yaml:"feed"`
}

// LoadServer reads the server config. An empty path skips the file and uses
// defaults plus environment overrides only.
func LoadServer(path string) (*Server, error) {
	cfg := &Server{
		HTTPAddr: ":8082",
		LogLevel: "info",
	}
	if path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	if emails := os.Getenv("INTERNAL_EMAILS"); emails != "" {
		cfg.InternalEmails = splitList(emails)
	}
	applyFeedEnv(&cfg.Feed)

	return cfg, nil
}

// LoadWatch reads the homewatch config; ServerURL and Token are required.
func LoadWatch(path string) (*Watch, error) {
	cfg := &Watch{
		LogLevel:       "info",
		PollIntervalMS: 4500,
	}
	if path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ServerURL = envOr("HOME_SERVER_URL", cfg.ServerURL)
	cfg.Token = envOr("HOME_TOKEN", cfg.Token)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	if os.Getenv("INTERNAL_BYPASS") == "true" {
		cfg.BypassInternal = true
	}
	applyFeedEnv(&cfg.Feed)

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}

	return cfg, nil
}

func readYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

func applyFeedEnv(f *Feed) {
	f.Broker = envOr("MQTT_BROKER", f.Broker)
	f.ClientID = envOr("MQTT_CLIENT_ID", f.ClientID)
	f.Username = envOr("MQTT_USERNAME", f.Username)
	f.Password = envOr("MQTT_PASSWORD", f.Password)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
