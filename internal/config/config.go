package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ConsolePort                string `yaml:"console_port"`
	AgentURL                   string `yaml:"agent_url"`
	AgentAssistantID           string `yaml:"agent_assistant_id"`
	AgentConnectTimeoutSeconds int    `yaml:"agent_connect_timeout_seconds"`
	DefaultEffort              string `yaml:"default_effort"`
	DefaultReasoningModel      string `yaml:"default_reasoning_model"`
	SessionEventBuffer         int    `yaml:"session_event_buffer"`
	ConfigFile                 string `yaml:"-"`
}

func Defaults() Config {
	return Config{
		ConsolePort:                "8090",
		AgentURL:                   "http://localhost:2024",
		AgentAssistantID:           "agent",
		AgentConnectTimeoutSeconds: 10,
		DefaultEffort:              "medium",
		DefaultReasoningModel:      "gemini-2.5-flash",
		SessionEventBuffer:         16,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONSOLE_CONFIG_FILE if set, then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	cfg.ConfigFile = getEnv("CONSOLE_CONFIG_FILE", "")
	if cfg.ConfigFile != "" {
		if err := overlayFile(&cfg, cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}
	cfg.ConsolePort = getEnv("CONSOLE_PORT", cfg.ConsolePort)
	cfg.AgentURL = getEnv("AGENT_URL", cfg.AgentURL)
	cfg.AgentAssistantID = getEnv("AGENT_ASSISTANT_ID", cfg.AgentAssistantID)
	cfg.AgentConnectTimeoutSeconds = getEnvInt("AGENT_CONNECT_TIMEOUT_SECONDS", cfg.AgentConnectTimeoutSeconds)
	cfg.DefaultEffort = getEnv("DEFAULT_EFFORT", cfg.DefaultEffort)
	cfg.DefaultReasoningModel = getEnv("DEFAULT_REASONING_MODEL", cfg.DefaultReasoningModel)
	cfg.SessionEventBuffer = getEnvInt("SESSION_EVENT_BUFFER", cfg.SessionEventBuffer)
	return cfg, nil
}

func (c Config) AgentConnectTimeout() time.Duration {
	return time.Duration(c.AgentConnectTimeoutSeconds) * time.Second
}

// overlayFile applies the fields present in the YAML file on top of cfg.
// Fields the file leaves out keep their current values.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
