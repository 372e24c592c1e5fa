package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnvKeys = []string{
	"CONSOLE_PORT",
	"AGENT_URL",
	"AGENT_ASSISTANT_ID",
	"AGENT_CONNECT_TIMEOUT_SECONDS",
	"DEFAULT_EFFORT",
	"DEFAULT_REASONING_MODEL",
	"SESSION_EVENT_BUFFER",
	"CONSOLE_CONFIG_FILE",
}

func unsetAllEnv(t *testing.T, keys []string) {
	t.Helper()
	for _, key := range keys {
		// t.Setenv registers the restore; the unset makes the key absent.
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AllDefaults(t *testing.T) {
	unsetAllEnv(t, allEnvKeys)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("Load() = %+v, want %+v", cfg, Defaults())
	}
	if cfg.ConsolePort != "8090" {
		t.Fatalf("ConsolePort = %q, want %q", cfg.ConsolePort, "8090")
	}
	if cfg.AgentURL != "http://localhost:2024" {
		t.Fatalf("AgentURL = %q, want %q", cfg.AgentURL, "http://localhost:2024")
	}
	if cfg.AgentAssistantID != "agent" {
		t.Fatalf("AgentAssistantID = %q, want %q", cfg.AgentAssistantID, "agent")
	}
	if cfg.AgentConnectTimeout() != 10*time.Second {
		t.Fatalf("AgentConnectTimeout = %v, want %v", cfg.AgentConnectTimeout(), 10*time.Second)
	}
	if cfg.DefaultEffort != "medium" {
		t.Fatalf("DefaultEffort = %q, want %q", cfg.DefaultEffort, "medium")
	}
	if cfg.DefaultReasoningModel != "gemini-2.5-flash" {
		t.Fatalf("DefaultReasoningModel = %q, want %q", cfg.DefaultReasoningModel, "gemini-2.5-flash")
	}
	if cfg.SessionEventBuffer != 16 {
		t.Fatalf("SessionEventBuffer = %d, want %d", cfg.SessionEventBuffer, 16)
	}
}

func TestLoad_AllEnvVars(t *testing.T) {
	unsetAllEnv(t, allEnvKeys)
	t.Setenv("CONSOLE_PORT", "9191")
	t.Setenv("AGENT_URL", "https://agent.example.test")
	t.Setenv("AGENT_ASSISTANT_ID", "research")
	t.Setenv("AGENT_CONNECT_TIMEOUT_SECONDS", "3")
	t.Setenv("DEFAULT_EFFORT", "high")
	t.Setenv("DEFAULT_REASONING_MODEL", "gemini-2.5-pro")
	t.Setenv("SESSION_EVENT_BUFFER", "64")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Config{
		ConsolePort:                "9191",
		AgentURL:                   "https://agent.example.test",
		AgentAssistantID:           "research",
		AgentConnectTimeoutSeconds: 3,
		DefaultEffort:              "high",
		DefaultReasoningModel:      "gemini-2.5-pro",
		SessionEventBuffer:         64,
	}
	if cfg != want {
		t.Fatalf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	unsetAllEnv(t, allEnvKeys)
	t.Setenv("AGENT_CONNECT_TIMEOUT_SECONDS", "soon")
	t.Setenv("SESSION_EVENT_BUFFER", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AgentConnectTimeoutSeconds != 10 {
		t.Fatalf("AgentConnectTimeoutSeconds = %d, want %d", cfg.AgentConnectTimeoutSeconds, 10)
	}
	if cfg.SessionEventBuffer != 16 {
		t.Fatalf("SessionEventBuffer = %d, want %d", cfg.SessionEventBuffer, 16)
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	unsetAllEnv(t, allEnvKeys)
	path := writeConfigFile(t, "agent_url: http://agent.internal:2024\ndefault_effort: low\nsession_event_buffer: 4\n")
	t.Setenv("CONSOLE_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AgentURL != "http://agent.internal:2024" {
		t.Fatalf("AgentURL = %q, want file value", cfg.AgentURL)
	}
	if cfg.DefaultEffort != "low" {
		t.Fatalf("DefaultEffort = %q, want %q", cfg.DefaultEffort, "low")
	}
	if cfg.SessionEventBuffer != 4 {
		t.Fatalf("SessionEventBuffer = %d, want %d", cfg.SessionEventBuffer, 4)
	}
	if cfg.ConsolePort != "8090" {
		t.Fatalf("ConsolePort = %q, want default kept", cfg.ConsolePort)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	unsetAllEnv(t, allEnvKeys)
	path := writeConfigFile(t, "agent_url: http://from-file\nconsole_port: \"7000\"\n")
	t.Setenv("CONSOLE_CONFIG_FILE", path)
	t.Setenv("AGENT_URL", "http://from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AgentURL != "http://from-env" {
		t.Fatalf("AgentURL = %q, want env value", cfg.AgentURL)
	}
	if cfg.ConsolePort != "7000" {
		t.Fatalf("ConsolePort = %q, want file value", cfg.ConsolePort)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	unsetAllEnv(t, allEnvKeys)
	t.Setenv("CONSOLE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing file")
	}

	t.Setenv("CONSOLE_CONFIG_FILE", writeConfigFile(t, "agent_url: [unterminated\n"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed file")
	}
}
