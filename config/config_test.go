package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("DB_PATH", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "./data/quizpilot.db" {
		t.Errorf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Engine.AcceptThreshold != 0.3 || cfg.Engine.OutcomeAttempts != 5 {
		t.Errorf("unexpected thresholds %+v", cfg.Engine)
	}
	if cfg.Engine.OutcomeInterval != 3*time.Second || cfg.Engine.Cooldown != 1500*time.Millisecond {
		t.Errorf("unexpected timings %+v", cfg.Engine)
	}
	if len(cfg.AI.TextModels) != 5 || len(cfg.AI.VisionModels) != 2 || cfg.AI.MaxRetries != 3 {
		t.Errorf("unexpected AI config %+v", cfg.AI)
	}
	if err := cfg.RequireOracle(); err == nil {
		t.Errorf("expected missing key error")
	}
	if err := cfg.RequireBot(); err == nil {
		t.Errorf("expected missing token error")
	}
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("DB_PATH", "/tmp/q.db")
	t.Setenv("ADMIN_CHAT_ID", "4242")
	t.Setenv("HEADLESS", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Token != "123:abc" || cfg.Bot.AdminChatID != 4242 {
		t.Errorf("unexpected bot config %+v", cfg.Bot)
	}
	if cfg.AI.APIKey != "gsk_test" || cfg.Database.Path != "/tmp/q.db" || !cfg.Browser.Headless {
		t.Errorf("environment not applied: %+v", cfg)
	}
	if err := cfg.RequireOracle(); err != nil {
		t.Errorf("RequireOracle: %v", err)
	}
	if err := cfg.RequireBot(); err != nil {
		t.Errorf("RequireBot: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "quizpilot.yaml")
	yaml := `
browser:
  page_url: https://vyzyvatel.com/game/1
engine:
  accept_threshold: 0.5
  outcome_interval: 2s
  cooldown: 750ms
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Browser.PageURL != "https://vyzyvatel.com/game/1" {
		t.Errorf("unexpected page url %q", cfg.Browser.PageURL)
	}
	if cfg.Engine.AcceptThreshold != 0.5 || cfg.Engine.OutcomeInterval != 2*time.Second || cfg.Engine.Cooldown != 750*time.Millisecond {
		t.Errorf("file values not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.OutcomeAttempts != 5 {
		t.Errorf("defaults must survive partial files, got %d", cfg.Engine.OutcomeAttempts)
	}
}

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  accept_threshold: 1.5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRequireBotNeedsAdminChat(t *testing.T) {
	tests := []struct {
		name  string
		bot   BotConfig
		valid bool
	}{
		{"no token", BotConfig{AdminChatID: 42}, false},
		{"no admin chat", BotConfig{Token: "123:abc"}, false},
		{"complete", BotConfig{Token: "123:abc", AdminChatID: 42}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Bot: tt.bot}
			if err := cfg.RequireBot(); (err == nil) != tt.valid {
				t.Errorf("RequireBot() = %v, want valid=%v", err, tt.valid)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
