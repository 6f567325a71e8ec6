package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration for the application
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	AI       AIConfig       `mapstructure:"ai"`
	Database DatabaseConfig `mapstructure:"database"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

type BotConfig struct {
	Token       string `mapstructure:"token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
}

type AIConfig struct {
	APIKey       string   `mapstructure:"api_key"`
	Endpoint     string   `mapstructure:"endpoint"`
	TextModels   []string `mapstructure:"text_models"`
	VisionModels []string `mapstructure:"vision_models"`
	MaxRetries   int      `mapstructure:"max_retries"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type BrowserConfig struct {
	PageURL     string `mapstructure:"page_url"`
	ChromeBin   string `mapstructure:"chrome_bin"`
	DebuggerURL string `mapstructure:"debugger_url"`
	Headless    bool   `mapstructure:"headless"`
}

type EngineConfig struct {
	AcceptThreshold float64       `mapstructure:"accept_threshold"`
	OutcomeAttempts int           `mapstructure:"outcome_attempts"`
	OutcomeInterval time.Duration `mapstructure:"outcome_interval"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ThinkDelayMin   time.Duration `mapstructure:"think_delay_min"`
	ThinkDelayMax   time.Duration `mapstructure:"think_delay_max"`
	SubmitDelayMin  time.Duration `mapstructure:"submit_delay_min"`
	SubmitDelayMax  time.Duration `mapstructure:"submit_delay_max"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	AutoAnswer      bool          `mapstructure:"auto_answer"`
}

// Environment variables that map onto config keys
var envBindings = map[string]string{
	"bot.token":            "BOT_TOKEN",
	"bot.admin_chat_id":    "ADMIN_CHAT_ID",
	"ai.api_key":           "GROQ_API_KEY",
	"database.path":        "DB_PATH",
	"browser.page_url":     "PAGE_URL",
	"browser.chrome_bin":   "CHROME_BIN",
	"browser.debugger_url": "DEBUGGER_URL",
	"browser.headless":     "HEADLESS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.admin_chat_id", 0)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.text_models", []string{
		"llama-3.3-70b-versatile",
		"llama-3.1-70b-versatile",
		"llama3-70b-8192",
		"mixtral-8x7b-32768",
		"gemma2-9b-it",
	})
	v.SetDefault("ai.vision_models", []string{
		"llama-3.2-90b-vision-preview",
		"llama-3.2-11b-vision-preview",
	})
	v.SetDefault("ai.max_retries", 3)

	v.SetDefault("database.path", "./data/quizpilot.db")

	v.SetDefault("browser.page_url", "https://vyzyvatel.com")
	v.SetDefault("browser.chrome_bin", "")
	v.SetDefault("browser.debugger_url", "")
	v.SetDefault("browser.headless", false)

	v.SetDefault("engine.accept_threshold", 0.3)
	v.SetDefault("engine.outcome_attempts", 5)
	v.SetDefault("engine.outcome_interval", 3*time.Second)
	v.SetDefault("engine.cooldown", 1500*time.Millisecond)
	v.SetDefault("engine.think_delay_min", 300*time.Millisecond)
	v.SetDefault("engine.think_delay_max", 1500*time.Millisecond)
	v.SetDefault("engine.submit_delay_min", 200*time.Millisecond)
	v.SetDefault("engine.submit_delay_max", 500*time.Millisecond)
	v.SetDefault("engine.poll_interval", time.Second)
	v.SetDefault("engine.auto_answer", true)
}

// Load reads the configuration from an optional YAML file and environment variables.
// An empty path searches ./config.yaml and ~/.config/quizpilot/config.yaml; a missing
// file there is not an error. Secrets are only validated by the Require* checks of the
// commands that need them.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "quizpilot"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	v.SetEnvPrefix("QUIZPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	e := c.Engine
	if e.AcceptThreshold < 0 || e.AcceptThreshold >= 1 {
		return fmt.Errorf("engine.accept_threshold must be in [0, 1), got %v", e.AcceptThreshold)
	}
	if e.OutcomeAttempts < 1 {
		return fmt.Errorf("engine.outcome_attempts must be positive, got %d", e.OutcomeAttempts)
	}
	if e.ThinkDelayMax < e.ThinkDelayMin {
		return fmt.Errorf("engine.think_delay_max must not be below engine.think_delay_min")
	}
	if e.SubmitDelayMax < e.SubmitDelayMin {
		return fmt.Errorf("engine.submit_delay_max must not be below engine.submit_delay_min")
	}
	if c.AI.MaxRetries < 1 {
		return fmt.Errorf("ai.max_retries must be positive, got %d", c.AI.MaxRetries)
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	return nil
}

// RequireOracle checks that the AI credentials are present
func (c *Config) RequireOracle() error {
	if strings.TrimSpace(c.AI.APIKey) == "" {
		return errors.New("GROQ_API_KEY environment variable is required")
	}
	return nil
}

// RequireBot checks that the telegram bot can be started and knows who owns it
func (c *Config) RequireBot() error {
	if c.Bot.Token == "" {
		return errors.New("BOT_TOKEN environment variable is required")
	}
	if c.Bot.AdminChatID == 0 {
		return errors.New("ADMIN_CHAT_ID environment variable is required with BOT_TOKEN")
	}
	return nil
}

// RequireBrowser checks that there is a quiz page to drive
func (c *Config) RequireBrowser() error {
	if c.Browser.PageURL == "" {
		return errors.New("PAGE_URL environment variable is required")
	}
	return nil
}
