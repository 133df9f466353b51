// Package config provides YAML-based configuration loading for the interviewer.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level interviewer configuration, loaded from interviewer.yaml.
type Config struct {
	Database  DatabaseConfig           `yaml:"database"`
	Interview InterviewConfig          `yaml:"interview"`
	Profiles  map[string]ProfileConfig `yaml:"profiles"`
	Gemini    GeminiConfig             `yaml:"gemini"`
	Chat      ChatConfig               `yaml:"chat"`
	Digest    DigestConfig             `yaml:"digest"`
	Dashboard DashboardConfig          `yaml:"dashboard"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // "sqlite" or "mysql"
	Path        string `yaml:"path"`   // sqlite file path
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
}

// InterviewConfig holds the dialogue controller tunables.
type InterviewConfig struct {
	MaxTurns            int           `yaml:"max_turns"`
	CoverageThreshold   int           `yaml:"coverage_threshold"`
	SimilarityWindow    int           `yaml:"similarity_window"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	AnswerMaxWords      int           `yaml:"answer_max_words"`
	GenerateTimeout     time.Duration `yaml:"generate_timeout"`
	TranscriptMaxChars  int           `yaml:"transcript_max_chars"`
	DefaultProfile      string        `yaml:"default_profile"`
}

// ProfileConfig names the policy documents used to build prompts.
type ProfileConfig struct {
	SkillPath  string `yaml:"skill_path"`
	RubricPath string `yaml:"rubric_path"`
}

// GeminiConfig configures the generative backend.
type GeminiConfig struct {
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	APIKeyFile  string  `yaml:"api_key_file"`
	Temperature float32 `yaml:"temperature"`
}

// ChatConfig configures the chat bridge.
type ChatConfig struct {
	Platform      string        `yaml:"platform"` // "discord", "slack" or "console"
	Channel       string        `yaml:"channel"`  // default/operator channel
	CommandPrefix string        `yaml:"command_prefix"`
	CreateThreads bool          `yaml:"create_threads"`
	Discord       DiscordConfig `yaml:"discord"`
	Slack         SlackConfig   `yaml:"slack"`
}

// DiscordConfig holds Discord credentials.
type DiscordConfig struct {
	TokenEnv string `yaml:"token_env"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppTokenEnv string `yaml:"app_token_env"`
	BotTokenEnv string `yaml:"bot_token_env"`
}

// DigestConfig schedules the operator digest of active interviews.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Channel string `yaml:"channel"`
}

// DashboardConfig configures the read-only HTTP API.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "interviews.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "interviewer"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}

	iv := &c.Interview
	if iv.MaxTurns == 0 {
		iv.MaxTurns = 10
	}
	if iv.CoverageThreshold == 0 {
		iv.CoverageThreshold = 5
	}
	if iv.SimilarityWindow == 0 {
		iv.SimilarityWindow = 8
	}
	if iv.SimilarityThreshold == 0 {
		iv.SimilarityThreshold = 0.65
	}
	if iv.AnswerMaxWords == 0 {
		iv.AnswerMaxWords = 80
	}
	if iv.GenerateTimeout == 0 {
		iv.GenerateTimeout = 45 * time.Second
	}
	if iv.TranscriptMaxChars == 0 {
		iv.TranscriptMaxChars = 12000
	}
	if iv.DefaultProfile == "" && len(c.Profiles) == 1 {
		for name := range c.Profiles {
			iv.DefaultProfile = name
		}
	}

	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Gemini.APIKeyEnv == "" && c.Gemini.APIKeyFile == "" {
		c.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Gemini.Temperature == 0 {
		c.Gemini.Temperature = 0.4
	}

	if c.Chat.CommandPrefix == "" {
		c.Chat.CommandPrefix = "!iv"
	}
	if c.Chat.Discord.TokenEnv == "" {
		c.Chat.Discord.TokenEnv = "DISCORD_TOKEN"
	}
	if c.Chat.Slack.AppTokenEnv == "" {
		c.Chat.Slack.AppTokenEnv = "SLACK_APP_TOKEN"
	}
	if c.Chat.Slack.BotTokenEnv == "" {
		c.Chat.Slack.BotTokenEnv = "SLACK_BOT_TOKEN"
	}

	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 9 * * *"
	}
	if c.Digest.Channel == "" {
		c.Digest.Channel = c.Chat.Channel
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}

	iv := c.Interview
	if iv.MaxTurns < 1 {
		errs = append(errs, "interview.max_turns must be positive")
	}
	if iv.CoverageThreshold < 1 {
		errs = append(errs, "interview.coverage_threshold must be positive")
	}
	if iv.SimilarityThreshold < 0 || iv.SimilarityThreshold > 1 {
		errs = append(errs, "interview.similarity_threshold must be within [0, 1]")
	}
	if iv.GenerateTimeout < 0 {
		errs = append(errs, "interview.generate_timeout must not be negative")
	}

	if len(c.Profiles) == 0 {
		errs = append(errs, "at least one profile is required")
	}
	for name, p := range c.Profiles {
		if p.SkillPath == "" {
			errs = append(errs, fmt.Sprintf("profiles.%s.skill_path is required", name))
		}
		if p.RubricPath == "" {
			errs = append(errs, fmt.Sprintf("profiles.%s.rubric_path is required", name))
		}
	}
	if iv.DefaultProfile == "" && len(c.Profiles) > 1 {
		errs = append(errs, "interview.default_profile is required when more than one profile is configured")
	}
	if iv.DefaultProfile != "" {
		if _, ok := c.Profiles[iv.DefaultProfile]; !ok {
			errs = append(errs, fmt.Sprintf("interview.default_profile %q is not a configured profile", iv.DefaultProfile))
		}
	}

	switch c.Chat.Platform {
	case "", "discord", "slack", "console":
	default:
		errs = append(errs, fmt.Sprintf("chat.platform %q is not supported (discord, slack, console)", c.Chat.Platform))
	}
	if c.Digest.Enabled && c.Digest.Channel == "" {
		errs = append(errs, "digest.channel (or chat.channel) is required when the digest is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
