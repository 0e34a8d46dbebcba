// Package config loads the application configuration from the process environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultDays            = 7
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultSummaryLanguage = "English"
	DefaultReportFormat    = "detailed"
	DefaultOutputDir       = "."
)

// Token types accepted in GITLAB_TOKEN_TYPE.
const (
	TokenTypePrivate = "private"
	TokenTypeOAuth   = "oauth"
)

// Config holds the application configuration. It is built once at startup and
// passed down to every stage.
type Config struct {
	GitLab  GitLabConfig
	OpenAI  OpenAIConfig
	Discord DiscordConfig
	Report  ReportConfig
	Log     LogConfig
}

// GitLabConfig holds GitLab connection settings and the target projects.
type GitLabConfig struct {
	URL                string
	Token              string
	TokenType          string
	ProjectIDs         []string
	Days               int
	InsecureSkipVerify bool
}

// OpenAIConfig holds summarization settings. Summarization is enabled when APIKey is set.
type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
}

// DiscordConfig holds delivery settings. Delivery is enabled when WebhookURL is set.
type DiscordConfig struct {
	WebhookURL string
}

// ReportConfig holds renderer settings.
type ReportConfig struct {
	Format    string // "detailed" or "summary"
	OutputDir string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// ProjectConfig is the per-project view of the configuration.
type ProjectConfig struct {
	BaseURL   string
	Token     string
	ProjectID string
	Days      int
}

// Load reads the given .env files (".env" when none are given) into the process
// environment, overriding existing values, and builds the configuration from it.
// Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Overload(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates the configuration using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		GitLab: GitLabConfig{
			URL:        strings.TrimSpace(getenv("GITLAB_URL")),
			Token:      strings.TrimSpace(getenv("GITLAB_TOKEN")),
			TokenType:  strings.ToLower(env.str("GITLAB_TOKEN_TYPE", TokenTypePrivate)),
			ProjectIDs: splitProjectIDs(getenv("GITLAB_PROJECT_IDS")),
		},
		OpenAI: OpenAIConfig{
			APIKey:   strings.TrimSpace(getenv("OPENAI_API_KEY")),
			Model:    env.str("OPENAI_MODEL", DefaultOpenAIModel),
			BaseURL:  strings.TrimSpace(getenv("OPENAI_BASE_URL")),
			Language: env.str("SUMMARY_LANGUAGE", DefaultSummaryLanguage),
		},
		Discord: DiscordConfig{
			WebhookURL: strings.TrimSpace(getenv("DISCORD_WEBHOOK_URL")),
		},
		Report: ReportConfig{
			Format:    strings.ToLower(env.str("REPORT_FORMAT", DefaultReportFormat)),
			OutputDir: env.str("REPORT_OUTPUT_DIR", DefaultOutputDir),
		},
		Log: LogConfig{
			Level:  env.str("LOG_LEVEL", "info"),
			Format: env.str("LOG_FORMAT", "text"),
		},
	}

	var errs []error
	days, err := env.integer("GITLAB_DAYS", DefaultDays)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.GitLab.Days = days

	insecure, err := env.boolean("GITLAB_INSECURE_SKIP_VERIFY")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.GitLab.InsecureSkipVerify = insecure

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks required settings and enumerated values.
func (c *Config) Validate() error {
	var missing []string
	if c.GitLab.URL == "" {
		missing = append(missing, "GITLAB_URL")
	}
	if c.GitLab.Token == "" {
		missing = append(missing, "GITLAB_TOKEN")
	}
	if len(c.GitLab.ProjectIDs) == 0 {
		missing = append(missing, "GITLAB_PROJECT_IDS")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required GitLab settings: %s", strings.Join(missing, ", ")))
	}
	if c.GitLab.Days <= 0 {
		errs = append(errs, fmt.Errorf("GITLAB_DAYS must be positive, got %d", c.GitLab.Days))
	}
	switch c.GitLab.TokenType {
	case TokenTypePrivate, TokenTypeOAuth:
	default:
		errs = append(errs, fmt.Errorf("GITLAB_TOKEN_TYPE must be %q or %q, got %q", TokenTypePrivate, TokenTypeOAuth, c.GitLab.TokenType))
	}
	switch c.Report.Format {
	case "detailed", "summary":
	default:
		errs = append(errs, fmt.Errorf("REPORT_FORMAT must be \"detailed\" or \"summary\", got %q", c.Report.Format))
	}
	return errors.Join(errs...)
}

// Projects returns one ProjectConfig per configured project id, in order.
func (c *Config) Projects() []ProjectConfig {
	projects := make([]ProjectConfig, 0, len(c.GitLab.ProjectIDs))
	for _, id := range c.GitLab.ProjectIDs {
		projects = append(projects, ProjectConfig{
			BaseURL:   c.GitLab.URL,
			Token:     c.GitLab.Token,
			ProjectID: id,
			Days:      c.GitLab.Days,
		})
	}
	return projects
}

// SummaryEnabled reports whether a narrative should be requested from the language model.
func (c *Config) SummaryEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// NotifyEnabled reports whether reports should be delivered to Discord.
func (c *Config) NotifyEnabled() bool {
	return c.Discord.WebhookURL != ""
}

func splitProjectIDs(csv string) []string {
	var ids []string
	for _, id := range strings.Split(csv, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e envReader) integer(key string, def int) (int, error) {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return i, nil
}

func (e envReader) boolean(key string) (bool, error) {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
