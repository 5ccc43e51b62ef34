// Package config loads and validates changelog-watch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. CHANGELOG_NUM_DAYS.
const EnvPrefix = "CHANGELOG"

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Docs          []changelog.Document `mapstructure:"docs"`
	NumDays       int                  `mapstructure:"num_days"`
	TrimLen       int                  `mapstructure:"trim_len"`
	NotifyChannel string               `mapstructure:"notify_channel"`
	Prompt        string               `mapstructure:"prompt"`
	Concurrency   int                  `mapstructure:"concurrency"`
	Timezone      string               `mapstructure:"timezone"`

	Logging    logging.Config   `mapstructure:"logging"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Seen       SeenConfig       `mapstructure:"seen"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	History    HistoryConfig    `mapstructure:"history"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

// RetrievalConfig configures the strategy chain.
type RetrievalConfig struct {
	Strategies      []string         `mapstructure:"strategies"`
	UserAgent       string           `mapstructure:"user_agent"`
	AcceptLanguage  string           `mapstructure:"accept_language"`
	HTTPTimeout     time.Duration    `mapstructure:"http_timeout"`
	MainContentOnly bool             `mapstructure:"main_content_only"`
	DomainQPS       float64          `mapstructure:"domain_qps"`
	Headless        HeadlessConfig   `mapstructure:"headless"`
	Rod             RodConfig        `mapstructure:"rod"`
	SingleFile      SingleFileConfig `mapstructure:"singlefile"`
}

// HeadlessConfig configures the chromedp strategy.
type HeadlessConfig struct {
	Headless    bool          `mapstructure:"headless"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// RodConfig configures the go-rod strategy.
type RodConfig struct {
	Headless    bool          `mapstructure:"headless"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Bin         string        `mapstructure:"bin"`
	ControlURL  string        `mapstructure:"control_url"`
}

// SingleFileConfig configures the SingleFile CLI strategy.
type SingleFileConfig struct {
	Path        string        `mapstructure:"path"`
	CookiesFile string        `mapstructure:"cookies_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Headless    bool          `mapstructure:"headless"`
}

// SummarizerConfig selects and configures the LLM provider.
type SummarizerConfig struct {
	Provider string       `mapstructure:"provider"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
}

// OpenAIConfig configures the OpenAI or Azure OpenAI client.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	AzureAPIKey string        `mapstructure:"azure_api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SeenConfig configures the Redis seen-set. An empty URL disables deduplication.
type SeenConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// NotifierConfig holds every notification sink. Unconfigured sinks are skipped.
type NotifierConfig struct {
	Slack  SlackConfig  `mapstructure:"slack"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// SlackConfig configures chat.postMessage.
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
	APIURL  string `mapstructure:"api_url"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ArchiveConfig sets where retrieved snapshots are kept.
type ArchiveConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	Local    LocalArchiveConfig `mapstructure:"local"`
	GCS      GCSArchiveConfig   `mapstructure:"gcs"`
}

// LocalArchiveConfig configures the filesystem archive.
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSArchiveConfig configures the bucket archive.
type GCSArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// HistoryConfig controls access to the run history table. An empty DSN disables it.
type HistoryConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig configures metrics export for one-shot runs.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScheduleConfig triggers runs periodically in serve mode. Zero disables it.
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Archive providers.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Summarizer providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// envAliases binds the conventional variable names alongside the prefixed ones.
var envAliases = map[string][]string{
	"seen.redis_url":                    {"REDIS_URL"},
	"notifier.slack.token":              {"SLACK_TOKEN"},
	"notifier.slack.channel":            {"SLACK_CHANNEL"},
	"summarizer.openai.api_key":         {"OPENAI_API_KEY"},
	"summarizer.openai.model":           {"OPENAI_MODEL"},
	"summarizer.openai.temperature":     {"OPENAI_TEMPERATURE"},
	"summarizer.openai.base_url":        {"OPENAI_BASE_URL", "AZURE_OPENAI_ENDPOINT"},
	"summarizer.openai.azure_api_key":   {"AZURE_OPENAI_API_KEY"},
	"summarizer.gemini.api_key":         {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"retrieval.singlefile.path":         {"SINGLEFILE_PATH"},
	"retrieval.singlefile.cookies_file": {"SINGLEFILE_COOKIES_FILE"},
	"history.dsn":                       {"DATABASE_URL"},
	"notifier.pubsub.project_id":        {"GOOGLE_CLOUD_PROJECT"},
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvAliases(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func bindEnvAliases(v *viper.Viper) error {
	for key, aliases := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := append([]string{key, prefixed}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("docs", []map[string]string{})
	v.SetDefault("num_days", 14)
	v.SetDefault("trim_len", 20000)
	v.SetDefault("notify_channel", "")
	v.SetDefault("prompt", "")
	v.SetDefault("concurrency", 0)
	v.SetDefault("timezone", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("retrieval.strategies", []string{"stealth", "direct", "chromedp", "singlefile"})
	v.SetDefault("retrieval.user_agent", DefaultUserAgent)
	v.SetDefault("retrieval.accept_language", "en-US,en;q=0.9")
	v.SetDefault("retrieval.http_timeout", 30*time.Second)
	v.SetDefault("retrieval.main_content_only", false)
	v.SetDefault("retrieval.domain_qps", 0)
	v.SetDefault("retrieval.headless.headless", true)
	v.SetDefault("retrieval.headless.timeout", 30*time.Second)
	v.SetDefault("retrieval.headless.idle_timeout", 10*time.Second)
	v.SetDefault("retrieval.headless.max_parallel", 2)
	v.SetDefault("retrieval.rod.headless", true)
	v.SetDefault("retrieval.rod.timeout", 30*time.Second)
	v.SetDefault("retrieval.rod.idle_timeout", 10*time.Second)
	v.SetDefault("retrieval.rod.bin", "")
	v.SetDefault("retrieval.rod.control_url", "")
	v.SetDefault("retrieval.singlefile.path", "single-file")
	v.SetDefault("retrieval.singlefile.cookies_file", "")
	v.SetDefault("retrieval.singlefile.timeout", 60*time.Second)
	v.SetDefault("retrieval.singlefile.headless", true)
	v.SetDefault("summarizer.provider", ProviderOpenAI)
	v.SetDefault("summarizer.openai.api_key", "")
	v.SetDefault("summarizer.openai.base_url", "")
	v.SetDefault("summarizer.openai.azure_api_key", "")
	v.SetDefault("summarizer.openai.model", "gpt-4o-mini")
	v.SetDefault("summarizer.openai.temperature", 0)
	v.SetDefault("summarizer.openai.timeout", 120*time.Second)
	v.SetDefault("summarizer.gemini.api_key", "")
	v.SetDefault("summarizer.gemini.base_url", "")
	v.SetDefault("summarizer.gemini.model", "gemini-2.0-flash")
	v.SetDefault("summarizer.gemini.temperature", 0)
	v.SetDefault("summarizer.gemini.timeout", 120*time.Second)
	v.SetDefault("seen.redis_url", "")
	v.SetDefault("seen.ttl", 0)
	v.SetDefault("notifier.slack.token", "")
	v.SetDefault("notifier.slack.channel", "")
	v.SetDefault("notifier.slack.api_url", "")
	v.SetDefault("notifier.pubsub.project_id", "")
	v.SetDefault("notifier.pubsub.topic", "")
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.local.base_dir", "data/snapshots")
	v.SetDefault("archive.gcs.bucket", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "changelog_runs")
	v.SetDefault("history.max_conns", 4)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("schedule.interval", time.Duration(0))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Docs))
	for i, doc := range c.Docs {
		if strings.TrimSpace(doc.Name) == "" {
			return fmt.Errorf("docs[%d].name is required", i)
		}
		u, err := url.Parse(doc.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("docs[%d].url must be an absolute http(s) URL", i)
		}
		if _, dup := seen[doc.Name]; dup {
			return fmt.Errorf("docs[%d].name %q is duplicated", i, doc.Name)
		}
		seen[doc.Name] = struct{}{}
	}
	if c.NumDays < 0 {
		return fmt.Errorf("num_days must be >= 0")
	}
	if c.TrimLen < 0 {
		return fmt.Errorf("trim_len must be >= 0")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if len(c.Retrieval.Strategies) == 0 {
		return fmt.Errorf("retrieval.strategies must not be empty")
	}
	if c.Retrieval.HTTPTimeout <= 0 {
		return fmt.Errorf("retrieval.http_timeout must be > 0")
	}
	if c.Retrieval.DomainQPS < 0 {
		return fmt.Errorf("retrieval.domain_qps must be >= 0")
	}
	if c.Retrieval.Headless.MaxParallel <= 0 {
		return fmt.Errorf("retrieval.headless.max_parallel must be > 0")
	}
	switch c.Summarizer.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("summarizer.provider must be %q or %q", ProviderOpenAI, ProviderGemini)
	}
	switch c.Archive.Provider {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.provider must be one of none, memory, local, gcs")
	}
	if (c.Notifier.PubSub.ProjectID == "") != (c.Notifier.PubSub.Topic == "") {
		return fmt.Errorf("notifier.pubsub.project_id and notifier.pubsub.topic must be set together")
	}
	if c.Seen.TTL < 0 {
		return fmt.Errorf("seen.ttl must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Schedule.Interval < 0 {
		return fmt.Errorf("schedule.interval must be >= 0")
	}
	return nil
}

// SlackChannel returns notify_channel when set, else notifier.slack.channel.
func (c Config) SlackChannel() string {
	if c.NotifyChannel != "" {
		return c.NotifyChannel
	}
	return c.Notifier.Slack.Channel
}
