package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/taxonomy"
)

const (
	defaultTimezone   = "UTC"
	defaultConfigPath = "config.yaml"

	configPathEnv     = "ARXIV_DIGEST_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	mlAPIKeyEnv       = "ML_API_KEY"
	sendGridKeyEnv    = "SENDGRID_API_KEY"
	fromEmailEnv      = "FROM_EMAIL"
	toEmailEnv        = "TO_EMAIL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	cacheDSNEnv       = "LISTING_CACHE_DSN"
	pushgatewayEnv    = "PUSHGATEWAY_URL"
)

// Source kinds.
const (
	SourceArxivList = "arxiv-list"
	SourceArxivAPI  = "arxiv-api"
)

// Scoring backends.
const (
	BackendChatGPT = "chatgpt"
	BackendML      = "ml"
)

// Config holds every setting for a single digest run.
type Config struct {
	Topic         string             `yaml:"topic"`
	Interest      InterestConfig     `yaml:"interest"`
	Categories    []string           `yaml:"categories"`
	FilterEnabled bool               `yaml:"categoryFilterEnabled"`
	LookbackDays  int                `yaml:"lookbackDays"`
	Threshold     float64            `yaml:"threshold"`
	Run           RunConfig          `yaml:"run"`
	Logging       LoggingConfig      `yaml:"logging"`
	Source        SourceConfig       `yaml:"source"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	ML            MLConfig           `yaml:"ml"`
	Output        OutputConfig       `yaml:"output"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`

	resolved []string `yaml:"-"`
	missing  []string `yaml:"-"`
}

// InterestConfig is the free-text part of the profile.
type InterestConfig struct {
	Preferences string `yaml:"preferences"`
	Guidance    string `yaml:"guidance"`
}

// RunConfig bounds the whole batch job.
type RunConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Timezone string        `yaml:"timezone"`
	location *time.Location
}

// Location resolves the run timezone string to a time.Location.
func (r RunConfig) Location() *time.Location {
	if r.location != nil {
		return r.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig selects and tunes the preprint source.
type SourceConfig struct {
	Kind     string        `yaml:"kind"`
	BaseURL  string        `yaml:"baseUrl"`
	APIURL   string        `yaml:"apiUrl"`
	PageSize int           `yaml:"pageSize"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheDSN string        `yaml:"cacheDsn"`
}

// ScoringConfig tunes the judge worker pool.
type ScoringConfig struct {
	Backend           string        `yaml:"backend"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	BatchSize         int           `yaml:"batchSize"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	InitialBackoff    time.Duration `yaml:"initialBackoff"`
	MaxBackoff        time.Duration `yaml:"maxBackoff"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible chat API.
type ChatGPTConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Model        string  `yaml:"model"`
	APIKey       string  `yaml:"apiKey"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Temperature  float64 `yaml:"temperature"`
}

// MLConfig describes the JSON rank service.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// OutputConfig controls the file artifact.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig groups the optional delivery sinks.
type NotificationConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	S3       S3Config       `yaml:"s3"`
}

// EmailConfig wires the SendGrid sink.
type EmailConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Enabled reports whether the email sink has everything it needs.
func (e EmailConfig) Enabled() bool {
	return e.APIKey != "" && e.From != "" && e.To != ""
}

// TelegramConfig wires all data required to send notices.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether the Telegram sink is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// S3Config wires the artifact upload sink.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// Enabled reports whether a bucket is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// MetricsConfig points at an optional Prometheus pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// Load reads YAML configuration over defaults, applies environment overrides and validates.
// An empty path falls back to ARXIV_DIGEST_CONFIG, then config.yaml.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		if v := os.Getenv(configPathEnv); v != "" {
			path, explicit = v, true
		} else {
			path = defaultConfigPath
		}
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(raw, &cfg); err != nil {
			return Config{}, domain.Configuration("parse %s: %v", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg.missing = missingKeys(profileKeys{})
	default:
		return Config{}, domain.Configuration("read %s: %v", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over defaults without touching the environment. Used by tests and tooling.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, domain.Configuration("parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// profileKeys are the profile settings a config file has to state; they have no default.
type profileKeys struct {
	LookbackDays  *int     `yaml:"lookbackDays"`
	Threshold     *float64 `yaml:"threshold"`
	FilterEnabled *bool    `yaml:"categoryFilterEnabled"`
}

func decode(raw []byte, cfg *Config) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	var keys profileKeys
	if err := yaml.Unmarshal(raw, &keys); err != nil {
		return err
	}
	cfg.missing = missingKeys(keys)
	return nil
}

func missingKeys(keys profileKeys) []string {
	var missing []string
	if keys.LookbackDays == nil {
		missing = append(missing, "lookbackDays")
	}
	if keys.Threshold == nil {
		missing = append(missing, "threshold")
	}
	if keys.FilterEnabled == nil {
		missing = append(missing, "categoryFilterEnabled")
	}
	return missing
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(sendGridKeyEnv); v != "" {
		c.Notifications.Email.APIKey = v
	}
	if v := os.Getenv(fromEmailEnv); v != "" {
		c.Notifications.Email.From = v
	}
	if v := os.Getenv(toEmailEnv); v != "" {
		c.Notifications.Email.To = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(cacheDSNEnv); v != "" {
		c.Source.CacheDSN = v
	}
	if v := os.Getenv(pushgatewayEnv); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

// Validate checks every field a run depends on and resolves the category allow-list.
func (c *Config) Validate() error {
	c.resolved = nil

	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for _, key := range c.missing {
		fail("%s is required", key)
	}

	topic, err := taxonomy.Lookup(c.Topic)
	if strings.TrimSpace(c.Topic) == "" {
		fail("topic is required")
	} else if err != nil {
		fail("%v", err)
	}

	if c.LookbackDays < 1 {
		fail("lookbackDays must be at least 1, got %d", c.LookbackDays)
	}
	if c.Threshold < domain.MinScore || c.Threshold > domain.MaxScore {
		fail("threshold must be within [%g, %g], got %g", domain.MinScore, domain.MaxScore, c.Threshold)
	}
	if strings.TrimSpace(c.Interest.Preferences) == "" && strings.TrimSpace(c.Interest.Guidance) == "" {
		fail("interest profile is empty")
	}

	if c.FilterEnabled && len(c.Categories) == 0 {
		fail("categoryFilterEnabled requires a non-empty categories list")
	}
	if err == nil && len(c.Categories) > 0 {
		codes, rErr := topic.Resolve(c.Categories)
		if rErr != nil {
			fail("%v", rErr)
		} else {
			c.resolved = codes
		}
	}

	switch c.Source.Kind {
	case SourceArxivList, SourceArxivAPI:
	default:
		fail("unknown source kind %q", c.Source.Kind)
	}

	switch c.Scoring.Backend {
	case BackendChatGPT:
		if c.ChatGPT.APIKey == "" || c.ChatGPT.Endpoint == "" || c.ChatGPT.Model == "" {
			fail("chatgpt backend needs endpoint, model and apiKey")
		}
	case BackendML:
		if c.ML.InferenceURL == "" {
			fail("ml backend needs inferenceUrl")
		}
	default:
		fail("unknown scoring backend %q", c.Scoring.Backend)
	}

	if c.Scoring.Concurrency < 1 {
		fail("scoring.concurrency must be positive")
	}
	if c.Scoring.MaxAttempts < 1 {
		fail("scoring.maxAttempts must be positive")
	}
	if c.Scoring.BatchSize < 1 {
		fail("scoring.batchSize must be positive")
	}
	if c.Scoring.RequestTimeout <= 0 {
		fail("scoring.requestTimeout must be positive")
	}
	if c.Run.Timeout > 0 && c.Scoring.RequestTimeout >= c.Run.Timeout {
		fail("scoring.requestTimeout (%s) must be shorter than run.timeout (%s)", c.Scoring.RequestTimeout, c.Run.Timeout)
	}

	tz := c.Run.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, lErr := time.LoadLocation(tz)
	if lErr != nil {
		fail("unknown timezone %q", tz)
	} else {
		c.Run.location = loc
	}

	if len(problems) > 0 {
		return domain.Configuration("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Profile returns the immutable interest profile for this run.
// Validate must have succeeded first.
func (c Config) Profile() domain.Profile {
	return domain.Profile{
		Topic:            c.Topic,
		Preferences:      strings.TrimSpace(c.Interest.Preferences),
		Guidance:         strings.TrimSpace(c.Interest.Guidance),
		Categories:       append([]string(nil), c.resolved...),
		FilterCategories: c.FilterEnabled,
		Threshold:        c.Threshold,
	}
}

// Summary is a short, secret-free description for logs.
func (c Config) Summary() []any {
	return []any{
		"topic", c.Topic,
		"categories", strings.Join(c.resolved, ","),
		"filter", strconv.FormatBool(c.FilterEnabled),
		"lookback_days", c.LookbackDays,
		"threshold", c.Threshold,
		"source", c.Source.Kind,
		"backend", c.Scoring.Backend,
	}
}

// Default returns the baseline configuration every file is decoded over.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Run:           RunConfig{Timeout: 30 * time.Minute, Timezone: defaultTimezone, location: tz},
		Logging:       LoggingConfig{Level: "info", Format: "text"},
		Source: SourceConfig{
			Kind:     SourceArxivList,
			BaseURL:  "https://arxiv.org",
			APIURL:   "https://export.arxiv.org/api/query",
			PageSize: 500,
			Timeout:  30 * time.Second,
		},
		Scoring: ScoringConfig{
			Backend:           BackendChatGPT,
			Concurrency:       4,
			RequestsPerMinute: 60,
			MaxAttempts:       3,
			BatchSize:         1,
			RequestTimeout:    60 * time.Second,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "",
		},
		Output: OutputConfig{Path: "digest.html"},
		Notifications: NotificationConfig{
			Email: EmailConfig{Endpoint: "https://api.sendgrid.com"},
		},
		Metrics: MetricsConfig{Job: "arxiv_digest"},
	}
}
