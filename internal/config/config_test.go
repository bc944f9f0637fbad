package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
)

const validYAML = `
topic: Computer Science
categories:
  - Machine Learning
  - cs.CL
categoryFilterEnabled: true
lookbackDays: 7
threshold: 6.5
interest:
  preferences: |
    1. Retrieval-augmented generation
    2. Evaluation of language models
  guidance: Exclude pure vision papers.
chatgpt:
  apiKey: sk-test
scoring:
  concurrency: 2
  requestTimeout: 20s
run:
  timeout: 10m
`

func TestParseResolvesProfile(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	profile := cfg.Profile()
	assert.Equal(t, "Computer Science", profile.Topic)
	assert.Equal(t, []string{"cs.LG", "cs.CL"}, profile.Categories)
	assert.True(t, profile.FilterCategories)
	assert.InDelta(t, 6.5, profile.Threshold, 1e-9)
	assert.Contains(t, profile.Preferences, "Retrieval-augmented generation")
	assert.Equal(t, "Exclude pure vision papers.", profile.Guidance)

	assert.Equal(t, 2, cfg.Scoring.Concurrency)
	assert.Equal(t, 3, cfg.Scoring.MaxAttempts, "defaults survive partial files")
	assert.Equal(t, 20*time.Second, cfg.Scoring.RequestTimeout)
	assert.Equal(t, SourceArxivList, cfg.Source.Kind)
}

func validConfig(t *testing.T) Config {
	t.Helper()

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	return cfg
}

func TestValidateRejectsInvalidProfiles(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"bare physics":       func(c *Config) { c.Topic = "Physics" },
		"missing topic":      func(c *Config) { c.Topic = "" },
		"unknown category":   func(c *Config) { c.Categories = []string{"Robotics", "Genomics"} },
		"threshold too high": func(c *Config) { c.Threshold = 11 },
		"zero lookback":      func(c *Config) { c.LookbackDays = 0 },
		"empty allow-list":   func(c *Config) { c.Categories = nil },
		"empty interest":     func(c *Config) { c.Interest = InterestConfig{} },
		"timeout ordering":   func(c *Config) { c.Scoring.RequestTimeout = 20 * time.Minute },
		"unknown source":     func(c *Config) { c.Source.Kind = "carrier-pigeon" },
		"unknown backend":    func(c *Config) { c.Scoring.Backend = "oracle" },
		"zero concurrency":   func(c *Config) { c.Scoring.Concurrency = 0 },
		"missing api key":    func(c *Config) { c.ChatGPT.APIKey = "" },
		"ml without url":     func(c *Config) { c.Scoring.Backend = BackendML },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig(t)
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestParseRequiresProfileSettings(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
topic: Computer Science
categories: [cs.LG]
interest:
  preferences: Graph neural networks
chatgpt:
  apiKey: sk-test
`))
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorContains(t, err, "lookbackDays is required")
	assert.ErrorContains(t, err, "threshold is required")
	assert.ErrorContains(t, err, "categoryFilterEnabled is required")
}

func TestParseAcceptsExplicitZeroThreshold(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
topic: Computer Science
categoryFilterEnabled: false
lookbackDays: 1
threshold: 0
interest:
  preferences: Graph neural networks
chatgpt:
  apiKey: sk-test
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Threshold)
	assert.False(t, cfg.FilterEnabled)
}

func TestLoadWithoutFileReportsMissingSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(configPathEnv, "")

	_, err := Load("")
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorContains(t, err, "threshold is required")
}

func TestAllowListOptionalWhenFilterDisabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.FilterEnabled = false
	cfg.Categories = nil
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Profile().FilterCategories)
	assert.Empty(t, cfg.Profile().Categories)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("topic: [unterminated"))
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	t.Setenv(chatGPTAPIKeyEnv, "sk-from-env")
	t.Setenv(toEmailEnv, "reader@example.org")
	t.Setenv(fromEmailEnv, "digest@example.org")
	t.Setenv(sendGridKeyEnv, "sg-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.ChatGPT.APIKey)
	assert.True(t, cfg.Notifications.Email.Enabled())
	assert.Equal(t, "reader@example.org", cfg.Notifications.Email.To)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
