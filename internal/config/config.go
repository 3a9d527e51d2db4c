package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/paramsweep/internal/replicate"
	"github.com/ligustah/paramsweep/internal/sweep"
)

// TokenEnv is the environment variable holding the API credential.
const TokenEnv = "REPLICATE_API_TOKEN"

// Defaults for the sweep itself.
const (
	DefaultPrompt = "A smiling woman walking in London at night"
	DefaultSeed   = 42
	DefaultModel  = "wavespeedai/wan-2.1-t2v-720p"
)

// ErrMissingToken is returned by Validate when no credential is set.
var ErrMissingToken = errors.New("config: " + TokenEnv + " is not set")

// Config defines configuration for the paramsweep CLI.
type Config struct {
	Type         string         `yaml:"type"`
	Prompt       string         `yaml:"prompt"`
	Seed         int64          `yaml:"seed"`
	Model        string         `yaml:"model"`
	Workers      int            `yaml:"workers"`
	Output       string         `yaml:"output"`
	Bucket       string         `yaml:"bucket"`
	APIURL       string         `yaml:"api_url"`
	SkipExisting bool           `yaml:"skip_existing"`
	Progress     bool           `yaml:"progress"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	TaskTimeout  time.Duration  `yaml:"task_timeout"`
	Download     DownloadConfig `yaml:"download"`
	BaseParams   map[string]any `yaml:"base_params"`

	// Token is only read from the environment.
	Token string `yaml:"-"`
}

// DownloadConfig defines how generated videos are fetched.
type DownloadConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Type:         string(sweep.KindGuide),
		Prompt:       DefaultPrompt,
		Seed:         DefaultSeed,
		Model:        DefaultModel,
		Workers:      sweep.DefaultWorkers,
		Output:       ".",
		APIURL:       replicate.DefaultBaseURL,
		PollInterval: time.Second,
		Download: DownloadConfig{
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		BaseParams: sweep.DefaultBaseParams(),
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and an
// optional seed, since 0 is a valid seed.
type yamlConfig struct {
	Type         string             `yaml:"type"`
	Prompt       string             `yaml:"prompt"`
	Seed         *int64             `yaml:"seed"`
	Model        string             `yaml:"model"`
	Workers      int                `yaml:"workers"`
	Output       string             `yaml:"output"`
	Bucket       string             `yaml:"bucket"`
	APIURL       string             `yaml:"api_url"`
	SkipExisting bool               `yaml:"skip_existing"`
	Progress     bool               `yaml:"progress"`
	PollInterval string             `yaml:"poll_interval"`
	TaskTimeout  string             `yaml:"task_timeout"`
	Download     yamlDownloadConfig `yaml:"download"`
	BaseParams   map[string]any     `yaml:"base_params"`
}

type yamlDownloadConfig struct {
	Timeout    string `yaml:"timeout"`
	Retries    int    `yaml:"retries"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file. Values not set in the
// file keep their defaults; base_params entries are layered over the
// default model inputs.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Type != "" {
		cfg.Type = yc.Type
	}
	if yc.Prompt != "" {
		cfg.Prompt = yc.Prompt
	}
	if yc.Seed != nil {
		cfg.Seed = *yc.Seed
	}
	if yc.Model != "" {
		cfg.Model = yc.Model
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.Output != "" {
		cfg.Output = yc.Output
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.APIURL != "" {
		cfg.APIURL = yc.APIURL
	}
	cfg.SkipExisting = yc.SkipExisting
	cfg.Progress = yc.Progress
	if err := parseDuration(yc.PollInterval, "poll_interval", &cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.TaskTimeout, "task_timeout", &cfg.TaskTimeout); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.Download.Timeout, "download.timeout", &cfg.Download.Timeout); err != nil {
		return Config{}, err
	}
	if yc.Download.Retries != 0 {
		cfg.Download.Retries = yc.Download.Retries
	}
	if err := parseDuration(yc.Download.Backoff, "download.backoff", &cfg.Download.Backoff); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.Download.MaxBackoff, "download.max_backoff", &cfg.Download.MaxBackoff); err != nil {
		return Config{}, err
	}
	if len(yc.BaseParams) > 0 {
		maps.Copy(cfg.BaseParams, yc.BaseParams)
	}

	return cfg, nil
}

func parseDuration(s, name string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Settings use the SWEEP_ prefix; the credential is read from TokenEnv.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(TokenEnv); v != "" {
		c.Token = v
	}
	if v := os.Getenv("SWEEP_TYPE"); v != "" {
		c.Type = v
	}
	if v := os.Getenv("SWEEP_PROMPT"); v != "" {
		c.Prompt = v
	}
	if v := os.Getenv("SWEEP_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse SWEEP_SEED: %w", err)
		}
		c.Seed = n
	}
	if v := os.Getenv("SWEEP_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SWEEP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SWEEP_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("SWEEP_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("SWEEP_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("SWEEP_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("SWEEP_SKIP_EXISTING"); v != "" {
		c.SkipExisting = v == "true" || v == "1"
	}
	if v := os.Getenv("SWEEP_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("SWEEP_POLL_INTERVAL"); v != "" {
		if err := parseDuration(v, "SWEEP_POLL_INTERVAL", &c.PollInterval); err != nil {
			return err
		}
	}
	if v := os.Getenv("SWEEP_TASK_TIMEOUT"); v != "" {
		if err := parseDuration(v, "SWEEP_TASK_TIMEOUT", &c.TaskTimeout); err != nil {
			return err
		}
	}
	if v := os.Getenv("SWEEP_DOWNLOAD_TIMEOUT"); v != "" {
		if err := parseDuration(v, "SWEEP_DOWNLOAD_TIMEOUT", &c.Download.Timeout); err != nil {
			return err
		}
	}
	if v := os.Getenv("SWEEP_DOWNLOAD_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SWEEP_DOWNLOAD_RETRIES: %w", err)
		}
		c.Download.Retries = n
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if _, err := sweep.ParseKind(c.Type); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Model == "" {
		return errors.New("config: model is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.Bucket == "" && c.Output == "" {
		return errors.New("config: output or bucket is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll_interval must be positive")
	}
	if c.TaskTimeout < 0 || c.Download.Timeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	if c.Download.Retries < 0 {
		return errors.New("config: download.retries must not be negative")
	}
	return nil
}
