// Package config loads service settings from defaults, an optional YAML
// file and TRANSCRIBER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TRANSCRIBER"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DataDir    string           `mapstructure:"data_dir"`
	WorkDir    string           `mapstructure:"work_dir"`
	Store      StoreConfig      `mapstructure:"store"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Converter  ConverterConfig  `mapstructure:"converter"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Summary    SummaryConfig    `mapstructure:"summary"`
	Hooks      HooksConfig      `mapstructure:"hooks"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StoreConfig struct {
	Backend     string        `mapstructure:"backend"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	Retention   time.Duration `mapstructure:"retention"`
}

type PipelineConfig struct {
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	Quality      int           `mapstructure:"quality"`
	AllowedHosts []string      `mapstructure:"allowed_hosts"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	SampleRate   int           `mapstructure:"sample_rate"`
	Channels     int           `mapstructure:"channels"`
	// RecoverOnStart fails jobs left active by a previous run. Jobs on a
	// shared store are skipped while another instance holds their lease.
	RecoverOnStart bool          `mapstructure:"recover_on_start"`
	LeaseTTL       time.Duration `mapstructure:"lease_ttl"`
}

type FetcherConfig struct {
	Binary      string `mapstructure:"binary"`
	CookiesFile string `mapstructure:"cookies_file"`
	Retries     int    `mapstructure:"retries"`
}

type ConverterConfig struct {
	FFmpeg string `mapstructure:"ffmpeg"`
}

type RecognizerConfig struct {
	Backend       string        `mapstructure:"backend"`
	WhisperBinary string        `mapstructure:"whisper_binary"`
	Model         string        `mapstructure:"model"`
	Language      string        `mapstructure:"language"`
	Threads       int           `mapstructure:"threads"`
	APIURL        string        `mapstructure:"api_url"`
	APIKey        string        `mapstructure:"api_key"`
	APIModel      string        `mapstructure:"api_model"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
}

// SummaryConfig enables transcript summaries through an OpenAI-compatible
// chat endpoint. An empty APIURL disables them.
type SummaryConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Prompt  string        `mapstructure:"prompt"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HooksConfig struct {
	WebhookURL        string `mapstructure:"webhook_url"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Prefix          string `mapstructure:"s3_prefix"`
	S3Region          string `mapstructure:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
}

type HTTPConfig struct {
	SubmitRate  float64 `mapstructure:"submit_rate"`
	SubmitBurst int     `mapstructure:"submit_burst"`
	TrustProxy  bool    `mapstructure:"trust_proxy"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendJSONFile = "jsonfile"
)

// Recognizer backends.
const (
	RecognizerWhisperCpp = "whispercpp"
	RecognizerOpenAI     = "openai"
)

// SetDefaults registers every key so environment variables can override
// keys that no config file mentions.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("data_dir", "./data")
	v.SetDefault("work_dir", "")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_prefix", "transcriber")
	v.SetDefault("store.retention", "0s")

	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.poll_interval", "5s")
	v.SetDefault("pipeline.max_duration", "600s")
	v.SetDefault("pipeline.quality", 360)
	v.SetDefault("pipeline.allowed_hosts", []string{})
	v.SetDefault("pipeline.job_timeout", "0s")
	v.SetDefault("pipeline.sample_rate", 16000)
	v.SetDefault("pipeline.channels", 1)
	v.SetDefault("pipeline.recover_on_start", true)
	v.SetDefault("pipeline.lease_ttl", "30s")

	v.SetDefault("fetcher.binary", "yt-dlp")
	v.SetDefault("fetcher.cookies_file", "")
	v.SetDefault("fetcher.retries", 10)

	v.SetDefault("converter.ffmpeg", "ffmpeg")

	v.SetDefault("recognizer.backend", RecognizerWhisperCpp)
	v.SetDefault("recognizer.whisper_binary", "whisper-cli")
	v.SetDefault("recognizer.model", "")
	v.SetDefault("recognizer.language", "auto")
	v.SetDefault("recognizer.threads", 0)
	v.SetDefault("recognizer.api_url", "")
	v.SetDefault("recognizer.api_key", "")
	v.SetDefault("recognizer.api_model", "whisper-1")
	v.SetDefault("recognizer.api_timeout", "10m")

	v.SetDefault("summary.api_url", "")
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.model", "gpt-4o-mini")
	v.SetDefault("summary.prompt", "Summarize the following text:")
	v.SetDefault("summary.timeout", "2m")

	v.SetDefault("hooks.webhook_url", "")
	v.SetDefault("hooks.s3_bucket", "")
	v.SetDefault("hooks.s3_prefix", "transcripts")
	v.SetDefault("hooks.s3_region", "")
	v.SetDefault("hooks.s3_endpoint", "")
	v.SetDefault("hooks.s3_access_key_id", "")
	v.SetDefault("hooks.s3_secret_access_key", "")

	v.SetDefault("http.submit_rate", 1.0)
	v.SetDefault("http.submit_burst", 5)
	v.SetDefault("http.trust_proxy", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load merges defaults, the optional config file and the environment into
// a validated Config. An empty file skips the file layer.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.DataDir, "work")
	}
	cfg.Pipeline.AllowedHosts = splitHosts(cfg.Pipeline.AllowedHosts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitHosts accepts both a YAML list and a comma separated env value.
func splitHosts(in []string) []string {
	var out []string
	for _, item := range in {
		for _, h := range strings.Split(item, ",") {
			if h = strings.TrimSpace(h); h != "" {
				out = append(out, h)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendJSONFile:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.Retention < 0 {
		errs = append(errs, errors.New("store.retention must not be negative"))
	}

	p := c.Pipeline
	if p.Workers < 0 {
		errs = append(errs, errors.New("pipeline.workers must not be negative"))
	}
	if p.PollInterval <= 0 {
		errs = append(errs, errors.New("pipeline.poll_interval must be positive"))
	}
	if p.MaxDuration < 0 || p.JobTimeout < 0 || p.LeaseTTL < 0 {
		errs = append(errs, errors.New("pipeline durations must not be negative"))
	}
	if p.Quality <= 0 {
		errs = append(errs, errors.New("pipeline.quality must be positive"))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, errors.New("pipeline.sample_rate must be positive"))
	}
	if p.Channels != 1 && p.Channels != 2 {
		errs = append(errs, fmt.Errorf("pipeline.channels must be 1 or 2, got %d", p.Channels))
	}

	switch c.Recognizer.Backend {
	case RecognizerWhisperCpp, RecognizerOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown recognizer.backend %q", c.Recognizer.Backend))
	}

	if c.Summary.APIURL != "" && c.Summary.Model == "" {
		errs = append(errs, errors.New("summary.model is required when summary.api_url is set"))
	}

	if c.HTTP.SubmitRate < 0 || c.HTTP.SubmitBurst < 0 {
		errs = append(errs, errors.New("http submit limits must not be negative"))
	}

	return errors.Join(errs...)
}
