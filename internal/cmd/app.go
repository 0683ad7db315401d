package cmd

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/bnema/transcriber/config"
	s3archive "github.com/bnema/transcriber/internal/adapter/archive/s3"
	"github.com/bnema/transcriber/internal/adapter/converter/ffmpeg"
	"github.com/bnema/transcriber/internal/adapter/fetcher/ytdlp"
	"github.com/bnema/transcriber/internal/adapter/openai"
	"github.com/bnema/transcriber/internal/adapter/recognizer/whispercpp"
	"github.com/bnema/transcriber/internal/adapter/storage/jsonfile"
	"github.com/bnema/transcriber/internal/adapter/storage/memory"
	redisstore "github.com/bnema/transcriber/internal/adapter/storage/redis"
	sqlitestore "github.com/bnema/transcriber/internal/adapter/storage/sqlite"
	"github.com/bnema/transcriber/internal/adapter/webhook"
	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/command"
	"github.com/bnema/transcriber/internal/infrastructure/logger"
	"github.com/bnema/transcriber/internal/port"
	"github.com/bnema/transcriber/internal/service"
)

// openStore returns the configured job store and a func releasing it.
func openStore(cfg *config.Config) (port.JobStore, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewStore(), noop, nil
	case config.BackendJSONFile:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := jsonfile.NewStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := sqlitestore.NewStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendRedis:
		s, err := redisstore.NewStore(redisstore.Options{
			Addr:      cfg.Store.RedisAddr,
			Prefix:    cfg.Store.RedisPrefix,
			Retention: cfg.Store.Retention,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func buildStages(cfg *config.Config) (service.Stages, error) {
	runner := command.ExecRunner{}

	var recognizer port.Recognizer
	switch cfg.Recognizer.Backend {
	case config.RecognizerOpenAI:
		r, err := openai.NewRecognizer(openai.Options{
			BaseURL:  cfg.Recognizer.APIURL,
			APIKey:   cfg.Recognizer.APIKey,
			Model:    cfg.Recognizer.APIModel,
			Language: cfg.Recognizer.Language,
			Timeout:  cfg.Recognizer.APITimeout,
		}, nil)
		if err != nil {
			return service.Stages{}, fmt.Errorf("recognizer: %w", err)
		}
		recognizer = r
	default:
		r, err := whispercpp.NewRecognizer(whispercpp.Options{
			Binary:   cfg.Recognizer.WhisperBinary,
			Model:    cfg.Recognizer.Model,
			Language: cfg.Recognizer.Language,
			Threads:  cfg.Recognizer.Threads,
		}, runner)
		if err != nil {
			return service.Stages{}, fmt.Errorf("recognizer: %w", err)
		}
		recognizer = r
	}

	stages := service.Stages{
		Fetcher: ytdlp.NewFetcher(ytdlp.Options{
			Binary:      cfg.Fetcher.Binary,
			CookiesFile: cfg.Fetcher.CookiesFile,
			Retries:     cfg.Fetcher.Retries,
		}, runner),
		Transcoder: ffmpeg.NewConverter(cfg.Converter.FFmpeg, runner),
		Recognizer: recognizer,
	}

	if cfg.Summary.APIURL != "" {
		s, err := openai.NewSummarizer(openai.SummarizerOptions{
			BaseURL: cfg.Summary.APIURL,
			APIKey:  cfg.Summary.APIKey,
			Model:   cfg.Summary.Model,
			Prompt:  cfg.Summary.Prompt,
			Timeout: cfg.Summary.Timeout,
		}, nil)
		if err != nil {
			return service.Stages{}, fmt.Errorf("summarizer: %w", err)
		}
		stages.Summarizer = s
	}
	return stages, nil
}

func buildHooks(ctx context.Context, cfg *config.Config) ([]port.ResultHook, error) {
	var hooks []port.ResultHook
	if cfg.Hooks.WebhookURL != "" {
		wh, err := webhook.New(cfg.Hooks.WebhookURL, nil)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, wh)
	}
	if cfg.Hooks.S3Bucket != "" {
		archive, err := s3archive.New(ctx, s3archive.Config{
			Bucket:          cfg.Hooks.S3Bucket,
			Prefix:          cfg.Hooks.S3Prefix,
			Region:          cfg.Hooks.S3Region,
			Endpoint:        cfg.Hooks.S3Endpoint,
			AccessKeyID:     cfg.Hooks.S3AccessKeyID,
			SecretAccessKey: cfg.Hooks.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, archive)
	}
	return hooks, nil
}

// newOrchestrator wires the pipeline around store. The returned bus feeds
// the progress notifier.
func newOrchestrator(ctx context.Context, cfg *config.Config, store port.JobStore) (*service.Orchestrator, *service.EventBus, error) {
	stages, err := buildStages(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create work dir: %w", err)
	}

	bus := service.NewEventBus()
	pool := service.NewWorkerPool(cfg.Pipeline.Workers)
	orch := service.NewOrchestrator(store, stages, pool, bus, service.Options{
		WorkDir:        cfg.WorkDir,
		DefaultQuality: cfg.Pipeline.Quality,
		MaxDuration:    cfg.Pipeline.MaxDuration,
		JobTimeout:     cfg.Pipeline.JobTimeout,
		AllowedHosts:   cfg.Pipeline.AllowedHosts,
		LeaseTTL:       cfg.Pipeline.LeaseTTL,
		AudioFormat: domain.AudioFormat{
			SampleRate: cfg.Pipeline.SampleRate,
			Channels:   cfg.Pipeline.Channels,
			Codec:      domain.DefaultAudioCodec,
		},
	})

	hooks, err := buildHooks(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range hooks {
		orch.AddHook(h)
		logger.L().Info("result hook enabled", zap.String("hook", h.Name()))
	}
	return orch, bus, nil
}
