package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "github.com/bnema/transcriber/internal/adapter/http"
	"github.com/bnema/transcriber/internal/infrastructure/logger"
	"github.com/bnema/transcriber/internal/service"
)

const retentionEvery = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the HTTP service: POST /jobs to submit a video URL, then follow
GET /jobs/{id}/stream (server-sent events) or /jobs/{id}/ws until the
transcript is ready.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "listen host")
	serveCmd.Flags().Int("port", 8000, "listen port")
	serveCmd.Flags().Int("workers", 2, "concurrent pipeline runs (0 = unbounded)")
	_ = v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("pipeline.workers", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	orch, bus, err := newOrchestrator(ctx, cfg, store)
	if err != nil {
		return err
	}

	if cfg.Pipeline.RecoverOnStart {
		if n, err := orch.Recover(ctx); err != nil {
			logger.L().Warn("startup recovery incomplete", zap.Error(err))
		} else if n > 0 {
			logger.L().Info("recovered interrupted jobs", zap.Int("count", n))
		}
	}

	go orch.RunRetention(ctx, cfg.Store.Retention, retentionEvery)

	notifier := service.NewNotifier(store, bus, cfg.Pipeline.PollInterval)
	server := httpadapter.NewServer(orch, notifier, httpadapter.Options{
		DefaultQuality: cfg.Pipeline.Quality,
		SubmitRate:     cfg.HTTP.SubmitRate,
		SubmitBurst:    cfg.HTTP.SubmitBurst,
		TrustProxy:     cfg.HTTP.TrustProxy,
	})
	defer server.Close()

	// Streams hold their request open until the job ends; cancel them when
	// shutdown starts so Shutdown does not wait on them.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelStreams)

	serveErr := make(chan error, 1)
	go func() {
		logger.L().Info("server listening",
			zap.String("addr", httpServer.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.String("recognizer", cfg.Recognizer.Backend),
			zap.String("version", versionInfo.Version),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.L().Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("http shutdown error", zap.Error(err))
	}
	// In-flight jobs finish; jobs still waiting for a worker are failed.
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("pipeline shutdown error", zap.Error(err))
	}

	logger.L().Info("shutdown complete")
	return nil
}
