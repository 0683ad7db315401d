package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/transcriber/internal/adapter/storage/memory"
	"github.com/bnema/transcriber/internal/service"
)

var runQuality int

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Transcribe one video in the foreground",
	Long: `Run the full pipeline for one URL in this process. Progress goes to
stderr and the transcript to stdout. Ctrl-C cancels the job and removes its
intermediate files.

Examples:
  transcriber run https://www.youtube.com/watch?v=dQw4w9WgXcQ > transcript.txt
  transcriber run --quality 144 https://youtu.be/dQw4w9WgXcQ`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runQuality, "quality", 0, "maximum video height to download (default pipeline.quality)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := memory.NewStore()
	orch, bus, err := newOrchestrator(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = orch.Shutdown(shutdownCtx)
	}()

	id, err := orch.Submit(ctx, args[0], runQuality)
	if err != nil {
		return err
	}

	go func() {
		<-sigCtx.Done()
		if ctx.Err() == nil {
			_ = orch.Cancel(context.Background(), id)
		}
	}()

	notifier := service.NewNotifier(store, bus, time.Second)
	errOut, out := cmd.ErrOrStderr(), cmd.OutOrStdout()
	var last service.Update
	for u := range notifier.Subscribe(ctx, id) {
		if !u.Terminal {
			_, _ = fmt.Fprintf(errOut, "[%s] %s\n", u.State, u.Message)
		}
		last = u
	}

	if !last.Terminal {
		return errors.New("progress stream ended before the job finished")
	}
	if last.Error != nil {
		return fmt.Errorf("job %s failed (%s): %s", id, last.ErrorKind, *last.Error)
	}
	_, _ = fmt.Fprintf(errOut, "[%s] %s\n", last.State, last.Message)
	if last.Result != nil {
		_, _ = fmt.Fprintln(out, *last.Result)
	}
	if last.Summary != nil {
		_, _ = fmt.Fprintf(errOut, "summary: %s\n", *last.Summary)
	}
	return nil
}
