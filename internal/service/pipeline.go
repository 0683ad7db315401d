package service

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/logger"
)

const (
	MessageChecking     = "checking source"
	MessageFetching     = "downloading video"
	MessageConverting   = "converting audio"
	MessageTranscribing = "transcribing audio"
	MessageSummarizing  = "summarizing transcript"
	MessageCompleted    = "transcription complete"
)

// runPipeline drives one job through fetch, convert and transcribe. It never
// writes the terminal state itself: it returns the terminal update together
// with the workspace to clean up first.
func (o *Orchestrator) runPipeline(ctx context.Context, job *domain.Job) (ws *workspace, final domain.JobUpdate) {
	stage := domain.JobStateQueued
	log := logger.L().With(zap.String("job_id", job.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic",
				zap.String("stage", string(stage)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			final = domain.Fail(domain.ErrorKindInternal, fmt.Sprintf("panic during %s: %v", stage, r))
		}
	}()

	fail := func(err error) domain.JobUpdate {
		se := domain.ClassifyStageError(stage, err)
		if ctx.Err() != nil {
			se = &domain.StageError{Kind: domain.ErrorKindCanceled, Stage: stage, Err: context.Cause(ctx)}
		}
		log.Info("stage failed",
			zap.String("stage", string(se.Stage)),
			zap.String("error_kind", string(se.Kind)),
			zap.Error(err),
		)
		return domain.Fail(se.Kind, se.Err.Error())
	}

	// advance persists the transition into next before the stage runs.
	advance := func(next domain.JobState, message string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.update(ctx, job.ID, domain.Transition(next, message)); err != nil {
			return fmt.Errorf("record %s: %w", next, err)
		}
		stage = next
		log.Debug("stage started", zap.String("stage", string(next)))
		return nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	if o.opts.MaxDuration > 0 {
		if err := o.update(ctx, job.ID, domain.Progress(MessageChecking)); err != nil {
			return nil, internalFailure(ctx, err)
		}
		duration, err := o.stages.Fetcher.Probe(ctx, job.SourceURL)
		if err != nil {
			return nil, fail(err)
		}
		if duration > o.opts.MaxDuration {
			return nil, fail(fmt.Errorf("%w: %s is longer than the %s limit",
				domain.ErrDurationExceeded, duration, o.opts.MaxDuration))
		}
	}

	ws, err := newWorkspace(o.opts.WorkDir, job.ID)
	if err != nil {
		return nil, fail(err)
	}

	if err := advance(domain.JobStateFetching, MessageFetching); err != nil {
		return ws, internalFailure(ctx, err)
	}
	mediaPath, err := o.stages.Fetcher.Fetch(ctx, job.SourceURL, job.Quality, ws.Dir())
	ws.Track(mediaPath)
	if err != nil {
		return ws, fail(err)
	}

	if err := advance(domain.JobStateConverting, MessageConverting); err != nil {
		return ws, internalFailure(ctx, err)
	}
	audioPath, err := o.stages.Transcoder.Transcode(ctx, mediaPath, o.opts.AudioFormat, ws.Dir())
	ws.Track(audioPath)
	if err != nil {
		return ws, fail(err)
	}

	if err := advance(domain.JobStateTranscribing, MessageTranscribing); err != nil {
		return ws, internalFailure(ctx, err)
	}
	text, err := o.stages.Recognizer.Transcribe(ctx, audioPath)
	if err != nil {
		return ws, fail(err)
	}

	transcript := domain.NormalizeTranscript(text)
	done := domain.Complete(transcript, MessageCompleted)
	if o.stages.Summarizer == nil || transcript == "" {
		return ws, done
	}

	if err := o.update(ctx, job.ID, domain.Progress(MessageSummarizing)); err != nil {
		return ws, internalFailure(ctx, err)
	}
	summary, err := o.stages.Summarizer.Summarize(ctx, transcript)
	if err != nil {
		if ctx.Err() != nil {
			return ws, fail(err)
		}
		// The transcript stands on its own.
		log.Warn("summary failed", zap.Error(err))
		return ws, done
	}
	return ws, done.WithSummary(summary)
}

// internalFailure reports a failure of the orchestrator itself, such as the
// store rejecting a transition. Cancellation still wins.
func internalFailure(ctx context.Context, err error) domain.JobUpdate {
	if ctx.Err() != nil {
		return domain.Fail(domain.ErrorKindCanceled, context.Cause(ctx).Error())
	}
	return domain.Fail(domain.ErrorKindInternal, err.Error())
}
