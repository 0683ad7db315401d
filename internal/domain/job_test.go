package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewJob("https://youtube.com/watch?v=abc123", 360, now)
	b := NewJob("https://youtube.com/watch?v=abc123", 360, now)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "identical submissions must get distinct ids")
	assert.Equal(t, JobStateQueued, a.State)
	assert.Equal(t, MessageQueued, a.Message)
	assert.Nil(t, a.Result)
	assert.Nil(t, a.ErrorDetail)
	assert.Equal(t, now, a.CreatedAt)
}

func TestJobState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobState
		to   JobState
		want bool
	}{
		{JobStateQueued, JobStateFetching, true},
		{JobStateQueued, JobStateConverting, false},
		{JobStateQueued, JobStateFailed, true},
		{JobStateFetching, JobStateConverting, true},
		{JobStateFetching, JobStateQueued, false},
		{JobStateConverting, JobStateTranscribing, true},
		{JobStateConverting, JobStateCompleted, false},
		{JobStateTranscribing, JobStateCompleted, true},
		{JobStateTranscribing, JobStateFailed, true},
		{JobStateCompleted, JobStateFailed, false},
		{JobStateFailed, JobStateQueued, false},
		{JobState("bogus"), JobStateFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobState_SeqStrictlyIncreasesAlongPipeline(t *testing.T) {
	order := []JobState{JobStateQueued, JobStateFetching, JobStateConverting, JobStateTranscribing, JobStateCompleted}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Seq(), order[i-1].Seq())
	}
	assert.Greater(t, JobStateFailed.Seq(), JobStateTranscribing.Seq())
	assert.Zero(t, JobState("nope").Seq())
}

func TestJob_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)

	t.Run("forward transition updates message and timestamp", func(t *testing.T) {
		j := NewJob("u", 360, now)
		require.NoError(t, j.Apply(Transition(JobStateFetching, "downloading video"), later))
		assert.Equal(t, JobStateFetching, j.State)
		assert.Equal(t, "downloading video", j.Message)
		assert.Equal(t, later, j.UpdatedAt)
		assert.Equal(t, now, j.CreatedAt)
	})

	t.Run("message only update keeps state", func(t *testing.T) {
		j := NewJob("u", 360, now)
		require.NoError(t, j.Apply(Progress("checking source"), later))
		assert.Equal(t, JobStateQueued, j.State)
		assert.Equal(t, "checking source", j.Message)
	})

	t.Run("skipping a state is rejected", func(t *testing.T) {
		j := NewJob("u", 360, now)
		err := j.Apply(Transition(JobStateTranscribing, "x"), later)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, JobStateQueued, j.State)
	})

	t.Run("regression is rejected", func(t *testing.T) {
		j := NewJob("u", 360, now)
		require.NoError(t, j.Apply(Transition(JobStateFetching, "f"), later))
		err := j.Apply(Transition(JobStateQueued, "q"), later)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("completion sets result and not error", func(t *testing.T) {
		j := NewJob("u", 360, now)
		for _, s := range []JobState{JobStateFetching, JobStateConverting, JobStateTranscribing} {
			require.NoError(t, j.Apply(Transition(s, string(s)), later))
		}
		require.NoError(t, j.Apply(Complete("", "done"), later))
		require.NotNil(t, j.Result)
		assert.Equal(t, "", *j.Result)
		assert.Nil(t, j.ErrorDetail)
		assert.Empty(t, j.ErrorKind)
	})

	t.Run("completion without result is rejected", func(t *testing.T) {
		j := NewJob("u", 360, now)
		for _, s := range []JobState{JobStateFetching, JobStateConverting, JobStateTranscribing} {
			require.NoError(t, j.Apply(Transition(s, string(s)), later))
		}
		err := j.Apply(Transition(JobStateCompleted, "done"), later)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("failure straight from queued", func(t *testing.T) {
		j := NewJob("u", 360, now)
		require.NoError(t, j.Apply(Fail(ErrorKindDurationExceeded, "too long"), later))
		assert.Equal(t, JobStateFailed, j.State)
		assert.Equal(t, ErrorKindDurationExceeded, j.ErrorKind)
		require.NotNil(t, j.ErrorDetail)
		assert.Equal(t, "too long", *j.ErrorDetail)
		assert.Nil(t, j.Result)
	})

	t.Run("result outside completion is rejected", func(t *testing.T) {
		j := NewJob("u", 360, now)
		text := "early"
		err := j.Apply(JobUpdate{Result: &text}, later)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Nil(t, j.Result)
	})

	t.Run("summary rides along with the result", func(t *testing.T) {
		j := NewJob("u", 360, now)
		for _, s := range []JobState{JobStateFetching, JobStateConverting, JobStateTranscribing} {
			require.NoError(t, j.Apply(Transition(s, string(s)), later))
		}
		require.NoError(t, j.Apply(Complete("long text", "done").WithSummary("short"), later))
		require.NotNil(t, j.Summary)
		assert.Equal(t, "short", *j.Summary)
	})

	t.Run("summary without result is rejected", func(t *testing.T) {
		j := NewJob("u", 360, now)
		summary := "short"
		err := j.Apply(JobUpdate{Summary: &summary}, later)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Nil(t, j.Summary)
	})

	t.Run("terminal jobs are frozen", func(t *testing.T) {
		j := NewJob("u", 360, now)
		require.NoError(t, j.Apply(Fail(ErrorKindFetch, "boom"), later))
		before := *j.Clone()

		err := j.Apply(Progress("again"), later.Add(time.Hour))
		assert.True(t, errors.Is(err, ErrJobTerminal))
		assert.Equal(t, before, *j)
	})
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := NewJob("u", 360, time.Now())
	detail := "x"
	summary := "s"
	j.ErrorDetail = &detail
	j.Summary = &summary

	c := j.Clone()
	*c.ErrorDetail = "y"
	*c.Summary = "t"

	assert.Equal(t, "x", *j.ErrorDetail)
	assert.Equal(t, "s", *j.Summary)
}
