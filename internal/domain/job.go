package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStateQueued       JobState = "queued"
	JobStateFetching     JobState = "fetching"
	JobStateConverting   JobState = "converting"
	JobStateTranscribing JobState = "transcribing"
	JobStateCompleted    JobState = "completed"
	JobStateFailed       JobState = "failed"
)

var stateSeq = map[JobState]int{
	JobStateQueued:       1,
	JobStateFetching:     2,
	JobStateConverting:   3,
	JobStateTranscribing: 4,
	JobStateCompleted:    5,
	JobStateFailed:       6,
}

// Seq returns the position of the state in the lifecycle, or 0 for unknown states.
func (s JobState) Seq() int {
	return stateSeq[s]
}

func (s JobState) Valid() bool {
	return s.Seq() > 0
}

func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// CanTransitionTo reports whether to is the next state in the pipeline, or
// Failed from any non-terminal state.
func (s JobState) CanTransitionTo(to JobState) bool {
	if s.IsTerminal() || !s.Valid() {
		return false
	}
	if to == JobStateFailed {
		return true
	}
	switch s {
	case JobStateQueued:
		return to == JobStateFetching
	case JobStateFetching:
		return to == JobStateConverting
	case JobStateConverting:
		return to == JobStateTranscribing
	case JobStateTranscribing:
		return to == JobStateCompleted
	}
	return false
}

type Job struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url"`
	Quality     int       `json:"quality"`
	State       JobState  `json:"state"`
	Message     string    `json:"message"`
	Result      *string   `json:"result,omitempty"`
	Summary     *string   `json:"summary,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail *string   `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobUpdate is a partial set of fields merged into a Job by Apply.
// Nil fields are left untouched.
type JobUpdate struct {
	State   *JobState
	Message *string
	Result  *string
	// Summary is optional and only accepted alongside Result.
	Summary     *string
	ErrorKind   *ErrorKind
	ErrorDetail *string
}

const MessageQueued = "queued"

func NewJob(sourceURL string, quality int, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		Quality:   quality,
		State:     JobStateQueued,
		Message:   MessageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// Clone returns a deep copy so callers never share the pointer fields.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.Summary != nil {
		sum := *j.Summary
		c.Summary = &sum
	}
	if j.ErrorDetail != nil {
		d := *j.ErrorDetail
		c.ErrorDetail = &d
	}
	return &c
}

// Apply merges u into the job. It is the only place job invariants are
// enforced, so every store implementation routes updates through it.
func (j *Job) Apply(u JobUpdate, now time.Time) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobTerminal, j.ID, j.State)
	}

	next := j.State
	if u.State != nil && *u.State != j.State {
		if !j.State.CanTransitionTo(*u.State) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, *u.State)
		}
		next = *u.State
	}

	if u.Summary != nil && u.Result == nil {
		return fmt.Errorf("%w: summary requires a result", ErrInvalidTransition)
	}
	if u.Result != nil && next != JobStateCompleted {
		return fmt.Errorf("%w: result requires %s state", ErrInvalidTransition, JobStateCompleted)
	}
	if (u.ErrorDetail != nil || u.ErrorKind != nil) && next != JobStateFailed {
		return fmt.Errorf("%w: error detail requires %s state", ErrInvalidTransition, JobStateFailed)
	}
	if next == JobStateCompleted && u.Result == nil {
		return fmt.Errorf("%w: %s requires a result", ErrInvalidTransition, JobStateCompleted)
	}
	if next == JobStateFailed && u.ErrorDetail == nil {
		return fmt.Errorf("%w: %s requires an error detail", ErrInvalidTransition, JobStateFailed)
	}

	j.State = next
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.Result != nil {
		r := *u.Result
		j.Result = &r
	}
	if u.Summary != nil {
		sum := *u.Summary
		j.Summary = &sum
	}
	if u.ErrorKind != nil {
		j.ErrorKind = *u.ErrorKind
	}
	if u.ErrorDetail != nil {
		d := *u.ErrorDetail
		j.ErrorDetail = &d
		if j.ErrorKind == "" {
			j.ErrorKind = ErrorKindInternal
		}
	}
	j.UpdatedAt = now
	return nil
}

// Transition builds an update moving the job into state with a new message.
func Transition(state JobState, message string) JobUpdate {
	return JobUpdate{State: &state, Message: &message}
}

// Progress builds a message-only update.
func Progress(message string) JobUpdate {
	return JobUpdate{Message: &message}
}

func Complete(result, message string) JobUpdate {
	state := JobStateCompleted
	return JobUpdate{State: &state, Message: &message, Result: &result}
}

// WithSummary attaches a summary of the result to a Complete update.
func (u JobUpdate) WithSummary(summary string) JobUpdate {
	u.Summary = &summary
	return u
}

func Fail(kind ErrorKind, detail string) JobUpdate {
	state := JobStateFailed
	message := "failed: " + detail
	return JobUpdate{State: &state, Message: &message, ErrorKind: &kind, ErrorDetail: &detail}
}
