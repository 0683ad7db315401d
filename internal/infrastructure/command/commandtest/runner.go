// Package commandtest provides a scripted command.Runner for adapter tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/bnema/transcriber/internal/infrastructure/command"
)

type Call struct {
	Name string
	Args []string
}

// Line renders the call roughly as a shell would show it.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner records every call and answers with Fn. A nil Fn succeeds with
// empty output.
type Runner struct {
	Fn func(ctx context.Context, name string, args []string) (command.Result, error)

	mu    sync.Mutex
	calls []Call
}

func (r *Runner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()
	if r.Fn == nil {
		return command.Result{}, nil
	}
	return r.Fn(ctx, name, args)
}

func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// ArgAfter returns the argument following flag, or "" when absent.
func ArgAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

var _ command.Runner = (*Runner)(nil)
