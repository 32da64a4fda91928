package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/scttfrdmn/probav/pkg/command"
)

// Call is a command recorded by FakeRunner.
type Call struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string
}

// Arg returns the value of a key=value argument.
func (c Call) Arg(key string) (string, bool) {
	for _, a := range c.Args {
		if k, v, ok := strings.Cut(a, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// FakeRunner answers commands from canned outputs and records every call.
type FakeRunner struct {
	mu sync.Mutex

	// Outputs maps a command name to its stdout.
	Outputs map[string]string
	// Errors maps a command name to the error it returns.
	Errors map[string]error
	// Hooks run for a command name before it returns, e.g. to create the
	// file a tool would write.
	Hooks map[string]func(Call) error

	Calls []Call
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Outputs: make(map[string]string),
		Errors:  make(map[string]error),
		Hooks:   make(map[string]func(Call) error),
	}
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, c command.Cmd) (string, error) {
	call := Call{Name: c.Name, Args: append([]string(nil), c.Args...), Env: append([]string(nil), c.Env...)}
	if c.Stdin != nil {
		data, err := io.ReadAll(c.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		call.Stdin = string(data)
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	out := f.Outputs[c.Name]
	err := f.Errors[c.Name]
	hook := f.Hooks[c.Name]
	f.mu.Unlock()

	if err != nil {
		return out, err
	}
	if hook != nil {
		if err := hook(call); err != nil {
			return out, err
		}
	}
	return out, nil
}

// CallsTo returns the recorded calls of one command.
func (f *FakeRunner) CallsTo(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
