// Package command runs external tools (GRASS modules, GDAL utilities).
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes one invocation.
type Cmd struct {
	Name  string
	Args  []string
	Stdin io.Reader
	// Env is appended to the current process environment.
	Env []string
}

// String renders the command line for logs.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes commands and returns their standard output.
type Runner interface {
	Run(ctx context.Context, c Cmd) (string, error)
}

// ExitError is a command that failed to run or exited non-zero.
type ExitError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code, or -1 if it did not exit.
func (e *ExitError) ExitCode() int {
	var ee *exec.ExitError
	if errors.As(e.Err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Exec runs commands as subprocesses. Prefix is prepended to every
// command, e.g. ["grass", "/data/loc/PERMANENT", "--exec"].
type Exec struct {
	Prefix  []string
	Verbose bool
}

// Run implements Runner.
func (x *Exec) Run(ctx context.Context, c Cmd) (string, error) {
	argv := append(append([]string{}, x.Prefix...), c.Name)
	argv = append(argv, c.Args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var so, se bytes.Buffer
	cmd.Stdout = &so
	cmd.Stderr = &se
	cmd.Stdin = c.Stdin
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	if x.Verbose {
		log.Printf("Run cmd: %q", strings.Join(argv, " "))
	}
	if err := cmd.Run(); err != nil {
		return so.String(), &ExitError{Cmd: c.String(), Stderr: se.String(), Err: err}
	}
	return so.String(), nil
}

// ParseKeyValue parses "key=value" lines as printed by GRASS modules in
// shell style (-g). Values may be single quoted.
func ParseKeyValue(out string) map[string]string {
	kv := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
			value = value[1 : len(value)-1]
		}
		kv[strings.TrimSpace(key)] = value
	}
	return kv
}
