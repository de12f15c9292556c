package speedtest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultArgs selects speedtest-cli's terse three-line output.
var DefaultArgs = []string{"--simple"}

var runCombinedOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandError describes a speedtest invocation that did not exit cleanly.
// ExitCode is -1 when the process could not be started or was killed.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q returned with exit code %d: %v", e.Command, e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Command is an external speedtest tool invocation.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration // 0 = no limit
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Run executes the tool and returns its combined stdout and stderr.
// It blocks until the tool exits.
func (c Command) Run(ctx context.Context) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	out, err := runCombinedOutput(ctx, c.Path, c.Args...)
	if err == nil {
		return string(out), nil
	}

	cmdErr := &CommandError{
		Command:  c.String(),
		ExitCode: -1,
		Output:   string(out),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	return "", cmdErr
}
