package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git with the given arguments inside dir and returns the
// combined output. It is injectable so tests can stand in for git.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, dir string, args ...string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, dir string, args ...string) (string, error) {
	return f(ctx, dir, args...)
}

// GitRunner shells out to the git binary on PATH.
type GitRunner struct {
	// Env is appended to the inherited environment.
	Env []string
}

func (r GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// never block on a credential prompt
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.Env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// CommandError describes a failed git invocation with secrets removed.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Git runs one git command through r and converts a failure into a
// *CommandError whose arguments and output have every secret masked.
func Git(ctx context.Context, r Runner, dir string, secrets []string, args ...string) (string, error) {
	out, err := r.Run(ctx, dir, args...)
	if err == nil {
		return out, nil
	}
	masked := make([]string, len(args))
	for i, a := range args {
		masked[i] = redact(a, secrets)
	}
	return "", &CommandError{Args: masked, Output: redact(out, secrets), Err: redactErr(err, secrets)}
}

const mask = "***"

func redact(s string, secrets []string) string {
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		s = strings.ReplaceAll(s, sec, mask)
	}
	return s
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactErr(err error, secrets []string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if r := redact(msg, secrets); r != msg {
		return &redactedError{msg: r, err: err}
	}
	return err
}
