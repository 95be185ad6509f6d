// Package runner abstracts the external programs this tool drives
// (the container engine, git, the hosting provider's CLI) behind a
// narrow interface so tests can capture arguments and script results
// without invoking real binaries.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Result is the outcome of a finished process. Stdout and Stderr are
// populated only by [Runner.Output] and [Runner.Pipe].
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// Runner starts external programs. A non-nil error means the program
// could not be run at all; a program that ran and failed reports a
// non-zero Code instead.
type Runner interface {
	// Run executes name with the runner's stdio attached and returns
	// its exit code.
	Run(ctx context.Context, name string, args ...string) (int, error)

	// Output executes name and captures its stdout and stderr.
	Output(ctx context.Context, name string, args ...string) (Result, error)

	// Pipe is Output with stdin fed from input.
	Pipe(ctx context.Context, input string, name string, args ...string) (Result, error)

	// Exec hands the terminal to name. On success it does not return
	// for the lifetime of the program.
	Exec(name string, args ...string) error
}

// OS runs real processes.
type OS struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Trace, when non-nil, receives a "+ cmd args" line before each
	// process is started.
	Trace io.Writer

	// replace swaps the current process image. Nil falls back to
	// running the child attached and exiting with its code.
	replace func(path string, argv []string, env []string) error
}

// NewOS returns a runner bound to the process's stdio. TINKER_DEBUG=1
// enables command tracing on stderr.
func NewOS() *OS {
	r := &OS{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, replace: replaceProcess}
	if os.Getenv("TINKER_DEBUG") == "1" {
		r.Trace = os.Stderr
	}
	return r
}

func (r *OS) trace(name string, args []string) {
	if r.Trace != nil {
		fmt.Fprintf(r.Trace, "+ %s\n", Quote(name, args...)) //nolint:errcheck // best-effort trace
	}
}

// Run implements [Runner].
func (r *OS) Run(ctx context.Context, name string, args ...string) (int, error) {
	r.trace(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return exitCode(ctx, cmd.Run())
}

// Output implements [Runner].
func (r *OS) Output(ctx context.Context, name string, args ...string) (Result, error) {
	return r.capture(ctx, nil, name, args)
}

// Pipe implements [Runner].
func (r *OS) Pipe(ctx context.Context, input string, name string, args ...string) (Result, error) {
	return r.capture(ctx, strings.NewReader(input), name, args)
}

func (r *OS) capture(ctx context.Context, stdin io.Reader, name string, args []string) (Result, error) {
	r.trace(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	code, err := exitCode(ctx, cmd.Run())
	return Result{Code: code, Stdout: stdout.String(), Stderr: stderr.String()}, err
}

// Exec implements [Runner]. The program is resolved on PATH and
// replaces the current process.
func (r *OS) Exec(name string, args ...string) error {
	r.trace(name, args)
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("finding %s: %w", name, err)
	}
	if r.replace != nil {
		argv := append([]string{name}, args...)
		if err := r.replace(path, argv, os.Environ()); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
		return nil
	}
	code, err := r.Run(context.Background(), path, args...)
	if err != nil {
		return err
	}
	os.Exit(code)
	return nil
}

// exitCode maps a process error to an exit code. Only failures to start
// are returned as errors.
func exitCode(ctx context.Context, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return 124, nil
	}
	return -1, err
}

// Quote renders a command line for display, single-quoting arguments
// that a POSIX shell would split or expand.
func Quote(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(name))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.ContainsRune("-_./:=,@%+", c):
		default:
			safe = false
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
