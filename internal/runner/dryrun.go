package runner

import (
	"context"
	"fmt"
	"io"
)

// DryRun prints every command instead of running it. Each command
// succeeds with empty output.
type DryRun struct {
	W io.Writer
}

func (d DryRun) print(name string, args []string) {
	fmt.Fprintf(d.W, "%s\n", Quote(name, args...)) //nolint:errcheck // best-effort stdout
}

// Run implements [Runner].
func (d DryRun) Run(_ context.Context, name string, args ...string) (int, error) {
	d.print(name, args)
	return 0, nil
}

// Output implements [Runner].
func (d DryRun) Output(_ context.Context, name string, args ...string) (Result, error) {
	d.print(name, args)
	return Result{}, nil
}

// Pipe implements [Runner].
func (d DryRun) Pipe(_ context.Context, _ string, name string, args ...string) (Result, error) {
	d.print(name, args)
	return Result{}, nil
}

// Exec implements [Runner].
func (d DryRun) Exec(name string, args ...string) error {
	d.print(name, args)
	return nil
}
