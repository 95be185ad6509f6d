package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/profile"
)

func newStopCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <role>",
		Short: "Force-remove a role's container",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdStop(args[0], stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdStop is the CLI entry point for stopping a role.
func cmdStop(role string, stdout, stderr io.Writer) int {
	role = roleArg(role)
	if _, err := profile.Lookup(role); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent stop:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	f, path, code := loadConfig(stderr, "tinker-agent stop")
	if code != 0 {
		return code
	}
	rec, closeRec := openRecorder(path, stderr)
	defer closeRec()

	l := newLauncher(newRunner(stdout, stderr), rec, stdout)
	name, err := l.Stop(context.Background(), f.Resolve(role, homeDir()))
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent stop:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Stopped %s\n", name) //nolint:errcheck // best-effort stdout
	return 0
}
