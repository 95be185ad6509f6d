package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
)

func newStatusCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which role containers are running",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdStatus(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdStatus is the CLI entry point for the status table.
func cmdStatus(stdout, stderr io.Writer) int {
	f, _, code := loadConfig(stderr, "tinker-agent status")
	if code != 0 {
		return code
	}
	l := newLauncher(newRunner(stdout, stderr), nil, stdout)
	home := homeDir()
	return doStatus(context.Background(), l, func(role string) config.LaunchConfig {
		return f.Resolve(role, home)
	}, stdout, stderr)
}

// doStatus prints one row per role.
func doStatus(ctx context.Context, l *launcher.Launcher, resolve func(string) config.LaunchConfig, stdout, stderr io.Writer) int {
	statuses, err := l.Statuses(ctx, resolve)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent status:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tCONTAINER\tSTATE") //nolint:errcheck // best-effort stdout
	for _, s := range statuses {
		state := dimStyle.Render("stopped")
		if s.Running {
			state = okStyle.Render("running")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Role, s.Container, state) //nolint:errcheck // best-effort stdout
	}
	tw.Flush() //nolint:errcheck // best-effort stdout
	return 0
}
