package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/attach"
	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/profile"
)

func newAttachCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <role>",
		Short: "Attach to a role's session, starting its container if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdAttach(args[0], stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdAttach is the CLI entry point for attaching to a session.
func cmdAttach(role string, stdout, stderr io.Writer) int {
	role = roleArg(role)
	if _, err := profile.Lookup(role); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent attach:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	f, path, code := loadConfig(stderr, "tinker-agent attach")
	if code != 0 {
		return code
	}
	rec, closeRec := openRecorder(path, stderr)
	defer closeRec()

	r := newRunner(stdout, stderr)
	l := newLauncher(r, rec, stdout)
	return doAttach(context.Background(), newAttacher(r, l, rec, stderr), f.Resolve(role, homeDir()), stderr)
}

// doAttach hands the terminal to the role's session. It returns only
// when the process could not be replaced or the session ended.
func doAttach(ctx context.Context, a *attach.Attacher, cfg config.LaunchConfig, stderr io.Writer) int {
	if _, err := a.Attach(ctx, cfg); err != nil {
		return printLaunchError(stderr, "tinker-agent attach", err)
	}
	return 0
}
