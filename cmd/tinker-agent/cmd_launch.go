package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/RoM4iK/tinker-agent/internal/attach"
	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/events"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
	"github.com/RoM4iK/tinker-agent/internal/profile"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

// cmdLaunch is the CLI entry point for "tinker-agent <role>".
func cmdLaunch(role string, thenAttach bool, stdout, stderr io.Writer) int {
	role = roleArg(role)
	if _, err := profile.Lookup(role); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	f, path, code := loadConfig(stderr, "tinker-agent")
	if code != 0 {
		return code
	}
	rec, closeRec := openRecorder(path, stderr)
	defer closeRec()

	ctx := context.Background()
	r := newRunner(stdout, stderr)
	l := newLauncher(r, rec, stdout)
	cfg := f.Resolve(role, homeDir())
	if code := doLaunch(ctx, l, cfg, stderr); code != 0 || !thenAttach {
		return code
	}
	a := newAttacher(r, l, rec, stderr)
	a.Launched = true
	return doAttach(ctx, a, cfg, stderr)
}

// doLaunch starts the role's container. A non-zero engine exit status
// becomes the process exit status.
func doLaunch(ctx context.Context, l *launcher.Launcher, cfg config.LaunchConfig, stderr io.Writer) int {
	if _, err := l.Launch(ctx, cfg); err != nil {
		return printLaunchError(stderr, "tinker-agent", err)
	}
	return 0
}

const authHint = `
Configure GitHub access in tinker.toml, either a token:

  [github]
  token = "ghp_..."

or a GitHub App:

  [github]
  method = "app"
  app_client_id = "Iv1.abc123"
  app_installation_id = "12345678"
  app_private_key_path = "~/keys/app.pem"
`

// printLaunchError writes err with remediation and returns the exit code.
func printLaunchError(stderr io.Writer, cmdName string, err error) int {
	fmt.Fprintf(stderr, "%s %v\n", errorLabel(cmdName+":"), err) //nolint:errcheck // best-effort stderr
	var le *launcher.LaunchError
	switch {
	case errors.Is(err, launcher.ErrMissingAuth):
		fmt.Fprint(stderr, authHint) //nolint:errcheck // best-effort stderr
	case errors.As(err, &le) && le.Code > 0 && le.Code < 256:
		return le.Code
	}
	return 1
}

// newAttacher wires an attacher that auto-starts through l. Dry runs
// skip the settle and poll delays.
func newAttacher(r runner.Runner, l *launcher.Launcher, rec events.Recorder, stderr io.Writer) *attach.Attacher {
	a := &attach.Attacher{
		Engine:     docker.New(r),
		Starter:    l,
		Events:     rec,
		Log:        l.Log,
		Stderr:     stderr,
		BeforeExec: func() { shutdownTelemetry() },
	}
	if dryRunFlag {
		a.Sleep = func(time.Duration) {}
		a.TTY = func() bool { return true }
	}
	return a
}
