package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/gitcfg"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

// Default locations of the hosting provider's CLI and the wrapper that
// shadows it on PATH.
const (
	DefaultRealGH  = "/usr/bin/gh"
	DefaultWrapper = "/usr/local/bin/gh"
)

// SetupOptions configures [Setup].
type SetupOptions struct {
	Settings     Settings
	Self         string // absolute path of this binary
	GitUserName  string
	GitUserEmail string
	RealGH       string
	Wrapper      string
}

// Setup configures git and the provider CLI inside a container so every
// authenticated operation obtains its token from this binary. Progress
// lines go to out. Only git configuration failures are returned; CLI
// login and wrapper problems are reported as warnings.
func Setup(ctx context.Context, r runner.Runner, fs fsys.FS, opts SetupOptions, out io.Writer) error {
	host := opts.Settings.Host
	if host == "" {
		host = "github.com"
	}
	git := gitcfg.Global(r)

	switch {
	case opts.Settings.IsApp():
		helper := fmt.Sprintf("!%s credential git", opts.Self)
		if err := git.Set(ctx, "credential.helper", helper); err != nil {
			return err
		}
		if err := installWrapper(ctx, r, fs, opts); err != nil {
			fmt.Fprintf(out, "warning: %v; gh will not refresh tokens\n", err) //nolint:errcheck // best-effort
		} else {
			fmt.Fprintln(out, "GitHub App authentication configured (with auto-refresh)") //nolint:errcheck // best-effort
		}
	case opts.Settings.Token != "":
		args := []string{"auth", "login", "--with-token"}
		if host != "github.com" {
			args = append(args, "--hostname", host)
		}
		res, err := r.Pipe(ctx, opts.Settings.Token+"\n", "gh", args...)
		if err != nil || res.Code != 0 {
			fmt.Fprintln(out, "warning: gh auth login failed; GH_TOKEN is still exported") //nolint:errcheck // best-effort
		} else {
			fmt.Fprintln(out, "GitHub authentication configured") //nolint:errcheck // best-effort
		}
	default:
		fmt.Fprintln(out, "warning: no GH_TOKEN or GitHub App config; GitHub operations may fail") //nolint:errcheck // best-effort
	}

	if opts.GitUserName != "" {
		if err := git.Set(ctx, "user.name", opts.GitUserName); err != nil {
			return err
		}
	}
	if opts.GitUserEmail != "" {
		if err := git.Set(ctx, "user.email", opts.GitUserEmail); err != nil {
			return err
		}
	}
	if err := git.InsteadOf(ctx, host); err != nil {
		return err
	}
	fmt.Fprintf(out, "git configured to use HTTPS for %s\n", host) //nolint:errcheck // best-effort
	return nil
}

func wrapperScript(self, realGH string) string {
	return fmt.Sprintf(`#!/bin/sh
# Refreshes GH_TOKEN from tinker-agent before every gh invocation.
GH_TOKEN="$(%s credential token)" || exit 1
export GH_TOKEN
exec %s "$@"
`, self, realGH)
}

// installWrapper writes the gh wrapper. When the wrapper directory is
// not writable it is staged in the temp dir and moved with sudo.
func installWrapper(ctx context.Context, r runner.Runner, fs fsys.FS, opts SetupOptions) error {
	realGH := opts.RealGH
	if realGH == "" {
		realGH = DefaultRealGH
	}
	wrapper := opts.Wrapper
	if wrapper == "" {
		wrapper = DefaultWrapper
	}
	if _, err := fs.Stat(realGH); err != nil {
		return fmt.Errorf("gh not found at %s", realGH)
	}
	script := []byte(wrapperScript(opts.Self, realGH))

	err := fs.WriteFile(wrapper, script, 0o755)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("writing %s: %w", wrapper, err)
	}
	staged := filepath.Join(os.TempDir(), "gh-wrapper")
	if err := fs.WriteFile(staged, script, 0o755); err != nil {
		return fmt.Errorf("staging gh wrapper: %w", err)
	}
	res, err := r.Output(ctx, "sudo", "install", "-m", "0755", staged, wrapper)
	if err != nil {
		return fmt.Errorf("installing %s: %w", wrapper, err)
	}
	if res.Code != 0 {
		return fmt.Errorf("installing %s: %s", wrapper, strings.TrimSpace(res.Stderr))
	}
	return nil
}
