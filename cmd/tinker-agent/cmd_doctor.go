package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/credential"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/doctor"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var fix, exchange bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this host can launch agents",
		Long: `Run diagnostic health checks.

Checks the config file, the docker binary and daemon, the sandbox image,
GitHub auth material, the installation token cache, and which role
containers are running. Use --fix to remove a corrupt token cache.
Use --exchange to fetch a GitHub App installation token, reusing the
cached one when it is still valid.`,
		Example: `  tinker-agent doctor
  tinker-agent doctor --fix
  tinker-agent doctor --exchange
  tinker-agent doctor --verbose`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			dir, err := startDir()
			if err != nil {
				return err
			}
			r := runner.Runner(runner.NewOS())
			if dryRunFlag {
				r = runner.DryRun{W: io.Discard}
			}
			opts := doctorOptions{fix: fix, exchange: exchange, verbose: verboseFlag}
			if doDoctor(context.Background(), r, fsys.OSFS{}, dir, opts, stdout) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "attempt to fix issues automatically")
	cmd.Flags().BoolVar(&exchange, "exchange", false, "fetch a GitHub App installation token")
	return cmd
}

type doctorOptions struct {
	fix      bool
	exchange bool
	verbose  bool
	client   *http.Client
	baseURL  string
}

// doDoctor runs all health checks and prints results. Returns 1 when
// any check failed.
func doDoctor(ctx context.Context, r runner.Runner, fs fsys.FS, dir string, opts doctorOptions, stdout io.Writer) int {
	home := homeDir()
	engine := docker.New(r)
	cachePath := os.Getenv(credential.EnvCachePath)
	if cachePath == "" {
		cachePath = credential.DefaultCachePath
	}

	cfg := doctor.NewConfigCheck(fs)
	d := &doctor.Doctor{}
	d.Register(cfg)
	d.Register(doctor.NewBinaryCheck(docker.Binary, true, nil))
	d.Register(doctor.NewEngineCheck(engine))
	d.Register(doctor.NewImageCheck(engine, cfg))
	d.Register(doctor.NewAuthCheck(fs, home, cfg))
	tokens := credential.NewFileCache(fs, cachePath)
	d.Register(doctor.NewTokenCacheCheck(fs, tokens, nil))
	if opts.exchange {
		ex := doctor.NewTokenExchangeCheck(fs, home, cfg, tokens, opts.client, nil)
		ex.BaseURL = opts.baseURL
		d.Register(ex)
	}
	d.Register(doctor.NewContainersCheck(newLauncher(r, nil, io.Discard), home, cfg))

	d.OnResult = func(res *doctor.CheckResult) { printCheck(stdout, res, opts.verbose) }

	report := d.Run(&doctor.CheckContext{Ctx: ctx, Dir: dir, Verbose: opts.verbose}, opts.fix)
	fmt.Fprintf(stdout, "\n%s\n", report.Summary()) //nolint:errcheck // best-effort stdout
	if !report.OK() {
		return 1
	}
	return 0
}

// printCheck writes one result line, its details when verbose, and the
// fix hint for an unresolved problem.
func printCheck(w io.Writer, res *doctor.CheckResult, verbose bool) {
	mark, suffix := okStyle.Render("✓"), ""
	switch {
	case res.Fixed:
		suffix = " (fixed)"
	case res.Status == doctor.StatusWarning:
		mark = warnStyle.Render("!")
	case res.Status == doctor.StatusError:
		mark = errorStyle.Render("✗")
	}
	fmt.Fprintf(w, "  %s %s: %s%s\n", mark, res.Name, res.Message, suffix) //nolint:errcheck // best-effort stdout
	if verbose {
		for _, d := range res.Details {
			fmt.Fprintf(w, "      %s\n", dimStyle.Render(d)) //nolint:errcheck // best-effort stdout
		}
	}
	if res.FixHint != "" && res.Status != doctor.StatusOK && !res.Fixed {
		fmt.Fprintf(w, "      hint: %s\n", res.FixHint) //nolint:errcheck // best-effort stdout
	}
}
