// tinker-agent launches and attaches to containerized coding agents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/events"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
	"github.com/RoM4iK/tinker-agent/internal/runner"
	"github.com/RoM4iK/tinker-agent/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

// Persistent flags. Reset each time newRootCmd registers them.
var (
	dirFlag     string
	dryRunFlag  bool
	verboseFlag bool
)

// shutdownTelemetry flushes the exporters. Replaced by run once
// telemetry is initialized; attach calls it before exec.
var shutdownTelemetry = func() {}

// run executes the CLI with the given args, writing output to stdout and
// errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, "tinker-agent", version)
	if err != nil {
		fmt.Fprintf(stderr, "tinker-agent: telemetry disabled: %v\n", err) //nolint:errcheck // best-effort stderr
	}
	shutdownTelemetry = func() {
		if err := tp.Shutdown(ctx); err != nil {
			slog.Debug("telemetry shutdown", "err", err)
		}
	}
	defer shutdownTelemetry()

	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(stderr, "tinker-agent: %v\n", err) //nolint:errcheck // best-effort stderr
		}
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands. A
// bare role name launches that role.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var attachFlag bool
	root := &cobra.Command{
		Use:   "tinker-agent <role>",
		Short: "Launch and attach to containerized Tinker agents",
		Long: `Launch and attach to containerized Tinker agents.

Running "tinker-agent <role>" replaces the role's container with a fresh
one. Roles: planner, orchestrator, worker, reviewer, researcher.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(stderr, verboseFlag))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if len(args) > 1 {
				fmt.Fprintf(stderr, "tinker-agent: expected one role, got %d arguments\n", len(args)) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if cmdLaunch(args[0], attachFlag, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	root.Flags().BoolVar(&attachFlag, "attach", false, "attach to the session after launching")
	root.PersistentFlags().StringVar(&dirFlag, "dir", "",
		"directory to start config discovery from (default: cwd)")
	root.PersistentFlags().BoolVarP(&dryRunFlag, "dry-run", "n", false,
		"print container engine commands instead of running them")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"enable debug logging")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newAttachCmd(stdout, stderr),
		newStopCmd(stdout, stderr),
		newStatusCmd(stdout, stderr),
		newCredentialCmd(stdout, stderr),
		newConfigCmd(stdout, stderr),
		newDoctorCmd(stdout, stderr),
		newEventsCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	root.AddCommand(newGenDocCmd(stdout, stderr, root))
	return root
}

// newLogger returns a text logger for terminals and a JSON logger
// otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// startDir returns --dir or the working directory.
func startDir() (string, error) {
	if dirFlag != "" {
		return filepath.Abs(dirFlag)
	}
	return os.Getwd()
}

// loadConfig locates and parses the config file. TINKER_CONFIG names
// the file explicitly. On error it prints remediation to stderr and
// returns a non-zero code.
func loadConfig(stderr io.Writer, cmdName string) (*config.File, string, int) {
	fs := fsys.OSFS{}
	path := os.Getenv("TINKER_CONFIG")
	if path == "" {
		dir, err := startDir()
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
			return nil, "", 1
		}
		path, err = config.Find(fs, dir)
		if err != nil {
			printConfigError(stderr, cmdName, err)
			return nil, "", 1
		}
	}
	f, err := config.Load(fs, path)
	if err != nil {
		printConfigError(stderr, cmdName, err)
		return nil, "", 1
	}
	return f, path, 0
}

func printConfigError(stderr io.Writer, cmdName string, err error) {
	fmt.Fprintf(stderr, "%s %v\n", errorLabel(cmdName+":"), err) //nolint:errcheck // best-effort stderr
	if errors.Is(err, config.ErrConfigNotFound) {
		fmt.Fprintf(stderr, "\n%s\n", config.Example) //nolint:errcheck // best-effort stderr
	}
}

// homeDir returns the invoking user's home directory.
func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.Getenv("HOME")
}

// newRunner returns the process runner for engine commands. In dry-run
// mode commands are printed to stdout instead.
func newRunner(stdout, stderr io.Writer) runner.Runner {
	if dryRunFlag {
		return runner.DryRun{W: stdout}
	}
	r := runner.NewOS()
	r.Stdout = stdout
	r.Stderr = stderr
	return r
}

// eventsPath returns the event log for the project whose config lives
// at cfgPath.
func eventsPath(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".tinker", "events.jsonl")
}

// openRecorder opens the project's event log. Dry runs and open errors
// yield [events.Discard] so commands always get a valid recorder.
func openRecorder(cfgPath string, stderr io.Writer) (events.Recorder, func()) {
	if dryRunFlag {
		return events.Discard, func() {}
	}
	rec, err := events.NewFileRecorder(eventsPath(cfgPath), stderr)
	if err != nil {
		slog.Warn("event log unavailable", "err", err)
		return events.Discard, func() {}
	}
	return rec, func() { rec.Close() } //nolint:errcheck // best-effort close
}

// newLauncher wires a launcher to the engine, event log, and host paths.
func newLauncher(r runner.Runner, rec events.Recorder, stdout io.Writer) *launcher.Launcher {
	return &launcher.Launcher{
		Engine:  docker.New(r),
		FS:      fsys.OSFS{},
		Events:  rec,
		Log:     slog.Default(),
		Stdout:  stdout,
		Home:    homeDir(),
		TempDir: os.TempDir(),
	}
}

// roleArg normalizes a role argument.
func roleArg(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
