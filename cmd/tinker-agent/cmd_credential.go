package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/credential"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/profile"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

func newCredentialCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "GitHub credentials for use inside an agent container",
		Long: `GitHub credentials for use inside an agent container.

Settings come from the environment the launcher injects:
GITHUB_APP_CLIENT_ID, GITHUB_APP_INSTALLATION_ID and
GITHUB_APP_PRIVATE_KEY_PATH for a GitHub App, or GH_TOKEN. GH_HOST selects
a GitHub Enterprise host and TINKER_TOKEN_CACHE overrides the token cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newCredentialTokenCmd(stdout, stderr),
		newCredentialGitCmd(stdout, stderr),
		newCredentialSetupCmd(stdout, stderr),
	)
	return cmd
}

func newCredentialTokenCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a GitHub token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			settings := credential.SettingsFromEnv(os.Getenv)
			if doCredentialToken(context.Background(), settings, fsys.OSFS{}, nil, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func newCredentialGitCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "git <get|store|erase>",
		Short: "Git credential helper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := credential.SettingsFromEnv(os.Getenv)
			if doCredentialGit(context.Background(), args[0], settings, fsys.OSFS{}, nil, cmd.InOrStdin(), stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func newCredentialSetupCmd(stdout, stderr io.Writer) *cobra.Command {
	var self, mcpDir string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Configure git and gh to fetch tokens from this binary",
		Long: `Configure git and gh to fetch tokens from this binary.

When AGENT_TYPE is set, the role's Tinker tool server is also registered
in .mcp.json using RAILS_API_URL and RAILS_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if self == "" {
				exe, err := os.Executable()
				if err != nil {
					fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent credential setup:"), err) //nolint:errcheck // best-effort stderr
					return errExit
				}
				self = exe
			}
			opts := credential.SetupOptions{
				Settings:     credential.SettingsFromEnv(os.Getenv),
				Self:         self,
				GitUserName:  os.Getenv("GIT_USER_NAME"),
				GitUserEmail: os.Getenv("GIT_USER_EMAIL"),
			}
			var mcp *credential.MCPOptions
			if role := os.Getenv("AGENT_TYPE"); role != "" {
				if mcpDir == "" {
					mcpDir = "."
				}
				mcp = &credential.MCPOptions{
					Dir:      mcpDir,
					Role:     roleArg(role),
					APIURL:   os.Getenv("RAILS_API_URL"),
					APIKey:   os.Getenv("RAILS_API_KEY"),
					ToolsDir: filepath.Join(homeDir(), "tinker-tools"),
				}
			}
			if doCredentialSetup(context.Background(), newRunner(stdout, stderr), fsys.OSFS{}, opts, mcp, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&self, "self", "", "path git should invoke for credentials (default: this binary)")
	cmd.Flags().StringVar(&mcpDir, "mcp-dir", "", "directory holding .mcp.json (default: cwd)")
	return cmd
}

// sourceFor builds the credential source, reporting failures on stderr.
func sourceFor(settings credential.Settings, fs fsys.FS, client *http.Client, cmdName string, stderr io.Writer) credential.Source {
	src, err := settings.Source(fs, client)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel(cmdName+":"), err) //nolint:errcheck // best-effort stderr
		if errors.Is(err, credential.ErrNotConfigured) {
			fmt.Fprintln(stderr, "set GH_TOKEN, or GITHUB_APP_CLIENT_ID, GITHUB_APP_INSTALLATION_ID and GITHUB_APP_PRIVATE_KEY_PATH") //nolint:errcheck // best-effort stderr
		}
		return nil
	}
	return src
}

// doCredentialToken prints one token. A nil client uses the default.
func doCredentialToken(ctx context.Context, settings credential.Settings, fs fsys.FS, client *http.Client, stdout, stderr io.Writer) int {
	src := sourceFor(settings, fs, client, "tinker-agent credential token", stderr)
	if src == nil {
		return 1
	}
	tok, err := src.Token(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent credential token:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintln(stdout, tok) //nolint:errcheck // best-effort stdout
	return 0
}

// doCredentialGit answers one git credential helper request.
func doCredentialGit(ctx context.Context, op string, settings credential.Settings, fs fsys.FS, client *http.Client, in io.Reader, stdout, stderr io.Writer) int {
	if op != "get" {
		if err := credential.GitHelper(ctx, op, in, stdout, nil, ""); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent credential git:"), err) //nolint:errcheck // best-effort stderr
			return 1
		}
		return 0
	}
	src := sourceFor(settings, fs, client, "tinker-agent credential git", stderr)
	if src == nil {
		return 1
	}
	host := settings.Host
	if host == "" {
		host = "github.com"
	}
	if err := credential.GitHelper(ctx, op, in, stdout, src, host); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent credential git:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	return 0
}

// doCredentialSetup configures git and gh in the container, then the
// tool server config when mcp is set.
func doCredentialSetup(ctx context.Context, r runner.Runner, fs fsys.FS, opts credential.SetupOptions, mcp *credential.MCPOptions, stdout, stderr io.Writer) int {
	if mcp != nil {
		if _, err := profile.Lookup(mcp.Role); err != nil {
			fmt.Fprintf(stderr, "%s AGENT_TYPE: %v\n", errorLabel("tinker-agent credential setup:"), err) //nolint:errcheck // best-effort stderr
			return 1
		}
	}
	if err := credential.Setup(ctx, r, fs, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent credential setup:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if mcp == nil {
		return 0
	}
	if err := credential.SetupMCP(ctx, r, fs, *mcp, stdout); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent credential setup:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	return 0
}
