package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/profile"
)

func newConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the tinker configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	var showSecrets bool
	show := &cobra.Command{
		Use:   "show <role>",
		Short: "Print the resolved launch config for a role as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdConfigShow(args[0], showSecrets, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	show.Flags().BoolVar(&showSecrets, "show-secrets", false, "print API keys, tokens and env values unmasked")
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doConfigSchema(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.AddCommand(show, schema)
	return cmd
}

// cmdConfigShow is the CLI entry point for "config show".
func cmdConfigShow(role string, showSecrets bool, stdout, stderr io.Writer) int {
	role = roleArg(role)
	if _, err := profile.Lookup(role); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent config show:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	f, _, code := loadConfig(stderr, "tinker-agent config show")
	if code != 0 {
		return code
	}
	return doConfigShow(f.Resolve(role, homeDir()), showSecrets, stdout, stderr)
}

// doConfigShow writes cfg as indented JSON.
func doConfigShow(cfg config.LaunchConfig, showSecrets bool, stdout, stderr io.Writer) int {
	if !showSecrets {
		cfg = cfg.Redacted()
	}
	return writeJSON(cfg, "tinker-agent config show", stdout, stderr)
}

// doConfigSchema writes the config file's JSON Schema.
func doConfigSchema(stdout, stderr io.Writer) int {
	return writeJSON(config.Schema(), "tinker-agent config schema", stdout, stderr)
}

func writeJSON(v any, cmdName string, stdout, stderr io.Writer) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel(cmdName+":"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "%s\n", data) //nolint:errcheck // best-effort stdout
	return 0
}
