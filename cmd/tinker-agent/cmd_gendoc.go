package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RoM4iK/tinker-agent/internal/docgen"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
)

// newGenDocCmd creates the hidden "gen-doc <path>" subcommand used by
// cmd/genschema. It writes the CLI reference for root to path.
func newGenDocCmd(stdout, stderr io.Writer, root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:    "gen-doc <path>",
		Short:  "Generate the CLI reference",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			err := docgen.WriteFile(fsys.OSFS{}, args[0], func(w io.Writer) error {
				return docgen.RenderCLIMarkdown(w, root)
			})
			if err != nil {
				fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent gen-doc:"), err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Generated: %s\n", args[0]) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}
