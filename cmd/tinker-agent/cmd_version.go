package main

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=v1.2.3 -X main.commit=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print tinker-agent version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(stdout, versionLine(debug.ReadBuildInfo)) //nolint:errcheck // best-effort stdout
		},
	}
}

// versionLine fills commit and date from VCS stamps when ldflags did
// not set them.
func versionLine(buildInfo func() (*debug.BuildInfo, bool)) string {
	rev, at := commit, date
	if info, ok := buildInfo(); ok && (rev == "" || at == "") {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && rev == "":
				rev = s.Value
			case s.Key == "vcs.time" && at == "":
				at = s.Value
			}
		}
	}
	return fmt.Sprintf("tinker-agent %s (commit: %s, built: %s)", version, orUnknown(rev), orUnknown(at))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
