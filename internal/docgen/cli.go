package docgen

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RenderCLIMarkdown writes a reference for every visible command under
// root: usage line, description, examples, and local flags. The root's
// persistent flags are listed once under "Global flags".
func RenderCLIMarkdown(w io.Writer, root *cobra.Command) error {
	var b strings.Builder
	b.WriteString("# CLI Reference\n\n")
	b.WriteString(Banner)
	if rows := flagRows(root.PersistentFlags()); len(rows) > 0 {
		b.WriteString("## Global flags\n\n")
		writeFlagRows(&b, rows)
	}
	visit(root, func(cmd *cobra.Command) { writeCommand(&b, cmd) })
	_, err := io.WriteString(w, b.String())
	return err
}

// visit calls fn for cmd and each visible descendant, parents first.
func visit(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, child := range visibleChildren(cmd) {
		visit(child, fn)
	}
}

func visibleChildren(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if !c.Hidden && c.Name() != "help" {
			out = append(out, c)
		}
	}
	return out
}

func writeCommand(b *strings.Builder, cmd *cobra.Command) {
	fmt.Fprintf(b, "## %s\n\n", cmd.CommandPath())
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	if desc = strings.TrimSpace(desc); desc != "" {
		fmt.Fprintf(b, "%s\n\n", desc)
	}
	fmt.Fprintf(b, "```\n%s\n```\n\n", cmd.UseLine())
	if ex := strings.TrimSpace(cmd.Example); ex != "" {
		fmt.Fprintf(b, "Examples:\n\n```\n%s\n```\n\n", ex)
	}
	if rows := flagRows(cmd.LocalNonPersistentFlags()); len(rows) > 0 {
		writeFlagRows(b, rows)
	}
	if children := visibleChildren(cmd); len(children) > 0 {
		b.WriteString("| Command | Description |\n|---------|-------------|\n")
		for _, c := range children {
			anchor := strings.ToLower(strings.ReplaceAll(c.CommandPath(), " ", "-"))
			fmt.Fprintf(b, "| [%s](#%s) | %s |\n", c.CommandPath(), anchor, cell(c.Short))
		}
		b.WriteString("\n")
	}
}

// flagRows renders the visible flags of fs as table rows.
func flagRows(fs *pflag.FlagSet) []string {
	var rows []string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "`--" + f.Name + "`"
		if f.Shorthand != "" {
			name = "`-" + f.Shorthand + "`, " + name
		}
		def := ""
		if !zeroDefault(f) {
			def = "`" + f.DefValue + "`"
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %s | %s |", name, f.Value.Type(), def, cell(f.Usage)))
	})
	return rows
}

func writeFlagRows(b *strings.Builder, rows []string) {
	b.WriteString("| Flag | Type | Default | Description |\n|------|------|---------|-------------|\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	b.WriteString("\n")
}

func zeroDefault(f *pflag.Flag) bool {
	switch f.DefValue {
	case "", "false", "0", "0s", "[]":
		return true
	}
	return false
}
