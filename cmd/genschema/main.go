// Command genschema regenerates the reference docs for tinker-agent.
// Run from the repository root:
//
//	go run ./cmd/genschema
//
// Output:
//
//	docs/schema/tinker-schema.json
//	docs/reference/config.md
//	docs/reference/cli.md
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/docgen"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
)

const (
	schemaPath = "docs/schema/tinker-schema.json"
	configPath = "docs/reference/config.md"
	cliPath    = "docs/reference/cli.md"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genschema: %v\n", err) //nolint:errcheck // best-effort stderr
		os.Exit(1)
	}
}

func run() error {
	if _, err := os.Stat("go.mod"); err != nil {
		return fmt.Errorf("must run from repository root (go.mod not found)")
	}
	fs := fsys.OSFS{}
	s := config.Schema()

	err := docgen.WriteFile(fs, schemaPath, func(w io.Writer) error {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	})
	if err != nil {
		return err
	}
	err = docgen.WriteFile(fs, configPath, func(w io.Writer) error {
		return docgen.RenderConfigMarkdown(w, s)
	})
	if err != nil {
		return err
	}

	// The CLI reference needs the real command tree, which lives in main.
	genDoc := exec.Command("go", "run", "./cmd/tinker-agent", "gen-doc", cliPath)
	genDoc.Stdout = os.Stdout
	genDoc.Stderr = os.Stderr
	if err := genDoc.Run(); err != nil {
		return fmt.Errorf("generating CLI docs: %w", err)
	}

	fmt.Println("Generated:")
	for _, f := range []string{schemaPath, configPath, cliPath} {
		fmt.Printf("  %s\n", f)
	}
	return nil
}
