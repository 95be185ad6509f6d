// Package docgen renders reference documentation for tinker-agent: a
// markdown table of the config file fields from its JSON Schema, and a
// CLI reference from the cobra command tree.
package docgen

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/RoM4iK/tinker-agent/internal/fsys"
)

// Banner marks every generated document.
const Banner = "> Generated by `go run ./cmd/genschema`. Do not edit by hand.\n\n"

// WriteFile renders into memory and replaces path atomically. A render
// error leaves any existing file untouched.
func WriteFile(fs fsys.FS, path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := fs.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
