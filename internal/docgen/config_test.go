package docgen

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
)

func renderConfig(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := RenderConfigMarkdown(&buf, config.Schema()); err != nil {
		t.Fatalf("RenderConfigMarkdown: %v", err)
	}
	return buf.String()
}

func TestRenderConfigMarkdownSections(t *testing.T) {
	md := renderConfig(t)

	for _, want := range []string{
		"# Tinker Agent Configuration",
		"## Top level",
		"## github",
		"## git",
		"## agents.<name>",
		"| `project_id` | string |",
		"| `env` | table of string |",
		"| `agents` | table of objects |",
		"| `container_name` | string |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}

	top := strings.Index(md, "## Top level")
	gh := strings.Index(md, "## github")
	if top > gh {
		t.Error("top-level section should come first")
	}
}

func TestRenderConfigMarkdownEnum(t *testing.T) {
	md := renderConfig(t)
	if !strings.Contains(md, "One of `token`, `app`.") {
		t.Errorf("method enum not rendered:\n%s", md)
	}
}

func TestRenderConfigMarkdownTableShape(t *testing.T) {
	for _, line := range strings.Split(renderConfig(t), "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		cols := strings.Count(line, "|") - strings.Count(line, "\\|")
		if cols != 5 {
			t.Errorf("row has %d columns, want 4: %s", cols-1, line)
		}
	}
}

func TestWriteFile(t *testing.T) {
	fs := fsys.NewFake()
	err := WriteFile(fs, "/repo/docs/reference/config.md", func(w io.Writer) error {
		_, err := io.WriteString(w, "# hi\n")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got := string(fs.Files["/repo/docs/reference/config.md"]); got != "# hi\n" {
		t.Errorf("content = %q", got)
	}
	if _, ok := fs.Files["/repo/docs/reference/config.md.tmp"]; ok {
		t.Error("temp file left behind")
	}
}

func TestWriteFileRenderErrorKeepsOld(t *testing.T) {
	fs := fsys.NewFake()
	fs.Files["/repo/cli.md"] = []byte("old")
	err := WriteFile(fs, "/repo/cli.md", func(io.Writer) error { return errors.New("boom") })
	if err == nil {
		t.Fatal("expected error")
	}
	if string(fs.Files["/repo/cli.md"]) != "old" {
		t.Error("existing file replaced on render error")
	}
}
