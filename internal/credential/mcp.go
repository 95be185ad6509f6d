package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

// MCPConfigFile is the assistant's project-level tool server config.
const MCPConfigFile = ".mcp.json"

// MCPPackage is the npm package serving the Tinker API tools.
const MCPPackage = "tinker-mcp"

// MCPOptions configures [SetupMCP].
type MCPOptions struct {
	Dir      string // directory holding .mcp.json
	Role     string
	APIURL   string
	APIKey   string
	ToolsDir string // npm prefix the server is installed under
}

// ServerName returns the key the role's server is registered under.
func (o MCPOptions) ServerName() string { return "tinker-" + o.Role }

// ServerScript returns the entry point npm installs under ToolsDir.
func (o MCPOptions) ServerScript() string {
	return filepath.Join(o.ToolsDir, "node_modules", MCPPackage, "dist", "index.js")
}

// SetupMCP registers the role's Tinker tool server in .mcp.json when
// both API settings are present. Other servers and keys in an existing
// file are preserved. Without API settings an absent or empty server
// table is written as empty so the assistant starts with no Tinker
// tools. A failed package install is reported as a warning.
func SetupMCP(ctx context.Context, r runner.Runner, fs fsys.FS, opts MCPOptions, out io.Writer) error {
	path := filepath.Join(opts.Dir, MCPConfigFile)
	doc, servers := loadMCPConfig(fs, path, out)

	if opts.APIURL == "" || opts.APIKey == "" {
		if len(servers) > 0 {
			fmt.Fprintln(out, "No MCP API credentials; keeping existing config") //nolint:errcheck // best-effort
			return nil
		}
		doc["mcpServers"] = servers
		if err := writeMCPConfig(fs, path, doc); err != nil {
			return err
		}
		fmt.Fprintln(out, "No MCP API credentials; MCP tools disabled") //nolint:errcheck // best-effort
		return nil
	}

	if err := fs.MkdirAll(opts.ToolsDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", opts.ToolsDir, err)
	}
	res, err := r.Output(ctx, "npm", "install", "--prefix", opts.ToolsDir, MCPPackage)
	switch {
	case err != nil:
		fmt.Fprintf(out, "warning: installing %s: %v\n", MCPPackage, err) //nolint:errcheck // best-effort
	case res.Code != 0:
		fmt.Fprintf(out, "warning: installing %s: %s\n", MCPPackage, strings.TrimSpace(res.Stderr)) //nolint:errcheck // best-effort
	}

	servers[opts.ServerName()] = map[string]any{
		"command": "node",
		"args":    []string{opts.ServerScript()},
		"env": map[string]string{
			"RAILS_API_URL": opts.APIURL,
			"RAILS_API_KEY": opts.APIKey,
		},
	}
	doc["mcpServers"] = servers
	if err := writeMCPConfig(fs, path, doc); err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %s with %s server\n", MCPConfigFile, opts.ServerName()) //nolint:errcheck // best-effort
	return nil
}

// loadMCPConfig reads path. A missing or undecodable file yields an
// empty document.
func loadMCPConfig(fs fsys.FS, path string, out io.Writer) (map[string]any, map[string]any) {
	doc := map[string]any{}
	if data, err := fs.ReadFile(path); err == nil {
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil || doc == nil {
			fmt.Fprintf(out, "warning: existing %s is invalid, starting fresh\n", MCPConfigFile) //nolint:errcheck // best-effort
			doc = map[string]any{}
		}
	}
	servers, _ := doc["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	return doc, servers
}

func writeMCPConfig(fs fsys.FS, path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", MCPConfigFile, err)
	}
	if err := fs.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
