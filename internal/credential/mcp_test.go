package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcpOptions() MCPOptions {
	return MCPOptions{
		Dir:      "/rails",
		Role:     "worker",
		APIURL:   "https://tinker.example.com/api",
		APIKey:   "mcp_secret",
		ToolsDir: "/home/rails/tinker-tools",
	}
}

func readMCP(t *testing.T, fs *fsys.Fake) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(fs.Files["/rails/.mcp.json"], &doc))
	return doc
}

func TestSetupMCPRegistersServer(t *testing.T) {
	r := runner.NewFake()
	fs := fsys.NewFake()
	var out bytes.Buffer

	require.NoError(t, SetupMCP(context.Background(), r, fs, mcpOptions(), &out))

	assert.Equal(t, []string{"npm install --prefix /home/rails/tinker-tools tinker-mcp"}, r.Lines())
	servers := readMCP(t, fs)["mcpServers"].(map[string]any)
	assert.Equal(t, map[string]any{
		"command": "node",
		"args":    []any{"/home/rails/tinker-tools/node_modules/tinker-mcp/dist/index.js"},
		"env": map[string]any{
			"RAILS_API_URL": "https://tinker.example.com/api",
			"RAILS_API_KEY": "mcp_secret",
		},
	}, servers["tinker-worker"])
	assert.Contains(t, out.String(), "tinker-worker")
}

func TestSetupMCPMergesExisting(t *testing.T) {
	fs := fsys.NewFake()
	fs.Files["/rails/.mcp.json"] = []byte(`{
  // project servers
  "mcpServers": {"postgres": {"command": "pg-mcp"}},
  "theme": "dark",
}`)

	require.NoError(t, SetupMCP(context.Background(), runner.NewFake(), fs, mcpOptions(), &bytes.Buffer{}))

	doc := readMCP(t, fs)
	assert.Equal(t, "dark", doc["theme"])
	servers := doc["mcpServers"].(map[string]any)
	assert.Contains(t, servers, "postgres")
	assert.Contains(t, servers, "tinker-worker")
}

func TestSetupMCPInvalidFileStartsFresh(t *testing.T) {
	fs := fsys.NewFake()
	fs.Files["/rails/.mcp.json"] = []byte("{not json")
	var out bytes.Buffer

	require.NoError(t, SetupMCP(context.Background(), runner.NewFake(), fs, mcpOptions(), &out))

	assert.Contains(t, out.String(), "invalid, starting fresh")
	assert.Len(t, readMCP(t, fs)["mcpServers"], 1)
}

func TestSetupMCPInstallFailureIsWarning(t *testing.T) {
	r := runner.NewFake().On("npm install", runner.Result{Code: 1, Stderr: "E404"})
	fs := fsys.NewFake()
	var out bytes.Buffer

	require.NoError(t, SetupMCP(context.Background(), r, fs, mcpOptions(), &out))

	assert.Contains(t, out.String(), "warning: installing tinker-mcp: E404")
	assert.Contains(t, readMCP(t, fs)["mcpServers"], "tinker-worker")
}

func TestSetupMCPWithoutAPISettings(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		r := runner.NewFake()
		fs := fsys.NewFake()
		opts := mcpOptions()
		opts.APIKey = ""
		var out bytes.Buffer

		require.NoError(t, SetupMCP(context.Background(), r, fs, opts, &out))

		assert.Empty(t, r.Lines(), "nothing installed")
		assert.Equal(t, map[string]any{"mcpServers": map[string]any{}}, readMCP(t, fs))
		assert.Contains(t, out.String(), "MCP tools disabled")
	})

	t.Run("existing servers kept", func(t *testing.T) {
		fs := fsys.NewFake()
		existing := []byte(`{"mcpServers":{"postgres":{"command":"pg-mcp"}}}`)
		fs.Files["/rails/.mcp.json"] = existing
		opts := mcpOptions()
		opts.APIURL = ""
		var out bytes.Buffer

		require.NoError(t, SetupMCP(context.Background(), runner.NewFake(), fs, opts, &out))

		assert.Equal(t, existing, fs.Files["/rails/.mcp.json"])
		assert.Contains(t, out.String(), "keeping existing config")
	})
}
