// Package config resolves the project's tinker configuration file.
//
// A config file may be TOML, YAML, or JSON (with comments). Every format
// decodes into the same plain [File] value: the raw document is first
// decoded into a generic map, scalar fields that humans write as numbers
// (project and app identifiers, env values) are normalized to strings,
// and the result is round-tripped through JSON. [File.Resolve] then
// merges global and per-role settings into a [LaunchConfig].
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when no config file exists in the
// search path.
var ErrConfigNotFound = errors.New("config not found")

// NotFoundError records where the search started.
type NotFoundError struct {
	Dir string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found in %s or any parent directory", strings.Join(FileNames, ", "), e.Dir)
}

// Unwrap lets errors.Is match [ErrConfigNotFound].
func (e *NotFoundError) Unwrap() error { return ErrConfigNotFound }

// FileNames lists the recognized config file names in lookup order.
var FileNames = []string{"tinker.toml", "tinker.yaml", "tinker.yml", "tinker.json", "tinker.jsonc"}

// Example is the remediation text printed when no config is found.
const Example = `Create tinker.toml in your project root:

  project_id    = 1
  rails_ws_url  = "wss://tinker.example.com/cable"
  rails_api_url = "https://tinker.example.com/api/v1"

  # Paste your stripped .env content here:
  dot_env = """
  STRIPE_KEY=sk_test_...
  OPENAI_KEY=sk-...
  """

  [github]
  method = "token"          # or "app"
  token  = "ghp_..."
  # app_client_id        = "Iv1.abc"
  # app_installation_id  = "12345"
  # app_private_key_path = "~/.keys/tinker-app.pem"

  [git]
  user_name  = "Tinker Bot"
  user_email = "bot@example.com"

  [agents.worker]
  mcp_api_key = "..."

Then keep secrets out of version control:

  echo 'tinker.toml' >> .gitignore
`

// File is the on-disk configuration shape shared by every format.
type File struct {
	ProjectID    string                   `json:"project_id" jsonschema_description:"Tinker project identifier."`
	RailsWSURL   string                   `json:"rails_ws_url" jsonschema_description:"Backend websocket URL (wss://host/cable)."`
	RailsAPIURL  string                   `json:"rails_api_url" jsonschema_description:"Backend API base URL used by MCP tools."`
	Image        string                   `json:"image,omitempty" jsonschema_description:"Container image. Defaults to tinker-sandbox-<project_id>."`
	HelperBinary string                   `json:"helper_binary,omitempty" jsonschema_description:"Host path of a Linux build of tinker-agent mounted into the container as the credential helper."`
	DotEnv       string                   `json:"dot_env,omitempty" jsonschema_description:"Raw KEY=VALUE block parsed into env. Existing env keys win."`
	GitHub       GitHub                   `json:"github" jsonschema_description:"Source-control authentication."`
	Git          Git                      `json:"git" jsonschema_description:"Git commit identity inside the container."`
	Env          map[string]string        `json:"env,omitempty" jsonschema_description:"Global environment passed to every agent."`
	Agents       map[string]AgentOverride `json:"agents,omitempty" jsonschema_description:"Per-role overrides keyed by role name."`
}

// GitHub selects and configures the source-control authentication
// strategy.
type GitHub struct {
	Method            string `json:"method,omitempty" jsonschema:"enum=token,enum=app" jsonschema_description:"Authentication strategy."`
	Token             string `json:"token,omitempty" jsonschema_description:"Static access token (method token)."`
	AppClientID       string `json:"app_client_id,omitempty" jsonschema_description:"Application identifier used as the JWT issuer (method app)."`
	AppInstallationID string `json:"app_installation_id,omitempty" jsonschema_description:"Installation identifier (method app)."`
	AppPrivateKeyPath string `json:"app_private_key_path,omitempty" jsonschema_description:"Path to the application's PEM private key (method app)."`
	Host              string `json:"host,omitempty" jsonschema_description:"Hosting provider domain. Defaults to github.com."`
}

// Git holds the commit identity.
type Git struct {
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

// AgentOverride holds per-role settings.
type AgentOverride struct {
	ContainerName string            `json:"container_name,omitempty" jsonschema_description:"Overrides the role's default container name."`
	Env           map[string]string `json:"env,omitempty" jsonschema_description:"Role environment. Wins over global env on key collision."`
	MCPAPIKey     string            `json:"mcp_api_key,omitempty" jsonschema_description:"API key passed to the agent as RAILS_API_KEY."`
}

// Find walks dir upward looking for the first recognized config file.
// Returns a [*NotFoundError] when none exists.
func Find(fs fsys.FS, dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	start := dir
	for {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if fi, err := fs.Stat(p); err == nil && !fi.IsDir() {
				return p, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &NotFoundError{Dir: start}
		}
		dir = parent
	}
}

// Load reads and parses the config file at path. The format is chosen
// from the file extension. All file I/O goes through fs for testability.
func Load(fs fsys.FS, path string) (*File, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config %q: %w", path, &NotFoundError{Dir: filepath.Dir(path)})
		}
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	f, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	return f, nil
}

// Format identifies a serialization format.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor maps a file name to its format. Unknown extensions are
// treated as TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// Parse decodes data in the given format into a [File]. The dot_env
// block, if present, is folded into Env and cleared.
func Parse(data []byte, format Format) (*File, error) {
	raw := map[string]any{}
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("parsing config: unsupported format %q", format)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if err := normalize(raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	var f File
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if f.DotEnv != "" {
		if f.Env == nil {
			f.Env = make(map[string]string)
		}
		ParseDotEnv(f.DotEnv, f.Env)
		f.DotEnv = ""
	}
	return &f, nil
}
