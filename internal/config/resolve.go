package config

import (
	"path/filepath"
	"strings"
)

// AuthMethod names a source-control authentication strategy.
type AuthMethod string

// Authentication strategies. AuthNone means nothing usable is configured.
const (
	AuthNone  AuthMethod = ""
	AuthToken AuthMethod = "token"
	AuthApp   AuthMethod = "app"
)

// DefaultHost is the hosting provider used when github.host is unset.
const DefaultHost = "github.com"

// Auth is the resolved authentication strategy.
type Auth struct {
	Method            AuthMethod `json:"method"`
	Token             string     `json:"token,omitempty"`
	AppClientID       string     `json:"app_client_id,omitempty"`
	AppInstallationID string     `json:"app_installation_id,omitempty"`
	AppPrivateKeyPath string     `json:"app_private_key_path,omitempty"`
	Host              string     `json:"host"`
}

// LaunchConfig is the fully merged configuration for one invocation of
// one role. It is rebuilt from the file on every invocation.
type LaunchConfig struct {
	Role          string `json:"role"`
	ProjectID     string `json:"project_id"`
	RailsWSURL    string `json:"rails_ws_url"`
	RailsAPIURL   string `json:"rails_api_url"`
	RailsAPIKey   string `json:"rails_api_key,omitempty"`
	Image         string `json:"image"`
	ContainerName string `json:"container_name,omitempty"` // empty means the role's default
	HelperBinary  string `json:"helper_binary,omitempty"`
	Auth          Auth   `json:"github"`
	GitUserName   string `json:"git_user_name,omitempty"`
	GitUserEmail  string `json:"git_user_email,omitempty"`

	// Env is global env overlaid with role env.
	Env            map[string]string `json:"env"`
	GlobalEnvCount int               `json:"-"`
	RoleEnvCount   int               `json:"-"`
}

// Resolve merges the global settings with the overrides for role.
// home is used to expand a leading "~" in host paths.
func (f *File) Resolve(role, home string) LaunchConfig {
	override := f.Agents[role]
	return LaunchConfig{
		Role:           role,
		ProjectID:      f.ProjectID,
		RailsWSURL:     f.RailsWSURL,
		RailsAPIURL:    f.RailsAPIURL,
		RailsAPIKey:    override.MCPAPIKey,
		Image:          f.ImageName(),
		ContainerName:  override.ContainerName,
		HelperBinary:   ExpandHome(f.HelperBinary, home),
		Auth:           f.GitHub.resolve(home),
		GitUserName:    f.Git.UserName,
		GitUserEmail:   f.Git.UserEmail,
		Env:            MergeEnv(f.Env, override.Env),
		GlobalEnvCount: len(f.Env),
		RoleEnvCount:   len(override.Env),
	}
}

// ImageName returns the configured image, or the per-project default.
func (f *File) ImageName() string {
	if f.Image != "" {
		return f.Image
	}
	if f.ProjectID != "" {
		return "tinker-sandbox-" + f.ProjectID
	}
	return "tinker-sandbox"
}

func (g GitHub) resolve(home string) Auth {
	host := g.Host
	if host == "" {
		host = DefaultHost
	}
	switch {
	case g.Method == string(AuthApp):
		return Auth{
			Method:            AuthApp,
			AppClientID:       g.AppClientID,
			AppInstallationID: g.AppInstallationID,
			AppPrivateKeyPath: ExpandHome(g.AppPrivateKeyPath, home),
			Host:              host,
		}
	case g.Token != "":
		return Auth{Method: AuthToken, Token: g.Token, Host: host}
	default:
		return Auth{Method: AuthNone, Host: host}
	}
}

// MergeEnv returns a new map holding global overlaid with role. Role
// keys win on collision; global-only keys pass through unchanged.
func MergeEnv(global, role map[string]string) map[string]string {
	out := make(map[string]string, len(global)+len(role))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range role {
		out[k] = v
	}
	return out
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

const redacted = "********"

// Redacted returns a copy with secret values masked, for display.
func (lc LaunchConfig) Redacted() LaunchConfig {
	out := lc
	if out.RailsAPIKey != "" {
		out.RailsAPIKey = redacted
	}
	if out.Auth.Token != "" {
		out.Auth.Token = redacted
	}
	out.Env = make(map[string]string, len(lc.Env))
	for k := range lc.Env {
		out.Env[k] = redacted
	}
	return out
}
