package doctor

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/credential"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
	"github.com/RoM4iK/tinker-agent/internal/profile"
)

// --- Config ---

// ConfigCheck verifies a config file is discoverable and parses.
type ConfigCheck struct {
	fs fsys.FS

	// Loaded is set by a successful Run so later checks can reuse it.
	Loaded *config.File
	Path   string
}

// NewConfigCheck creates a config check reading through fs.
func NewConfigCheck(fs fsys.FS) *ConfigCheck {
	return &ConfigCheck{fs: fs}
}

// Name returns the check identifier.
func (c *ConfigCheck) Name() string { return "config" }

// Run finds and parses the config file.
func (c *ConfigCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	path, err := config.Find(c.fs, ctx.Dir)
	if err != nil {
		r.Status = StatusError
		r.Message = "no tinker config found"
		r.FixHint = "create tinker.toml in the project root (see `tinker-agent config schema`)"
		return r
	}
	f, err := config.Load(c.fs, path)
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("%s: %v", path, err)
		return r
	}
	c.Loaded, c.Path = f, path
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%s (project %s, %d env vars, %d agent overrides)", path, orNone(f.ProjectID), len(f.Env), len(f.Agents))
	if f.ProjectID == "" {
		r.Status = StatusWarning
		r.FixHint = "set project_id so containers are labeled and the default image resolves"
	}
	return r
}

// CanFix returns false.
func (c *ConfigCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *ConfigCheck) Fix(_ *CheckContext) error { return nil }

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// --- Binaries ---

// LookPathFunc is the function used to find binaries. Defaults to exec.LookPath.
// Tests can override this.
type LookPathFunc func(file string) (string, error)

// BinaryCheck verifies a binary is on PATH.
type BinaryCheck struct {
	binary   string
	required bool
	lookPath LookPathFunc
}

// NewBinaryCheck creates a check for the given binary. A missing
// optional binary is a warning; a missing required one is an error.
func NewBinaryCheck(binary string, required bool, lp LookPathFunc) *BinaryCheck {
	if lp == nil {
		lp = exec.LookPath
	}
	return &BinaryCheck{binary: binary, required: required, lookPath: lp}
}

// Name returns the check identifier.
func (c *BinaryCheck) Name() string { return c.binary + "-binary" }

// Run checks if the binary is on PATH.
func (c *BinaryCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	path, err := c.lookPath(c.binary)
	if err != nil {
		r.Status = StatusWarning
		if c.required {
			r.Status = StatusError
		}
		r.Message = c.binary + " not found in PATH"
		return r
	}
	r.Status = StatusOK
	r.Message = "found " + path
	return r
}

// CanFix returns false.
func (c *BinaryCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *BinaryCheck) Fix(_ *CheckContext) error { return nil }

// --- Engine ---

// EngineCheck verifies the container engine daemon answers.
type EngineCheck struct {
	engine *docker.Client
}

// NewEngineCheck creates an engine liveness check.
func NewEngineCheck(engine *docker.Client) *EngineCheck {
	return &EngineCheck{engine: engine}
}

// Name returns the check identifier.
func (c *EngineCheck) Name() string { return "docker-engine" }

// Run queries the engine version.
func (c *EngineCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	v, err := c.engine.Version(ctx.context())
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.FixHint = "start the docker daemon or add your user to the docker group"
		return r
	}
	r.Status = StatusOK
	r.Message = "server " + v
	return r
}

// CanFix returns false.
func (c *EngineCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *EngineCheck) Fix(_ *CheckContext) error { return nil }

// --- Image ---

// ImageCheck verifies the sandbox image exists locally.
type ImageCheck struct {
	engine *docker.Client
	cfg    *ConfigCheck
}

// NewImageCheck checks the image named by the config cfg loaded.
func NewImageCheck(engine *docker.Client, cfg *ConfigCheck) *ImageCheck {
	return &ImageCheck{engine: engine, cfg: cfg}
}

// Name returns the check identifier.
func (c *ImageCheck) Name() string { return "image" }

// Run inspects the configured image.
func (c *ImageCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if c.cfg.Loaded == nil {
		r.Status = StatusWarning
		r.Message = "skipped (no config)"
		return r
	}
	image := c.cfg.Loaded.ImageName()
	ok, err := c.engine.ImageExists(ctx.context(), image)
	switch {
	case err != nil:
		r.Status = StatusError
		r.Message = err.Error()
	case !ok:
		r.Status = StatusError
		r.Message = image + " not present"
		r.FixHint = "build or pull " + image
	default:
		r.Status = StatusOK
		r.Message = image
	}
	return r
}

// CanFix returns false.
func (c *ImageCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *ImageCheck) Fix(_ *CheckContext) error { return nil }

// --- Auth ---

// AuthCheck verifies the configured GitHub credential is usable. For
// app auth the private key must parse.
type AuthCheck struct {
	fs   fsys.FS
	home string
	cfg  *ConfigCheck
}

// NewAuthCheck creates an auth check. home expands ~ in key paths.
func NewAuthCheck(fs fsys.FS, home string, cfg *ConfigCheck) *AuthCheck {
	return &AuthCheck{fs: fs, home: home, cfg: cfg}
}

// Name returns the check identifier.
func (c *AuthCheck) Name() string { return "github-auth" }

// Run validates the auth material.
func (c *AuthCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if c.cfg.Loaded == nil {
		r.Status = StatusWarning
		r.Message = "skipped (no config)"
		return r
	}
	auth := c.cfg.Loaded.Resolve(string(profile.Worker), c.home).Auth
	if err := launcher.ValidateAuth(c.fs, auth); err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.FixHint = "configure [github] with token, or method = \"app\" with app_client_id, app_installation_id and app_private_key_path"
		return r
	}
	if auth.Method == config.AuthApp {
		data, err := c.fs.ReadFile(auth.AppPrivateKeyPath)
		if err == nil {
			_, err = credential.ParsePrivateKey(data)
		}
		if err != nil {
			r.Status = StatusError
			r.Message = fmt.Sprintf("private key %s: %v", auth.AppPrivateKeyPath, err)
			return r
		}
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%s auth for %s", auth.Method, auth.Host)
	return r
}

// CanFix returns false.
func (c *AuthCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *AuthCheck) Fix(_ *CheckContext) error { return nil }

// --- Token cache ---

// TokenCacheCheck reports the state of the installation token cache.
// A corrupt cache is harmless but is removed by --fix.
type TokenCacheCheck struct {
	fs    fsys.FS
	cache *credential.FileCache
	now   func() time.Time
}

// NewTokenCacheCheck creates a cache check. Sharing cache with a
// [TokenExchangeCheck] lets the exchange reuse a token this check
// already loaded.
func NewTokenCacheCheck(fs fsys.FS, cache *credential.FileCache, now func() time.Time) *TokenCacheCheck {
	if now == nil {
		now = time.Now
	}
	return &TokenCacheCheck{fs: fs, cache: cache, now: now}
}

// Name returns the check identifier.
func (c *TokenCacheCheck) Name() string { return "token-cache" }

// Run inspects the cache file without touching the network.
func (c *TokenCacheCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name(), Status: StatusOK}
	r.Details = append(r.Details, "path: "+c.cache.Path())
	if tok, ok := c.cache.Load(c.now()); ok {
		r.Message = "valid until " + tok.ExpiresAt.Format(time.RFC3339)
		return r
	}
	_, err := c.cache.Peek()
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.Message = "empty (next app token is minted on demand)"
	case err != nil:
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%s unreadable: %v", c.cache.Path(), err)
	default:
		r.Message = "expired or near expiry (refreshed on next use)"
	}
	return r
}

// CanFix returns true.
func (c *TokenCacheCheck) CanFix() bool { return true }

// Fix removes the unreadable cache file.
func (c *TokenCacheCheck) Fix(_ *CheckContext) error {
	return c.fs.Remove(c.cache.Path())
}

// --- Token exchange ---

// TokenExchangeCheck obtains an installation token the way the
// in-container helper does: from the cache when valid, otherwise by a
// live exchange whose result is cached.
type TokenExchangeCheck struct {
	fs     fsys.FS
	home   string
	cfg    *ConfigCheck
	cache  *credential.FileCache
	client *http.Client
	now    func() time.Time

	// BaseURL overrides the API root derived from github.host.
	BaseURL string
}

// NewTokenExchangeCheck creates an exchange check backed by cache.
func NewTokenExchangeCheck(fs fsys.FS, home string, cfg *ConfigCheck, cache *credential.FileCache, client *http.Client, now func() time.Time) *TokenExchangeCheck {
	if now == nil {
		now = time.Now
	}
	return &TokenExchangeCheck{fs: fs, home: home, cfg: cfg, cache: cache, client: client, now: now}
}

// Name returns the check identifier.
func (c *TokenExchangeCheck) Name() string { return "token-exchange" }

// Run fetches a token for the configured app. Token auth has nothing
// to exchange.
func (c *TokenExchangeCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if c.cfg.Loaded == nil {
		r.Status = StatusWarning
		r.Message = "skipped (no config)"
		return r
	}
	auth := c.cfg.Loaded.Resolve(string(profile.Worker), c.home).Auth
	if auth.Method != config.AuthApp {
		r.Status = StatusOK
		r.Message = fmt.Sprintf("skipped (%s auth)", auth.Method)
		return r
	}
	data, err := c.fs.ReadFile(auth.AppPrivateKeyPath)
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("private key %s: %v", auth.AppPrivateKeyPath, err)
		return r
	}
	key, err := credential.ParsePrivateKey(data)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	app := &credential.App{
		ClientID:       auth.AppClientID,
		InstallationID: auth.AppInstallationID,
		Key:            key,
		BaseURL:        credential.APIBase(auth.Host),
		HTTP:           c.client,
		Cache:          c.cache,
		Now:            c.now,
	}
	if c.BaseURL != "" {
		app.BaseURL = c.BaseURL
	}
	if _, err := app.Token(ctx.context()); err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.FixHint = "check app_client_id, app_installation_id and that the app is installed on the repository owner"
		return r
	}
	r.Status = StatusOK
	r.Message = "installation token available"
	if tok, ok := c.cache.Load(c.now()); ok {
		r.Message += ", valid until " + tok.ExpiresAt.Format(time.RFC3339)
	}
	return r
}

// CanFix returns false.
func (c *TokenExchangeCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *TokenExchangeCheck) Fix(_ *CheckContext) error { return nil }

// --- Containers ---

// ContainersCheck lists which role containers are running.
type ContainersCheck struct {
	l    *launcher.Launcher
	cfg  *ConfigCheck
	home string
}

// NewContainersCheck creates a container liveness report.
func NewContainersCheck(l *launcher.Launcher, home string, cfg *ConfigCheck) *ContainersCheck {
	return &ContainersCheck{l: l, cfg: cfg, home: home}
}

// Name returns the check identifier.
func (c *ContainersCheck) Name() string { return "containers" }

// Run reports running role containers. None running is informational.
func (c *ContainersCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if c.cfg.Loaded == nil {
		r.Status = StatusWarning
		r.Message = "skipped (no config)"
		return r
	}
	statuses, err := c.l.Statuses(ctx.context(), func(role string) config.LaunchConfig {
		return c.cfg.Loaded.Resolve(role, c.home)
	})
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	running := 0
	for _, s := range statuses {
		state := "stopped"
		if s.Running {
			state = "running"
			running++
		}
		r.Details = append(r.Details, fmt.Sprintf("%s: %s (%s)", s.Role, s.Container, state))
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d of %d roles running", running, len(statuses))
	return r
}

// CanFix returns false.
func (c *ContainersCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *ContainersCheck) Fix(_ *CheckContext) error { return nil }
