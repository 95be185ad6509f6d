// Package launcher starts agent containers.
//
// A launch always replaces: any container with the role's name is
// force-removed before the new one is created. Authentication material
// is validated first, so a launch that cannot authenticate never
// touches the engine.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/credential"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/events"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/profile"
	"github.com/RoM4iK/tinker-agent/internal/telemetry"
)

// Container-side paths.
const (
	ClaudeConfigTarget = "/tmp/cfg/claude.json"
	ClaudeDirTarget    = "/tmp/cfg/claude_dir"
	BannerTarget       = "/etc/tinker/system-prompt.txt"
	AppKeyTarget       = "/tmp/github-app-privkey.pem"
	HelperTarget       = "/usr/local/bin/tinker-agent"
)

// Version is passed to the container as TINKER_VERSION.
const Version = "main"

var (
	// ErrMissingAuth means no usable source-control credential is configured.
	ErrMissingAuth = errors.New("missing github authentication")

	// ErrLaunchFailed means the engine refused to start the container.
	ErrLaunchFailed = errors.New("container launch failed")
)

// LaunchError carries the engine's exit status.
type LaunchError struct {
	Container string
	Code      int
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("starting %s: docker exited %d", e.Container, e.Code)
}

// Unwrap lets errors.Is match [ErrLaunchFailed].
func (e *LaunchError) Unwrap() error { return ErrLaunchFailed }

// Launcher creates role containers on one engine.
type Launcher struct {
	Engine *docker.Client
	FS     fsys.FS
	Events events.Recorder
	Log    *slog.Logger

	// Stdout receives the progress lines and post-launch hints.
	Stdout io.Writer

	// Home is the invoking user's home directory; the assistant's
	// config is mounted from there.
	Home string

	// TempDir holds the rendered banner files.
	TempDir string

	// NewID returns the launch id label. Defaults to a random UUID.
	NewID func() string
}

// Result describes a started container.
type Result struct {
	Role      profile.Role
	Container string
	LaunchID  string
	Spec      docker.RunSpec
}

// ContainerName returns the container a role runs in: the configured
// override, or the registry default.
func ContainerName(cfg config.LaunchConfig, p profile.Profile) string {
	if cfg.ContainerName != "" {
		return cfg.ContainerName
	}
	return p.ContainerName
}

// BannerPath returns where the role banner is written on the host.
func BannerPath(tmp string, role profile.Role) string {
	return filepath.Join(tmp, "tinker-agent-banner-"+string(role)+".txt")
}

// ValidateAuth checks that cfg carries a usable credential strategy.
// For application identity the private key must be a readable regular
// file on the host.
func ValidateAuth(fs fsys.FS, auth config.Auth) error {
	switch auth.Method {
	case config.AuthToken:
		if auth.Token == "" {
			return fmt.Errorf("%w: github.method is token but github.token is empty", ErrMissingAuth)
		}
		return nil
	case config.AuthApp:
		var missing []string
		if auth.AppClientID == "" {
			missing = append(missing, "app_client_id")
		}
		if auth.AppInstallationID == "" {
			missing = append(missing, "app_installation_id")
		}
		if auth.AppPrivateKeyPath == "" {
			missing = append(missing, "app_private_key_path")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: github app requires %s", ErrMissingAuth, strings.Join(missing, ", "))
		}
		fi, err := fs.Stat(auth.AppPrivateKeyPath)
		if err != nil {
			return fmt.Errorf("%w: private key %s: %w", ErrMissingAuth, auth.AppPrivateKeyPath, err)
		}
		if fi.IsDir() {
			return fmt.Errorf("%w: private key %s is a directory", ErrMissingAuth, auth.AppPrivateKeyPath)
		}
		return nil
	default:
		return fmt.Errorf("%w: set github.token or github.method = \"app\" with app credentials", ErrMissingAuth)
	}
}

// Spec builds the run specification for one launch. It is a pure
// function of its inputs.
func (l *Launcher) Spec(cfg config.LaunchConfig, p profile.Profile, launchID string) docker.RunSpec {
	spec := docker.RunSpec{
		Name:    ContainerName(cfg, p),
		Network: "host",
		Restart: "unless-stopped",
		Tmpfs:   []string{"/rails/tmp", "/rails/log"},
		Labels: map[string]string{
			"tinker.role":      string(p.Role),
			"tinker.project":   cfg.ProjectID,
			"tinker.launch-id": launchID,
		},
		Mounts: []docker.Mount{
			{Source: filepath.Join(l.Home, ".claude.json"), Target: ClaudeConfigTarget, ReadOnly: true},
			{Source: filepath.Join(l.Home, ".claude"), Target: ClaudeDirTarget, ReadOnly: true},
			{Source: BannerPath(l.TempDir, p.Role), Target: BannerTarget, ReadOnly: true},
		},
		Image: cfg.Image,
	}
	if cfg.Auth.Method == config.AuthApp {
		spec.Mounts = append(spec.Mounts, docker.Mount{Source: cfg.Auth.AppPrivateKeyPath, Target: AppKeyTarget, ReadOnly: true})
	}
	if cfg.HelperBinary != "" {
		spec.Mounts = append(spec.Mounts, docker.Mount{Source: cfg.HelperBinary, Target: HelperTarget, ReadOnly: true})
	}

	spec.Env = append(spec.Env, sortedEnv(cfg.Env)...)
	spec.Env = append(spec.Env, sortedEnv(telemetry.ContainerEnv(string(p.Role), cfg.ProjectID))...)
	spec.Env = append(spec.Env,
		docker.EnvVar{Name: "TINKER_VERSION", Value: Version},
		docker.EnvVar{Name: "SKILLS", Value: p.SkillList()},
		docker.EnvVar{Name: "AGENT_TYPE", Value: string(p.Role)},
		docker.EnvVar{Name: "PROJECT_ID", Value: cfg.ProjectID},
		docker.EnvVar{Name: "RAILS_WS_URL", Value: cfg.RailsWSURL},
		docker.EnvVar{Name: "RAILS_API_URL", Value: cfg.RailsAPIURL},
		docker.EnvVar{Name: "RAILS_API_KEY", Value: cfg.RailsAPIKey},
	)
	spec.Env = append(spec.Env, authEnv(cfg.Auth)...)
	spec.Env = append(spec.Env,
		docker.EnvVar{Name: "GIT_USER_NAME", Value: cfg.GitUserName},
		docker.EnvVar{Name: "GIT_USER_EMAIL", Value: cfg.GitUserEmail},
	)
	return spec
}

func authEnv(auth config.Auth) []docker.EnvVar {
	var out []docker.EnvVar
	switch auth.Method {
	case config.AuthApp:
		out = append(out,
			docker.EnvVar{Name: credential.EnvAppClientID, Value: auth.AppClientID},
			docker.EnvVar{Name: credential.EnvAppInstallationID, Value: auth.AppInstallationID},
			docker.EnvVar{Name: credential.EnvAppPrivateKeyPath, Value: AppKeyTarget},
		)
	case config.AuthToken:
		out = append(out, docker.EnvVar{Name: credential.EnvToken, Value: auth.Token})
	}
	if auth.Host != "" && auth.Host != config.DefaultHost {
		out = append(out, docker.EnvVar{Name: credential.EnvHost, Value: auth.Host})
	}
	return out
}

func sortedEnv(m map[string]string) []docker.EnvVar {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]docker.EnvVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, docker.EnvVar{Name: k, Value: m[k]})
	}
	return out
}

// Launch replaces the role's container with a fresh one built from cfg.
func (l *Launcher) Launch(ctx context.Context, cfg config.LaunchConfig) (Result, error) {
	p, err := profile.Lookup(cfg.Role)
	if err != nil {
		return Result{}, err
	}
	if err := ValidateAuth(l.FS, cfg.Auth); err != nil {
		return Result{}, err
	}

	id := l.newID()
	spec := l.Spec(cfg, p, id)
	res := Result{Role: p.Role, Container: spec.Name, LaunchID: id, Spec: spec}
	log := l.logger().With("role", p.Role, "container", spec.Name, "launch_id", id)

	err = l.start(ctx, p, spec)
	telemetry.RecordLaunch(ctx, string(p.Role), spec.Name, err)
	if err != nil {
		log.Error("launch failed", "err", err)
		l.record(events.Event{
			Type:    events.ContainerLaunchFailed,
			Subject: string(p.Role),
			Message: err.Error(),
			Payload: events.MustPayload(launchPayload{Container: spec.Name, Image: spec.Image, LaunchID: id, Code: exitCode(err)}),
		})
		return res, err
	}
	log.Info("launched", "image", spec.Image)
	l.record(events.Event{
		Type:    events.ContainerLaunched,
		Subject: string(p.Role),
		Message: spec.Name,
		Payload: events.MustPayload(launchPayload{Container: spec.Name, Image: spec.Image, LaunchID: id}),
	})

	w := l.stdout()
	if n := cfg.GlobalEnvCount + cfg.RoleEnvCount; n > 0 {
		fmt.Fprintf(w, "Injected %d global + %d agent-specific env vars\n", cfg.GlobalEnvCount, cfg.RoleEnvCount) //nolint:errcheck // best-effort stdout
	}
	fmt.Fprintf(w, "Started %s (%s)\n", spec.Name, p.Role)       //nolint:errcheck // best-effort stdout
	fmt.Fprintf(w, "  attach: tinker-agent attach %s\n", p.Role) //nolint:errcheck // best-effort stdout
	fmt.Fprintf(w, "  logs:   docker logs -f %s\n", spec.Name)   //nolint:errcheck // best-effort stdout
	fmt.Fprintf(w, "  stop:   tinker-agent stop %s\n", p.Role)   //nolint:errcheck // best-effort stdout
	return res, nil
}

type launchPayload struct {
	Container string `json:"container"`
	Image     string `json:"image"`
	LaunchID  string `json:"launch_id"`
	Code      int    `json:"exit_code,omitempty"`
}

func exitCode(err error) int {
	var le *LaunchError
	if errors.As(err, &le) {
		return le.Code
	}
	return 0
}

func (l *Launcher) start(ctx context.Context, p profile.Profile, spec docker.RunSpec) error {
	banner := BannerPath(l.TempDir, p.Role)
	if err := l.FS.MkdirAll(filepath.Dir(banner), 0o755); err != nil {
		return fmt.Errorf("writing banner: %w", err)
	}
	if err := l.FS.WriteFile(banner, []byte(p.Banner), 0o644); err != nil {
		return fmt.Errorf("writing banner: %w", err)
	}
	if err := l.Engine.Remove(ctx, spec.Name); err != nil {
		return err
	}
	code, err := l.Engine.Run(ctx, spec)
	if err != nil {
		return err
	}
	if code != 0 {
		return &LaunchError{Container: spec.Name, Code: code}
	}
	return nil
}

// Stop force-removes the role's container.
func (l *Launcher) Stop(ctx context.Context, cfg config.LaunchConfig) (string, error) {
	p, err := profile.Lookup(cfg.Role)
	if err != nil {
		return "", err
	}
	name := ContainerName(cfg, p)
	err = l.Engine.Remove(ctx, name)
	telemetry.RecordStop(ctx, string(p.Role), name, err)
	if err != nil {
		return name, err
	}
	l.record(events.Event{Type: events.ContainerStopped, Subject: string(p.Role), Message: name})
	l.logger().Info("stopped", "role", p.Role, "container", name)
	return name, nil
}

// Status is one role's container state.
type Status struct {
	Role      profile.Role
	Container string
	Running   bool
}

// Statuses reports every registered role in display order. resolve
// yields the config for a role so per-role container names apply.
func (l *Launcher) Statuses(ctx context.Context, resolve func(role string) config.LaunchConfig) ([]Status, error) {
	var out []Status
	for _, r := range profile.Roles() {
		p, _ := profile.Lookup(string(r))
		name := ContainerName(resolve(string(r)), p)
		running, err := l.Engine.IsRunning(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Status{Role: r, Container: name, Running: running})
	}
	return out, nil
}

func (l *Launcher) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.NewString()
}

func (l *Launcher) record(e events.Event) {
	if l.Events == nil {
		return
	}
	if e.Actor == "" {
		e.Actor = "launcher"
	}
	l.Events.Record(e)
}

func (l *Launcher) logger() *slog.Logger {
	if l.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Log
}

func (l *Launcher) stdout() io.Writer {
	if l.Stdout == nil {
		return io.Discard
	}
	return l.Stdout
}
