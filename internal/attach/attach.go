// Package attach connects the invoking terminal to a role's session.
//
// The container is started on demand. The session user is found by
// walking an ordered list of probes, and the multiplexer session is
// polled for a bounded time before the terminal is handed over.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/events"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
	"github.com/RoM4iK/tinker-agent/internal/profile"
	"github.com/RoM4iK/tinker-agent/internal/telemetry"
)

// Session and process names inside the agent image.
const (
	SessionName       = "agent"
	SupervisorProcess = "agent-bridge-tmux"
	MultiplexerMarker = "tmux new-session"
)

// DefaultUser is the image's application account, used when every
// probe comes back empty.
const DefaultUser = "rails"

// Timing of the auto-start settle and the readiness poll.
const (
	SettleDelay  = 3 * time.Second
	PollAttempts = 10
	PollInterval = time.Second
)

// ErrUserDiscoveryExhausted is returned with [DefaultUser] when no probe
// identified the session user. It is a warning, not a failure.
var ErrUserDiscoveryExhausted = errors.New("could not determine session user")

// Starter launches a role container.
type Starter interface {
	Launch(ctx context.Context, cfg config.LaunchConfig) (launcher.Result, error)
}

// Attacher hands the terminal to a role's multiplexer session.
type Attacher struct {
	Engine  *docker.Client
	Starter Starter
	Events  events.Recorder
	Log     *slog.Logger
	Stderr  io.Writer

	// HostUID is the invoking user's numeric id. Defaults to os.Getuid.
	HostUID func() int
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
	// TTY reports whether stdin is a terminal. Defaults to checking os.Stdin.
	TTY func() bool
	// BeforeExec runs just before the process is replaced, e.g. to
	// flush telemetry.
	BeforeExec func()
	// Launched means the caller just started the container, so the
	// settle delay applies even though it is already running.
	Launched bool
}

// Probe is one step of user discovery. An empty result passes to the
// next probe.
type Probe struct {
	Name string
	Find func(ctx context.Context, a *Attacher, container string) string
}

// Probes is the discovery chain in priority order.
var Probes = []Probe{
	{Name: "supervisor", Find: supervisorUser},
	{Name: "multiplexer", Find: multiplexerUser},
	{Name: "identity", Find: effectiveUser},
	{Name: "host-uid", Find: hostMappedUser},
}

// Target is what [Attacher.Attach] connected to.
type Target struct {
	Container   string
	User        string
	Probe       string
	AutoStarted bool
	Ready       bool
}

// Attach starts the role's container if needed, discovers the session
// user, waits for the session, and execs into it. On success it does
// not return on platforms that replace the process.
func (a *Attacher) Attach(ctx context.Context, cfg config.LaunchConfig) (Target, error) {
	p, err := profile.Lookup(cfg.Role)
	if err != nil {
		return Target{}, err
	}
	t, err := a.Prepare(ctx, cfg, p)
	telemetry.RecordAttach(ctx, string(p.Role), t.Container, t.User, t.AutoStarted, err)
	if err != nil {
		return t, err
	}
	a.record(events.Event{
		Type:    events.SessionAttached,
		Subject: string(p.Role),
		Message: t.Container,
		Payload: events.MustPayload(map[string]any{"user": t.User, "probe": t.Probe, "ready": t.Ready}),
	})
	if a.BeforeExec != nil {
		a.BeforeExec()
	}
	return t, a.Engine.Attach(t.Container, t.User, a.tty(), "tmux", "attach", "-t", SessionName)
}

// Prepare does everything up to the attach itself.
func (a *Attacher) Prepare(ctx context.Context, cfg config.LaunchConfig, p profile.Profile) (Target, error) {
	t := Target{Container: launcher.ContainerName(cfg, p)}
	log := a.logger().With("role", p.Role, "container", t.Container)

	running, err := a.Engine.IsRunning(ctx, t.Container)
	if err != nil {
		return t, err
	}
	if !running {
		fmt.Fprintf(a.stderr(), "Container %s is not running, starting it...\n", t.Container) //nolint:errcheck // best-effort stderr
		if _, err := a.Starter.Launch(ctx, cfg); err != nil {
			return t, fmt.Errorf("auto-start: %w", err)
		}
		t.AutoStarted = true
		a.record(events.Event{Type: events.SessionAutoStarted, Subject: string(p.Role), Message: t.Container})
		a.sleep(SettleDelay)
	} else if a.Launched {
		a.sleep(SettleDelay)
	}

	t.User, t.Probe, err = a.DiscoverUser(ctx, t.Container)
	if errors.Is(err, ErrUserDiscoveryExhausted) {
		fmt.Fprintf(a.stderr(), "warning: %v in %s, using %q\n", err, t.Container, t.User) //nolint:errcheck // best-effort stderr
	}
	log.Debug("session user", "user", t.User, "probe", t.Probe)

	t.Ready = a.WaitForSession(ctx, t.Container, t.User)
	if !t.Ready {
		fmt.Fprintf(a.stderr(), "warning: session %q not found after %d attempts, attaching anyway\n", SessionName, PollAttempts) //nolint:errcheck // best-effort stderr
	}
	return t, nil
}

// DiscoverUser returns the first non-empty probe result and the probe
// name. When all probes are empty it returns [DefaultUser] with
// [ErrUserDiscoveryExhausted].
func (a *Attacher) DiscoverUser(ctx context.Context, container string) (string, string, error) {
	for _, p := range Probes {
		if u := strings.TrimSpace(p.Find(ctx, a, container)); u != "" {
			telemetry.RecordUserDiscovery(ctx, container, p.Name, u)
			return u, p.Name, nil
		}
	}
	telemetry.RecordUserDiscovery(ctx, container, "default", DefaultUser)
	return DefaultUser, "default", ErrUserDiscoveryExhausted
}

// WaitForSession polls for the multiplexer session under user. It
// reports whether the session appeared.
func (a *Attacher) WaitForSession(ctx context.Context, container, user string) bool {
	for i := 0; i < PollAttempts; i++ {
		if i > 0 {
			a.sleep(PollInterval)
		}
		if ctx.Err() != nil {
			return false
		}
		res, err := a.Engine.Exec(ctx, container, user, "tmux", "has-session", "-t", SessionName)
		if err == nil && res.Code == 0 {
			return true
		}
	}
	return false
}

func (a *Attacher) exec(ctx context.Context, container string, cmd ...string) string {
	res, err := a.Engine.Exec(ctx, container, "", cmd...)
	if err != nil || res.Code != 0 {
		return ""
	}
	return res.Stdout
}

// processOwner returns the USER column of the first `ps aux` line
// containing marker.
func processOwner(psOut, marker string) string {
	for _, line := range strings.Split(psOut, "\n") {
		if !strings.Contains(line, marker) {
			continue
		}
		if f := strings.Fields(line); len(f) > 0 {
			return f[0]
		}
	}
	return ""
}

func supervisorUser(ctx context.Context, a *Attacher, container string) string {
	return processOwner(a.exec(ctx, container, "ps", "aux"), SupervisorProcess)
}

func multiplexerUser(ctx context.Context, a *Attacher, container string) string {
	return processOwner(a.exec(ctx, container, "ps", "aux"), MultiplexerMarker)
}

func effectiveUser(ctx context.Context, a *Attacher, container string) string {
	u := strings.TrimSpace(a.exec(ctx, container, "whoami"))
	if u == "root" {
		return ""
	}
	return u
}

func hostMappedUser(ctx context.Context, a *Attacher, container string) string {
	entry := strings.TrimSpace(a.exec(ctx, container, "getent", "passwd", strconv.Itoa(a.hostUID())))
	name, _, _ := strings.Cut(entry, ":")
	return name
}

func (a *Attacher) record(e events.Event) {
	if a.Events == nil {
		return
	}
	if e.Actor == "" {
		e.Actor = "attach"
	}
	a.Events.Record(e)
}

func (a *Attacher) hostUID() int {
	if a.HostUID != nil {
		return a.HostUID()
	}
	return os.Getuid()
}

func (a *Attacher) sleep(d time.Duration) {
	if a.Sleep != nil {
		a.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (a *Attacher) tty() bool {
	if a.TTY != nil {
		return a.TTY()
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (a *Attacher) logger() *slog.Logger {
	if a.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Log
}

func (a *Attacher) stderr() io.Writer {
	if a.Stderr == nil {
		return io.Discard
	}
	return a.Stderr
}
