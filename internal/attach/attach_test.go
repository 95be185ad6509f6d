package attach

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/events"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

const psHeader = "USER PID %CPU %MEM VSZ RSS TTY STAT START TIME COMMAND\n"

// box answers exec commands the way an agent container would.
type box struct {
	ps       string
	whoami   string
	passwd   map[string]string // uid -> passwd line
	sessions int               // has-session calls that fail before success; -1 never succeeds
	hasCalls int
	users    []string // users seen on has-session
}

func (b *box) exec(_, user string, cmd []string) runner.Result {
	switch strings.Join(cmd, " ") {
	case "ps aux":
		return runner.Result{Stdout: psHeader + b.ps}
	case "whoami":
		return runner.Result{Stdout: b.whoami + "\n"}
	case "tmux has-session -t agent":
		b.hasCalls++
		b.users = append(b.users, user)
		if b.sessions < 0 || b.hasCalls <= b.sessions {
			return runner.Result{Code: 1, Stderr: "can't find session: agent"}
		}
		return runner.Result{}
	}
	if len(cmd) == 3 && cmd[0] == "getent" && cmd[1] == "passwd" {
		if line, ok := b.passwd[cmd[2]]; ok {
			return runner.Result{Stdout: line + "\n"}
		}
		return runner.Result{Code: 2}
	}
	return runner.Result{Code: 127, Stderr: cmd[0] + ": not found"}
}

type fakeStarter struct {
	engine *docker.FakeEngine
	err    error
	calls  int
}

func (s *fakeStarter) Launch(ctx context.Context, cfg config.LaunchConfig) (launcher.Result, error) {
	s.calls++
	if s.err != nil {
		return launcher.Result{}, s.err
	}
	name := "tinker-autonomous-worker"
	_, err := docker.New(s.engine).Run(ctx, docker.RunSpec{Name: name, Image: cfg.Image})
	return launcher.Result{Container: name}, err
}

type harness struct {
	engine  *docker.FakeEngine
	box     *box
	starter *fakeStarter
	events  *events.Fake
	stderr  bytes.Buffer
	sleeps  []time.Duration
	order   []string
	a       *Attacher
}

func newHarness(t *testing.T, running bool) *harness {
	t.Helper()
	h := &harness{engine: docker.NewFakeEngine(), box: &box{passwd: map[string]string{}}, events: events.NewFake()}
	h.engine.OnExec = h.box.exec
	h.starter = &fakeStarter{engine: h.engine}
	if running {
		h.engine.Containers["tinker-autonomous-worker"] = &docker.Container{Name: "tinker-autonomous-worker", Running: true}
	}
	h.a = &Attacher{
		Engine:     docker.New(h.engine),
		Starter:    h.starter,
		Events:     h.events,
		Stderr:     &h.stderr,
		HostUID:    func() int { return 1000 },
		Sleep:      func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
		TTY:        func() bool { return true },
		BeforeExec: func() { h.order = append(h.order, "before-exec") },
	}
	return h
}

func workerConfig() config.LaunchConfig {
	return config.LaunchConfig{Role: "worker", Image: "tinker-sandbox"}
}

func TestDiscoverUserOrder(t *testing.T) {
	tests := []struct {
		name      string
		box       box
		wantUser  string
		wantProbe string
		wantErr   error
	}{
		{
			name:      "supervisor wins",
			box:       box{ps: "agent 12 0.0 0.1 1 1 ? S 10:00 0:00 agent-bridge-tmux\nrails 13 0.0 0.1 1 1 ? S 10:00 0:00 tmux new-session -d -s agent\n", whoami: "root"},
			wantUser:  "agent",
			wantProbe: "supervisor",
		},
		{
			name:      "multiplexer",
			box:       box{ps: "rails 13 0.0 0.1 1 1 ? S 10:00 0:00 tmux new-session -d -s agent\n", whoami: "root"},
			wantUser:  "rails",
			wantProbe: "multiplexer",
		},
		{
			name:      "effective identity",
			box:       box{whoami: "app"},
			wantUser:  "app",
			wantProbe: "identity",
		},
		{
			name:      "root maps host uid",
			box:       box{whoami: "root", passwd: map[string]string{"1000": "dev:x:1000:1000::/home/dev:/bin/bash"}},
			wantUser:  "dev",
			wantProbe: "host-uid",
		},
		{
			name:      "unresolvable identity maps host uid",
			box:       box{passwd: map[string]string{"1000": "dev:x:1000:1000::/home/dev:/bin/bash"}},
			wantUser:  "dev",
			wantProbe: "host-uid",
		},
		{
			name:      "exhausted",
			box:       box{whoami: "root", passwd: map[string]string{}},
			wantUser:  DefaultUser,
			wantProbe: "default",
			wantErr:   ErrUserDiscoveryExhausted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			b := tt.box
			h.engine.OnExec = b.exec

			user, probe, err := h.a.DiscoverUser(context.Background(), "tinker-autonomous-worker")

			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantProbe, probe)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAttachRunningContainer(t *testing.T) {
	h := newHarness(t, true)
	h.box.ps = "agent 12 0.0 0.1 1 1 ? S 10:00 0:00 /usr/local/bin/agent-bridge-tmux\n"

	target, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)

	assert.False(t, target.AutoStarted)
	assert.True(t, target.Ready)
	assert.Equal(t, "agent", target.User)
	assert.Zero(t, h.starter.calls)
	assert.Empty(t, h.sleeps)
	assert.Equal(t, []string{"docker", "exec", "-it", "-u", "agent", "tinker-autonomous-worker", "tmux", "attach", "-t", "agent"}, h.engine.Attached)
	assert.Equal(t, []string{"before-exec"}, h.order)
	assert.Equal(t, []string{events.SessionAttached}, h.events.Types())
}

func TestAttachMapsHostUID(t *testing.T) {
	h := newHarness(t, true)
	h.box.whoami = "root"
	h.box.passwd["1000"] = "dev:x:1000:1000::/home/dev:/bin/bash"

	target, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)

	assert.Equal(t, "dev", target.User)
	assert.Equal(t, []string{"dev"}, h.box.users)
	assert.Contains(t, h.engine.Attached, "dev")
}

func TestAttachAutoStarts(t *testing.T) {
	h := newHarness(t, false)
	h.box.whoami = "rails"

	target, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)

	assert.True(t, target.AutoStarted)
	assert.Equal(t, 1, h.starter.calls)
	require.NotEmpty(t, h.sleeps)
	assert.Equal(t, SettleDelay, h.sleeps[0])
	assert.Contains(t, h.stderr.String(), "not running, starting it")
	assert.Equal(t, []string{events.SessionAutoStarted, events.SessionAttached}, h.events.Types())
}

func TestAttachAfterLaunchSettles(t *testing.T) {
	h := newHarness(t, true)
	h.box.whoami = "rails"
	h.a.Launched = true

	target, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)

	assert.False(t, target.AutoStarted)
	assert.Zero(t, h.starter.calls)
	require.NotEmpty(t, h.sleeps)
	assert.Equal(t, SettleDelay, h.sleeps[0])
	assert.NotContains(t, h.stderr.String(), "not running")
}

func TestAttachAutoStartFailure(t *testing.T) {
	h := newHarness(t, false)
	h.starter.err = launcher.ErrMissingAuth

	_, err := h.a.Attach(context.Background(), workerConfig())

	require.ErrorIs(t, err, launcher.ErrMissingAuth)
	assert.Nil(t, h.engine.Attached)
	assert.Empty(t, h.order)
}

func TestAttachDefaultUserWarns(t *testing.T) {
	h := newHarness(t, true)
	h.box.whoami = "root"

	target, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)

	assert.Equal(t, DefaultUser, target.User)
	assert.Equal(t, "default", target.Probe)
	assert.Contains(t, h.stderr.String(), `using "rails"`)
}

func TestWaitForSessionBounded(t *testing.T) {
	h := newHarness(t, true)
	h.box.whoami = "rails"
	h.box.sessions = -1

	target, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)

	assert.False(t, target.Ready)
	assert.Equal(t, PollAttempts, h.box.hasCalls)
	assert.Len(t, h.sleeps, PollAttempts-1)
	for _, d := range h.sleeps {
		assert.Equal(t, PollInterval, d)
	}
	assert.Contains(t, h.stderr.String(), "attaching anyway")
	assert.NotNil(t, h.engine.Attached)
}

func TestWaitForSessionEventually(t *testing.T) {
	h := newHarness(t, true)
	h.box.sessions = 3

	ready := h.a.WaitForSession(context.Background(), "tinker-autonomous-worker", "rails")

	assert.True(t, ready)
	assert.Equal(t, 4, h.box.hasCalls)
	assert.Len(t, h.sleeps, 3)
}

func TestWaitForSessionCanceled(t *testing.T) {
	h := newHarness(t, true)
	h.box.sessions = -1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, h.a.WaitForSession(ctx, "tinker-autonomous-worker", "rails"))
	assert.Zero(t, h.box.hasCalls)
}

func TestAttachWithoutTTY(t *testing.T) {
	h := newHarness(t, true)
	h.box.whoami = "rails"
	h.a.TTY = func() bool { return false }

	_, err := h.a.Attach(context.Background(), workerConfig())
	require.NoError(t, err)
	assert.Equal(t, "-i", h.engine.Attached[2])
}

func TestAttachUnknownRole(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.a.Attach(context.Background(), config.LaunchConfig{Role: "nobody"})
	require.Error(t, err)
	assert.Empty(t, h.engine.Calls)
}

func TestProcessOwner(t *testing.T) {
	out := psHeader + "root 1 0.0 0.0 1 1 ? Ss 10:00 0:00 /sbin/init\n" +
		"dev 40 0.0 0.0 1 1 ? S 10:00 0:00 tmux new-session -d -s agent\n"
	assert.Equal(t, "dev", processOwner(out, MultiplexerMarker))
	assert.Equal(t, "", processOwner(out, SupervisorProcess))
	assert.Equal(t, "", processOwner("", SupervisorProcess))
}

func TestEngineErrorPropagates(t *testing.T) {
	h := newHarness(t, true)
	h.a.Engine = docker.New(runner.NewFake().Fail("docker ps", errors.New("daemon down")))

	_, err := h.a.Attach(context.Background(), workerConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon down")
}
