// Package docker drives the local container engine through its CLI.
//
// Only a fixed verb set is used: force-remove by name, run detached,
// exec into a container, list running containers filtered by name, and
// image inspect. The engine's own state is the source of truth; nothing
// is cached between calls.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RoM4iK/tinker-agent/internal/runner"
)

// Binary is the engine CLI invoked when no other is configured.
const Binary = "docker"

// Client issues engine commands through a [runner.Runner].
type Client struct {
	r   runner.Runner
	bin string
}

// New returns a Client using the docker CLI.
func New(r runner.Runner) *Client {
	return &Client{r: r, bin: Binary}
}

// Mount is a bind mount from the host into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

func (m Mount) String() string {
	s := m.Source + ":" + m.Target
	if m.ReadOnly {
		s += ":ro"
	}
	return s
}

// EnvVar is one environment variable passed with -e.
type EnvVar struct {
	Name  string
	Value string
}

// RunSpec describes a detached container. [RunSpec.Args] renders it
// deterministically: identical specs always produce identical argument
// lists.
type RunSpec struct {
	Name    string
	Network string
	Restart string
	Tmpfs   []string
	Labels  map[string]string
	Mounts  []Mount
	Env     []EnvVar
	Image   string
	Command []string
}

// Args returns the argument list for `docker run`, starting with "run".
func (s RunSpec) Args() []string {
	args := []string{"run", "-d", "--name", s.Name}
	if s.Network != "" {
		args = append(args, "--network", s.Network)
	}
	if s.Restart != "" {
		args = append(args, "--restart", s.Restart)
	}
	for _, t := range s.Tmpfs {
		args = append(args, "--tmpfs", t)
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+s.Labels[k])
	}
	for _, m := range s.Mounts {
		args = append(args, "-v", m.String())
	}
	for _, e := range s.Env {
		args = append(args, "-e", e.Name+"="+e.Value)
	}
	args = append(args, s.Image)
	return append(args, s.Command...)
}

// Remove force-removes the named container. A missing container is not
// an error.
func (c *Client) Remove(ctx context.Context, name string) error {
	res, err := c.r.Output(ctx, c.bin, "rm", "-f", name)
	if err != nil {
		return fmt.Errorf("removing container %q: %w", name, err)
	}
	if res.Code != 0 && !strings.Contains(res.Stderr, "No such container") {
		return fmt.Errorf("removing container %q: exit %d: %s", name, res.Code, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Run starts a detached container from spec with the engine's output
// streamed to the runner's writers. It returns the engine's exit code.
func (c *Client) Run(ctx context.Context, spec RunSpec) (int, error) {
	code, err := c.r.Run(ctx, c.bin, spec.Args()...)
	if err != nil {
		return code, fmt.Errorf("starting container %q: %w", spec.Name, err)
	}
	return code, nil
}

// IsRunning reports whether a container with exactly this name is
// running.
func (c *Client) IsRunning(ctx context.Context, name string) (bool, error) {
	res, err := c.r.Output(ctx, c.bin, "ps", "--filter", "name=^"+name+"$", "--format", "{{.Names}}")
	if err != nil {
		return false, fmt.Errorf("listing containers: %w", err)
	}
	if res.Code != 0 {
		return false, fmt.Errorf("listing containers: exit %d: %s", res.Code, strings.TrimSpace(res.Stderr))
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// Exec runs cmd inside the named container and captures its output.
// An empty user runs as the container's default user.
func (c *Client) Exec(ctx context.Context, name, user string, cmd ...string) (runner.Result, error) {
	args := []string{"exec"}
	if user != "" {
		args = append(args, "-u", user)
	}
	args = append(args, name)
	res, err := c.r.Output(ctx, c.bin, append(args, cmd...)...)
	if err != nil {
		return res, fmt.Errorf("exec in %q: %w", name, err)
	}
	return res, nil
}

// Attach hands the terminal to cmd running inside the named container.
// tty adds -t; without a terminal the session runs with stdin only.
func (c *Client) Attach(name, user string, tty bool, cmd ...string) error {
	args := []string{"exec", "-i"}
	if tty {
		args = []string{"exec", "-it"}
	}
	if user != "" {
		args = append(args, "-u", user)
	}
	args = append(args, name)
	return c.r.Exec(c.bin, append(args, cmd...)...)
}

// ImageExists reports whether image is present locally.
func (c *Client) ImageExists(ctx context.Context, image string) (bool, error) {
	res, err := c.r.Output(ctx, c.bin, "image", "inspect", "--format", "{{.Id}}", image)
	if err != nil {
		return false, fmt.Errorf("inspecting image %q: %w", image, err)
	}
	return res.Code == 0, nil
}

// Version returns the engine server version. It fails when the daemon
// is unreachable.
func (c *Client) Version(ctx context.Context) (string, error) {
	res, err := c.r.Output(ctx, c.bin, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("querying engine: %w", err)
	}
	if res.Code != 0 {
		return "", fmt.Errorf("querying engine: exit %d: %s", res.Code, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}
