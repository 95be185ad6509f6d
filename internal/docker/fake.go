package docker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/RoM4iK/tinker-agent/internal/runner"
)

// Container is the state [FakeEngine] keeps per container.
type Container struct {
	Name    string
	Image   string
	Labels  map[string]string
	Env     map[string]string
	Mounts  []string
	Running bool
}

// ExecFunc answers a `docker exec` against a fake container.
type ExecFunc func(container, user string, cmd []string) runner.Result

// FakeEngine is a [runner.Runner] that interprets the docker verbs used
// by [Client] against in-memory state. Name collisions on run fail the
// way the real engine does, so callers must remove before creating.
type FakeEngine struct {
	mu         sync.Mutex
	Containers map[string]*Container
	Images     map[string]bool
	Calls      []runner.Call

	// RunCode, when non-zero, makes every `run` fail with that code.
	RunCode int
	// OnExec answers exec commands. Nil answers exit 0 with no output.
	OnExec ExecFunc
	// Attached records the last Exec (attach) argument list.
	Attached []string
}

// NewFakeEngine returns an empty engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{Containers: make(map[string]*Container), Images: make(map[string]bool)}
}

// Running returns the names of running containers.
func (e *FakeEngine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for name, c := range e.Containers {
		if c.Running {
			out = append(out, name)
		}
	}
	return out
}

func (e *FakeEngine) handle(method, name string, args []string) runner.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, runner.Call{Method: method, Name: name, Args: args})
	if name != Binary || len(args) == 0 {
		return runner.Result{Code: 127, Stderr: name + ": not found"}
	}
	switch args[0] {
	case "rm":
		target := args[len(args)-1]
		if _, ok := e.Containers[target]; !ok {
			return runner.Result{Code: 1, Stderr: "Error response from daemon: No such container: " + target}
		}
		delete(e.Containers, target)
		return runner.Result{}
	case "run":
		return e.run(args[1:])
	case "ps":
		return e.ps(args[1:])
	case "exec":
		return e.exec(args[1:])
	case "image":
		img := args[len(args)-1]
		if !e.Images[img] {
			return runner.Result{Code: 1, Stderr: "Error: No such image: " + img}
		}
		return runner.Result{Stdout: "sha256:fake\n"}
	case "version":
		return runner.Result{Stdout: "27.0.0-fake\n"}
	}
	return runner.Result{Code: 125, Stderr: "unknown command " + args[0]}
}

func (e *FakeEngine) run(args []string) runner.Result {
	c := &Container{Labels: map[string]string{}, Env: map[string]string{}, Running: true}
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			break
		}
		if a == "-d" {
			continue
		}
		if i+1 >= len(args) {
			return runner.Result{Code: 125, Stderr: "flag needs an argument: " + a}
		}
		i++
		v := args[i]
		switch a {
		case "--name":
			c.Name = v
		case "--label":
			k, val, _ := strings.Cut(v, "=")
			c.Labels[k] = val
		case "-e":
			k, val, _ := strings.Cut(v, "=")
			c.Env[k] = val
		case "-v":
			c.Mounts = append(c.Mounts, v)
		}
	}
	if i >= len(args) {
		return runner.Result{Code: 125, Stderr: "requires at least 1 argument"}
	}
	c.Image = args[i]
	if e.RunCode != 0 {
		return runner.Result{Code: e.RunCode, Stderr: "fake run failure"}
	}
	if _, exists := e.Containers[c.Name]; exists {
		return runner.Result{Code: 125, Stderr: fmt.Sprintf("Conflict. The container name %q is already in use", "/"+c.Name)}
	}
	e.Containers[c.Name] = c
	return runner.Result{Stdout: "fakecontainerid\n"}
}

func (e *FakeEngine) ps(args []string) runner.Result {
	want := ""
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--filter" && strings.HasPrefix(args[i+1], "name=") {
			want = strings.TrimSuffix(strings.TrimPrefix(args[i+1], "name=^"), "$")
		}
	}
	var b strings.Builder
	for name, c := range e.Containers {
		if c.Running && (want == "" || name == want) {
			b.WriteString(name + "\n")
		}
	}
	return runner.Result{Stdout: b.String()}
}

func (e *FakeEngine) exec(args []string) runner.Result {
	user := ""
	i := 0
	for ; i < len(args) && strings.HasPrefix(args[i], "-"); i++ {
		if args[i] == "-u" && i+1 < len(args) {
			i++
			user = args[i]
		}
	}
	if i >= len(args) {
		return runner.Result{Code: 125, Stderr: "requires at least 2 arguments"}
	}
	name := args[i]
	c, ok := e.Containers[name]
	if !ok || !c.Running {
		return runner.Result{Code: 1, Stderr: "Error response from daemon: container " + name + " is not running"}
	}
	if e.OnExec == nil {
		return runner.Result{}
	}
	return e.OnExec(name, user, args[i+1:])
}

// Run implements [runner.Runner].
func (e *FakeEngine) Run(_ context.Context, name string, args ...string) (int, error) {
	return e.handle("Run", name, args).Code, nil
}

// Output implements [runner.Runner].
func (e *FakeEngine) Output(_ context.Context, name string, args ...string) (runner.Result, error) {
	return e.handle("Output", name, args), nil
}

// Pipe implements [runner.Runner].
func (e *FakeEngine) Pipe(_ context.Context, _ string, name string, args ...string) (runner.Result, error) {
	return e.handle("Pipe", name, args), nil
}

// Exec implements [runner.Runner] by recording the attach.
func (e *FakeEngine) Exec(name string, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, runner.Call{Method: "Exec", Name: name, Args: args})
	e.Attached = append([]string{name}, args...)
	return nil
}

var _ runner.Runner = (*FakeEngine)(nil)
