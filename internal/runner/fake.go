package runner

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation on [Fake].
type Call struct {
	Method string // "Run", "Output", "Pipe", or "Exec"
	Name   string
	Args   []string
	Input  string
}

// Line returns the call as a single space-joined command line.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Fake is a scripted [Runner] for tests. Results are matched by command
// line prefix; the longest matching prefix wins. Queued results are
// consumed in order and the last one repeats. Unmatched commands
// succeed with empty output.
type Fake struct {
	mu      sync.Mutex
	Calls   []Call
	scripts map[string][]Result
	errs    map[string]error
	ExecErr error
}

// NewFake returns an empty [Fake].
func NewFake() *Fake {
	return &Fake{scripts: make(map[string][]Result), errs: make(map[string]error)}
}

// On queues results for commands whose line starts with prefix.
func (f *Fake) On(prefix string, results ...Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[prefix] = append(f.scripts[prefix], results...)
	return f
}

// Fail makes commands starting with prefix fail to start.
func (f *Fake) Fail(prefix string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[prefix] = err
	return f
}

func (f *Fake) record(c Call) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, c)
	line := c.Line()

	best := ""
	for p := range f.errs {
		if strings.HasPrefix(line, p) && len(p) >= len(best) {
			best = p
		}
	}
	if err, ok := f.errs[best]; ok {
		return Result{Code: -1}, err
	}

	best, found := "", false
	for p := range f.scripts {
		if strings.HasPrefix(line, p) && len(p) >= len(best) {
			best, found = p, true
		}
	}
	if !found {
		return Result{}, nil
	}
	q := f.scripts[best]
	if len(q) == 0 {
		return Result{}, nil
	}
	res := q[0]
	if len(q) > 1 {
		f.scripts[best] = q[1:]
	}
	return res, nil
}

// Run implements [Runner].
func (f *Fake) Run(_ context.Context, name string, args ...string) (int, error) {
	res, err := f.record(Call{Method: "Run", Name: name, Args: args})
	return res.Code, err
}

// Output implements [Runner].
func (f *Fake) Output(_ context.Context, name string, args ...string) (Result, error) {
	return f.record(Call{Method: "Output", Name: name, Args: args})
}

// Pipe implements [Runner].
func (f *Fake) Pipe(_ context.Context, input string, name string, args ...string) (Result, error) {
	return f.record(Call{Method: "Pipe", Name: name, Args: args, Input: input})
}

// Exec implements [Runner].
func (f *Fake) Exec(name string, args ...string) error {
	if _, err := f.record(Call{Method: "Exec", Name: name, Args: args}); err != nil {
		return err
	}
	return f.ExecErr
}

// Lines returns every recorded call as a command line.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.Line()
	}
	return out
}

// Compile-time interface checks.
var (
	_ Runner = (*OS)(nil)
	_ Runner = DryRun{}
	_ Runner = (*Fake)(nil)
)
