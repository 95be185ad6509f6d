package doctor

import (
	"fmt"
	"strings"
)

// Report holds the results of a doctor run in registration order.
type Report struct {
	Results []*CheckResult
}

func (r *Report) count(match func(*CheckResult) bool) int {
	n := 0
	for _, res := range r.Results {
		if match(res) {
			n++
		}
	}
	return n
}

// Passed counts checks that passed, including those fixed by --fix.
func (r *Report) Passed() int {
	return r.count(func(c *CheckResult) bool { return c.Fixed || c.Status == StatusOK })
}

// Warned counts unfixed warnings.
func (r *Report) Warned() int {
	return r.count(func(c *CheckResult) bool { return !c.Fixed && c.Status == StatusWarning })
}

// Failed counts unfixed errors.
func (r *Report) Failed() int {
	return r.count(func(c *CheckResult) bool { return !c.Fixed && c.Status == StatusError })
}

// Fixed counts checks remediated by --fix.
func (r *Report) Fixed() int {
	return r.count(func(c *CheckResult) bool { return c.Fixed })
}

// Problems names the checks that still warn or fail.
func (r *Report) Problems() []string {
	var out []string
	for _, res := range r.Results {
		if !res.Fixed && res.Status != StatusOK {
			out = append(out, res.Name)
		}
	}
	return out
}

// OK reports whether no check failed. Warnings do not block a launch.
func (r *Report) OK() bool { return r.Failed() == 0 }

// Summary renders the counts, e.g. "4 passed, 1 warning, 1 fixed".
func (r *Report) Summary() string {
	var parts []string
	add := func(n int, one, many string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+one)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, many))
		}
	}
	add(r.Passed(), "passed", "passed")
	add(r.Warned(), "warning", "warnings")
	add(r.Failed(), "failed", "failed")
	add(r.Fixed(), "fixed", "fixed")
	if len(parts) == 0 {
		return "no checks ran"
	}
	return strings.Join(parts, ", ")
}

// Doctor runs registered checks in order.
type Doctor struct {
	checks []Check

	// OnResult, if set, is called with each result as soon as its
	// check (and any fix) completes.
	OnResult func(*CheckResult)
}

// Register appends c to the run order.
func (d *Doctor) Register(c Check) {
	d.checks = append(d.checks, c)
}

// Run executes every check. With fix set, a fixable check that did not
// pass is fixed and re-run; it counts as fixed only if the re-run passes.
func (d *Doctor) Run(ctx *CheckContext, fix bool) *Report {
	rep := &Report{}
	for _, c := range d.checks {
		res := c.Run(ctx)
		if fix && res.Status != StatusOK && c.CanFix() {
			if err := c.Fix(ctx); err != nil {
				res.Details = append(res.Details, "fix failed: "+err.Error())
			} else if again := c.Run(ctx); again.Status == StatusOK {
				res = again
				res.Fixed = true
			}
		}
		rep.Results = append(rep.Results, res)
		if d.OnResult != nil {
			d.OnResult(res)
		}
	}
	return rep
}
