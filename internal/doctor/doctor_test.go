package doctor

import (
	"errors"
	"reflect"
	"testing"
)

// stubCheck is a scripted Check for exercising the runner.
type stubCheck struct {
	name   string
	status CheckStatus
	canFix bool
	fixErr error
	fixes  int
	// healed is the status reported after a successful Fix.
	healed CheckStatus
}

func (s *stubCheck) Name() string { return s.name }

func (s *stubCheck) Run(_ *CheckContext) *CheckResult {
	st := s.status
	if s.fixes > 0 {
		st = s.healed
	}
	return &CheckResult{Name: s.name, Status: st, Message: s.name + " ran"}
}

func (s *stubCheck) CanFix() bool { return s.canFix }

func (s *stubCheck) Fix(_ *CheckContext) error {
	if s.fixErr != nil {
		return s.fixErr
	}
	s.fixes++
	return nil
}

func TestRunCounts(t *testing.T) {
	d := &Doctor{}
	d.Register(&stubCheck{name: "a", status: StatusOK})
	d.Register(&stubCheck{name: "b", status: StatusWarning})
	d.Register(&stubCheck{name: "c", status: StatusError})
	d.Register(&stubCheck{name: "d", status: StatusOK})

	r := d.Run(&CheckContext{Dir: "/tmp"}, false)

	if r.Passed() != 2 || r.Warned() != 1 || r.Failed() != 1 || r.Fixed() != 0 {
		t.Errorf("counts = %d/%d/%d/%d", r.Passed(), r.Warned(), r.Failed(), r.Fixed())
	}
	if r.OK() {
		t.Error("OK() = true with a failed check")
	}
	if got := r.Problems(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("Problems = %v", got)
	}
	if got := r.Summary(); got != "2 passed, 1 warning, 1 failed" {
		t.Errorf("Summary = %q", got)
	}
}

func TestRunWarningsAreOK(t *testing.T) {
	d := &Doctor{}
	d.Register(&stubCheck{name: "w1", status: StatusWarning})
	d.Register(&stubCheck{name: "w2", status: StatusWarning})
	r := d.Run(&CheckContext{}, false)
	if !r.OK() {
		t.Error("warnings should not fail the report")
	}
	if r.Summary() != "2 warnings" {
		t.Errorf("Summary = %q", r.Summary())
	}
}

func TestRunStreamsInOrder(t *testing.T) {
	d := &Doctor{}
	var seen []string
	d.OnResult = func(r *CheckResult) { seen = append(seen, r.Name) }
	for _, n := range []string{"x", "y", "z"} {
		d.Register(&stubCheck{name: n})
	}
	d.Run(&CheckContext{}, false)
	if !reflect.DeepEqual(seen, []string{"x", "y", "z"}) {
		t.Errorf("seen = %v", seen)
	}
}

func TestRunFix(t *testing.T) {
	tests := []struct {
		name      string
		check     *stubCheck
		fix       bool
		wantFixes int
		wantFixed bool
		wantFail  int
	}{
		{"fixed", &stubCheck{name: "c", status: StatusError, canFix: true, healed: StatusOK}, true, 1, true, 0},
		{"not requested", &stubCheck{name: "c", status: StatusError, canFix: true, healed: StatusOK}, false, 0, false, 1},
		{"cannot fix", &stubCheck{name: "c", status: StatusError, healed: StatusOK}, true, 0, false, 1},
		{"fix errors", &stubCheck{name: "c", status: StatusError, canFix: true, fixErr: errors.New("denied")}, true, 0, false, 1},
		{"fix does not heal", &stubCheck{name: "c", status: StatusError, canFix: true, healed: StatusError}, true, 1, false, 1},
		{"passing check untouched", &stubCheck{name: "c", status: StatusOK, canFix: true, healed: StatusOK}, true, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Doctor{}
			d.Register(tt.check)
			r := d.Run(&CheckContext{}, tt.fix)

			if tt.check.fixes != tt.wantFixes {
				t.Errorf("Fix called %d times, want %d", tt.check.fixes, tt.wantFixes)
			}
			if r.Results[0].Fixed != tt.wantFixed {
				t.Errorf("Fixed = %v, want %v", r.Results[0].Fixed, tt.wantFixed)
			}
			if r.Failed() != tt.wantFail {
				t.Errorf("Failed = %d, want %d", r.Failed(), tt.wantFail)
			}
		})
	}
}

func TestRunFixErrorRecordedInDetails(t *testing.T) {
	d := &Doctor{}
	d.Register(&stubCheck{name: "cache", status: StatusWarning, canFix: true, fixErr: errors.New("read-only fs")})
	r := d.Run(&CheckContext{}, true)
	if got := r.Results[0].Details; len(got) != 1 || got[0] != "fix failed: read-only fs" {
		t.Errorf("Details = %v", got)
	}
}

func TestSummaryEmpty(t *testing.T) {
	r := (&Doctor{}).Run(&CheckContext{}, false)
	if r.Summary() != "no checks ran" {
		t.Errorf("Summary = %q", r.Summary())
	}
	if !r.OK() {
		t.Error("empty report should be OK")
	}
}

func TestSummaryFixed(t *testing.T) {
	d := &Doctor{}
	d.Register(&stubCheck{name: "c", status: StatusWarning, canFix: true, healed: StatusOK})
	r := d.Run(&CheckContext{}, true)
	if r.Summary() != "1 passed, 1 fixed" {
		t.Errorf("Summary = %q", r.Summary())
	}
}
