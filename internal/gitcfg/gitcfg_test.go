package gitcfg

import (
	"context"
	"strings"
	"testing"

	"github.com/RoM4iK/tinker-agent/internal/runner"
)

func TestSet(t *testing.T) {
	f := runner.NewFake()
	if err := Global(f).Set(context.Background(), "user.name", "Tinker Bot"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(f.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(f.Calls))
	}
	c := f.Calls[0]
	if c.Name != "git" || strings.Join(c.Args, "|") != "config|--global|user.name|Tinker Bot" {
		t.Errorf("call = %s %q", c.Name, c.Args)
	}
}

func TestSetFailure(t *testing.T) {
	f := runner.NewFake().On("git config", runner.Result{Code: 255, Stderr: "could not lock config file"})
	err := Global(f).Set(context.Background(), "user.email", "x@y")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "could not lock") || !strings.Contains(err.Error(), "user.email") {
		t.Errorf("err = %v", err)
	}
}

func TestGet(t *testing.T) {
	f := runner.NewFake().
		On("git config --global --get user.name", runner.Result{Stdout: "Tinker Bot\n"}).
		On("git config --global --get user.email", runner.Result{Code: 1})
	cfg := Global(f)
	ctx := context.Background()

	v, err := cfg.Get(ctx, "user.name")
	if err != nil || v != "Tinker Bot" {
		t.Errorf("Get(user.name) = %q, %v", v, err)
	}
	v, err = cfg.Get(ctx, "user.email")
	if err != nil || v != "" {
		t.Errorf("Get(unset) = %q, %v", v, err)
	}
}

func TestInsteadOf(t *testing.T) {
	f := runner.NewFake()
	if err := Global(f).InsteadOf(context.Background(), "github.com"); err != nil {
		t.Fatal(err)
	}
	want := "git config --global url.https://github.com/.insteadOf git@github.com:"
	if got := f.Lines()[0]; got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}
