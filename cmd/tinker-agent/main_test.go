package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/rogpeppe/go-internal/testscript"
	"github.com/spf13/pflag"

	"github.com/RoM4iK/tinker-agent/internal/config"
	"github.com/RoM4iK/tinker-agent/internal/credential"
	"github.com/RoM4iK/tinker-agent/internal/docker"
	"github.com/RoM4iK/tinker-agent/internal/doctor"
	"github.com/RoM4iK/tinker-agent/internal/events"
	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/RoM4iK/tinker-agent/internal/launcher"
	"github.com/RoM4iK/tinker-agent/internal/runner"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"tinker-agent": func() { os.Exit(run(os.Args[1:], os.Stdout, os.Stderr)) },
	})
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
	})
}

// --- run ---

func TestRunNoArgs(t *testing.T) {
	var stdout bytes.Buffer
	code := run(nil, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Errorf("run(nil) = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "Available Commands") {
		t.Errorf("stdout missing help text: %q", stdout.String())
	}
}

func TestRunUnknownRole(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"janitor"}, &bytes.Buffer{}, &stderr)
	if code != 1 {
		t.Errorf("run([janitor]) = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), `unknown agent type "janitor"`) {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunTooManyRoles(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"worker", "planner"}, &bytes.Buffer{}, &stderr)
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "expected one role") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRoleArg(t *testing.T) {
	if got := roleArg("  Worker "); got != "worker" {
		t.Errorf("roleArg = %q, want worker", got)
	}
}

func TestEventsPath(t *testing.T) {
	got := eventsPath("/src/app/tinker.toml")
	if got != filepath.Join("/src/app", ".tinker", "events.jsonl") {
		t.Errorf("eventsPath = %q", got)
	}
}

// --- launch ---

func testLauncher(engine *docker.FakeEngine, stdout *bytes.Buffer) *launcher.Launcher {
	return &launcher.Launcher{
		Engine:  docker.New(engine),
		FS:      fsys.NewFake(),
		Events:  events.NewFake(),
		Stdout:  stdout,
		Home:    "/home/dev",
		TempDir: "/tmp",
		NewID:   func() string { return "launch-1" },
	}
}

func tokenConfig() config.LaunchConfig {
	return config.LaunchConfig{
		Role:      "worker",
		ProjectID: "42",
		Image:     "tinker-sandbox-42",
		Auth:      config.Auth{Method: config.AuthToken, Token: "ghp_x", Host: config.DefaultHost},
	}
}

func TestDoLaunch(t *testing.T) {
	engine := docker.NewFakeEngine()
	var stdout, stderr bytes.Buffer
	code := doLaunch(context.Background(), testLauncher(engine, &stdout), tokenConfig(), &stderr)
	if code != 0 {
		t.Fatalf("doLaunch = %d, want 0; stderr: %s", code, stderr.String())
	}
	if got := engine.Running(); len(got) != 1 || got[0] != "tinker-autonomous-worker" {
		t.Errorf("running = %v", got)
	}
	if !strings.Contains(stdout.String(), "tinker-agent attach worker") {
		t.Errorf("stdout missing attach hint: %q", stdout.String())
	}
}

func TestDoLaunchEngineExitCode(t *testing.T) {
	engine := docker.NewFakeEngine()
	engine.RunCode = 125
	var stderr bytes.Buffer
	code := doLaunch(context.Background(), testLauncher(engine, &bytes.Buffer{}), tokenConfig(), &stderr)
	if code != 125 {
		t.Errorf("doLaunch = %d, want 125", code)
	}
}

func TestDoLaunchMissingAuth(t *testing.T) {
	engine := docker.NewFakeEngine()
	cfg := tokenConfig()
	cfg.Auth = config.Auth{}
	var stderr bytes.Buffer
	code := doLaunch(context.Background(), testLauncher(engine, &bytes.Buffer{}), cfg, &stderr)
	if code != 1 {
		t.Errorf("doLaunch = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "app_private_key_path") {
		t.Errorf("stderr missing auth hint: %q", stderr.String())
	}
	if len(engine.Calls) != 0 {
		t.Errorf("engine called %d times, want 0", len(engine.Calls))
	}
}

// --- status ---

func TestDoStatus(t *testing.T) {
	engine := docker.NewFakeEngine()
	engine.Containers["tinker-planner"] = &docker.Container{Name: "tinker-planner", Running: true}
	var stdout bytes.Buffer
	resolve := func(role string) config.LaunchConfig { return config.LaunchConfig{Role: role} }

	code := doStatus(context.Background(), testLauncher(engine, &stdout), resolve, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("doStatus = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"ROLE", "planner", "tinker-planner", "running", "tinker-autonomous-worker", "stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

// --- config show ---

func TestDoConfigShowRedacts(t *testing.T) {
	cfg := tokenConfig()
	cfg.RailsAPIKey = "mcp-secret"
	cfg.Env = map[string]string{"STRIPE_KEY": "sk_live"}

	var stdout bytes.Buffer
	if code := doConfigShow(cfg, false, &stdout, &bytes.Buffer{}); code != 0 {
		t.Fatalf("doConfigShow = %d", code)
	}
	for _, secret := range []string{"mcp-secret", "sk_live", "ghp_x"} {
		if strings.Contains(stdout.String(), secret) {
			t.Errorf("output leaks %q:\n%s", secret, stdout.String())
		}
	}
	if !strings.Contains(stdout.String(), `"STRIPE_KEY"`) {
		t.Errorf("env key missing:\n%s", stdout.String())
	}

	stdout.Reset()
	doConfigShow(cfg, true, &stdout, &bytes.Buffer{})
	if !strings.Contains(stdout.String(), "sk_live") {
		t.Errorf("--show-secrets output masked:\n%s", stdout.String())
	}
}

// --- credential ---

func TestDoCredentialToken(t *testing.T) {
	var stdout bytes.Buffer
	settings := credential.Settings{Token: "ghp_static"}
	code := doCredentialToken(context.Background(), settings, fsys.NewFake(), nil, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	if stdout.String() != "ghp_static\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestDoCredentialTokenNotConfigured(t *testing.T) {
	var stderr bytes.Buffer
	code := doCredentialToken(context.Background(), credential.Settings{}, fsys.NewFake(), nil, &bytes.Buffer{}, &stderr)
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "GH_TOKEN") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestDoCredentialGit(t *testing.T) {
	settings := credential.Settings{Token: "ghp_static"}
	in := strings.NewReader("protocol=https\nhost=github.com\n\n")
	var stdout bytes.Buffer
	code := doCredentialGit(context.Background(), "get", settings, fsys.NewFake(), nil, in, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(stdout.String(), "password=ghp_static") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestDoCredentialGitStoreNeedsNoSettings(t *testing.T) {
	code := doCredentialGit(context.Background(), "store", credential.Settings{}, fsys.NewFake(), nil,
		strings.NewReader("protocol=https\nhost=github.com\n\n"), &bytes.Buffer{}, &bytes.Buffer{})
	if code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
}

func TestDoCredentialSetupWritesMCPConfig(t *testing.T) {
	r := runner.NewFake()
	fs := fsys.NewFake()
	mcp := &credential.MCPOptions{Dir: "/rails", Role: "reviewer", APIURL: "https://t.example/api", APIKey: "k", ToolsDir: "/home/rails/tinker-tools"}
	var stdout bytes.Buffer

	code := doCredentialSetup(context.Background(), r, fs, credential.SetupOptions{Settings: credential.Settings{Token: "ghp_x"}}, mcp, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(string(fs.Files["/rails/.mcp.json"]), `"tinker-reviewer"`) {
		t.Errorf(".mcp.json = %s", fs.Files["/rails/.mcp.json"])
	}
	if !strings.Contains(strings.Join(r.Lines(), "\n"), "npm install --prefix /home/rails/tinker-tools tinker-mcp") {
		t.Errorf("commands = %v", r.Lines())
	}
}

func TestDoCredentialSetupRejectsUnknownAgentType(t *testing.T) {
	r := runner.NewFake()
	var stderr bytes.Buffer
	mcp := &credential.MCPOptions{Dir: "/rails", Role: "janitor"}

	code := doCredentialSetup(context.Background(), r, fsys.NewFake(), credential.SetupOptions{}, mcp, &bytes.Buffer{}, &stderr)
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "AGENT_TYPE") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if len(r.Calls) != 0 {
		t.Errorf("ran %v before validating AGENT_TYPE", r.Lines())
	}
}

// --- events ---

func TestDoEventsEmpty(t *testing.T) {
	var stdout bytes.Buffer
	code := doEvents(filepath.Join(t.TempDir(), "events.jsonl"), events.Filter{}, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	if stdout.String() != "No events.\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestEventsFilterSince(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f, err := eventsFilter{role: "worker", since: "1h"}.build(now)
	if err != nil {
		t.Fatal(err)
	}
	if f.Subject != "worker" || !f.Since.Equal(now.Add(-time.Hour)) {
		t.Errorf("filter = %+v", f)
	}
	if _, err := (eventsFilter{since: "soon"}).build(now); err == nil {
		t.Error("expected error for bad --since")
	}
}

func TestDoEventsFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	rec, err := events.NewFileRecorder(path, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close() //nolint:errcheck
	rec.Record(events.Event{Type: events.ContainerLaunched, Actor: "cli", Subject: "worker"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(100 * time.Millisecond)
		rec.Record(events.Event{Type: events.ContainerStopped, Actor: "cli", Subject: "planner"})
		rec.Record(events.Event{Type: events.ContainerLaunched, Actor: "cli", Subject: "worker", Message: "second"})
	}()

	var stdout bytes.Buffer
	code := doEventsFollow(ctx, rec, events.Filter{Subject: "worker"}, &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"message":"second"`) {
		t.Errorf("followed output = %q, want only the second worker event", stdout.String())
	}
}

func TestEventsFilterFlags(t *testing.T) {
	var f eventsFilter
	fs := pflag.NewFlagSet("events", pflag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse([]string{"--type", "container.stopped", "--role", "worker"}); err != nil {
		t.Fatal(err)
	}
	if f.typ != "container.stopped" || f.role != "worker" || f.since != "" {
		t.Errorf("filter = %+v", f)
	}
}

// --- doctor ---

func TestPrintCheck(t *testing.T) {
	var buf bytes.Buffer
	printCheck(&buf, &doctor.CheckResult{
		Name:    "image",
		Status:  doctor.StatusError,
		Message: "tinker-sandbox-7 not present",
		Details: []string{"checked locally"},
		FixHint: "build or pull tinker-sandbox-7",
	}, false)
	out := buf.String()
	if !strings.Contains(out, "image: tinker-sandbox-7 not present") {
		t.Errorf("missing result line: %q", out)
	}
	if !strings.Contains(out, "hint: build or pull") {
		t.Errorf("missing hint: %q", out)
	}
	if strings.Contains(out, "checked locally") {
		t.Errorf("details shown without verbose: %q", out)
	}

	buf.Reset()
	printCheck(&buf, &doctor.CheckResult{Name: "token-cache", Status: doctor.StatusOK, Message: "empty", Fixed: true, Details: []string{"path: /tmp/x"}}, true)
	if !strings.Contains(buf.String(), "(fixed)") || !strings.Contains(buf.String(), "path: /tmp/x") {
		t.Errorf("fixed verbose output = %q", buf.String())
	}
}

// --- version ---

func TestVersionLine(t *testing.T) {
	none := func() (*debug.BuildInfo, bool) { return nil, false }
	if got := versionLine(none); got != "tinker-agent dev (commit: unknown, built: unknown)" {
		t.Errorf("versionLine = %q", got)
	}

	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		}}, true
	}
	if got := versionLine(stamped); got != "tinker-agent dev (commit: abc123, built: 2026-01-02T03:04:05Z)" {
		t.Errorf("versionLine = %q", got)
	}
}
