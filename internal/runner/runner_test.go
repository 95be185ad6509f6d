package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOSRunExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := &OS{Stdout: &stdout, Stderr: &stderr}
	code, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Errorf("code = %d, want 3", code)
	}
	if stdout.String() != "out\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "out\n")
	}
	if stderr.String() != "err\n" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "err\n")
	}
}

func TestOSOutputCaptures(t *testing.T) {
	r := &OS{}
	res, err := r.Output(context.Background(), "sh", "-c", "printf hello; printf oops >&2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != 0 || res.Stdout != "hello" || res.Stderr != "oops" {
		t.Errorf("Result = %+v", res)
	}
}

func TestOSPipeFeedsStdin(t *testing.T) {
	r := &OS{}
	res, err := r.Pipe(context.Background(), "ghp_secret\n", "cat")
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "ghp_secret\n" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
}

func TestOSMissingBinary(t *testing.T) {
	r := &OS{}
	_, err := r.Output(context.Background(), "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestOSTrace(t *testing.T) {
	var trace bytes.Buffer
	r := &OS{Trace: &trace}
	if _, err := r.Output(context.Background(), "echo", "a b"); err != nil {
		t.Fatal(err)
	}
	if got := trace.String(); got != "+ echo 'a b'\n" {
		t.Errorf("trace = %q", got)
	}
}

func TestOSExecReplace(t *testing.T) {
	var gotPath string
	var gotArgv []string
	r := &OS{replace: func(path string, argv []string, _ []string) error {
		gotPath, gotArgv = path, argv
		return nil
	}}
	if err := r.Exec("sh", "-c", "true"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/sh") {
		t.Errorf("path = %q, want resolved sh", gotPath)
	}
	if strings.Join(gotArgv, " ") != "sh -c true" {
		t.Errorf("argv = %v", gotArgv)
	}
}

func TestOSExecNotFound(t *testing.T) {
	r := &OS{replace: func(string, []string, []string) error { return nil }}
	if err := r.Exec("definitely-not-a-real-binary-xyz"); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"docker", "rm", "-f", "tinker-planner"}, "docker rm -f tinker-planner"},
		{[]string{"docker", "ps", "--filter", "name=^x$", "--format", "{{.Names}}"}, "docker ps --filter 'name=^x$' --format '{{.Names}}'"},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
		{[]string{"echo", ""}, "echo ''"},
		{[]string{"-e", "MSG=hello world"}, "-e 'MSG=hello world'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.args[0], tt.args[1:]...); got != tt.want {
			t.Errorf("Quote(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestDryRunPrints(t *testing.T) {
	var buf bytes.Buffer
	d := DryRun{W: &buf}
	ctx := context.Background()
	code, err := d.Run(ctx, "docker", "rm", "-f", "x")
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
	res, err := d.Output(ctx, "docker", "ps")
	if err != nil || res != (Result{}) {
		t.Fatalf("Output = %+v, %v", res, err)
	}
	if _, err := d.Pipe(ctx, "secret", "gh", "auth", "login"); err != nil {
		t.Fatal(err)
	}
	if err := d.Exec("docker", "exec", "-it", "x", "bash"); err != nil {
		t.Fatal(err)
	}
	want := "docker rm -f x\ndocker ps\ngh auth login\ndocker exec -it x bash\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if strings.Contains(buf.String(), "secret") {
		t.Error("dry run must not print stdin")
	}
}

func TestFakeScripts(t *testing.T) {
	f := NewFake().
		On("docker ps", Result{Stdout: "a\n"}, Result{Stdout: "b\n"}).
		On("docker ps --filter name=^special$", Result{Stdout: "special\n"})
	ctx := context.Background()

	r1, _ := f.Output(ctx, "docker", "ps", "--filter", "name=^x$")
	r2, _ := f.Output(ctx, "docker", "ps")
	r3, _ := f.Output(ctx, "docker", "ps")
	r4, _ := f.Output(ctx, "docker", "ps", "--filter", "name=^special$")
	r5, _ := f.Output(ctx, "git", "status")

	if r1.Stdout != "a\n" || r2.Stdout != "b\n" || r3.Stdout != "b\n" {
		t.Errorf("queued results = %q %q %q, want a b b", r1.Stdout, r2.Stdout, r3.Stdout)
	}
	if r4.Stdout != "special\n" {
		t.Errorf("longest prefix = %q, want special", r4.Stdout)
	}
	if r5 != (Result{}) {
		t.Errorf("unmatched = %+v, want zero", r5)
	}
	if len(f.Calls) != 5 {
		t.Errorf("got %d calls, want 5", len(f.Calls))
	}
}

func TestFakeFailAndExec(t *testing.T) {
	boom := errors.New("boom")
	f := NewFake().Fail("docker", boom)
	if _, err := f.Run(context.Background(), "docker", "info"); !errors.Is(err, boom) {
		t.Errorf("Run err = %v, want boom", err)
	}
	f2 := NewFake()
	f2.ExecErr = boom
	if err := f2.Exec("docker", "exec"); !errors.Is(err, boom) {
		t.Errorf("Exec err = %v, want boom", err)
	}
	if got := f2.Lines(); len(got) != 1 || got[0] != "docker exec" {
		t.Errorf("Lines = %v", got)
	}
	if f2.Calls[0].Method != "Exec" {
		t.Errorf("Method = %q, want Exec", f2.Calls[0].Method)
	}
}

func TestFakePipeRecordsInput(t *testing.T) {
	f := NewFake()
	if _, err := f.Pipe(context.Background(), "tok\n", "gh", "auth", "login", "--with-token"); err != nil {
		t.Fatal(err)
	}
	if f.Calls[0].Input != "tok\n" {
		t.Errorf("Input = %q", f.Calls[0].Input)
	}
}
