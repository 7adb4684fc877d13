package stdio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/audit"
	"github.com/tkingovr/spawnguard/internal/filter"
	"github.com/tkingovr/spawnguard/internal/policy"
	"github.com/tkingovr/spawnguard/internal/spawn"
)

var testEnv = []string{"PATH=/bin:/usr/bin"}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProxy(t *testing.T, stdin io.Reader, stdout io.Writer) (*Proxy, *audit.JSONLStore) {
	t.Helper()

	pf := &policy.PolicyFile{
		Version:  1,
		Settings: policy.Settings{DefaultAction: api.VerdictDeny},
		Rules: []policy.Rule{
			{Name: "allow-cat", Match: policy.RuleMatch{Command: "cat"}, Action: "allow"},
			{Name: "allow-sh", Match: policy.RuleMatch{Command: "sh"}, Action: "allow"},
			{Name: "allow-sleep", Match: policy.RuleMatch{Command: "sleep"}, Action: "allow"},
			{Name: "log-true", Match: policy.RuleMatch{Command: "true"}, Action: "log"},
			{Name: "allow-missing", Match: policy.RuleMatch{Command: "spawnguard-no-such-command"}, Action: "allow"},
			{Name: "block-rm", Match: policy.RuleMatch{Command: "rm"}, Action: "deny", Message: "rm is blocked"},
		},
	}
	engine, err := policy.NewYAMLEngineFromPolicy(pf)
	if err != nil {
		t.Fatal(err)
	}

	store, err := audit.NewJSONLStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	logger := newTestLogger()
	chain := filter.BuildLaunchChain(filter.ChainConfig{
		Engine:     engine,
		AuditStore: store,
		Logger:     logger,
	})
	p := NewProxy(logger, chain, store, Options{
		Stdin:     stdin,
		Stdout:    stdout,
		KillGrace: 2 * time.Second,
	})
	return p, store
}

func records(t *testing.T, store audit.Store, event api.Event) []*api.AuditRecord {
	t.Helper()
	got, err := store.Query(context.Background(), api.QueryFilter{Event: event})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestProxy_CopiesStdinToChild(t *testing.T) {
	var out bytes.Buffer
	p, store := newTestProxy(t, strings.NewReader("hello\nworld\n"), &out)

	status, err := p.Run(context.Background(), spawn.Request{
		Command: "cat",
		Argv:    []string{"cat"},
		Env:     testEnv,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !status.Success() {
		t.Fatalf("expected success, got %s", status)
	}
	if out.String() != "hello\nworld\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	launches := records(t, store, api.EventLaunch)
	exits := records(t, store, api.EventExit)
	if len(launches) != 1 || len(exits) != 1 {
		t.Fatalf("expected one launch and one exit, got %d and %d", len(launches), len(exits))
	}
	if launches[0].PID <= 0 {
		t.Errorf("launch record has no pid")
	}
	if exits[0].PID != launches[0].PID {
		t.Errorf("exit pid %d != launch pid %d", exits[0].PID, launches[0].PID)
	}
	if exits[0].ExitCode == nil || *exits[0].ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", exits[0].ExitCode)
	}
	if launches[0].Rule != "allow-cat" {
		t.Errorf("expected rule allow-cat, got %s", launches[0].Rule)
	}
}

func TestProxy_MergesStderr(t *testing.T) {
	var out bytes.Buffer
	p, _ := newTestProxy(t, strings.NewReader(""), &out)

	status, err := p.Run(context.Background(), spawn.Request{
		Command: "sh",
		Argv:    []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
		Env:     testEnv,
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.Kind != spawn.KindExited || status.Status != 3 {
		t.Fatalf("expected exit status 3, got %s", status)
	}
	if out.String() != "out\nerr\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestProxy_RecordsExitCode(t *testing.T) {
	p, store := newTestProxy(t, strings.NewReader(""), io.Discard)

	if _, err := p.Run(context.Background(), spawn.Request{
		Command: "sh",
		Argv:    []string{"sh", "-c", "exit 7"},
		Env:     testEnv,
	}); err != nil {
		t.Fatal(err)
	}

	exits := records(t, store, api.EventExit)
	if len(exits) != 1 {
		t.Fatalf("expected one exit record, got %d", len(exits))
	}
	if exits[0].ExitCode == nil || *exits[0].ExitCode != 7 {
		t.Errorf("expected exit code 7, got %v", exits[0].ExitCode)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.NonZeroExits != 1 {
		t.Errorf("expected 1 non-zero exit, got %d", stats.NonZeroExits)
	}
}

func TestProxy_Denied(t *testing.T) {
	var out bytes.Buffer
	p, store := newTestProxy(t, strings.NewReader(""), &out)

	_, err := p.Run(context.Background(), spawn.Request{
		Command: "rm",
		Argv:    []string{"rm", "-rf", "/"},
		Env:     testEnv,
	})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), "rm is blocked") {
		t.Errorf("error should carry the rule message: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("denied launch produced output %q", out.String())
	}

	if n := len(records(t, store, api.EventLaunch)); n != 0 {
		t.Errorf("expected no launch records, got %d", n)
	}
	denials := records(t, store, api.EventDeny)
	if len(denials) != 1 {
		t.Fatalf("expected one deny record, got %d", len(denials))
	}
	if denials[0].Rule != "block-rm" {
		t.Errorf("expected rule block-rm, got %s", denials[0].Rule)
	}
}

func TestProxy_DefaultDeny(t *testing.T) {
	p, _ := newTestProxy(t, strings.NewReader(""), io.Discard)

	_, err := p.Run(context.Background(), spawn.Request{Command: "nc", Env: testEnv})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestProxy_LogVerdictLaunches(t *testing.T) {
	p, store := newTestProxy(t, strings.NewReader(""), io.Discard)

	status, err := p.Run(context.Background(), spawn.Request{Command: "true", Env: testEnv})
	if err != nil {
		t.Fatal(err)
	}
	if !status.Success() {
		t.Errorf("expected success, got %s", status)
	}

	launches := records(t, store, api.EventLaunch)
	if len(launches) != 1 || launches[0].Verdict != api.VerdictLog {
		t.Fatalf("expected one launch with a log verdict, got %+v", launches)
	}
}

func TestProxy_MissingCommand(t *testing.T) {
	var out bytes.Buffer
	p, _ := newTestProxy(t, strings.NewReader(""), &out)

	status, err := p.Run(context.Background(), spawn.Request{
		Command: "spawnguard-no-such-command",
		Env:     testEnv,
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.ShellCode() != 127 {
		t.Errorf("expected 127, got %s", status)
	}
	if !strings.Contains(out.String(), `exec("spawnguard-no-such-command")`) {
		t.Errorf("expected exec diagnostic, got %q", out.String())
	}
}

func TestProxy_InvalidRequest(t *testing.T) {
	p, store := newTestProxy(t, strings.NewReader(""), io.Discard)

	_, err := p.Run(context.Background(), spawn.Request{Command: "cat", Argv: []string{"cat", "a\x00b"}})
	if !errors.Is(err, spawn.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if n := len(records(t, store, "")); n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
}

func TestProxy_CancelTerminates(t *testing.T) {
	p, store := newTestProxy(t, strings.NewReader(""), io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	status, err := p.Run(ctx, spawn.Request{
		Command: "sleep",
		Argv:    []string{"sleep", "30"},
		Env:     testEnv,
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.Kind != spawn.KindSignaled || status.Signal != syscall.SIGTERM {
		t.Errorf("expected SIGTERM, got %s", status)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %s", elapsed)
	}

	exits := records(t, store, api.EventExit)
	if len(exits) != 1 || exits[0].Signal != syscall.SIGTERM.String() {
		t.Errorf("expected one exit record with SIGTERM, got %+v", exits)
	}
}

// cancelOnWrite cancels a context once the child has written something.
type cancelOnWrite struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel()
	return w.buf.Write(p)
}

func TestProxy_CancelEscalatesToKill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &cancelOnWrite{cancel: cancel}
	p, _ := newTestProxy(t, strings.NewReader(""), out)
	p.opts.KillGrace = 100 * time.Millisecond

	// The shell replaces itself with sleep, which keeps SIGTERM ignored.
	status, err := p.Run(ctx, spawn.Request{
		Command: "sh",
		Argv:    []string{"sh", "-c", `trap "" TERM; echo ready; exec sleep 30`},
		Env:     testEnv,
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.Kind != spawn.KindSignaled || status.Signal != syscall.SIGKILL {
		t.Errorf("expected SIGKILL, got %s", status)
	}
}

func TestProxy_LargeOutput(t *testing.T) {
	var out bytes.Buffer
	input := strings.Repeat("0123456789abcdef", 64*1024)
	p, _ := newTestProxy(t, strings.NewReader(input), &out)
	p.opts.ReadBuffer = 512

	status, err := p.Run(context.Background(), spawn.Request{Command: "cat", Env: testEnv})
	if err != nil {
		t.Fatal(err)
	}
	if !status.Success() {
		t.Fatalf("expected success, got %s", status)
	}
	if out.Len() != len(input) || out.String() != input {
		t.Errorf("output mismatch: got %d bytes, want %d", out.Len(), len(input))
	}
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list open descriptors: %v", err)
	}
	return len(entries)
}

func TestProxy_OpenInputDoesNotLeakDescriptors(t *testing.T) {
	// The writer is never closed, so input never ends.
	stdin, stdinW := io.Pipe()
	defer stdinW.Close()

	p, _ := newTestProxy(t, stdin, io.Discard)
	req := spawn.Request{Command: "true", Env: testEnv}

	// The first run opens the audit log.
	if _, err := p.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	before := openFDs(t)
	for i := 0; i < 5; i++ {
		status, err := p.Run(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if !status.Success() {
			t.Fatalf("run %d: expected success, got %s", i, status)
		}
	}
	if delta := openFDs(t) - before; delta != 0 {
		t.Errorf("descriptor count changed by %d after 5 runs", delta)
	}
}

func TestProxy_InputCarriesOverToNextRun(t *testing.T) {
	stdin, stdinW := io.Pipe()
	defer stdinW.Close()

	var out bytes.Buffer
	p, _ := newTestProxy(t, stdin, &out)

	// Nothing is written while the first child runs.
	if _, err := p.Run(context.Background(), spawn.Request{Command: "true", Env: testEnv}); err != nil {
		t.Fatal(err)
	}

	go func() {
		_, _ = stdinW.Write([]byte("hello"))
		_ = stdinW.Close()
	}()

	status, err := p.Run(context.Background(), spawn.Request{Command: "cat", Env: testEnv})
	if err != nil {
		t.Fatal(err)
	}
	if !status.Success() {
		t.Fatalf("expected success, got %s", status)
	}
	if out.String() != "hello" {
		t.Errorf("unexpected output %q", out.String())
	}
}
