package policy

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tkingovr/spawnguard/api"
)

// YAMLEngine implements first-match-wins policy evaluation over the rules of
// a policy file (YAML or TOML).
type YAMLEngine struct {
	mu   sync.RWMutex
	file *PolicyFile
	path string

	// compiled regex cache
	regexCache map[string]*regexp.Regexp
}

// NewYAMLEngine creates a new rule engine from a file path.
func NewYAMLEngine(path string) (*YAMLEngine, error) {
	e := &YAMLEngine{path: path}
	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// NewYAMLEngineFromPolicy creates a new rule engine from an already-loaded policy.
func NewYAMLEngineFromPolicy(pf *PolicyFile) (*YAMLEngine, error) {
	e := &YAMLEngine{}
	e.file = pf
	e.regexCache = make(map[string]*regexp.Regexp)
	if err := e.compileRegexes(); err != nil {
		return nil, err
	}
	return e, nil
}

// Evaluate checks the input against rules in order, returning the first match.
func (e *YAMLEngine) Evaluate(_ context.Context, input *EvalInput) (*EvalResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.file.Rules {
		if e.matches(&rule, input) {
			return &EvalResult{
				Verdict: api.Verdict(rule.Action),
				Rule:    rule.Name,
				Message: rule.Message,
			}, nil
		}
	}

	// No rule matched, use default action
	return &EvalResult{
		Verdict: e.file.Settings.DefaultAction,
		Rule:    "_default",
		Message: "no matching rule; default action applied",
	}, nil
}

// Reload re-reads the policy file from disk.
func (e *YAMLEngine) Reload(_ context.Context) error {
	if e.path == "" {
		return nil
	}
	pf, err := LoadFile(e.path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.file = pf
	e.regexCache = make(map[string]*regexp.Regexp)
	return e.compileRegexes()
}

// Policy returns the currently loaded policy.
func (e *YAMLEngine) Policy() *PolicyFile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.file
}

func commandKey(ruleName string) string {
	return ruleName + ":_command"
}

func (e *YAMLEngine) compileRegexes() error {
	for _, rule := range e.file.Rules {
		if rule.Match.CommandRegex != "" {
			re, err := regexp.Compile(rule.Match.CommandRegex)
			if err != nil {
				return fmt.Errorf("rule %q command: %w", rule.Name, err)
			}
			e.regexCache[commandKey(rule.Name)] = re
		}
		for key, am := range rule.Match.Arguments {
			if am.Regex != "" {
				cacheKey := rule.Name + ":" + key
				re, err := regexp.Compile(am.Regex)
				if err != nil {
					return fmt.Errorf("rule %q argument %q: %w", rule.Name, key, err)
				}
				e.regexCache[cacheKey] = re
			}
		}
	}
	return nil
}

func (e *YAMLEngine) matches(rule *Rule, input *EvalInput) bool {
	m := &rule.Match

	// Match command by full path or base name
	if m.Command != "" && m.Command != "*" &&
		m.Command != input.Command && m.Command != filepath.Base(input.Command) {
		return false
	}
	if m.CommandRegex != "" {
		re, ok := e.regexCache[commandKey(rule.Name)]
		if !ok || !re.MatchString(input.Command) {
			return false
		}
	}

	if m.Dir != "" {
		if ok, _ := path.Match(m.Dir, input.Dir); !ok {
			return false
		}
	}

	for _, key := range m.EnvKeys {
		if !slices.Contains(input.EnvKeys, key) {
			return false
		}
	}

	for key, am := range m.Arguments {
		switch key {
		case AnyArgument:
			if !e.matchAnyValue(rule.Name, key, am, input.Args) {
				return false
			}
		case JoinedArgument:
			if !e.matchArgument(rule.Name, key, am, strings.Join(input.Args, " ")) {
				return false
			}
		default:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(input.Args) {
				return false
			}
			if !e.matchArgument(rule.Name, key, am, input.Args[i]) {
				return false
			}
		}
	}

	return true
}

func (e *YAMLEngine) matchAnyValue(ruleName, matchKey string, am ArgumentMatch, args []string) bool {
	for _, v := range args {
		if e.matchArgument(ruleName, matchKey, am, v) {
			return true
		}
	}
	return false
}

func (e *YAMLEngine) matchArgument(ruleName, key string, am ArgumentMatch, val string) bool {
	if am.Exact != "" {
		return val == am.Exact
	}

	if am.Regex != "" {
		re, ok := e.regexCache[ruleName+":"+key]
		if !ok {
			return false
		}
		return re.MatchString(val)
	}

	return true
}
