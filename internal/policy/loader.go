package policy

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tkingovr/spawnguard/api"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and validates a policy file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func LoadFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return LoadTOML(data)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates YAML policy data.
func LoadBytes(data []byte) (*PolicyFile, error) {
	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}
	if err := validate(&pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

// LoadTOML parses and validates TOML policy data.
func LoadTOML(data []byte) (*PolicyFile, error) {
	var pf PolicyFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing policy TOML: %w", err)
	}
	if err := validate(&pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

func validate(pf *PolicyFile) error {
	if pf.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d (expected 1)", pf.Version)
	}

	if pf.Settings.DefaultAction == "" {
		pf.Settings.DefaultAction = api.VerdictDeny
	}
	if !validAction(string(pf.Settings.DefaultAction)) {
		return fmt.Errorf("invalid default_action %q", pf.Settings.DefaultAction)
	}

	for i, rule := range pf.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if !validAction(rule.Action) {
			return fmt.Errorf("rule %q: invalid action %q", rule.Name, rule.Action)
		}
		if rule.Match.Command == "" && rule.Match.CommandRegex == "" {
			return fmt.Errorf("rule %q: match.command or match.command_regex is required", rule.Name)
		}
		if rule.Match.CommandRegex != "" {
			if _, err := regexp.Compile(rule.Match.CommandRegex); err != nil {
				return fmt.Errorf("rule %q: command_regex invalid: %w", rule.Name, err)
			}
		}
		if rule.Match.Dir != "" {
			if _, err := path.Match(rule.Match.Dir, ""); err != nil {
				return fmt.Errorf("rule %q: dir pattern invalid: %w", rule.Name, err)
			}
		}
		for key, am := range rule.Match.Arguments {
			if key != AnyArgument && key != JoinedArgument {
				if n, err := strconv.Atoi(key); err != nil || n < 0 {
					return fmt.Errorf("rule %q: argument key %q must be an index, %s or %s", rule.Name, key, AnyArgument, JoinedArgument)
				}
			}
			if am.Regex != "" {
				if _, err := regexp.Compile(am.Regex); err != nil {
					return fmt.Errorf("rule %q: argument %q regex invalid: %w", rule.Name, key, err)
				}
			}
		}
	}

	return nil
}

func validAction(action string) bool {
	switch api.Verdict(action) {
	case api.VerdictAllow, api.VerdictDeny, api.VerdictLog:
		return true
	}
	return false
}
