package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/policy"
)

// Config is the runtime configuration for spawnguard.
type Config struct {
	PolicyFile    *policy.PolicyFile
	PolicyPath    string
	LogDir        string
	DefaultAction api.Verdict

	// Launch defaults
	WorkingDir string
	Env        []string
	Inherit    []string
	KillGrace  time.Duration
	ReadBuffer int

	// Gate
	OPAPolicy        string
	SecretScanner    bool
	EntropyThreshold float64
	RateLimit        *policy.RateLimitSettings
}

// Load reads a policy file (YAML, or TOML for *.toml) and produces a runtime Config.
func Load(path string) (*Config, error) {
	pf, err := policy.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromPolicy(pf, path)
}

// LoadBytes parses YAML data and produces a runtime Config.
func LoadBytes(data []byte) (*Config, error) {
	pf, err := policy.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromPolicy(pf, "")
}

func fromPolicy(pf *policy.PolicyFile, path string) (*Config, error) {
	s := pf.Settings
	cfg := &Config{
		PolicyFile:    pf,
		PolicyPath:    path,
		DefaultAction: s.DefaultAction,
		WorkingDir:    expandHome(s.WorkingDir),
		Env:           s.Env,
		Inherit:       s.Inherit,
		ReadBuffer:    s.ReadBuffer,
		RateLimit:     s.RateLimit,
	}

	// Log directory
	cfg.LogDir = s.LogDir
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir()
	}
	cfg.LogDir = expandHome(cfg.LogDir)

	if cfg.Inherit == nil {
		cfg.Inherit = DefaultInherit
	}
	if cfg.ReadBuffer < 0 {
		return nil, fmt.Errorf("invalid read_buffer %d", cfg.ReadBuffer)
	}
	if cfg.ReadBuffer == 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}

	// Kill grace period
	if s.KillGrace != "" {
		d, err := time.ParseDuration(s.KillGrace)
		if err != nil {
			return nil, fmt.Errorf("invalid kill_grace %q: %w", s.KillGrace, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid kill_grace %q: negative", s.KillGrace)
		}
		cfg.KillGrace = d
	} else {
		cfg.KillGrace = DefaultKillGrace
	}

	// A relative Rego path is relative to the policy file
	if s.OPAPolicy != "" {
		cfg.OPAPolicy = expandHome(s.OPAPolicy)
		if path != "" && !filepath.IsAbs(cfg.OPAPolicy) {
			cfg.OPAPolicy = filepath.Join(filepath.Dir(path), cfg.OPAPolicy)
		}
		pf.Settings.OPAPolicy = cfg.OPAPolicy
	}

	if s.SecretScanner != nil {
		cfg.SecretScanner = s.SecretScanner.Enabled
		cfg.EntropyThreshold = s.SecretScanner.EntropyThreshold
	}

	return cfg, nil
}

// Environment builds a child environment: the inherited variables that are
// set in the caller (looked up with lookup), then the configured pairs, then
// extra. Later entries override earlier ones.
func (c *Config) Environment(extra []string, lookup func(string) (string, bool)) []string {
	env := make([]string, 0, len(c.Inherit)+len(c.Env)+len(extra))
	for _, name := range c.Inherit {
		if v, ok := lookup(name); ok {
			env = append(env, name+"="+v)
		}
	}
	env = append(env, c.Env...)
	return append(env, extra...)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfig returns a config with defaults for when no config file is given.
func DefaultConfig() *Config {
	return &Config{
		PolicyFile: &policy.PolicyFile{
			Version: 1,
			Settings: policy.Settings{
				DefaultAction: api.VerdictDeny,
			},
		},
		LogDir:        expandHome(DefaultLogDir()),
		DefaultAction: api.VerdictDeny,
		Inherit:       DefaultInherit,
		KillGrace:     DefaultKillGrace,
		ReadBuffer:    DefaultReadBuffer,
	}
}
