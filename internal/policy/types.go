package policy

import "github.com/tkingovr/spawnguard/api"

// PolicyFile represents the top-level policy configuration.
type PolicyFile struct {
	Version  int      `yaml:"version" toml:"version" json:"version"`
	Settings Settings `yaml:"settings" toml:"settings" json:"settings"`
	Rules    []Rule   `yaml:"rules" toml:"rules" json:"rules"`
}

// Settings contains global policy and launch settings.
type Settings struct {
	DefaultAction api.Verdict        `yaml:"default_action" toml:"default_action" json:"default_action"`
	LogDir        string             `yaml:"log_dir" toml:"log_dir" json:"log_dir"`
	WorkingDir    string             `yaml:"working_dir,omitempty" toml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Env           []string           `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty"`
	Inherit       []string           `yaml:"inherit,omitempty" toml:"inherit,omitempty" json:"inherit,omitempty"`
	KillGrace     string             `yaml:"kill_grace,omitempty" toml:"kill_grace,omitempty" json:"kill_grace,omitempty"`
	ReadBuffer    int                `yaml:"read_buffer,omitempty" toml:"read_buffer,omitempty" json:"read_buffer,omitempty"`
	OPAPolicy     string             `yaml:"opa_policy,omitempty" toml:"opa_policy,omitempty" json:"opa_policy,omitempty"`
	SecretScanner *SecretSettings    `yaml:"secret_scanner,omitempty" toml:"secret_scanner,omitempty" json:"secret_scanner,omitempty"`
	RateLimit     *RateLimitSettings `yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}

// SecretSettings configures the secret scanner filter.
type SecretSettings struct {
	Enabled          bool    `yaml:"enabled" toml:"enabled" json:"enabled"`
	EntropyThreshold float64 `yaml:"entropy_threshold,omitempty" toml:"entropy_threshold,omitempty" json:"entropy_threshold,omitempty"`
}

// RateLimitSettings configures launch rate limiting.
type RateLimitSettings struct {
	Global     *RateLimitRule            `yaml:"global,omitempty" toml:"global,omitempty" json:"global,omitempty"`
	PerCommand map[string]*RateLimitRule `yaml:"per_command,omitempty" toml:"per_command,omitempty" json:"per_command,omitempty"`
}

// RateLimitRule defines a rate limit: max launches per time window.
type RateLimitRule struct {
	Max    int    `yaml:"max" toml:"max" json:"max"`
	Window string `yaml:"window" toml:"window" json:"window"`
}

// Rule represents a single policy rule.
type Rule struct {
	Name    string    `yaml:"name" toml:"name" json:"name"`
	Match   RuleMatch `yaml:"match" toml:"match" json:"match"`
	Action  string    `yaml:"action" toml:"action" json:"action"`
	Message string    `yaml:"message,omitempty" toml:"message,omitempty" json:"message,omitempty"`
}

// RuleMatch specifies conditions for matching a launch. All set conditions
// must hold.
type RuleMatch struct {
	Command      string                   `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty"`
	CommandRegex string                   `yaml:"command_regex,omitempty" toml:"command_regex,omitempty" json:"command_regex,omitempty"`
	Dir          string                   `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"`
	Arguments    map[string]ArgumentMatch `yaml:"arguments,omitempty" toml:"arguments,omitempty" json:"arguments,omitempty"`
	EnvKeys      []string                 `yaml:"env_keys,omitempty" toml:"env_keys,omitempty" json:"env_keys,omitempty"`
}

// ArgumentMatch specifies a matching condition for a single argument.
type ArgumentMatch struct {
	Exact string `yaml:"exact,omitempty" toml:"exact,omitempty" json:"exact,omitempty"`
	Regex string `yaml:"regex,omitempty" toml:"regex,omitempty" json:"regex,omitempty"`
}

// Special argument keys.
const (
	AnyArgument    = "_any_value"
	JoinedArgument = "_joined"
)

// EvalInput is the input to a policy engine evaluation. Environment values
// never reach a policy, only the names of the variables set.
type EvalInput struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Dir     string   `json:"dir,omitempty"`
	EnvKeys []string `json:"env_keys"`
}

// EvalResult is the output of a policy engine evaluation.
type EvalResult struct {
	Verdict api.Verdict `json:"verdict"`
	Rule    string      `json:"rule,omitempty"`
	Message string      `json:"message,omitempty"`
}
