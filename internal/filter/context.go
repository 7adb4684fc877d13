package filter

import (
	"time"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/policy"
	"github.com/tkingovr/spawnguard/internal/spawn"
)

// FilterContext carries all metadata through the filter chain for a single launch.
type FilterContext struct {
	// Request is the launch being gated.
	Request spawn.Request

	// Command, Args and EnvKeys are extracted by ParseFilter. Args excludes
	// argv[0]; EnvKeys lists the variables the child would see.
	Command string
	Args    []string
	EnvKeys []string

	// Verdict is set by the PolicyFilter after evaluation.
	Verdict api.Verdict

	// MatchedRule is the name of the rule that matched.
	MatchedRule string

	// VerdictMessage is the human-readable message from the matched rule.
	VerdictMessage string

	// StartTime records when the launch entered the gate.
	StartTime time.Time

	// Halted indicates the launch was refused.
	Halted bool
}

// NewFilterContext creates a new FilterContext for a launch request.
func NewFilterContext(req spawn.Request) *FilterContext {
	return &FilterContext{
		Request:   req,
		StartTime: time.Now(),
	}
}

// Deny refuses the launch.
func (fc *FilterContext) Deny(rule, message string) {
	fc.Verdict = api.VerdictDeny
	fc.MatchedRule = rule
	fc.VerdictMessage = message
	fc.Halted = true
}

// EvalInput is the policy view of the launch.
func (fc *FilterContext) EvalInput() *policy.EvalInput {
	return &policy.EvalInput{
		Command: fc.Command,
		Args:    fc.Args,
		Dir:     fc.Request.Dir,
		EnvKeys: fc.EnvKeys,
	}
}

// ToAuditRecord converts the filter context into an audit record. Environment
// values are never recorded.
func (fc *FilterContext) ToAuditRecord(event api.Event) *api.AuditRecord {
	return &api.AuditRecord{
		Timestamp: time.Now(),
		Event:     event,
		Command:   fc.Command,
		Args:      fc.Args,
		Dir:       fc.Request.Dir,
		EnvKeys:   fc.EnvKeys,
		Verdict:   fc.Verdict,
		Rule:      fc.MatchedRule,
		Message:   fc.VerdictMessage,
		Duration:  time.Since(fc.StartTime),
	}
}

// RequestFromCheck turns a check request into the launch it describes. Only
// variable names reach policy, so each listed key gets an empty value.
func RequestFromCheck(in api.CheckRequest) (spawn.Request, error) {
	req := spawn.Request{
		Command: in.Command,
		Dir:     in.Dir,
		Argv:    append([]string{in.Command}, in.Args...),
	}
	for _, key := range in.EnvKeys {
		req.Env = append(req.Env, key+"=")
	}
	if err := req.Validate(); err != nil {
		return spawn.Request{}, err
	}
	return req, nil
}
