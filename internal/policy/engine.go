package policy

import "context"

// Engine is the interface for policy evaluation backends.
type Engine interface {
	// Evaluate checks a launch against loaded policies and returns a verdict.
	Evaluate(ctx context.Context, input *EvalInput) (*EvalResult, error)

	// Reload reloads policies from their source file.
	Reload(ctx context.Context) error
}

// NewEngine returns the OPA engine when the policy names a Rego file and the
// YAML rule engine otherwise. path is the file pf was loaded from, if any, and
// is used for reloads.
func NewEngine(pf *PolicyFile, path string) (Engine, error) {
	if pf.Settings.OPAPolicy != "" {
		return NewOPAEngine(pf.Settings.OPAPolicy)
	}
	if path != "" {
		return NewYAMLEngine(path)
	}
	return NewYAMLEngineFromPolicy(pf)
}
