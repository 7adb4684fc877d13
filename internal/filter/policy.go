package filter

import (
	"context"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/policy"
)

// PolicyFilter evaluates the launch against the policy engine.
type PolicyFilter struct {
	engine policy.Engine
}

func NewPolicyFilter(engine policy.Engine) *PolicyFilter {
	return &PolicyFilter{engine: engine}
}

func (f *PolicyFilter) Name() string { return "policy" }

func (f *PolicyFilter) Process(ctx context.Context, fc *FilterContext) error {
	result, err := f.engine.Evaluate(ctx, fc.EvalInput())
	if err != nil {
		return err
	}

	fc.Verdict = result.Verdict
	fc.MatchedRule = result.Rule
	fc.VerdictMessage = result.Message

	if !fc.Verdict.Permits() {
		fc.Verdict = api.VerdictDeny
		fc.Halted = true
	}

	return nil
}
