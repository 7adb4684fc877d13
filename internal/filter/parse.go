package filter

import (
	"context"

	"github.com/tkingovr/spawnguard/internal/spawn"
)

// ParseFilter validates the request and extracts the fields policies see.
type ParseFilter struct{}

func NewParseFilter() *ParseFilter  { return &ParseFilter{} }
func (f *ParseFilter) Name() string { return "parse" }

func (f *ParseFilter) Process(_ context.Context, fc *FilterContext) error {
	req := fc.Request
	if err := req.Validate(); err != nil {
		return err
	}
	fc.Command = req.Command

	// Argv[0] is only a display name; policies match on the real arguments.
	if len(req.Argv) > 1 {
		fc.Args = req.Argv[1:]
	} else {
		fc.Args = []string{}
	}
	fc.EnvKeys = spawn.EnvKeys(req.Env)

	return nil
}
