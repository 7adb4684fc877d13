package filter

import (
	"context"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/audit"
)

// AuditFilter records refused launches. Permitted launches are recorded by
// the launcher once the child has a pid.
type AuditFilter struct {
	store audit.Store
}

func NewAuditFilter(store audit.Store) *AuditFilter {
	return &AuditFilter{store: store}
}

func (f *AuditFilter) Name() string { return "audit" }

func (f *AuditFilter) Process(ctx context.Context, fc *FilterContext) error {
	if !fc.Halted {
		return nil
	}
	return f.store.Write(ctx, fc.ToAuditRecord(api.EventDeny))
}
