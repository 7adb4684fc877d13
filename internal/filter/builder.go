package filter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tkingovr/spawnguard/internal/audit"
	"github.com/tkingovr/spawnguard/internal/policy"
)

// ChainConfig holds the configuration for building filter chains.
type ChainConfig struct {
	Engine           policy.Engine
	AuditStore       audit.Store
	Logger           *slog.Logger
	SecretScanner    bool
	EntropyThreshold float64
	RateLimit        *RateLimitConfig
}

// BuildLaunchChain constructs the chain every launch passes before fork.
func BuildLaunchChain(cfg ChainConfig) *Chain {
	chain := BuildCheckChain(cfg)

	// Add rate limiter
	if cfg.RateLimit != nil {
		chain.AddFilter(NewRateLimitFilter(*cfg.RateLimit))
	}

	// Audit is always last
	if cfg.AuditStore != nil {
		chain.AddFilter(NewAuditFilter(cfg.AuditStore))
	}

	return chain
}

// BuildCheckChain constructs a chain without side effects: no rate limit
// bookkeeping and no audit records. It is used for dry runs.
func BuildCheckChain(cfg ChainConfig) *Chain {
	filters := []Filter{
		NewParseFilter(),
		NewPolicyFilter(cfg.Engine),
	}

	// Add secret scanner after policy (so policy denials take precedence)
	if cfg.SecretScanner {
		opts := []SecretScannerOption{}
		if cfg.EntropyThreshold > 0 {
			opts = append(opts, WithEntropyThreshold(cfg.EntropyThreshold))
		}
		filters = append(filters, NewSecretScannerFilter(opts...))
	}

	return NewChain(cfg.Logger, filters...)
}

// RateLimitConfigFromPolicy converts policy rate limit settings to filter config.
func RateLimitConfigFromPolicy(settings *policy.RateLimitSettings) (*RateLimitConfig, error) {
	if settings == nil {
		return nil, nil
	}

	cfg := &RateLimitConfig{
		PerCommand: make(map[string]*RateLimit),
	}

	if settings.Global != nil {
		d, err := time.ParseDuration(settings.Global.Window)
		if err != nil {
			return nil, fmt.Errorf("global rate limit window %q: %w", settings.Global.Window, err)
		}
		cfg.Global = &RateLimit{Max: settings.Global.Max, Window: d}
	}

	for command, rule := range settings.PerCommand {
		if rule == nil {
			continue
		}
		d, err := time.ParseDuration(rule.Window)
		if err != nil {
			return nil, fmt.Errorf("rate limit window for %q: %w", command, err)
		}
		cfg.PerCommand[command] = &RateLimit{Max: rule.Max, Window: d}
	}

	return cfg, nil
}
