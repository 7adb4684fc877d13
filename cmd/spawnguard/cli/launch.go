package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/tkingovr/spawnguard/internal/config"
	"github.com/tkingovr/spawnguard/internal/filter"
	"github.com/tkingovr/spawnguard/internal/policy"
	"github.com/tkingovr/spawnguard/internal/spawn"
)

// launchFlags are shared by run and check.
type launchFlags struct {
	dir       string
	env       []string
	inherit   []string
	noInherit bool
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func chainConfig(cfg *config.Config) (filter.ChainConfig, error) {
	engine, err := policy.NewEngine(cfg.PolicyFile, cfg.PolicyPath)
	if err != nil {
		return filter.ChainConfig{}, fmt.Errorf("creating policy engine: %w", err)
	}
	rateLimit, err := filter.RateLimitConfigFromPolicy(cfg.RateLimit)
	if err != nil {
		return filter.ChainConfig{}, fmt.Errorf("rate limit: %w", err)
	}
	return filter.ChainConfig{
		Engine:           engine,
		Logger:           logger,
		SecretScanner:    cfg.SecretScanner,
		EntropyThreshold: cfg.EntropyThreshold,
		RateLimit:        rateLimit,
	}, nil
}

// request builds the launch for argv from the config and flags.
func (f *launchFlags) request(cfg *config.Config, argv []string) (spawn.Request, error) {
	for _, kv := range f.env {
		if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
			return spawn.Request{}, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
	}

	switch {
	case f.noInherit:
		cfg.Inherit = nil
	case len(f.inherit) > 0:
		cfg.Inherit = append(append([]string{}, cfg.Inherit...), f.inherit...)
	}

	dir := f.dir
	if dir == "" {
		dir = cfg.WorkingDir
	}

	req := spawn.Request{
		Command: argv[0],
		Dir:     dir,
		Argv:    argv,
		Env:     cfg.Environment(f.env, os.LookupEnv),
	}
	if err := req.Validate(); err != nil {
		return spawn.Request{}, err
	}
	return req, nil
}
