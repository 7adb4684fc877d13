package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/filter"
	"github.com/tkingovr/spawnguard/internal/spawn"
)

var (
	checkFlags launchFlags
	checkJSON  bool
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] -- <command> [args...]",
	Short: "Dry-run a policy check without launching anything",
	Long: `Check what verdict a launch would receive without running it.
Useful for testing and debugging policy rules. Rate limits are not
consumed and nothing is written to the audit log.

With --json the launch is read from stdin as
{"command": ..., "args": [...], "dir": ..., "env_keys": [...]}.`,
	Example: `  spawnguard check -c policy.yaml -- cat /etc/passwd
  spawnguard check -c policy.yaml --env AWS_PROFILE=prod -- aws s3 ls
  echo '{"command":"rm","args":["-rf","/"]}' | spawnguard check -c policy.yaml --json`,
	RunE: runCheck,
}

func init() {
	addLaunchFlags(checkCmd, &checkFlags)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "read the launch as JSON from stdin")
	checkCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var req spawn.Request
	switch {
	case checkJSON:
		var in api.CheckRequest
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&in); err != nil {
			return fmt.Errorf("decoding check request: %w", err)
		}
		req, err = filter.RequestFromCheck(in)
	case len(args) > 0:
		req, err = checkFlags.request(cfg, args)
	default:
		return fmt.Errorf("a command or --json is required")
	}
	if err != nil {
		return err
	}

	chainCfg, err := chainConfig(cfg)
	if err != nil {
		return err
	}

	fc := filter.NewFilterContext(req)
	if err := filter.BuildCheckChain(chainCfg).Process(context.Background(), fc); err != nil {
		return fmt.Errorf("evaluation error: %w", err)
	}

	output := api.CheckResponse{
		Verdict: fc.Verdict,
		Rule:    fc.MatchedRule,
		Message: fc.VerdictMessage,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
