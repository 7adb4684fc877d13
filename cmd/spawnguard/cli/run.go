package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tkingovr/spawnguard/internal/audit"
	"github.com/tkingovr/spawnguard/internal/filter"
	stdioproxy "github.com/tkingovr/spawnguard/internal/proxy/stdio"
)

// exitDenied is returned when the gate refuses a launch (EX_NOPERM).
const exitDenied = 77

var runFlags launchFlags

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Launch a command behind the policy gate",
	Long: `Check a launch against the policy and, if it is allowed, run it with
its stdin and merged stdout/stderr piped through spawnguard.

The child gets a fresh environment: the inherited variables, then the
policy's env, then --env. spawnguard exits with the child's exit code,
128+N when it dies from signal N, or 77 when the launch is denied.`,
	Example: `  spawnguard run -c policy.yaml -- ls -la
  spawnguard run -c policy.yaml --dir /srv --env MODE=ci -- make test
  spawnguard run --inherit SSH_AUTH_SOCK -- git fetch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	addLaunchFlags(runCmd, &runFlags)
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}

func addLaunchFlags(cmd *cobra.Command, f *launchFlags) {
	cmd.Flags().StringVar(&f.dir, "dir", "", "working directory for the child")
	cmd.Flags().StringArrayVar(&f.env, "env", nil, "set KEY=VALUE in the child environment (repeatable)")
	cmd.Flags().StringArrayVar(&f.inherit, "inherit", nil, "pass this variable through from our environment (repeatable)")
	cmd.Flags().BoolVar(&f.noInherit, "no-inherit", false, "inherit no variables from our environment")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := runFlags.request(cfg, args)
	if err != nil {
		return err
	}

	chainCfg, err := chainConfig(cfg)
	if err != nil {
		return err
	}

	// Create audit store
	auditStore, err := audit.NewJSONLStore(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("creating audit store: %w", err)
	}
	defer auditStore.Close()
	chainCfg.AuditStore = auditStore

	proxy := stdioproxy.NewProxy(logger, filter.BuildLaunchChain(chainCfg), auditStore, stdioproxy.Options{
		KillGrace:  cfg.KillGrace,
		ReadBuffer: cfg.ReadBuffer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("stopping child", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Debug("launching",
		slog.String("command", req.Command),
		slog.Any("args", req.Argv[1:]),
		slog.String("dir", req.Dir),
		slog.String("policy", cfgFile),
	)

	status, err := proxy.Run(ctx, req)
	if errors.Is(err, stdioproxy.ErrDenied) {
		fmt.Fprintln(os.Stderr, "spawnguard:", err)
		return &exitCodeError{code: exitDenied}
	}
	if err != nil {
		return err
	}
	if code := status.ShellCode(); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}
