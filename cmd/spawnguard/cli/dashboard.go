package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tkingovr/spawnguard/internal/audit"
	"github.com/tkingovr/spawnguard/internal/dashboard"
	"github.com/tkingovr/spawnguard/internal/filter"
)

var (
	dashAddr   string
	dashLogDir string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the audit trail and policy checks over HTTP",
	Long: `Start a web dashboard for browsing launch records and the active policy.
The audit log files are re-read on every request, so launches made by other
spawnguard processes appear without a restart. POST /api/v1/check evaluates
a launch without running it.`,
	Example: `  spawnguard dashboard -l 127.0.0.1:8080
  spawnguard dashboard -c policy.yaml -a ~/.spawnguard/logs`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashAddr, "listen", "l", "127.0.0.1:8080", "dashboard listen address")
	dashboardCmd.Flags().StringVarP(&dashLogDir, "audit-dir", "a", "", "audit log directory (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dashLogDir != "" {
		cfg.LogDir = dashLogDir
	}

	chainCfg, err := chainConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down dashboard")
		cancel()
	}()

	dash := dashboard.NewServer(dashAddr, audit.NewDirReader(cfg.LogDir), filter.BuildCheckChain(chainCfg), cfg.PolicyFile, logger)
	return dash.ListenAndServe(ctx)
}
