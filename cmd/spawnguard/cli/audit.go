package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/audit"
)

var (
	auditLogDir  string
	auditCommand string
	auditEvent   string
	auditVerdict string
	auditSince   time.Duration
	auditLimit   int
	auditStats   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the launch audit trail",
	Long: `Print audit records as JSON lines, newest last, or aggregate
statistics with --stats. Only the most recent records are kept in memory
when the log is replayed.`,
	Example: `  spawnguard audit --event deny
  spawnguard audit --command git --since 1h --limit 20
  spawnguard audit --stats`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditLogDir, "log-dir", "", "audit log directory (default from config)")
	auditCmd.Flags().StringVar(&auditCommand, "command", "", "only records for this command (full path or base name)")
	auditCmd.Flags().StringVar(&auditEvent, "event", "", "only this event: launch, deny, exit or error")
	auditCmd.Flags().StringVar(&auditVerdict, "verdict", "", "only this verdict: allow, deny or log")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only records newer than this")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "print at most this many of the newest records")
	auditCmd.Flags().BoolVar(&auditStats, "stats", false, "print statistics instead of records")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	dir := auditLogDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.LogDir
	}

	switch api.Event(auditEvent) {
	case "", api.EventLaunch, api.EventDeny, api.EventExit, api.EventError:
	default:
		return fmt.Errorf("unknown event %q", auditEvent)
	}

	store, err := audit.OpenJSONLStore(dir)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)

	if auditStats {
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	filter := api.QueryFilter{
		Event:   api.Event(auditEvent),
		Command: auditCommand,
		Verdict: api.Verdict(auditVerdict),
	}
	if auditSince > 0 {
		filter.Since = time.Now().Add(-auditSince)
	}

	records, err := store.Query(ctx, filter)
	if err != nil {
		return err
	}
	// Keep the newest records.
	if auditLimit > 0 && len(records) > auditLimit {
		records = records[len(records)-auditLimit:]
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
