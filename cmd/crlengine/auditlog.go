package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/crl-engine/internal/audit"
	"github.com/remiblancher/crl-engine/internal/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [log-file]",
	Short: "Verify the audit log hash chain",
	Long: `Verify the hash chain of a JSONL audit log. Without an argument the
log file from the engine configuration is checked.

The exit status is non-zero when the chain is broken or a record was
tampered with.

Examples:
  crlengine audit verify
  crlengine audit verify /var/log/crlengine/audit.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.Engine.Audit.LogFile
		if path == "" {
			return fmt.Errorf("no audit log configured; pass a log file path")
		}
	}

	count, err := audit.VerifyChain(path)
	if err != nil {
		return fmt.Errorf("audit chain invalid after %d valid events: %w", count, err)
	}
	fmt.Printf("Audit log %s: %d events, chain intact\n", path, count)
	return nil
}
