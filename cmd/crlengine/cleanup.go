package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupRetentionHours int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <ca-id>",
	Short: "Delete expired CRLs past the retention window",
	Long: `Delete a CA's expired CRLs older than the retention window. The
active CRL is never deleted, whatever its age.

Examples:
  # Drop expired CRLs older than 30 days
  crlengine cleanup root-ca --retention-hours 720`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark CRLs past their nextUpdate as expired",
	RunE:  runSweep,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupRetentionHours, "retention-hours", 720,
		"Keep expired CRLs newer than this many hours")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	deleted, err := app.engine.Cleanup(context.Background(), args[0],
		time.Duration(cleanupRetentionHours)*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d CRLs\n", deleted)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	count, err := app.engine.Sweep(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Expired %d CRLs\n", count)
	return nil
}
