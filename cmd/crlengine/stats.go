package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pointsCmd = &cobra.Command{
	Use:   "points <ca-id>",
	Short: "List distribution points with delivery counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoints,
}

var statsCmd = &cobra.Command{
	Use:   "stats [ca-id]",
	Short: "Show CRL statistics",
	Long: `Show a CA's CRL statistics: totals per status, average CRL size,
generation success rate, the active CRL, when the next generation
becomes due, and per-point delivery counters.

Without a CA argument the aggregate over all configured CAs is shown.

Examples:
  crlengine stats
  crlengine stats root-ca`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	var caID string
	if len(args) == 1 {
		caID = args[0]
	}
	st, err := app.engine.Stats(context.Background(), caID)
	if err != nil {
		return err
	}

	if st.CAID != "" {
		fmt.Printf("CA: %s\n", st.CAID)
	} else {
		fmt.Println("All CAs:")
	}
	fmt.Printf("  CRLs:       %d total, %d superseded, %d expired\n",
		st.TotalCRLs, st.SupersededCRLs, st.ExpiredCRLs)
	fmt.Printf("  Avg size:   %d bytes\n", st.AvgSizeBytes)
	if st.GenerationAttempts > 0 {
		fmt.Printf("  Generation: %3.0f%% ok (%d/%d)\n",
			st.GenerationSuccessRate*100, st.GenerationSuccesses, st.GenerationAttempts)
	}
	if st.ActiveCRLID != "" {
		fmt.Printf("  Active:     #%d (%s), %d entries\n", st.ActiveNumber, st.ActiveCRLID, st.ActiveEntries)
	} else if st.CAID != "" {
		fmt.Println("  Active:     none")
	}
	if st.NextUpdate != nil {
		fmt.Printf("  Expires:    %s\n", st.NextUpdate.Format("2006-01-02 15:04:05 UTC"))
	}
	if st.NextDue != nil {
		fmt.Printf("  Next due:   %s\n", st.NextDue.Format("2006-01-02 15:04:05 UTC"))
	}
	for _, p := range st.Points {
		fmt.Printf("  Point %-16s %3.0f%% ok (%d/%d)\n",
			p.PointID, p.SuccessRate*100, p.SuccessCount, p.SuccessCount+p.FailureCount)
	}
	return nil
}

func runPoints(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	points, err := app.engine.Store.ListPoints(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Println("No distribution points")
		return nil
	}
	for _, p := range points {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-16s %-40s %s  ok=%d fail=%d", p.ID, p.URL, state, p.SuccessCount, p.FailureCount)
		if p.PendingCRLID != "" {
			fmt.Printf("  pending=%s retries=%d", p.PendingCRLID, p.RetryCount)
		}
		fmt.Println()
	}
	return nil
}
