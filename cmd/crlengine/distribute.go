package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/crl-engine/internal/distribution"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute <crl-id>",
	Short: "Publish a stored CRL to its CA's distribution points",
	Long: `Publish a stored CRL to every enabled distribution point of its CA.

Unsigned CRLs are refused. Failed points are recorded and owed a retry.

Examples:
  crlengine distribute 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
	Args: cobra.ExactArgs(1),
	RunE: runDistribute,
}

var retryCmd = &cobra.Command{
	Use:   "retry <ca-id>",
	Short: "Retry failed distribution points for a CA",
	Long: `Re-publish pending CRLs to distribution points whose last delivery
failed. Points that exhausted their retry budget are skipped.

Examples:
  crlengine retry root-ca`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func runDistribute(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.engine.DistributeCRL(context.Background(), args[0])
	if err != nil {
		return err
	}
	printDistribution(res)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d points failed", res.Failed, res.Attempted)
	}
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.engine.RetryFailed(context.Background(), args[0])
	if err != nil {
		return err
	}
	if res.Attempted == 0 {
		fmt.Println("Nothing pending")
		return nil
	}
	printDistribution(res)
	return nil
}

func printDistribution(res *distribution.Result) {
	fmt.Printf("Attempted %d, succeeded %d, failed %d\n", res.Attempted, res.Succeeded, res.Failed)
	for _, pr := range res.Results {
		status := "ok"
		if !pr.Success {
			status = "failed: " + pr.Error
		}
		fmt.Printf("  %-20s %-40s %s\n", pr.PointID, pr.URL, status)
	}
}
