package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/remiblancher/crl-engine/internal/crl"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list <ca-id>",
	Short: "List CRLs for a CA",
	Long: `List stored CRLs for a CA, newest first.

Examples:
  # All CRLs
  crlengine list root-ca

  # Only superseded ones
  crlengine list root-ca --status superseded --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (active, superseded, expired)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of CRLs to show")
}

func runList(cmd *cobra.Command, args []string) error {
	status := crl.Status(listStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", listStatus)
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	crls, err := app.engine.Store.ListCRLs(context.Background(), args[0], status, listLimit)
	if err != nil {
		return err
	}
	if len(crls) == 0 {
		fmt.Println("No CRLs found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSTATUS\tENTRIES\tSIGNED\tNEXT UPDATE\tID")
	for _, c := range crls {
		fmt.Fprintf(w, "%d\t%s\t%d\t%t\t%s\t%s\n",
			c.Number, c.Status, len(c.Entries), c.Signed,
			c.NextUpdate.Format("2006-01-02 15:04"), c.ID)
	}
	return w.Flush()
}
