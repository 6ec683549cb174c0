package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/crl-engine/internal/crl"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <crl-id>",
	Short: "Export a stored CRL as PEM or DER",
	Long: `Export a stored CRL's artifact. The DER bytes are written exactly
as persisted; PEM wraps the same bytes.

Examples:
  # PEM to stdout
  crlengine export 1b4e28ba-2fa1-11d2-883f-0016d3cca427

  # DER to a file
  crlengine export 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --format der --out root-ca.crl`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "pem", "Output format: pem or der")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := crl.ParseExportFormat(exportFormat)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	exp, err := app.engine.ExportCRL(context.Background(), args[0], format)
	if err != nil {
		return err
	}

	if exportOut == "" {
		_, err = os.Stdout.Write(exp.Data)
		return err
	}
	if err := os.WriteFile(exportOut, exp.Data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(exp.Data), exportOut)
	return nil
}
