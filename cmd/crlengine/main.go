// Command crlengine manages the lifecycle of Certificate Revocation Lists:
// generation, signing, storage, distribution, validation and retirement.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	logJSON    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crlengine",
	Short: "CRL Engine - Certificate Revocation List lifecycle management",
	Long: `CRL Engine builds, signs, stores, distributes and retires Certificate
Revocation Lists (RFC 5280) on behalf of one or more CAs.

Revocations are read from OpenSSL-style index files, CRLs are signed by
software keys or a PKCS#11 HSM, persisted with monotonic CRL numbers,
and published to HTTP distribution points with COSE publication receipts.

Supported signature algorithms:
  Classical: ECDSA (P-256, P-384), Ed25519, RSA
  PQC:       ML-DSA-44, ML-DSA-65, ML-DSA-87 (FIPS 204)

Examples:
  # Generate a CRL for a CA
  crlengine generate root-ca --config crlengine.yaml

  # Run the engine with scheduler and REST API
  crlengine serve --config crlengine.yaml

  # Validate and export a stored CRL
  crlengine validate 1b4e28ba-2fa1-11d2-883f-0016d3cca427
  crlengine export 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --format pem --out root-ca.pem`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var handler slog.Handler
		if logJSON {
			handler = slog.NewJSONHandler(os.Stderr, nil)
		} else {
			handler = slog.NewTextHandler(os.Stderr, nil)
		}
		slog.SetDefault(slog.New(handler))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "crlengine.yaml",
		"Path to the engine configuration file")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Emit logs as JSON instead of text")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(pointsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(auditCmd)
}
