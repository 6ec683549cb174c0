package main

import (
	"github.com/spf13/cobra"

	"github.com/remiblancher/crl-engine/internal/api/server"
	"github.com/remiblancher/crl-engine/internal/audit"
	"github.com/remiblancher/crl-engine/internal/scheduler"
)

var (
	serveTLSCert string
	serveTLSKey  string
	serveNoSched bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: scheduler, REST API and publication endpoint",
	Long: `Run the CRL engine as a long-lived service.

The scheduler regenerates CRLs inside their overlap window, sweeps
expired artifacts and retries failed distribution points. The HTTP
server exposes the management API, Prometheus metrics and a
publication endpoint (/crl/{ca}.crl) serving active CRLs.

Examples:
  # Run with the default config file
  crlengine serve

  # Run with TLS
  crlengine serve --config /etc/crlengine.yaml --tls-cert server.crt --tls-key server.key`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	serveCmd.Flags().BoolVar(&serveNoSched, "no-scheduler", false, "Serve the API without the maintenance loop")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.audit.Write(audit.NewEvent(audit.EventEngineStarted, audit.ResultSuccess)); err != nil {
		return err
	}
	defer func() {
		_ = app.audit.Write(audit.NewEvent(audit.EventEngineStopped, audit.ResultSuccess))
	}()

	if !serveNoSched {
		sched := scheduler.New(app.engine, app.cfg)
		sched.Start()
		defer sched.Stop()
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = app.cfg.Engine.Listen
	srvCfg.TLSCert = serveTLSCert
	srvCfg.TLSKey = serveTLSKey

	return server.New(srvCfg, app.engine, version).Start()
}
