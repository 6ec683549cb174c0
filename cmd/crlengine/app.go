package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/remiblancher/crl-engine/internal/audit"
	"github.com/remiblancher/crl-engine/internal/config"
	"github.com/remiblancher/crl-engine/internal/distribution"
	"github.com/remiblancher/crl-engine/internal/engine"
	"github.com/remiblancher/crl-engine/internal/notify"
	"github.com/remiblancher/crl-engine/internal/revocation"
	"github.com/remiblancher/crl-engine/internal/signing"
	"github.com/remiblancher/crl-engine/internal/stats"
	"github.com/remiblancher/crl-engine/internal/store"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
)

// app holds the wired engine and everything that needs closing.
type app struct {
	cfg      *config.Config
	engine   *engine.Engine
	store    store.Store
	audit    audit.Writer
	notifier notify.Notifier
}

// newApp wires the engine from the configuration file.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Engine.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.OpenBolt(filepath.Join(cfg.Engine.DataDir, "crlengine.db"))
	if err != nil {
		return nil, err
	}

	auth, err := buildAuthority(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var writer audit.Writer = audit.NopWriter{}
	if cfg.Engine.Audit.LogFile != "" {
		fw, err := audit.NewFileWriter(cfg.Engine.Audit.LogFile)
		if err != nil {
			st.Close()
			return nil, err
		}
		writer = fw
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Engine.Webhook.URL != "" {
		notifier = notify.NewWebhook(
			cfg.Engine.Webhook.URL,
			cfg.Engine.Webhook.AuthHeader,
			cfg.Engine.Webhook.Timeout.Std(),
			cfg.Engine.Webhook.QueueSize,
		)
	}

	var receipts *distribution.ReceiptSigner
	if cfg.Engine.Receipts {
		receipts = distribution.NewReceiptSigner(auth)
	}

	eng := &engine.Engine{
		Config:    cfg,
		Store:     st,
		Source:    &revocation.IndexSource{BasePath: cfg.Engine.IndexDir},
		Authority: auth,
		Distributor: &distribution.Engine{
			Store:    st,
			Receipts: receipts,
			Timeout:  config.DefaultPointTimeout,
		},
		Audit:    writer,
		Notifier: notifier,
		Metrics:  stats.NewMetrics(),
	}

	return &app{cfg: cfg, engine: eng, store: st, audit: writer, notifier: notifier}, nil
}

// Close releases the app's resources in reverse dependency order.
func (a *app) Close() {
	if w, ok := a.notifier.(*notify.Webhook); ok {
		w.Close()
	}
	if c, ok := a.audit.(*audit.FileWriter); ok {
		_ = c.Close()
	}
	_ = a.store.Close()
}

// buildAuthority routes each configured CA to software or HSM signing.
func buildAuthority(cfg *config.Config) (signing.Authority, error) {
	software := make(map[string]signing.KeyMaterial)
	hsm := make(map[string]signing.HSMConfig)

	for caID, caCfg := range cfg.CAs {
		if h := caCfg.Key.HSM; h != nil {
			hsm[caID] = signing.HSMConfig{
				ModulePath: h.ModulePath,
				SlotID:     h.SlotID,
				PIN:        h.PIN,
				KeyLabel:   h.KeyLabel,
				Algorithm:  pkicrypto.AlgorithmID(h.Algorithm),
				CertFile:   h.CertFile,
			}
			continue
		}
		software[caID] = signing.KeyMaterial{
			CertFile: caCfg.Key.CertFile,
			KeyFile:  caCfg.Key.KeyFile,
		}
	}

	if len(hsm) == 0 {
		return signing.NewSoftwareAuthority(software), nil
	}

	routes := make(map[string]signing.Authority, len(cfg.CAs))
	softAuth := signing.NewSoftwareAuthority(software)
	hsmAuth := signing.NewHSMAuthority(hsm)
	for caID := range software {
		routes[caID] = softAuth
	}
	for caID := range hsm {
		routes[caID] = hsmAuth
	}
	return signing.NewMultiAuthority(routes), nil
}
