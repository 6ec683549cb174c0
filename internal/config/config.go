// Package config loads and validates the engine's YAML configuration:
// engine-wide settings plus one block per CA.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"

	"github.com/remiblancher/crl-engine/internal/crl"
)

// Defaults applied to CA blocks that leave fields unset.
const (
	DefaultValidityHours = 168 // one week
	DefaultOverlapHours  = 2
	DefaultMaxRetries    = 3
	DefaultCheckInterval = 5 * time.Minute
	DefaultPointTimeout  = 10 * time.Second
)

// Duration wraps time.Duration for YAML values like "5m" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root of the YAML file.
type Config struct {
	Engine EngineConfig         `yaml:"engine"`
	CAs    map[string]*CAConfig `yaml:"cas"`
}

// EngineConfig holds engine-wide settings.
type EngineConfig struct {
	// Instance names this engine in generated_by fields and logs.
	Instance string `yaml:"instance"`
	// DataDir holds the CRL database and audit log.
	DataDir string `yaml:"data_dir"`
	// Listen is the API listen address.
	Listen string `yaml:"listen"`
	// IndexDir is the root of the per-CA revocation index files.
	IndexDir string `yaml:"index_dir"`
	// CheckInterval is how often the scheduler evaluates CAs.
	CheckInterval Duration `yaml:"check_interval"`
	// Receipts enables COSE_Sign1 publication receipts on successful
	// point publishes. Only classical CA algorithms can produce them.
	Receipts bool `yaml:"receipts"`

	Webhook WebhookConfig `yaml:"webhook"`
	Audit   AuditConfig   `yaml:"audit"`
}

// WebhookConfig configures lifecycle event notifications.
type WebhookConfig struct {
	URL string `yaml:"url"`
	// AuthHeader adds a header to every delivery, "Name: Value" form.
	AuthHeader string   `yaml:"auth_header"`
	Timeout    Duration `yaml:"timeout"`
	// QueueSize bounds the in-flight event queue; events beyond it are
	// dropped rather than blocking the pipeline.
	QueueSize int `yaml:"queue_size"`
}

// AuditConfig configures the hash-chained audit log.
type AuditConfig struct {
	LogFile string `yaml:"log_file"`
}

// KeyConfig locates a CA's signing material.
type KeyConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// HSM switches the CA to PKCS#11 signing when set.
	HSM *HSMKeyConfig `yaml:"hsm,omitempty"`
}

// HSMKeyConfig mirrors signing.HSMConfig in YAML form.
type HSMKeyConfig struct {
	ModulePath string `yaml:"module_path"`
	SlotID     uint   `yaml:"slot_id"`
	PIN        string `yaml:"pin"`
	KeyLabel   string `yaml:"key_label"`
	Algorithm  string `yaml:"algorithm"`
	CertFile   string `yaml:"cert_file"`
}

// PointConfig declares one distribution point.
type PointConfig struct {
	ID       string   `yaml:"id"`
	URL      string   `yaml:"url"`
	Enabled  bool     `yaml:"enabled"`
	Priority int      `yaml:"priority"`
	Timeout  Duration `yaml:"timeout"`
}

// CAConfig is the per-CA block.
type CAConfig struct {
	Enabled bool `yaml:"enabled"`
	// AutoGenerate lets the scheduler generate CRLs for this CA; manual
	// and revocation-triggered requests work either way.
	AutoGenerate   bool `yaml:"auto_generate"`
	ValidityHours  int  `yaml:"validity_hours"`
	OverlapHours   int  `yaml:"overlap_hours"`
	IncludeExpired bool `yaml:"include_expired"`
	MaxRetries     int  `yaml:"max_retries"`

	Security SecurityConfig `yaml:"security"`
	Key      KeyConfig      `yaml:"key"`
	Points   []PointConfig  `yaml:"distribution_points"`
}

// SecurityConfig uses pointers so "unset" and "explicitly false" are
// distinguishable; every option defaults to true.
type SecurityConfig struct {
	SignCRL           *bool `yaml:"sign_crl"`
	IncludeIssuer     *bool `yaml:"include_issuer"`
	IncludeExtensions *bool `yaml:"include_extensions"`
}

// Options resolves the block to concrete security options.
func (s SecurityConfig) Options() crl.SecurityOptions {
	opt := func(p *bool) bool {
		if p == nil {
			return true
		}
		return *p
	}
	return crl.SecurityOptions{
		SignCRL:           opt(s.SignCRL),
		IncludeIssuer:     opt(s.IncludeIssuer),
		IncludeExtensions: opt(s.IncludeExtensions),
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.Instance == "" {
		c.Engine.Instance = "crl-engine"
	}
	if c.Engine.Listen == "" {
		c.Engine.Listen = ":8443"
	}
	if c.Engine.CheckInterval == 0 {
		c.Engine.CheckInterval = Duration(DefaultCheckInterval)
	}
	if c.Engine.Webhook.Timeout == 0 {
		c.Engine.Webhook.Timeout = Duration(10 * time.Second)
	}
	if c.Engine.Webhook.QueueSize == 0 {
		c.Engine.Webhook.QueueSize = 64
	}
	for _, ca := range c.CAs {
		if ca.ValidityHours == 0 {
			ca.ValidityHours = DefaultValidityHours
		}
		if ca.OverlapHours == 0 {
			ca.OverlapHours = DefaultOverlapHours
		}
		if ca.MaxRetries == 0 {
			ca.MaxRetries = DefaultMaxRetries
		}
		for i := range ca.Points {
			if ca.Points[i].Timeout == 0 {
				ca.Points[i].Timeout = Duration(DefaultPointTimeout)
			}
		}
	}
}

// Validate checks every CA block. Errors carry the CA ID so a multi-CA
// file pinpoints the offending block.
func (c *Config) Validate() error {
	for caID, ca := range c.CAs {
		if ca.ValidityHours <= 0 {
			return &crl.ConfigurationError{Field: caID + ".validity_hours", Reason: "must be positive"}
		}
		if ca.OverlapHours < 0 || ca.OverlapHours >= ca.ValidityHours {
			return &crl.ConfigurationError{Field: caID + ".overlap_hours", Reason: "must be non-negative and smaller than validity_hours"}
		}
		if ca.MaxRetries < 0 {
			return &crl.ConfigurationError{Field: caID + ".max_retries", Reason: "must be non-negative"}
		}
		seen := make(map[string]bool)
		for _, p := range ca.Points {
			if p.ID == "" {
				return &crl.ConfigurationError{Field: caID + ".distribution_points", Reason: "point id must not be empty"}
			}
			if seen[p.ID] {
				return &crl.ConfigurationError{Field: caID + ".distribution_points", Reason: "duplicate point id " + p.ID}
			}
			seen[p.ID] = true
			if err := ValidatePointURL(p.URL); err != nil {
				return &crl.ConfigurationError{Field: caID + ".distribution_points." + p.ID, Reason: err.Error()}
			}
		}
	}
	return nil
}

// CA returns the named CA block, or crl.ErrCANotFound.
func (c *Config) CA(caID string) (*CAConfig, error) {
	ca, ok := c.CAs[caID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crl.ErrCANotFound, caID)
	}
	return ca, nil
}

// CAIDs returns the configured CA IDs.
func (c *Config) CAIDs() []string {
	ids := make([]string, 0, len(c.CAs))
	for id := range c.CAs {
		ids = append(ids, id)
	}
	return ids
}

// ValidatePointURL checks that a distribution point URL is http(s) with a
// plausible public host. Literal IPs and single-label hosts (lab setups,
// localhost) are accepted; multi-label hosts must have a registrable
// domain under the public suffix list.
func ValidatePointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !containsDot(host) {
		return nil
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return fmt.Errorf("host %q has no registrable domain: %w", host, err)
	}
	return nil
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}
