package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
engine:
  instance: engine-1
  data_dir: /var/lib/crlengine
  listen: ":9443"
  check_interval: 2m
  webhook:
    url: https://hooks.example.com/crl
    timeout: 5s
cas:
  root-ca:
    enabled: true
    auto_generate: true
    validity_hours: 168
    overlap_hours: 2
    security:
      include_extensions: false
    key:
      cert_file: /etc/pki/root-ca.crt
      key_file: /etc/pki/root-ca.key
    distribution_points:
      - id: cdn
        url: https://crl.example.com/root-ca.crl
        enabled: true
        priority: 1
      - id: lab
        url: http://10.0.0.5/root-ca.crl
        enabled: true
        priority: 2
  issuing-ca:
    enabled: false
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "engine-1", cfg.Engine.Instance)
	assert.Equal(t, 2*time.Minute, cfg.Engine.CheckInterval.Std())
	assert.Equal(t, 5*time.Second, cfg.Engine.Webhook.Timeout.Std())

	ca, err := cfg.CA("root-ca")
	require.NoError(t, err)
	assert.True(t, ca.Enabled)
	assert.Equal(t, 168, ca.ValidityHours)
	assert.Equal(t, 2, ca.OverlapHours)
	assert.Equal(t, DefaultMaxRetries, ca.MaxRetries)

	opts := ca.Security.Options()
	assert.True(t, opts.SignCRL, "sign_crl defaults to true")
	assert.True(t, opts.IncludeIssuer)
	assert.False(t, opts.IncludeExtensions, "explicit false wins over default")

	require.Len(t, ca.Points, 2)
	assert.Equal(t, DefaultPointTimeout, ca.Points[0].Timeout.Std())

	// Unset fields on a minimal block pick up defaults.
	issuing, err := cfg.CA("issuing-ca")
	require.NoError(t, err)
	assert.False(t, issuing.Enabled)
	assert.Equal(t, DefaultValidityHours, issuing.ValidityHours)
	assert.Equal(t, DefaultOverlapHours, issuing.OverlapHours)

	_, err = cfg.CA("nope")
	assert.Error(t, err)
}

func TestValidateRejectsBadBlocks(t *testing.T) {
	cases := map[string]string{
		"overlap >= validity": `
cas:
  ca1:
    validity_hours: 2
    overlap_hours: 2
`,
		"negative validity": `
cas:
  ca1:
    validity_hours: -1
`,
		"duplicate point id": `
cas:
  ca1:
    distribution_points:
      - id: p1
        url: https://crl.example.com/a.crl
      - id: p1
        url: https://crl.example.com/b.crl
`,
		"bad point scheme": `
cas:
  ca1:
    distribution_points:
      - id: p1
        url: ftp://crl.example.com/a.crl
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestValidatePointURL(t *testing.T) {
	valid := []string{
		"https://crl.example.com/ca.crl",
		"http://10.1.2.3/ca.crl",
		"http://localhost:8080/ca.crl",
	}
	for _, u := range valid {
		assert.NoError(t, ValidatePointURL(u), u)
	}

	invalid := []string{
		"ftp://crl.example.com/ca.crl",
		"https:///ca.crl",
		"https://co.uk/ca.crl", // bare public suffix, not a registrable host
		"not a url at all\x7f",
	}
	for _, u := range invalid {
		assert.Error(t, ValidatePointURL(u), u)
	}
}
