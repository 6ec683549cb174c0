package crl

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
	"github.com/remiblancher/crl-engine/internal/signing"
)

type fakeStore struct {
	last   int64
	active *CRL
	crls   map[string]*CRL
}

func (f *fakeStore) LastCRLNumber(_ context.Context, _ string) (int64, error) {
	return f.last, nil
}

func (f *fakeStore) ActiveCRL(_ context.Context, _ string) (*CRL, error) {
	return f.active, nil
}

func (f *fakeStore) GetCRL(_ context.Context, id string) (*CRL, error) {
	if f.crls == nil {
		return nil, nil
	}
	return f.crls[id], nil
}

type fakeSource struct {
	entries []Entry
}

func (f *fakeSource) RevokedCertificates(_ context.Context, _ string, _ bool) ([]Entry, error) {
	return f.entries, nil
}

func newTestAuthority(t *testing.T, alg pkicrypto.AlgorithmID) *signing.StaticAuthority {
	t.Helper()
	kp, err := pkicrypto.GenerateKeyPair(alg)
	if err != nil {
		t.Fatalf("GenerateKeyPair(%s): %v", alg, err)
	}
	signer, err := pkicrypto.NewSoftwareSigner(kp)
	if err != nil {
		t.Fatalf("NewSoftwareSigner: %v", err)
	}
	return &signing.StaticAuthority{CAID: "test-ca", Signer: signer}
}

func buildAndSign(t *testing.T, alg pkicrypto.AlgorithmID, entries []Entry, opts SecurityOptions) (*CRL, *signing.StaticAuthority) {
	t.Helper()
	auth := newTestAuthority(t, alg)
	builder := &Builder{
		Source: &fakeSource{entries: entries},
		Store:  &fakeStore{last: 4},
	}
	u, err := builder.Build(context.Background(), GenerationRequest{
		CAID:    "test-ca",
		Trigger: TriggerManual,
	}, BuildParams{ValidityHours: 168, OverlapHours: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	signer := &Signer{Authority: auth, GeneratedBy: "test"}
	c, err := signer.Sign(context.Background(), u, opts)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return c, auth
}

var testEntries = []Entry{
	{Serial: "0a1b2c", RevokedAt: time.Now().Add(-time.Hour).UTC(), Reason: ReasonKeyCompromise},
	{Serial: "ff00ff", RevokedAt: time.Now().Add(-2 * time.Hour).UTC(), Reason: ReasonUnspecified},
}

func TestSignAndValidate(t *testing.T) {
	for _, alg := range []pkicrypto.AlgorithmID{pkicrypto.AlgEd25519, pkicrypto.AlgECDSAP256, pkicrypto.AlgMLDSA65} {
		t.Run(string(alg), func(t *testing.T) {
			c, auth := buildAndSign(t, alg, testEntries, SecurityOptions{
				SignCRL:           true,
				IncludeExtensions: true,
			})

			if !c.Signed || len(c.Signature) == 0 {
				t.Fatal("expected a signed CRL")
			}
			if c.Number != 5 {
				t.Errorf("CRL number = %d, want 5", c.Number)
			}
			if len(c.Entries) != 2 {
				t.Errorf("entry count = %d, want 2", len(c.Entries))
			}

			v := &Validator{Keys: auth}
			res := v.ValidateCRL(c)
			if !res.Valid {
				t.Fatalf("expected valid CRL, got errors: %v", res.Errors)
			}
			if len(res.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", res.Warnings)
			}
		})
	}
}

func TestValidateDetectsTamper(t *testing.T) {
	c, auth := buildAndSign(t, pkicrypto.AlgEd25519, testEntries, SecurityOptions{SignCRL: true})

	// Flip a byte inside the TBS portion.
	c.Raw[len(c.Raw)/2] ^= 0xff

	v := &Validator{Keys: auth}
	res := v.ValidateCRL(c)
	if res.Valid {
		t.Fatal("expected tampered CRL to be invalid")
	}
}

func TestValidateRejectsUnsigned(t *testing.T) {
	c, auth := buildAndSign(t, pkicrypto.AlgEd25519, nil, SecurityOptions{SignCRL: false})
	if c.Signed {
		t.Fatal("expected unsigned artifact")
	}
	if len(c.Raw) == 0 {
		t.Fatal("expected TBS artifact even when unsigned")
	}

	v := &Validator{Keys: auth}
	res := v.ValidateCRL(c)
	if res.Valid {
		t.Fatal("unsigned CRL must not validate")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "not signed") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing unsigned error, got %v", res.Errors)
	}
}

func TestValidateFutureThisUpdate(t *testing.T) {
	c, auth := buildAndSign(t, pkicrypto.AlgEd25519, nil, SecurityOptions{SignCRL: true})

	// Validate as if the clock were before thisUpdate.
	v := &Validator{
		Keys:  auth,
		Clock: func() time.Time { return c.ThisUpdate.Add(-time.Hour) },
	}
	res := v.ValidateCRL(c)
	if res.Valid {
		t.Fatal("future thisUpdate must be fatal")
	}
}

func TestValidateExpiredIsWarning(t *testing.T) {
	c, auth := buildAndSign(t, pkicrypto.AlgEd25519, nil, SecurityOptions{SignCRL: true})

	v := &Validator{
		Keys:  auth,
		Clock: func() time.Time { return c.NextUpdate.Add(time.Hour) },
	}
	res := v.ValidateCRL(c)
	if !res.Valid {
		t.Fatalf("expiry alone must not invalidate, got errors: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected an expiry warning")
	}
}

func TestBuildNotDue(t *testing.T) {
	now := time.Now().UTC()
	active := &CRL{
		ID:         "active",
		CAID:       "test-ca",
		Number:     7,
		ThisUpdate: now.Add(-time.Hour),
		NextUpdate: now.Add(100 * time.Hour),
		Status:     StatusActive,
	}
	builder := &Builder{
		Source: &fakeSource{},
		Store:  &fakeStore{last: 7, active: active},
	}

	_, err := builder.Build(context.Background(), GenerationRequest{CAID: "test-ca", Trigger: TriggerScheduled},
		BuildParams{ValidityHours: 168, OverlapHours: 2})
	if err == nil || !strings.Contains(err.Error(), "not due") {
		t.Fatalf("expected ErrNotDue, got %v", err)
	}

	// Force bypasses the due check and still allocates number 8.
	u, err := builder.Build(context.Background(), GenerationRequest{CAID: "test-ca", Trigger: TriggerManual, Force: true},
		BuildParams{ValidityHours: 168, OverlapHours: 2})
	if err != nil {
		t.Fatalf("forced Build: %v", err)
	}
	if u.Number != 8 {
		t.Errorf("forced CRL number = %d, want 8", u.Number)
	}
}

func TestBuildDueInOverlapWindow(t *testing.T) {
	now := time.Now().UTC()
	active := &CRL{
		CAID:       "test-ca",
		NextUpdate: now.Add(90 * time.Minute), // inside a 2h overlap window
		Status:     StatusActive,
	}
	builder := &Builder{
		Source: &fakeSource{},
		Store:  &fakeStore{last: 1, active: active},
	}
	u, err := builder.Build(context.Background(), GenerationRequest{CAID: "test-ca", Trigger: TriggerScheduled},
		BuildParams{ValidityHours: 168, OverlapHours: 2})
	if err != nil {
		t.Fatalf("Build inside overlap window: %v", err)
	}
	if u.Number != 2 {
		t.Errorf("number = %d, want 2", u.Number)
	}
}

func TestNormalizeEntries(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{
		{Serial: "03", RevokedAt: now, Reason: ReasonSuperseded},
		{Serial: "01", RevokedAt: now, Reason: ReasonKeyCompromise},
		{Serial: "01", RevokedAt: now, Reason: ReasonKeyCompromise}, // duplicate
		{Serial: "02", RevokedAt: now, Reason: ReasonRemoveFromCRL}, // un-held
		{Serial: "04", RevokedAt: now, Expiry: now.Add(-time.Hour)}, // expired cert
	}

	got := normalizeEntries(entries, false, now)
	if len(got) != 2 {
		t.Fatalf("entry count = %d, want 2", len(got))
	}
	if got[0].Serial != "01" || got[1].Serial != "03" {
		t.Errorf("entries not sorted by serial: %v", got)
	}

	withExpired := normalizeEntries(entries, true, now)
	if len(withExpired) != 3 {
		t.Errorf("includeExpired entry count = %d, want 3", len(withExpired))
	}
}

func TestExportRoundTrip(t *testing.T) {
	c, auth := buildAndSign(t, pkicrypto.AlgECDSAP256, testEntries, SecurityOptions{SignCRL: true, IncludeExtensions: true})

	pemExport, err := ExportCRL(c, FormatPEM)
	if err != nil {
		t.Fatalf("ExportCRL pem: %v", err)
	}
	derExport, err := ExportCRL(c, FormatDER)
	if err != nil {
		t.Fatalf("ExportCRL der: %v", err)
	}
	if !bytes.Equal(derExport.Data, c.Raw) {
		t.Fatal("DER export must be the stored artifact byte for byte")
	}

	decoded, err := DecodePEM(pemExport.Data)
	if err != nil {
		t.Fatalf("DecodePEM: %v", err)
	}
	if !bytes.Equal(decoded, c.Raw) {
		t.Fatal("PEM round trip changed the artifact")
	}

	// Re-validating the re-imported bytes yields the same verdict.
	reimported := *c
	reimported.Raw = decoded
	v := &Validator{Keys: auth}
	if res := v.ValidateCRL(&reimported); !res.Valid {
		t.Fatalf("re-imported CRL invalid: %v", res.Errors)
	}
}

func TestExtensionsPresentInArtifact(t *testing.T) {
	c, _ := buildAndSign(t, pkicrypto.AlgEd25519, testEntries, SecurityOptions{SignCRL: true, IncludeExtensions: true})

	parsed, err := parseDER(c.Raw, true)
	if err != nil {
		t.Fatalf("parseDER: %v", err)
	}
	if !parsed.hasExtension(OIDCRLNumber) {
		t.Error("CRL number extension missing from artifact")
	}
	if parsed.EntryCount != 2 {
		t.Errorf("parsed entries = %d, want 2", parsed.EntryCount)
	}
}

func TestParseReason(t *testing.T) {
	if got := ParseReason("keyCompromise"); got != ReasonKeyCompromise {
		t.Errorf("ParseReason(keyCompromise) = %v", got)
	}
	if got := ParseReason("nonsense"); got != ReasonUnspecified {
		t.Errorf("ParseReason(nonsense) = %v", got)
	}
	if ReasonRemoveFromCRL.String() != "removeFromCRL" {
		t.Errorf("String() = %s", ReasonRemoveFromCRL.String())
	}
}
