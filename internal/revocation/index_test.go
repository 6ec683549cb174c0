package revocation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
)

func writeIndex(t *testing.T, dir, caID, content string) {
	t.Helper()
	caDir := filepath.Join(dir, caID)
	if err := os.MkdirAll(caDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(caDir, "index.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIndexSource(t *testing.T) {
	future := time.Now().UTC().Add(24 * time.Hour).Format(indexTimeFormat)
	past := time.Now().UTC().Add(-24 * time.Hour).Format(indexTimeFormat)

	index := "" +
		"V\t" + future + "\t\t01\tunknown\tCN=alive\n" +
		"R\t" + future + "\t250115093000Z,keyCompromise\t0A1B\tunknown\tCN=revoked\n" +
		"R\t" + future + "\t250116093000Z\tff00\tunknown\tCN=revoked-plain\n" +
		"R\t" + past + "\t250117093000Z,superseded\t02\tunknown\tCN=revoked-expired\n" +
		"garbage line\n"

	dir := t.TempDir()
	writeIndex(t, dir, "ca1", index)
	src := NewIndexSource(dir)

	entries, err := src.RevokedCertificates(context.Background(), "ca1", false)
	if err != nil {
		t.Fatalf("RevokedCertificates: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entry count = %d, want 2 (V line and expired cert filtered)", len(entries))
	}

	byserial := map[string]crl.Entry{}
	for _, e := range entries {
		byserial[e.Serial] = e
	}
	held, ok := byserial["0a1b"]
	if !ok {
		t.Fatal("serial 0a1b missing; serials must be lowercased")
	}
	if held.Reason != crl.ReasonKeyCompromise {
		t.Errorf("reason = %v, want keyCompromise", held.Reason)
	}
	want, _ := time.Parse(indexTimeFormat, "250115093000Z")
	if !held.RevokedAt.Equal(want) {
		t.Errorf("revokedAt = %v, want %v", held.RevokedAt, want)
	}
	if plain, ok := byserial["ff00"]; !ok || plain.Reason != crl.ReasonUnspecified {
		t.Errorf("plain revocation must default to unspecified, got %+v", plain)
	}

	// includeExpired keeps the entry for the expired certificate.
	entries, err = src.RevokedCertificates(context.Background(), "ca1", true)
	if err != nil {
		t.Fatalf("RevokedCertificates(includeExpired): %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("includeExpired entry count = %d, want 3", len(entries))
	}
}

func TestIndexSourceMissingFile(t *testing.T) {
	src := NewIndexSource(t.TempDir())
	entries, err := src.RevokedCertificates(context.Background(), "no-such-ca", false)
	if err != nil {
		t.Fatalf("missing index must not be an error, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty set, got %d entries", len(entries))
	}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource()
	src.Revoke("ca1", crl.Entry{Serial: "01", RevokedAt: time.Now().UTC(), Reason: crl.ReasonCessationOfOperation})

	entries, err := src.RevokedCertificates(context.Background(), "ca1", false)
	if err != nil {
		t.Fatalf("RevokedCertificates: %v", err)
	}
	if len(entries) != 1 || entries[0].Serial != "01" {
		t.Fatalf("unexpected entries: %v", entries)
	}

	entries, _ = src.RevokedCertificates(context.Background(), "other", false)
	if len(entries) != 0 {
		t.Errorf("expected no entries for unknown CA")
	}
}
