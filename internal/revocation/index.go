// Package revocation supplies the revoked-certificate sets CRLs are built
// from. The canonical source is an OpenSSL-style index.txt per CA:
//
//	status \t expiry \t revocation[,reason] \t serial \t filename \t subject
//
// with status V (valid) or R (revoked) and times in YYMMDDHHMMSSZ form.
package revocation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
)

const indexTimeFormat = "060102150405Z"

// IndexSource reads revocations from per-CA index files laid out as
// <BasePath>/<caID>/index.txt.
type IndexSource struct {
	BasePath string
	Clock    func() time.Time
}

var _ crl.RevocationSource = (*IndexSource)(nil)

// NewIndexSource creates a source rooted at base.
func NewIndexSource(base string) *IndexSource {
	return &IndexSource{BasePath: base}
}

func (s *IndexSource) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// RevokedCertificates returns the CA's revoked entries. A missing index
// file means no certificates were ever issued: an empty set, not an error.
func (s *IndexSource) RevokedCertificates(ctx context.Context, caID string, includeExpired bool) ([]crl.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.BasePath, caID, "index.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index for CA %s: %w", caID, err)
	}

	now := s.now()
	var entries []crl.Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		entry, ok := parseIndexLine(line)
		if !ok {
			// Malformed lines are skipped, not fatal: one bad record
			// must not block CRL generation for the whole CA.
			continue
		}
		if !includeExpired && !entry.Expiry.IsZero() && now.After(entry.Expiry) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseIndexLine parses one revoked ("R") index line into an Entry.
// Valid ("V") lines and malformed lines report ok=false.
func parseIndexLine(line string) (crl.Entry, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 6 || parts[0] != "R" {
		return crl.Entry{}, false
	}

	var entry crl.Entry

	if parts[1] != "" {
		if t, err := time.Parse(indexTimeFormat, parts[1]); err == nil {
			entry.Expiry = t
		}
	}

	// Revocation field is "date" or "date,reason".
	revField := parts[2]
	if revField == "" {
		return crl.Entry{}, false
	}
	if i := strings.IndexByte(revField, ','); i >= 0 {
		entry.Reason = crl.ParseReason(revField[i+1:])
		revField = revField[:i]
	}
	t, err := time.Parse(indexTimeFormat, revField)
	if err != nil {
		return crl.Entry{}, false
	}
	entry.RevokedAt = t

	serial := strings.ToLower(parts[3])
	if serial == "" {
		return crl.Entry{}, false
	}
	entry.Serial = serial

	return entry, true
}

// MemorySource is an in-memory revocation source for tests and embedded
// setups.
type MemorySource struct {
	mu      sync.RWMutex
	entries map[string][]crl.Entry
}

var _ crl.RevocationSource = (*MemorySource)(nil)

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{entries: make(map[string][]crl.Entry)}
}

// Revoke records an entry for the CA.
func (s *MemorySource) Revoke(caID string, e crl.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[caID] = append(s.entries[caID], e)
}

// RevokedCertificates returns the CA's recorded entries.
func (s *MemorySource) RevokedCertificates(ctx context.Context, caID string, includeExpired bool) ([]crl.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var out []crl.Entry
	for _, e := range s.entries[caID] {
		if !includeExpired && !e.Expiry.IsZero() && now.After(e.Expiry) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
