package crl

import (
	"bytes"
	"encoding/pem"
	"fmt"
)

// ExportFormat selects the on-the-wire encoding for an exported CRL.
type ExportFormat string

const (
	FormatPEM ExportFormat = "pem"
	FormatDER ExportFormat = "der"
)

// pemCRLType is the PEM block type for CRLs (RFC 7468).
const pemCRLType = "X509 CRL"

// ParseExportFormat normalizes a user-supplied format string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatPEM, "":
		return FormatPEM, nil
	case FormatDER:
		return FormatDER, nil
	}
	return "", fmt.Errorf("unknown export format %q (want pem or der)", s)
}

// Export is an encoded CRL ready to hand to a caller or write to disk.
type Export struct {
	Format   ExportFormat
	Filename string
	Data     []byte
}

// ExportCRL encodes the stored artifact. The DER bytes are emitted exactly
// as persisted: decoding a PEM export yields the identical artifact, so a
// round trip through export and re-validation cannot change the verdict.
func ExportCRL(c *CRL, format ExportFormat) (*Export, error) {
	if len(c.Raw) == 0 {
		return nil, fmt.Errorf("CRL %s has no artifact to export", c.ID)
	}
	base := fmt.Sprintf("%s-%s", c.CAID, c.ID)

	switch format {
	case FormatDER:
		return &Export{Format: FormatDER, Filename: base + ".crl", Data: c.Raw}, nil
	case FormatPEM:
		var buf bytes.Buffer
		if err := pem.Encode(&buf, &pem.Block{Type: pemCRLType, Bytes: c.Raw}); err != nil {
			return nil, fmt.Errorf("PEM encode: %w", err)
		}
		return &Export{Format: FormatPEM, Filename: base + ".pem", Data: buf.Bytes()}, nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// DecodePEM extracts the DER artifact from a PEM export.
func DecodePEM(data []byte) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemCRLType {
		return nil, fmt.Errorf("no %s PEM block found", pemCRLType)
	}
	return block.Bytes, nil
}
