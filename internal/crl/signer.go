package crl

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/remiblancher/crl-engine/internal/signing"
)

// Signer finalizes an unsigned CRL into a DER artifact, delegating the
// actual signature to the CA's signing authority.
type Signer struct {
	Authority signing.Authority
	// GeneratedBy is recorded on every CRL this signer produces,
	// typically the engine instance name.
	GeneratedBy string
	Clock       func() time.Time
}

func (s *Signer) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// Sign serializes the TBSCertList, obtains a signature from the authority
// and assembles the final CertificateList. With opts.SignCRL false the
// artifact is the bare TBSCertList and is marked unsigned; such CRLs are
// for internal inspection only and are refused by distribution.
func (s *Signer) Sign(ctx context.Context, u *Unsigned, opts SecurityOptions) (*CRL, error) {
	alg, err := s.Authority.Algorithm(u.CAID)
	if err != nil {
		return nil, &SigningError{CAID: u.CAID, Err: err}
	}
	sigOID := alg.SignatureOID()
	if sigOID == nil {
		return nil, &SigningError{CAID: u.CAID, Err: fmt.Errorf("no signature OID for algorithm %s", alg)}
	}

	issuerName := pkix.Name{CommonName: u.CAID}
	var authorityKeyID []byte
	cert, certErr := s.Authority.Issuer(u.CAID)
	if certErr == nil && cert != nil {
		issuerName = cert.Subject
		authorityKeyID = cert.SubjectKeyId
	} else if opts.IncludeIssuer {
		return nil, &SigningError{CAID: u.CAID, Err: fmt.Errorf("issuer certificate unavailable: %w", certErr)}
	}

	issuerDER, err := asn1.Marshal(issuerName.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("marshal issuer name: %w", err)
	}

	var extensions []pkix.Extension
	if opts.IncludeExtensions {
		extensions, err = buildCRLExtensions(u.Number, authorityKeyID, u.PointURLs)
		if err != nil {
			return nil, err
		}
	}

	revoked := make([]revokedCertificateEntry, 0, len(u.Entries))
	for _, e := range u.Entries {
		serial, ok := new(big.Int).SetString(e.Serial, 16)
		if !ok {
			return nil, fmt.Errorf("invalid serial %q in CRL for CA %s", e.Serial, u.CAID)
		}
		entryExts, err := buildEntryExtensions(e.Reason)
		if err != nil {
			return nil, err
		}
		revoked = append(revoked, revokedCertificateEntry{
			SerialNumber:   serial,
			RevocationTime: e.RevokedAt.UTC(),
			Extensions:     entryExts,
		})
	}

	tbs := tbsCertList{
		Version:             1, // v2
		Signature:           pkix.AlgorithmIdentifier{Algorithm: sigOID},
		Issuer:              asn1.RawValue{FullBytes: issuerDER},
		ThisUpdate:          u.ThisUpdate.UTC(),
		NextUpdate:          u.NextUpdate.UTC(),
		RevokedCertificates: revoked,
		Extensions:          extensions,
	}
	tbsDER, err := asn1.Marshal(tbs)
	if err != nil {
		return nil, fmt.Errorf("marshal TBSCertList: %w", err)
	}

	out := &CRL{
		ID:                 u.ID,
		CAID:               u.CAID,
		Number:             u.Number,
		Issuer:             issuerName.String(),
		ThisUpdate:         u.ThisUpdate.UTC(),
		NextUpdate:         u.NextUpdate.UTC(),
		Entries:            u.Entries,
		SignatureAlgorithm: alg.String(),
		ExtensionsIncluded: opts.IncludeExtensions,
		Status:             StatusActive,
		GeneratedBy:        s.GeneratedBy,
		GeneratedAt:        s.now(),
		Trigger:            u.Trigger,
		PointIDs:           u.PointIDs,
	}

	if !opts.SignCRL {
		out.Raw = tbsDER
		out.Size = len(tbsDER)
		return out, nil
	}

	sig, err := s.Authority.Sign(ctx, u.CAID, tbsDER)
	if err != nil {
		return nil, &SigningError{CAID: u.CAID, Err: err}
	}

	// Reuse the exact TBS bytes that were signed.
	crlDER, err := asn1.Marshal(certificateListRaw{
		TBSCertList:        asn1.RawValue{FullBytes: tbsDER},
		SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: sig.OID},
		SignatureValue:     asn1.BitString{Bytes: sig.Value, BitLength: len(sig.Value) * 8},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal CertificateList: %w", err)
	}

	out.SignatureAlgorithm = sig.Algorithm.String()
	out.Signature = sig.Value
	out.Raw = crlDER
	out.Signed = true
	out.Size = len(crlDER)
	return out, nil
}
