package crl

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ASN.1 structures per RFC 5280 Section 5.1. Assembled by hand because
// crypto/x509.CreateRevocationList cannot produce ML-DSA signatures and
// cannot emit an unsigned TBSCertList.

// tbsCertList is the "to be signed" portion of a CertificateList.
type tbsCertList struct {
	Raw                 asn1.RawContent
	Version             int `asn1:"optional,default:0"`
	Signature           pkix.AlgorithmIdentifier
	Issuer              asn1.RawValue
	ThisUpdate          time.Time
	NextUpdate          time.Time                 `asn1:"optional"`
	RevokedCertificates []revokedCertificateEntry `asn1:"optional"`
	Extensions          []pkix.Extension          `asn1:"optional,explicit,tag:0"`
}

type revokedCertificateEntry struct {
	SerialNumber   *big.Int
	RevocationTime time.Time
	Extensions     []pkix.Extension `asn1:"optional"`
}

// certificateList is the parse-side view of a complete CRL.
type certificateList struct {
	TBSCertList        tbsCertList
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// certificateListRaw is used on the assembly side so the exact signed TBS
// bytes are preserved in the output.
type certificateListRaw struct {
	TBSCertList        asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

var (
	// OIDCRLNumber is the CRL Number extension (RFC 5280 5.2.3).
	OIDCRLNumber = asn1.ObjectIdentifier{2, 5, 29, 20}

	// OIDAuthorityKeyIdentifier is the AKI extension (RFC 5280 5.2.1).
	OIDAuthorityKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 35}

	// OIDIssuingDistributionPoint is the IDP extension (RFC 5280 5.2.5).
	OIDIssuingDistributionPoint = asn1.ObjectIdentifier{2, 5, 29, 28}

	// OIDReasonCode is the per-entry CRLReason extension (RFC 5280 5.3.1).
	OIDReasonCode = asn1.ObjectIdentifier{2, 5, 29, 21}
)

// buildCRLExtensions creates the CRL-level extensions: CRL number, and the
// authority key identifier and issuing distribution point when available.
func buildCRLExtensions(crlNumber int64, authorityKeyID []byte, pointURLs []string) ([]pkix.Extension, error) {
	var exts []pkix.Extension

	numDER, err := asn1.Marshal(big.NewInt(crlNumber))
	if err != nil {
		return nil, fmt.Errorf("marshal CRL number: %w", err)
	}
	exts = append(exts, pkix.Extension{Id: OIDCRLNumber, Value: numDER})

	if len(authorityKeyID) > 0 {
		// AuthorityKeyIdentifier ::= SEQUENCE {
		//   keyIdentifier [0] IMPLICIT KeyIdentifier OPTIONAL }
		akid := struct {
			KeyIdentifier []byte `asn1:"optional,tag:0"`
		}{
			KeyIdentifier: authorityKeyID,
		}
		akidDER, err := asn1.Marshal(akid)
		if err != nil {
			return nil, fmt.Errorf("marshal authority key identifier: %w", err)
		}
		exts = append(exts, pkix.Extension{Id: OIDAuthorityKeyIdentifier, Value: akidDER})
	}

	if len(pointURLs) > 0 {
		idp, err := buildIDPExtension(pointURLs)
		if err != nil {
			return nil, err
		}
		exts = append(exts, idp)
	}

	return exts, nil
}

// buildIDPExtension encodes an IssuingDistributionPoint naming the URLs the
// CRL is published at. Marked critical as RFC 5280 requires.
func buildIDPExtension(urls []string) (pkix.Extension, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		// distributionPoint [0] DistributionPointName
		b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
			// fullName [0] GeneralNames
			b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
				for _, u := range urls {
					// uniformResourceIdentifier [6] IA5String
					b.AddASN1(cbasn1.Tag(6).ContextSpecific(), func(b *cryptobyte.Builder) {
						b.AddBytes([]byte(u))
					})
				}
			})
		})
	})
	der, err := b.Bytes()
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("marshal issuing distribution point: %w", err)
	}
	return pkix.Extension{Id: OIDIssuingDistributionPoint, Critical: true, Value: der}, nil
}

// buildEntryExtensions creates the per-entry extensions: only the reason
// code, and only when it is not the default unspecified.
func buildEntryExtensions(reason RevocationReason) ([]pkix.Extension, error) {
	if reason == ReasonUnspecified {
		return nil, nil
	}
	reasonDER, err := asn1.Marshal(asn1.Enumerated(reason))
	if err != nil {
		return nil, fmt.Errorf("marshal reason code: %w", err)
	}
	return []pkix.Extension{{Id: OIDReasonCode, Value: reasonDER}}, nil
}

// parsedCRL is the structural view of a stored artifact extracted from its
// DER bytes, used by the validator to check what was actually encoded.
type parsedCRL struct {
	TBSRaw             []byte
	Issuer             pkix.RDNSequence
	ThisUpdate         time.Time
	NextUpdate         time.Time
	EntryCount         int
	Extensions         []pkix.Extension
	SignatureAlgorithm asn1.ObjectIdentifier
	Signature          []byte
	Signed             bool
}

// parseDER decodes either a full CertificateList or a bare TBSCertList,
// depending on whether the artifact was signed.
func parseDER(raw []byte, signed bool) (*parsedCRL, error) {
	var tbs tbsCertList
	p := &parsedCRL{Signed: signed}

	if signed {
		var cl certificateList
		rest, err := asn1.Unmarshal(raw, &cl)
		if err != nil {
			return nil, fmt.Errorf("parse CertificateList: %w", err)
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("parse CertificateList: %d trailing bytes", len(rest))
		}
		tbs = cl.TBSCertList
		p.SignatureAlgorithm = cl.SignatureAlgorithm.Algorithm
		p.Signature = cl.SignatureValue.Bytes
	} else {
		rest, err := asn1.Unmarshal(raw, &tbs)
		if err != nil {
			return nil, fmt.Errorf("parse TBSCertList: %w", err)
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("parse TBSCertList: %d trailing bytes", len(rest))
		}
		p.SignatureAlgorithm = tbs.Signature.Algorithm
	}

	p.TBSRaw = tbs.Raw
	p.ThisUpdate = tbs.ThisUpdate
	p.NextUpdate = tbs.NextUpdate
	p.EntryCount = len(tbs.RevokedCertificates)
	p.Extensions = tbs.Extensions

	if _, err := asn1.Unmarshal(tbs.Issuer.FullBytes, &p.Issuer); err != nil {
		return nil, fmt.Errorf("parse issuer name: %w", err)
	}
	return p, nil
}

// hasExtension reports whether the parsed CRL carries an extension with the
// given OID.
func (p *parsedCRL) hasExtension(oid asn1.ObjectIdentifier) bool {
	for _, ext := range p.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}
