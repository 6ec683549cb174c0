// Package crypto provides the signature primitives used when producing and
// verifying CRLs. It supports classical algorithms (ECDSA, Ed25519, RSA) and
// post-quantum ML-DSA via the cloudflare/circl library.
package crypto

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
)

// AlgorithmID identifies a signature algorithm.
type AlgorithmID string

// Classical signature algorithms.
const (
	AlgECDSAP256 AlgorithmID = "ecdsa-p256"
	AlgECDSAP384 AlgorithmID = "ecdsa-p384"
	AlgEd25519   AlgorithmID = "ed25519"
	AlgRSA2048   AlgorithmID = "rsa-2048"
	AlgRSA4096   AlgorithmID = "rsa-4096"
)

// Post-quantum signature algorithms (FIPS 204 ML-DSA).
const (
	AlgMLDSA44 AlgorithmID = "ml-dsa-44"
	AlgMLDSA65 AlgorithmID = "ml-dsa-65"
	AlgMLDSA87 AlgorithmID = "ml-dsa-87"
)

// algorithmInfo holds metadata about an algorithm.
type algorithmInfo struct {
	// SigOID is the signature AlgorithmIdentifier OID used in signed
	// artifacts (e.g. ecdsa-with-SHA256, not the curve OID).
	SigOID     asn1.ObjectIdentifier
	X509SigAlg x509.SignatureAlgorithm
	// Hash is the pre-hash applied before signing. Zero for algorithms
	// that sign the full message (Ed25519, ML-DSA).
	Hash        crypto.Hash
	PQC         bool
	Description string
}

var algorithms = map[AlgorithmID]algorithmInfo{
	AlgECDSAP256: {
		SigOID:      asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2},
		X509SigAlg:  x509.ECDSAWithSHA256,
		Hash:        crypto.SHA256,
		Description: "ECDSA with P-256 and SHA-256",
	},
	AlgECDSAP384: {
		SigOID:      asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3},
		X509SigAlg:  x509.ECDSAWithSHA384,
		Hash:        crypto.SHA384,
		Description: "ECDSA with P-384 and SHA-384",
	},
	AlgEd25519: {
		SigOID:      asn1.ObjectIdentifier{1, 3, 101, 112},
		X509SigAlg:  x509.PureEd25519,
		Description: "Ed25519 (EdDSA with Curve25519)",
	},
	AlgRSA2048: {
		SigOID:      asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11},
		X509SigAlg:  x509.SHA256WithRSA,
		Hash:        crypto.SHA256,
		Description: "RSA 2048-bit with SHA-256",
	},
	AlgRSA4096: {
		SigOID:      asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11},
		X509SigAlg:  x509.SHA256WithRSA,
		Hash:        crypto.SHA256,
		Description: "RSA 4096-bit with SHA-256",
	},
	AlgMLDSA44: {
		SigOID:      asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 17},
		PQC:         true,
		Description: "ML-DSA-44 (NIST Level 1)",
	},
	AlgMLDSA65: {
		SigOID:      asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 18},
		PQC:         true,
		Description: "ML-DSA-65 (NIST Level 3)",
	},
	AlgMLDSA87: {
		SigOID:      asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 19},
		PQC:         true,
		Description: "ML-DSA-87 (NIST Level 5)",
	},
}

// IsValid returns true if the algorithm is recognized.
func (a AlgorithmID) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// IsPQC returns true for post-quantum algorithms.
func (a AlgorithmID) IsPQC() bool {
	return algorithms[a].PQC
}

// SignatureOID returns the signature AlgorithmIdentifier OID.
func (a AlgorithmID) SignatureOID() asn1.ObjectIdentifier {
	if info, ok := algorithms[a]; ok {
		return info.SigOID
	}
	return nil
}

// Hash returns the pre-hash applied before signing, or 0 when the
// algorithm signs the full message.
func (a AlgorithmID) Hash() crypto.Hash {
	return algorithms[a].Hash
}

// X509SignatureAlgorithm returns the x509.SignatureAlgorithm if Go's
// crypto/x509 knows the algorithm, 0 otherwise.
func (a AlgorithmID) X509SignatureAlgorithm() x509.SignatureAlgorithm {
	return algorithms[a].X509SigAlg
}

// Description returns a human-readable description of the algorithm.
func (a AlgorithmID) Description() string {
	if info, ok := algorithms[a]; ok {
		return info.Description
	}
	return "Unknown algorithm"
}

// String returns the algorithm identifier as a string.
func (a AlgorithmID) String() string {
	return string(a)
}

// ParseAlgorithm parses a string into an AlgorithmID.
func ParseAlgorithm(s string) (AlgorithmID, error) {
	alg := AlgorithmID(s)
	if !alg.IsValid() {
		return "", fmt.Errorf("unknown algorithm: %s", s)
	}
	return alg, nil
}

// AlgorithmFromSignatureOID maps a signature AlgorithmIdentifier OID back to
// an AlgorithmID. Used when verifying parsed CRLs.
func AlgorithmFromSignatureOID(oid asn1.ObjectIdentifier) (AlgorithmID, error) {
	for alg, info := range algorithms {
		if info.SigOID.Equal(oid) {
			// RSA-2048 and RSA-4096 share an OID; the distinction only
			// matters at key generation time.
			if alg == AlgRSA4096 {
				continue
			}
			return alg, nil
		}
	}
	return "", fmt.Errorf("unsupported signature algorithm OID: %s", oid.String())
}

// SignatureAlgorithms returns all supported algorithm IDs.
func SignatureAlgorithms() []AlgorithmID {
	result := make([]AlgorithmID, 0, len(algorithms))
	for alg := range algorithms {
		result = append(result, alg)
	}
	return result
}
