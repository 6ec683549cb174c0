// Package signing defines the signing authority boundary. The CRL engine
// never holds CA private key material itself; it hands a canonical byte
// payload to an Authority and gets back a signature plus algorithm
// identifier. Implementations may be software keys on disk or an HSM.
package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
)

// Signature is the result of a signing operation.
type Signature struct {
	Algorithm pkicrypto.AlgorithmID
	OID       asn1.ObjectIdentifier
	Value     []byte
}

// Authority signs payloads on behalf of a CA and exposes the issuer
// certificate relying parties verify against.
type Authority interface {
	// Sign signs the payload with the CA's key. The payload is the full
	// message; the implementation applies any algorithm pre-hash.
	Sign(ctx context.Context, caID string, payload []byte) (*Signature, error)

	// Issuer returns the CA certificate for caID.
	Issuer(caID string) (*x509.Certificate, error)

	// Algorithm returns the signature algorithm the authority will use
	// for caID, needed before signing to embed in the TBS structure.
	Algorithm(caID string) (pkicrypto.AlgorithmID, error)
}

// KeyProvider is implemented by authorities that can expose the CA public
// key directly, without going through certificate parsing. Needed to
// verify ML-DSA CRLs whose issuer certificates the standard library cannot
// parse.
type KeyProvider interface {
	PublicKeyFor(caID string) (crypto.PublicKey, error)
}

// CryptoSignerProvider is implemented by authorities that can expose a
// crypto.Signer, needed for COSE receipt signing.
type CryptoSignerProvider interface {
	CryptoSigner(caID string) (crypto.Signer, error)
}
